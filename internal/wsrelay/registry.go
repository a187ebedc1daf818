package wsrelay

import "sync"

// registrant is the registry's view of a live session: the channel its
// session loop drains for inbound frame blocks, and a closer the registry
// can invoke to tear down a displaced session.
type registrant struct {
	inbound chan<- []byte
	close   func()
}

// Registry maps a user id to its locally-connected session, within a
// single node. It is the process-wide lookup the cluster fabric and the
// session loop both consult: the fabric to decide whether a destination
// user is local, the session loop to register itself on login and
// deregister on teardown.
//
// Lookups, inserts, and deletes are all O(1) map operations under a single
// mutex; the registry never performs I/O while holding the lock.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registrant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registrant)}
}

// Register adds userID to the registry. If a session was already registered
// under userID, its close function is returned along with ok=true; the
// caller is expected to invoke it to tear down the displaced session. The
// displaced session's own teardown later calls Deregister, which is a
// no-op by then because the entry it would remove has already been
// overwritten.
func (reg *Registry) Register(userID string, inbound chan<- []byte, closeFn func()) (displaced func(), ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	prev, existed := reg.entries[userID]
	reg.entries[userID] = registrant{inbound: inbound, close: closeFn}
	if existed {
		return prev.close, true
	}
	return nil, false
}

// Deregister removes userID from the registry, but only if the current
// entry's inbound channel still matches the one given. This prevents a
// displaced session's deferred cleanup from removing the session that
// displaced it.
func (reg *Registry) Deregister(userID string, inbound chan<- []byte) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if cur, ok := reg.entries[userID]; ok && cur.inbound == inbound {
		delete(reg.entries, userID)
	}
}

// Lookup returns the inbound channel registered for userID, if any.
func (reg *Registry) Lookup(userID string) (chan<- []byte, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.entries[userID]
	if !ok {
		return nil, false
	}
	return r.inbound, true
}
