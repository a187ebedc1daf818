package wsrelay

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSession(userID string, reg *Registry) (*Session, net.Conn) {
	serverConn, clientConn := net.Pipe()
	sess := &Session{
		conn:        serverConn,
		reader:      bufio.NewReader(serverConn),
		writer:      bufio.NewWriter(serverConn),
		userID:      userID,
		inbound:     make(chan []byte, inboundChannelCapacity),
		registry:    reg,
		clusterMode: false,
		logger:      zerolog.Nop(),
	}
	return sess, clientConn
}

// maskedFrame builds a client-originated frame: masked, as RFC 6455
// requires of every frame a client sends.
func maskedFrame(opcode byte, payload []byte, mask [4]byte) []byte {
	masked := append([]byte(nil), payload...)
	applyMask(masked, mask)

	header := []byte{0x80 | (opcode & 0x0F), 0x80}
	switch {
	case len(payload) <= 125:
		header[1] |= byte(len(payload))
	default:
		panic("maskedFrame: test helper only supports short payloads")
	}
	header = append(header, mask[:]...)
	return append(header, masked...)
}

func readServerFrame(t *testing.T, r *bufio.Reader) (*frameHeader, []byte) {
	t.Helper()
	h, err := decodeHeader(r)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	payload, err := decodePayload(r, h)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	return h, payload
}

const testTimeout = 2 * time.Second

// TestSession_HappyEchoScenario matches the first end-to-end scenario:
// a lone client sends a Text frame addressed to itself and receives the
// same payload back as a server frame.
func TestSession_HappyEchoScenario(t *testing.T) {
	reg := NewRegistry()
	sess, client := newTestSession("alice", reg)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	payload := []byte(`{"sender_user_id":"alice","message":"hi"}`)
	frame := maskedFrame(opcodeText, payload, [4]byte{1, 2, 3, 4})
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("client write: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(testTimeout))
	reader := bufio.NewReader(client)
	h, got := readServerFrame(t, reader)

	if h.opcode != opcodeText {
		t.Fatalf("opcode = 0x%x, want Text", h.opcode)
	}
	if h.masked {
		t.Fatal("server frame must not be masked")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

// TestSession_CrossSessionLocalDelivery matches the second scenario: bob
// addresses a frame to alice, both hosted on the same node, and only
// alice's socket receives it.
func TestSession_CrossSessionLocalDelivery(t *testing.T) {
	reg := NewRegistry()
	alice, aliceClient := newTestSession("alice", reg)
	bob, bobClient := newTestSession("bob", reg)
	defer aliceClient.Close()
	defer bobClient.Close()

	go alice.Run(context.Background())
	go bob.Run(context.Background())

	payload := []byte(`{"sender_user_id":"alice","message":"hi"}`)
	frame := maskedFrame(opcodeText, payload, [4]byte{5, 6, 7, 8})
	if _, err := bobClient.Write(frame); err != nil {
		t.Fatalf("bob write: %v", err)
	}

	_ = aliceClient.SetReadDeadline(time.Now().Add(testTimeout))
	reader := bufio.NewReader(aliceClient)
	_, got := readServerFrame(t, reader)
	if !bytes.Equal(got, payload) {
		t.Fatalf("alice received %q, want %q", got, payload)
	}
}

// TestSession_UnknownRecipientIsDropped matches the fourth scenario: a
// frame addressed to a user nobody has registered is silently dropped, and
// the sending session stays alive (proven by a working ping afterward).
func TestSession_UnknownRecipientIsDropped(t *testing.T) {
	reg := NewRegistry()
	bob, bobClient := newTestSession("bob", reg)
	defer bobClient.Close()

	go bob.Run(context.Background())

	payload := []byte(`{"sender_user_id":"carol","message":"hi"}`)
	frame := maskedFrame(opcodeText, payload, [4]byte{1, 1, 1, 1})
	if _, err := bobClient.Write(frame); err != nil {
		t.Fatalf("bob write: %v", err)
	}

	ping := maskedFrame(opcodePing, []byte("abc"), [4]byte{2, 2, 2, 2})
	if _, err := bobClient.Write(ping); err != nil {
		t.Fatalf("bob write ping: %v", err)
	}

	_ = bobClient.SetReadDeadline(time.Now().Add(testTimeout))
	reader := bufio.NewReader(bobClient)
	h, got := readServerFrame(t, reader)
	if h.opcode != opcodePong {
		t.Fatalf("opcode = 0x%x, want Pong (session should have survived the dropped frame)", h.opcode)
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("pong payload = %q, want %q", got, "abc")
	}
}

// TestSession_PingPong matches the fifth scenario.
func TestSession_PingPong(t *testing.T) {
	reg := NewRegistry()
	sess, client := newTestSession("alice", reg)
	defer client.Close()

	go sess.Run(context.Background())

	ping := maskedFrame(opcodePing, []byte("abc"), [4]byte{3, 3, 3, 3})
	if _, err := client.Write(ping); err != nil {
		t.Fatalf("client write: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(testTimeout))
	reader := bufio.NewReader(client)
	h, got := readServerFrame(t, reader)
	if h.opcode != opcodePong {
		t.Fatalf("opcode = 0x%x, want Pong", h.opcode)
	}
	if h.masked {
		t.Fatal("server Pong must not be masked")
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("pong payload = %q, want %q", got, "abc")
	}
}

// TestSession_ConnectionCloseEndsLoopCleanly verifies the registry purity
// property: after a ConnectionClose opcode, the session's own entry is
// gone.
func TestSession_ConnectionCloseEndsLoopCleanly(t *testing.T) {
	reg := NewRegistry()
	sess, client := newTestSession("alice", reg)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	closeFrame := maskedFrame(opcodeClose, nil, [4]byte{4, 4, 4, 4})
	if _, err := client.Write(closeFrame); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("session did not exit after ConnectionClose")
	}

	if _, ok := reg.Lookup("alice"); ok {
		t.Fatal("registry still has an entry for alice after teardown")
	}
}

// unmaskedFrame builds a frame with the mask bit clear, as a compliant
// client would never send.
func unmaskedFrame(opcode byte, payload []byte) []byte {
	header := []byte{0x80 | (opcode & 0x0F), byte(len(payload))}
	return append(header, payload...)
}

// TestSession_RejectsUnmaskedDataFrame verifies that a Text frame arriving
// without the mask flag set terminates the session instead of being routed.
func TestSession_RejectsUnmaskedDataFrame(t *testing.T) {
	reg := NewRegistry()
	sess, client := newTestSession("alice", reg)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		sess.Run(context.Background())
		close(done)
	}()

	frame := unmaskedFrame(opcodeText, []byte(`{"sender_user_id":"alice"}`))
	if _, err := client.Write(frame); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("session did not terminate on unmasked data frame")
	}

	if _, ok := reg.Lookup("alice"); ok {
		t.Fatal("registry still has an entry after protocol violation teardown")
	}
}

// TestSession_DuplicateLoginClosesDisplacedSession verifies the chosen
// resolution of the duplicate-login design note: the earlier session's
// connection is closed rather than orphaned.
func TestSession_DuplicateLoginClosesDisplacedSession(t *testing.T) {
	reg := NewRegistry()
	first, firstClient := newTestSession("alice", reg)
	defer firstClient.Close()

	firstDone := make(chan struct{})
	go func() {
		first.Run(context.Background())
		close(firstDone)
	}()

	// Give the first session a chance to register before the second logs in.
	for i := 0; i < 100; i++ {
		if _, ok := reg.Lookup("alice"); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}

	second, secondClient := newTestSession("alice", reg)
	defer secondClient.Close()
	go second.Run(context.Background())

	select {
	case <-firstDone:
	case <-time.After(testTimeout):
		t.Fatal("displaced session was not torn down")
	}

	if ch, ok := reg.Lookup("alice"); !ok || ch != chan<- []byte(second.inbound) {
		t.Fatal("registry does not point at the displacing session after displacement")
	}
}
