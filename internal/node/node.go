// Package node assembles one relay process: the client-facing HTTP
// listener, the optional peer listener, the registry, and the directory
// client, all wired through an explicit context struct rather than
// package-level globals.
package node

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cluster23/relay/internal/cluster"
	"github.com/cluster23/relay/internal/directory"
	"github.com/cluster23/relay/internal/wsrelay"
)

// Config carries everything a node needs at startup. All fields are
// resolved from CLI flags / config file / environment before New is
// called; Config itself does no parsing.
type Config struct {
	// Host is the address this node advertises; the handshake rejects any
	// client whose Host header names something else.
	Host string
	// ClientAddr is the address the client-facing HTTP listener binds,
	// e.g. ":3999".
	ClientAddr string
	// PeerAddr is the address the peer listener binds, for cluster mode.
	PeerAddr string
	// ClusterMode enables the directory client and peer fabric.
	ClusterMode bool
	// DirectoryAddr is the Redis address backing the directory, when
	// ClusterMode is set.
	DirectoryAddr string
	Logger        zerolog.Logger
}

// Node holds everything a running relay process needs, constructed once at
// startup and passed explicitly into the HTTP handler and cluster workers
// it wires up. There is no package-level mutable state anywhere in this
// repository; Node is how that requirement is met.
type Node struct {
	cfg       Config
	server    *wsrelay.Server
	peerSrv   *cluster.Listener
	dirCloser io.Closer
}

// New constructs a node. When cfg.ClusterMode is set it also opens and
// pings the directory connection; a failure there is returned immediately
// rather than discovered later at first use, since a cluster-mode node
// that can't reach its directory can't route cross-node traffic at all.
func New(ctx context.Context, cfg Config) (*Node, error) {
	registry := wsrelay.NewRegistry()

	var dir wsrelay.Directory
	var dirCloser io.Closer
	if cfg.ClusterMode {
		client := directory.New(cfg.DirectoryAddr, cfg.Logger)
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect directory at %s: %w", cfg.DirectoryAddr, err)
		}
		dir = client
		dirCloser = client
	}

	server := &wsrelay.Server{
		Registry:    registry,
		Directory:   dir,
		Forwarder:   &cluster.Transmitter{},
		ClusterMode: cfg.ClusterMode,
		Host:        cfg.Host,
		PeerAddr:    cfg.PeerAddr,
		Logger:      cfg.Logger,
	}

	n := &Node{cfg: cfg, server: server, dirCloser: dirCloser}
	if cfg.ClusterMode {
		n.peerSrv = &cluster.Listener{
			Addr:     cfg.PeerAddr,
			Sessions: server,
			Logger:   cfg.Logger,
		}
	}
	return n, nil
}

// Serve runs the client-facing HTTP listener and, in cluster mode, the
// peer listener, until ctx is cancelled or either listener fails. It does
// not return on success: per this system's exit-code contract, the server
// loop runs forever in practice.
func (n *Node) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/chat", n.server)
	httpSrv := &http.Server{Addr: n.cfg.ClientAddr, Handler: mux}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	if n.peerSrv != nil {
		go func() { errCh <- n.peerSrv.Serve() }()
	}

	select {
	case <-ctx.Done():
		_ = httpSrv.Close()
		if n.dirCloser != nil {
			_ = n.dirCloser.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
