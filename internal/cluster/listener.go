// Package cluster implements the two workers that move frames between
// relay nodes: a listener that accepts inbound peer forwards and a
// transmitter that makes outbound ones. Both are one-shot and stateless —
// the directory is the source of truth, so there is nothing to reconcile
// if a forward is lost.
package cluster

import (
	"net"

	"github.com/rs/zerolog"

	"github.com/cluster23/relay/internal/wsrelay"
)

// SessionLookup is the subset of wsrelay.Server a listener needs: finding
// the inbound channel for a locally-connected user.
type SessionLookup interface {
	InboundChannel(userID string) (chan<- []byte, bool)
}

// Listener accepts plain TCP connections from peer nodes, each carrying
// exactly one forwarded frame, and injects it into the destination
// session's inbound channel.
type Listener struct {
	Addr     string
	Sessions SessionLookup
	Logger   zerolog.Logger
}

// Serve binds Addr and accepts connections until the listener is closed or
// accept fails permanently. It never returns nil during normal operation;
// callers typically run it in its own goroutine for the lifetime of the
// node.
func (l *Listener) Serve() error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	l.Logger.Info().Str("addr", l.Addr).Msg("peer listener started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.handle(conn)
	}
}

// handle reads exactly one frame from conn, routes it to the local
// destination if still registered, and closes the connection. A
// destination that has since disconnected, or a malformed forward, is
// dropped silently: the directory was stale, and peer delivery is
// best-effort by design.
func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	header, payload, destUserID, err := wsrelay.DecodeRoutedFrame(conn)
	if err != nil {
		l.Logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping malformed peer forward")
		return
	}

	inbound, ok := l.Sessions.InboundChannel(destUserID)
	if !ok {
		l.Logger.Debug().Str("dest", destUserID).Msg("peer forward for unregistered user, dropping")
		return
	}

	select {
	case inbound <- header:
	default:
		l.Logger.Warn().Str("dest", destUserID).Msg("inbound channel full, dropping peer forward")
		return
	}
	select {
	case inbound <- payload:
	default:
		l.Logger.Warn().Str("dest", destUserID).Msg("inbound channel full after header, dropping payload")
	}
}
