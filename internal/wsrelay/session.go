package wsrelay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// inboundChannelCapacity bounds a session's inbound delivery channel, the
// queue local deliveries and peer-forwarded frames are enqueued into.
const inboundChannelCapacity = 100

// sessionIdleTimeout is a hardening measure not required by the protocol: a
// client that never sends another frame within this window has its socket
// read deadline expire, closing the connection rather than holding it
// indefinitely.
const sessionIdleTimeout = 120 * time.Second

// Directory is the subset of the external key-value store a session needs.
// internal/directory provides the concrete Redis-backed implementation;
// wsrelay depends only on this interface so the two packages don't import
// each other.
type Directory interface {
	Get(ctx context.Context, userID string) (addr string, ok bool)
	Set(ctx context.Context, userID, addr string) error
	Del(ctx context.Context, userID string) error
}

// Forwarder delivers a routed frame to a peer node's listener address.
// internal/cluster provides the concrete one-shot TCP implementation.
type Forwarder interface {
	Forward(ctx context.Context, addr string, header, payload []byte) error
}

// Session is one upgraded client connection: its socket, its registry
// entry, and the dispatch loop that races socket-originated frames against
// peer-forwarded ones.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	userID string

	inbound chan []byte

	registry    *Registry
	directory   Directory
	forwarder   Forwarder
	peerAddr    string
	clusterMode bool

	logger zerolog.Logger
}

// frameResult is one decoded frame (or decode error) produced by either the
// socket-reading goroutine or the channel-reading goroutine.
type frameResult struct {
	header      *frameHeader
	payload     []byte
	fromChannel bool
	err         error
}

// Run registers the session, advertises it in the directory if clustered,
// and drives the dispatch loop until the client closes the connection, a
// protocol violation occurs, or the session is displaced by a later login
// under the same user id. Teardown is unconditional on return.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown(ctx)

	if displaced, ok := s.registry.Register(s.userID, s.inbound, func() { _ = s.conn.Close() }); ok {
		displaced()
	}
	if s.clusterMode && s.directory != nil {
		if err := s.directory.Set(ctx, s.userID, s.peerAddr); err != nil {
			s.logger.Warn().Err(err).Msg("directory advertise failed")
		}
	}

	done := make(chan struct{})
	defer close(done)

	results := make(chan frameResult)
	go s.socketLoop(done, results)
	go s.channelLoop(done, results)

	for {
		res := <-results
		if res.err != nil {
			if !errors.Is(res.err, errSessionClosed) {
				s.logger.Debug().Err(res.err).Bool("from_channel", res.fromChannel).Msg("session terminated")
			}
			return
		}
		if err := s.dispatch(ctx, res); err != nil {
			if errors.Is(err, errSessionClosed) {
				return
			}
			s.logger.Debug().Err(err).Msg("session terminated")
			return
		}
	}
}

// socketLoop decodes frames from the client socket until a read error or
// until done is closed, feeding each result into results; a ConnectionClose
// frame is passed on like any other and ends the session in Run. It applies the
// rolling idle-timeout deadline before every header read.
func (s *Session) socketLoop(done <-chan struct{}, results chan<- frameResult) {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(sessionIdleTimeout))

		h, err := decodeHeader(s.reader)
		var payload []byte
		if err == nil && requiresMask(h.opcode) && !h.masked {
			err = violateProtocol(ErrMaskRequired)
		}
		if err == nil {
			payload, err = decodePayload(s.reader, h)
			if err != nil {
				err = transportError("read payload", err)
			}
		} else if !isProtocolError(err) {
			err = transportError("read header", err)
		}

		select {
		case results <- frameResult{header: h, payload: payload, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// channelLoop decodes frames arriving through the session's inbound
// channel — local routing or peer forwards — until done is closed.
func (s *Session) channelLoop(done <-chan struct{}, results chan<- frameResult) {
	src := newChannelSource(s.inbound, done)
	for {
		h, err := decodeHeader(src)
		var payload []byte
		if err == nil {
			payload, err = decodePayload(src, h)
		}

		select {
		case results <- frameResult{header: h, payload: payload, fromChannel: true, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func isProtocolError(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// dispatch acts on one decoded frame per the opcode dispatch table.
func (s *Session) dispatch(ctx context.Context, res frameResult) error {
	switch res.header.opcode {
	case opcodeText, opcodeBinary:
		return s.routeData(ctx, res)
	case opcodePing:
		if err := s.writeFrame(opcodePong, res.payload); err != nil {
			return err
		}
		return nil
	case opcodeClose:
		return errSessionClosed
	default:
		return violateProtocol(fmt.Errorf("%w: opcode 0x%x", ErrUnsupportedOpcode, res.header.opcode))
	}
}

// routeData implements the §4.4.1 routing policy: local registry hit,
// directory lookup plus peer forward, or drop, for socket-originated
// frames; verbatim write-through to this client for channel-originated
// (peer-forwarded) frames, since the channel path is always the terminal
// delivery hop.
func (s *Session) routeData(ctx context.Context, res frameResult) error {
	if res.fromChannel {
		if _, err := s.writer.Write(res.header.raw); err != nil {
			return transportError("write routed header", err)
		}
		if _, err := s.writer.Write(res.payload); err != nil {
			return transportError("write routed payload", err)
		}
		if err := s.writer.Flush(); err != nil {
			return transportError("flush routed frame", err)
		}
		return nil
	}

	destUserID, err := parseEnvelope(res.payload)
	if err != nil {
		s.logger.Debug().Err(err).Msg("dropping frame with undecodable payload")
		return nil
	}

	header := encodeHeader(res.header.opcode, len(res.payload))

	if inbound, ok := s.registry.Lookup(destUserID); ok {
		enqueue(inbound, header, res.payload, s.logger, destUserID)
		return nil
	}

	if s.clusterMode && s.directory != nil {
		addr, ok := s.directory.Get(ctx, destUserID)
		if !ok {
			s.logger.Debug().Str("dest", destUserID).Msg("recipient not in directory, dropping frame")
			return nil
		}
		if err := s.forwarder.Forward(ctx, addr, header, res.payload); err != nil {
			s.logger.Warn().Err(err).Str("dest", destUserID).Str("peer", addr).Msg("peer forward failed, dropping frame")
		}
		return nil
	}

	s.logger.Debug().Str("dest", destUserID).Msg("recipient not registered locally, dropping frame")
	return nil
}

// enqueue pushes header then payload onto a destination session's inbound
// channel. A full channel means the destination isn't draining fast
// enough; the frame is dropped rather than blocking this session's loop,
// which could otherwise deadlock two sessions forwarding to each other.
func enqueue(inbound chan<- []byte, header, payload []byte, logger zerolog.Logger, destUserID string) {
	select {
	case inbound <- header:
	default:
		logger.Warn().Str("dest", destUserID).Msg("inbound channel full, dropping frame")
		return
	}
	select {
	case inbound <- payload:
	default:
		logger.Warn().Str("dest", destUserID).Msg("inbound channel full after header, dropping payload")
	}
}

// writeFrame encodes and writes a server-originated frame directly to this
// session's own write-half, used for the Pong reply.
func (s *Session) writeFrame(opcode byte, payload []byte) error {
	if _, err := s.writer.Write(encodeFrame(opcode, payload)); err != nil {
		return transportError("write frame", err)
	}
	if err := s.writer.Flush(); err != nil {
		return transportError("flush frame", err)
	}
	return nil
}

func (s *Session) teardown(ctx context.Context) {
	s.registry.Deregister(s.userID, s.inbound)
	if s.clusterMode && s.directory != nil {
		if err := s.directory.Del(ctx, s.userID); err != nil {
			s.logger.Warn().Err(err).Msg("directory cleanup failed")
		}
	}
	_ = s.conn.Close()
	s.logger.Info().Msg("session closed")
}
