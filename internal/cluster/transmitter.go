package cluster

import (
	"context"
	"net"
)

// Transmitter implements wsrelay.Forwarder: a one-shot, unacknowledged
// delivery of a single frame to a peer node's listener address. No
// retries, no pooling, no confirmation — the caller has already decided
// the frame is best-effort.
type Transmitter struct {
	Dialer net.Dialer
}

// Forward opens a TCP connection to addr, writes header then payload in
// order, and closes. The context's deadline, if any, bounds the dial only;
// RFC 6455 peer forwards are small enough that the write itself is not
// separately bounded.
func (t *Transmitter) Forward(ctx context.Context, addr string, header, payload []byte) error {
	conn, err := t.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(header); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return nil
}
