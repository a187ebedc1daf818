package wsrelay

import "errors"

// Frame-level protocol errors. A frame read that returns one of these
// always terminates the session loop with no Close frame sent.
var (
	// ErrInvalidOpcode indicates an unknown or reserved opcode (RFC 6455
	// Section 5.2: opcodes 0x3-0x7 and 0xB-0xF are reserved).
	ErrInvalidOpcode = errors.New("wsrelay: invalid opcode")

	// ErrReservedBits indicates RSV1/RSV2/RSV3 set without a negotiated
	// extension. This relay never negotiates extensions, so any reserved
	// bit is a protocol violation.
	ErrReservedBits = errors.New("wsrelay: reserved bits must be zero")

	// ErrControlTooLarge indicates a control frame payload over 125 bytes.
	ErrControlTooLarge = errors.New("wsrelay: control frame payload too large")

	// ErrOversizedLength indicates a 64-bit extended length with its
	// reserved most-significant bit set.
	ErrOversizedLength = errors.New("wsrelay: reserved length bit set")

	// ErrMaskRequired indicates a client-originated data frame arrived
	// unmasked. Per spec, the session is terminated.
	ErrMaskRequired = errors.New("wsrelay: client frames must be masked")

	// ErrUnsupportedOpcode covers opcodes the session dispatch table treats
	// as session-fatal even though they are structurally valid frames:
	// Pong, Continuation (fragmentation is unsupported), and UnknownOpcode.
	ErrUnsupportedOpcode = errors.New("wsrelay: unsupported opcode for this session")

	// ErrFrameTooLarge indicates a payload length beyond the relay's
	// implementation limit. Not an RFC violation by itself.
	ErrFrameTooLarge = errors.New("wsrelay: frame payload too large")

	// ErrHijackUnsupported indicates the ResponseWriter passed to upgrade
	// does not implement http.Hijacker. Only possible with a non-standard
	// server or response recorder; never happens behind net/http's server.
	ErrHijackUnsupported = errors.New("wsrelay: response writer does not support hijacking")
)

// errSessionClosed signals an orderly ConnectionClose opcode. It never
// escapes the session loop and is not part of the error taxonomy: a client
// closing its connection is not a failure.
var errSessionClosed = errors.New("wsrelay: session closed by client")

// HandshakeRejection wraps any failure of the §4.3 upgrade validation. The
// client sees an HTTP 400 with Sec-WebSocket-Version: 13; the connection is
// closed immediately after.
type HandshakeRejection struct {
	Reason string
}

func (e *HandshakeRejection) Error() string {
	return "wsrelay: handshake rejected: " + e.Reason
}

func rejectHandshake(reason string) error {
	return &HandshakeRejection{Reason: reason}
}

// ProtocolViolation wraps a malformed frame, an unsupported opcode, or a
// client frame that should have been masked and was not. It always
// terminates the session loop.
type ProtocolViolation struct {
	Err error
}

func (e *ProtocolViolation) Error() string {
	return "wsrelay: protocol violation: " + e.Err.Error()
}

func (e *ProtocolViolation) Unwrap() error {
	return e.Err
}

func violateProtocol(err error) error {
	return &ProtocolViolation{Err: err}
}

// TransportError wraps a client socket read/write failure or a failed
// hijack during the handshake. For the client socket it terminates the
// session. Peer-transmitter dial/write failures are not wrapped in it: the
// forwarder's error is logged and the affected frame is dropped.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "wsrelay: transport error during " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// ErrPayloadDecode indicates a data frame's JSON payload lacked a usable
// sender_user_id string. The frame is dropped and the session continues.
var ErrPayloadDecode = errors.New("wsrelay: payload missing sender_user_id")
