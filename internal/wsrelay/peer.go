package wsrelay

import "io"

// DecodeRoutedFrame reads one complete frame from r — exactly what the
// cluster fabric's peer listener receives on each accepted connection —
// and extracts the destination user id from its payload. It returns the
// frame's raw header bytes (ready to be re-emitted verbatim) and payload
// bytes separately, matching the two-block shape a session's inbound
// channel expects.
func DecodeRoutedFrame(r io.Reader) (header, payload []byte, destUserID string, err error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, nil, "", err
	}
	payload, err = decodePayload(r, h)
	if err != nil {
		return nil, nil, "", err
	}
	destUserID, err = parseEnvelope(payload)
	if err != nil {
		return nil, nil, "", err
	}
	return h.raw, payload, destUserID, nil
}
