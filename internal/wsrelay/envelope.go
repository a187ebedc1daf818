package wsrelay

import "encoding/json/v2"

// envelope is the one field this relay reads out of a data frame's JSON
// payload. Despite the name carried over from the wire format, this field
// is the routing destination, not the sender: the session loop looks up
// SenderUserID in the registry to decide where the frame goes next. The
// rest of the payload is opaque and forwarded byte-for-byte.
type envelope struct {
	SenderUserID string `json:"sender_user_id"`
}

// parseEnvelope extracts the routing destination from a data frame's
// payload. It returns ErrPayloadDecode if the payload isn't a JSON object
// or lacks a non-empty sender_user_id string; the caller drops the frame
// and keeps the session alive.
func parseEnvelope(payload []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return "", ErrPayloadDecode
	}
	if e.SenderUserID == "" {
		return "", ErrPayloadDecode
	}
	return e.SenderUserID, nil
}
