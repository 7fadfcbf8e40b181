package packet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEncode matches every *EncodeError.
	ErrEncode = errors.New("packet encode failed")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("packet decode failed")
)

// EncodeError reports a packet that cannot be represented as JSON.
type EncodeError struct {
	Event string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode packet %q: %v", e.Event, e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }

// DecodeError reports a malformed wire payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode packet: %s: %v", e.Reason, e.Err)
	}
	return "decode packet: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// wirePacket is the JSON shape on the data channel.
type wirePacket struct {
	ID        string         `json:"id,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// Encode serializes p into a UTF-8 JSON object.
func Encode(p *Packet) ([]byte, error) {
	if p == nil {
		return nil, &EncodeError{Err: errors.New("nil packet")}
	}
	if p.Event == "" {
		return nil, &EncodeError{Err: errors.New("event is required")}
	}
	w := wirePacket{ID: p.ID, Event: p.Event, Data: p.Data}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	if !p.Timestamp.IsZero() {
		ts := p.Timestamp.UTC()
		w.Timestamp = &ts
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, &EncodeError{Event: p.Event, Err: err}
	}
	return b, nil
}

// Decode parses a wire payload. Unknown event kinds are accepted; the caller
// decides whether to act on them.
func Decode(b []byte) (*Packet, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Reason: "payload is not a json object"}
	}

	p := &Packet{Data: map[string]any{}}

	rawEvent, ok := fields["event"]
	if !ok {
		return nil, &DecodeError{Reason: "missing event"}
	}
	if !isJSONString(rawEvent) {
		return nil, &DecodeError{Reason: "event is not a string"}
	}
	if err := json.Unmarshal(rawEvent, &p.Event); err != nil {
		return nil, &DecodeError{Reason: "event is not a string", Err: err}
	}
	if p.Event == "" {
		return nil, &DecodeError{Reason: "event is empty"}
	}

	if rawData, ok := fields["data"]; ok && !isJSONNull(rawData) {
		if !bytes.HasPrefix(bytes.TrimSpace(rawData), []byte("{")) {
			return nil, &DecodeError{Reason: "data is not an object"}
		}
		if err := json.Unmarshal(rawData, &p.Data); err != nil {
			return nil, &DecodeError{Reason: "data is not an object", Err: err}
		}
	}

	if rawID, ok := fields["id"]; ok && !isJSONNull(rawID) {
		if err := json.Unmarshal(rawID, &p.ID); err != nil {
			return nil, &DecodeError{Reason: "id is not a string", Err: err}
		}
	}

	if rawTS, ok := fields["timestamp"]; ok && !isJSONNull(rawTS) {
		ts, err := decodeTimestamp(rawTS)
		if err != nil {
			return nil, &DecodeError{Reason: "invalid timestamp", Err: err}
		}
		p.Timestamp = ts
	}

	return p, nil
}

// decodeTimestamp accepts an RFC 3339 string or Unix seconds (senders written
// against time.time() emit floats).
func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if isJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 string or unix seconds: %w", err)
	}
	if math.IsNaN(secs) || secs < minUnixSeconds || secs >= maxUnixSeconds {
		return time.Time{}, fmt.Errorf("unix seconds %g outside years 0-9999", secs)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// Bounds of the years a time.Time can be marshaled with, so anything Decode
// accepts Encode can write back.
var (
	minUnixSeconds = float64(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxUnixSeconds = float64(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
)

func isJSONString(raw json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`))
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
