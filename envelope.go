package monarch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrMalformedEnvelope is returned when a payload cannot be decoded into an
// Envelope.
var ErrMalformedEnvelope = errors.New("malformed activation envelope")

// Envelope carries a secondary launch's command line to the primary
// instance. It is immutable once constructed.
type Envelope struct {
	timestamp time.Time
	args      []string
}

// NewEnvelope returns an envelope stamped with ts. A nil args slice is
// treated as empty.
func NewEnvelope(ts time.Time, args []string) *Envelope {
	return &Envelope{timestamp: ts, args: cloneArgs(args)}
}

// Timestamp returns when the envelope was created by the sender.
func (e *Envelope) Timestamp() time.Time { return e.timestamp }

// Args returns a copy of the forwarded arguments. Never nil.
func (e *Envelope) Args() []string { return cloneArgs(e.args) }

func (e *Envelope) String() string {
	return fmt.Sprintf("envelope(%s, %q)", e.timestamp.Format(time.RFC3339Nano), e.args)
}

// envelopeWire is the JSON form exchanged over the activation channel.
type envelopeWire struct {
	Timestamp time.Time `json:"timestamp"`
	Args      []string  `json:"args"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeWire{Timestamp: e.timestamp, Args: cloneArgs(e.args)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.timestamp = w.Timestamp
	e.args = cloneArgs(w.Args)
	return nil
}

// Encode returns the UTF-8 JSON wire form of e.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a wire payload. A payload that decodes to no value
// (for example JSON null) or is not a JSON object wraps ErrMalformedEnvelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected JSON object", ErrMalformedEnvelope)
	}

	var env *Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: no value", ErrMalformedEnvelope)
	}
	return env, nil
}

func cloneArgs(args []string) []string {
	if args == nil {
		return []string{}
	}
	return slices.Clone(args)
}
