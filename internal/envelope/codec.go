// ABOUTME: JSON encoding of Envelopes for the host process boundary
// ABOUTME: One object per line: {"kind": ..., "payload": ...}

package envelope

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineSize bounds a single encoded Envelope on the wire.
const maxLineSize = 1 << 20

type wireEnvelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var payload any
	switch {
	case e.kind.hasText():
		payload = e.text
	case e.kind.hasList():
		payload = cloneStrings(e.items)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Kind: e.kind, Payload: raw})
}

// UnmarshalJSON implements json.Unmarshaler. The kind is validated and the
// payload decoded according to it.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if w.Kind == "" {
		return ErrMissingKind
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
	}

	out := Envelope{kind: w.Kind}
	hasPayload := len(w.Payload) > 0 && string(w.Payload) != "null"
	switch {
	case w.Kind.hasText():
		if hasPayload {
			if err := json.Unmarshal(w.Payload, &out.text); err != nil {
				return fmt.Errorf("decoding %s payload: %w", w.Kind, err)
			}
		}
	case w.Kind.hasList():
		var items []string
		if hasPayload {
			if err := json.Unmarshal(w.Payload, &items); err != nil {
				return fmt.Errorf("decoding %s payload: %w", w.Kind, err)
			}
		}
		out.items = cloneStrings(items)
	}

	*e = out
	return nil
}

// Encoder writes Envelopes as JSON lines. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one Envelope followed by a newline.
func (e *Encoder) Encode(env Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(env)
}

// DecodeError reports a malformed line. The stream itself is still usable.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed envelope %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads JSON-lines Envelopes.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Decoder{scanner: scanner}
}

// Decode reads the next Envelope. It returns io.EOF at the end of input.
// A malformed line yields a *DecodeError and leaves the Decoder usable, so
// the caller can log it and keep reading. Any other error is final.
func (d *Decoder) Decode() (Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, &DecodeError{Line: string(line), Err: err}
		}
		return env, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Envelope{}, fmt.Errorf("reading envelopes: %w", err)
	}
	return Envelope{}, io.EOF
}
