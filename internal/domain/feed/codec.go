package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Encode serializes an update as JSON. Map keys are emitted in sorted order,
// so the same input always yields the same bytes, and JSON escaping keeps
// CR and LF out of the payload.
func Encode(u Update) (Envelope, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode update: %w", err)
	}
	return Envelope{data: data}, nil
}

// EncodeValue serializes an arbitrary producer value. Strings and byte slices
// are sent as text; everything else is encoded as JSON.
func EncodeValue(v any) (Envelope, error) {
	switch x := v.(type) {
	case string:
		return Text(x), nil
	case []byte:
		return Text(string(x)), nil
	case Update:
		return Encode(x)
	case json.RawMessage:
		return Raw(x)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode value: %w", err)
	}
	return Envelope{data: data}, nil
}

// Text wraps a text payload. Line breaks are normalized to LF; the framer
// turns each line into its own data field.
func Text(s string) Envelope {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return Envelope{data: []byte(s)}
}

// Raw wraps pre-serialized JSON. The bytes are compacted by re-encoding, which
// also rejects invalid input.
func Raw(data []byte) (Envelope, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Envelope{}, fmt.Errorf("decode raw payload: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode raw payload: %w", err)
	}
	return Envelope{data: out}, nil
}

// Superseded returns the terminal envelope for a stale connection.
func Superseded() Envelope {
	return Text(SupersededPayload)
}

// AppendFrame appends the event-stream frame for e to dst.
func AppendFrame(dst []byte, e Envelope) []byte {
	if e.id != "" {
		dst = append(dst, "id: "...)
		dst = append(dst, e.id...)
		dst = append(dst, '\n')
	}
	if e.event != "" {
		dst = append(dst, "event: "...)
		dst = append(dst, e.event...)
		dst = append(dst, '\n')
	}
	rest := e.data
	for {
		dst = append(dst, "data: "...)
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			dst = append(dst, rest...)
			dst = append(dst, '\n')
			break
		}
		dst = append(dst, rest[:i]...)
		dst = append(dst, '\n')
		rest = rest[i+1:]
	}
	return append(dst, '\n')
}

// Frame returns the event-stream frame for e.
func Frame(e Envelope) []byte {
	return AppendFrame(make([]byte, 0, len(e.data)+16), e)
}

// WriteFrame writes the event-stream frame for e to w.
func WriteFrame(w io.Writer, e Envelope) error {
	_, err := w.Write(Frame(e))
	return err
}

// WriteComment writes an event-stream comment line. Clients ignore comments,
// which makes them suitable for keep-alives.
func WriteComment(w io.Writer, text string) error {
	_, err := io.WriteString(w, ": "+sanitizeField(text)+"\n\n")
	return err
}

// sanitizeField strips line breaks from single-line fields.
func sanitizeField(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
}
