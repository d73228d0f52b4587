// Package canonical renders structured documents into a deterministic byte
// form used for hashing and equality comparison.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/starford/cfgswap/internal/apperr"
)

// Parse decodes data as exactly one JSON value. Integer literals are kept
// verbatim so large values stay exact; other numbers are normalized to their
// shortest float64 form, so 1.0, 1.00 and 10e-1 all become 1.
func Parse(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, &apperr.MalformedError{Reason: "content is not valid UTF-8"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &apperr.MalformedError{Reason: "content is empty"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed(data, err, dec.InputOffset())
	}

	// Anything other than trailing whitespace is an error.
	off := dec.InputOffset()
	rest := data[off:]
	if trimmed := bytes.TrimLeft(rest, " \t\r\n"); len(trimmed) > 0 {
		off += int64(len(rest) - len(trimmed))
		return nil, positioned(data, off, "unexpected data after top-level value")
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		return normalizeNumber(t)
	default:
		return v
	}
}

func normalizeNumber(n json.Number) json.Number {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out of float64 range; the literal is the only faithful form.
		return n
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// Canonicalize parses text and renders it with object keys sorted, two-space
// indentation and a single trailing newline. Canonicalize(Canonicalize(x))
// equals Canonicalize(x).
func Canonicalize(data []byte) ([]byte, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// Encode renders an already-parsed tree in canonical form. encoding/json
// emits map keys in sorted order.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Valid reports whether data is a well-formed document.
func Valid(data []byte) error {
	_, err := Parse(data)
	return err
}

func malformed(data []byte, err error, fallback int64) error {
	var syn *json.SyntaxError
	switch {
	case errors.As(err, &syn):
		// Offset counts the offending byte itself.
		return positioned(data, syn.Offset-1, syn.Error())
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return positioned(data, int64(len(data)), "unexpected end of content")
	default:
		return positioned(data, fallback, err.Error())
	}
}

// positioned converts a byte offset into a 1-based line and column.
func positioned(data []byte, offset int64, reason string) error {
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line := bytes.Count(head, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(head, '\n')
	return &apperr.MalformedError{Line: line, Column: col, Reason: reason}
}
