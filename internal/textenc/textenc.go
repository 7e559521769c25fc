// Package textenc turns raw log message bytes into valid UTF-8.
package textenc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/seanfarley/fromcvs/internal/contract"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Decoder passes valid UTF-8 through and decodes everything else with a
// legacy fallback encoding.
type Decoder struct {
	name     string
	fallback *encoding.Decoder
}

var _ contract.TextDecoder = &Decoder{} // Compile-time check

// NewDecoder creates a decoder for the IANA encoding name used as fallback.
func NewDecoder(fallback string) (*Decoder, error) {
	enc, err := ianaindex.IANA.Encoding(fallback)
	if err != nil {
		return nil, fmt.Errorf("unknown fallback encoding %q: %w", fallback, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("fallback encoding %q is not supported", fallback)
	}
	return &Decoder{name: fallback, fallback: enc.NewDecoder()}, nil
}

// Decode implements the TextDecoder interface.
func (d *Decoder) Decode(raw string) (string, error) {
	if utf8.ValidString(raw) {
		return raw, nil
	}
	out, err := d.fallback.String(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", contract.ErrEncoding, d.name, err)
	}
	if !utf8.ValidString(out) || strings.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%w: %q is not valid %s", contract.ErrEncoding, raw, d.name)
	}
	return out, nil
}
