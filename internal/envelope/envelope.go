// ABOUTME: Reversible codec between plain-text message bodies and stored envelopes
// ABOUTME: gzip compresses the text and wraps base64 output as "Binary(0x2, ...)"

package envelope

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

const (
	// Prefix opens every stored envelope.
	Prefix = "Binary(0x2, "
	// Terminator closes every stored envelope.
	Terminator = ")"
)

var (
	// ErrFormat is returned when the input is not wrapped as an envelope.
	ErrFormat = errors.New("malformed envelope")

	// ErrBase64 is returned when the envelope payload is not valid base64.
	ErrBase64 = errors.New("invalid base64 payload")

	// ErrDecompress is returned when the payload is not a valid gzip stream.
	ErrDecompress = errors.New("invalid compressed payload")

	// ErrEncoding is returned when text is not valid UTF-8.
	ErrEncoding = errors.New("invalid UTF-8 text")
)

// Encode compresses text and wraps it as a stored envelope.
func Encode(text string) (string, error) {
	raw, err := Compress(text)
	if err != nil {
		return "", err
	}
	return Wrap(raw), nil
}

// Decode unwraps an envelope and decompresses its payload back to text.
func Decode(envelope string) (string, error) {
	raw, err := Unwrap(envelope)
	if err != nil {
		return "", err
	}
	return Decompress(raw)
}

// Compress gzips the UTF-8 bytes of text. The output carries a zero
// modification time so equal inputs always produce equal bytes.
func Compress(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, ErrEncoding
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("compressing text: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flushing compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(raw []byte) (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	if !utf8.Valid(out) {
		return "", ErrEncoding
	}
	return string(out), nil
}

// Wrap renders compressed bytes in the stored textual form.
func Wrap(raw []byte) string {
	var b strings.Builder
	b.Grow(len(Prefix) + base64.StdEncoding.EncodedLen(len(raw)) + len(Terminator))
	b.WriteString(Prefix)
	b.WriteString(base64.StdEncoding.EncodeToString(raw))
	b.WriteString(Terminator)
	return b.String()
}

// Unwrap extracts the compressed bytes from an envelope without
// decompressing them.
func Unwrap(envelope string) ([]byte, error) {
	if !strings.HasPrefix(envelope, Prefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrFormat, Prefix)
	}
	payload := envelope[len(Prefix):]
	if !strings.HasSuffix(payload, Terminator) {
		return nil, fmt.Errorf("%w: missing %q terminator", ErrFormat, Terminator)
	}
	payload = payload[:len(payload)-len(Terminator)]

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBase64, err)
	}
	return raw, nil
}

// IsEnvelope reports whether s has the envelope prefix and terminator. It
// does not validate the payload.
func IsEnvelope(s string) bool {
	return strings.HasPrefix(s, Prefix) && strings.HasSuffix(s[len(Prefix):], Terminator)
}
