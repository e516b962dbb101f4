// Package envelope implements the storage codec for chat message bodies.
//
// # Format
//
// A message body is gzip-compressed and the compressed bytes are wrapped in a
// textual envelope:
//
//	Binary(0x2, <standard base64 of the gzip stream>)
//
// The shape is the one the document database prints for its own binary
// subtype 0x2, and previously written records depend on it byte for byte.
//
// # Errors
//
// Decode reports exactly one of four sentinel errors, checkable with
// errors.Is:
//
//   - ErrFormat: missing prefix or terminator
//   - ErrBase64: payload is not standard base64
//   - ErrDecompress: payload is not a gzip stream
//   - ErrEncoding: decompressed bytes are not UTF-8
//
// Encode never fails for valid UTF-8 input. For every valid UTF-8 string s,
// Decode(Encode(s)) == s.
package envelope
