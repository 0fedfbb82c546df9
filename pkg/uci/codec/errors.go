package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates a declared length exceeds the remaining bytes.
	ErrTruncated = errors.New("truncated data")
	// ErrTrailingBytes indicates bytes remain after the outermost item.
	ErrTrailingBytes = errors.New("trailing bytes")
	// ErrDepth indicates lists/maps are nested deeper than allowed.
	ErrDepth = errors.New("max depth exceeded")
	// ErrTooManyElements indicates a list or map has too many elements.
	ErrTooManyElements = errors.New("too many elements")
	// ErrUnsupported indicates items outside the protocol's CBOR subset:
	// floats, simple values, tags and indefinite lengths.
	ErrUnsupported = errors.New("unsupported item")
	// ErrInvalidKey indicates a map key which is not an int64 or text.
	ErrInvalidKey = errors.New("invalid map key")
	// ErrDuplicateKey indicates a map key appears twice.
	ErrDuplicateKey = errors.New("duplicate map key")
	// ErrInvalidUTF8 indicates a text string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8 text")
	// ErrMalformed indicates any other malformed input.
	ErrMalformed = errors.New("malformed item")
)

// DecodeError is returned by all decoding failures.
type DecodeError struct {
	// Offset is the byte offset of the failing item, -1 if unknown.
	Offset int
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("cbor decode: %v", e.Err)
	}
	return fmt.Sprintf("cbor decode at %d: %v", e.Offset, e.Err)
}

// Unwrap returns the cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
