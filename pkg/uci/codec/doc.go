// Package codec maps msgs.Typed values to and from CBOR (RFC 8949).
//
// Only the definite-length major types 0 to 5 are used: unsigned and
// negative integers, byte strings, text strings, arrays and maps.
// Tags, floats, simple values and indefinite-length items are rejected.
// Heads are encoded in their shortest form, multi-byte arguments
// are big-endian.
package codec
