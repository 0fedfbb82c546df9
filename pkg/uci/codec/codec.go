package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// CBOR major types.
const (
	majorUint   byte = 0
	majorNegInt byte = 1
	majorBytes  byte = 2
	majorText   byte = 3
	majorArray  byte = 4
	majorMap    byte = 5
	majorTag    byte = 6
	majorSimple byte = 7
)

// Limits bound what Decode accepts.
type Limits struct {
	// MaxDepth is the maximum nesting of lists and maps. A scalar at top
	// level has depth 0, a list of scalars has depth 1.
	MaxDepth int
	// MaxElements is the maximum number of elements of a list or pairs of a map.
	MaxElements int
}

// Default limits.
const (
	DefaultMaxDepth    = 8
	DefaultMaxElements = 4096
)

// DefaultLimits returns the default Limits.
func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth, MaxElements: DefaultMaxElements}
}

// Codec encodes/decodes msgs.Typed to/from CBOR.
type Codec struct {
	limits Limits
	em     cbor.EncMode
	dm     cbor.DecMode
}

// Default is the Codec with DefaultLimits.
var Default = MustNew(DefaultLimits())

// New creates a Codec.
func New(limits Limits) (*Codec, error) {
	if limits.MaxDepth < 1 || limits.MaxDepth > math.MaxUint16 {
		return nil, fmt.Errorf("invalid max depth %d", limits.MaxDepth)
	}
	if limits.MaxElements < 1 || limits.MaxElements > math.MaxInt32 {
		return nil, fmt.Errorf("invalid max elements %d", limits.MaxElements)
	}
	em, err := cbor.EncOptions{
		IndefLength:   cbor.IndefLengthForbidden,
		TagsMd:        cbor.TagsForbidden,
		NilContainers: cbor.NilContainerAsEmpty,
	}.EncMode()
	if err != nil {
		return nil, err
	}
	// The cbor package has lower bounds on its limits,
	// the exact limits are enforced by the walker.
	dm, err := cbor.DecOptions{
		MaxNestedLevels:  maxInt(limits.MaxDepth, 4),
		MaxArrayElements: maxInt(limits.MaxElements, 16),
		MaxMapPairs:      maxInt(limits.MaxElements, 16),
		IndefLength:      cbor.IndefLengthForbidden,
		TagsMd:           cbor.TagsForbidden,
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &Codec{limits: limits, em: em, dm: dm}, nil
}

// MustNew creates a Codec and panics on invalid limits.
func MustNew(limits Limits) *Codec {
	c, err := New(limits)
	if err != nil {
		panic(err)
	}
	return c
}

// Limits returns the limits of the codec.
func (c *Codec) Limits() Limits {
	return c.limits
}

// Encode encodes a value. It never fails.
func (c *Codec) Encode(v msgs.Typed) []byte {
	return c.Append(nil, v)
}

// Append appends the encoding of v to dst.
func (c *Codec) Append(dst []byte, v msgs.Typed) []byte {
	switch v.Kind() {
	case msgs.KindInt:
		if v.IsNegative() {
			n, _ := v.Int()
			return c.appendScalar(dst, n)
		}
		n, _ := v.Uint()
		return c.appendScalar(dst, n)
	case msgs.KindBytes:
		b, _ := v.BytesValue()
		return c.appendScalar(dst, b)
	case msgs.KindText:
		s, _ := v.TextValue()
		return c.appendScalar(dst, s)
	case msgs.KindList:
		items, _ := v.Items()
		dst = appendHead(dst, majorArray, uint64(len(items)))
		for _, item := range items {
			dst = c.Append(dst, item)
		}
		return dst
	case msgs.KindMap:
		pairs, _ := v.Pairs()
		dst = appendHead(dst, majorMap, uint64(len(pairs)))
		for _, p := range pairs {
			if p.Key.IsText() {
				dst = c.appendScalar(dst, p.Key.Text())
			} else {
				dst = c.Append(dst, msgs.Int(p.Key.Int()))
			}
			dst = c.Append(dst, p.Value)
		}
		return dst
	}
	panic(fmt.Sprintf("codec: unknown kind %v", v.Kind()))
}

func (c *Codec) appendScalar(dst []byte, v interface{}) []byte {
	data, err := c.em.Marshal(v)
	if err != nil {
		// integers, strings and byte slices always marshal.
		panic(err)
	}
	return append(dst, data...)
}

// Decode decodes exactly one value, trailing bytes are an error.
func (c *Codec) Decode(data []byte) (msgs.Typed, error) {
	v, rest, err := c.DecodeFirst(data)
	if err != nil {
		return v, err
	}
	if len(rest) > 0 {
		return msgs.Typed{}, &DecodeError{
			Offset: len(data) - len(rest),
			Err:    fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(rest)),
		}
	}
	return v, nil
}

// DecodeFirst decodes the first value and returns the remaining bytes,
// which may be the start of another value.
func (c *Codec) DecodeFirst(data []byte) (msgs.Typed, []byte, error) {
	var raw cbor.RawMessage
	rest, err := c.dm.UnmarshalFirst(data, &raw)
	if err != nil {
		return msgs.Typed{}, nil, libError(err)
	}
	v, _, err := c.walk(raw, 0, 0)
	if err != nil {
		return msgs.Typed{}, nil, err
	}
	return v, rest, nil
}

// DecodeAs decodes one value which must be of the specified kind.
func (c *Codec) DecodeAs(data []byte, kind msgs.Kind) (msgs.Typed, error) {
	v, err := c.Decode(data)
	if err != nil {
		return v, err
	}
	if v.Kind() != kind {
		return msgs.Typed{}, &DecodeError{Offset: 0, Err: &msgs.TypeError{Want: kind, Got: v.Kind()}}
	}
	return v, nil
}

// Encode encodes using Default codec.
func Encode(v msgs.Typed) []byte {
	return Default.Encode(v)
}

// Decode decodes using Default codec.
func Decode(data []byte) (msgs.Typed, error) {
	return Default.Decode(data)
}

func (c *Codec) walk(data []byte, off, depth int) (msgs.Typed, int, error) {
	major, arg, n, err := readHead(data, off)
	if err != nil {
		return msgs.Typed{}, off, err
	}
	start := off
	off += n
	switch major {
	case majorUint:
		return msgs.Uint(arg), off, nil
	case majorNegInt:
		if arg > math.MaxInt64 {
			return msgs.Typed{}, start, &DecodeError{Offset: start, Err: fmt.Errorf("%w: -1-%d", msgs.ErrIntRange, arg)}
		}
		return msgs.Int(-1 - int64(arg)), off, nil
	case majorBytes, majorText:
		if arg > uint64(len(data)-off) {
			return msgs.Typed{}, start, &DecodeError{Offset: start, Err: ErrTruncated}
		}
		end := off + int(arg)
		if major == majorBytes {
			return msgs.Bytes(data[off:end]), end, nil
		}
		if !utf8.Valid(data[off:end]) {
			return msgs.Typed{}, start, &DecodeError{Offset: start, Err: ErrInvalidUTF8}
		}
		return msgs.Text(string(data[off:end])), end, nil
	case majorArray, majorMap:
		if depth+1 > c.limits.MaxDepth {
			return msgs.Typed{}, start, &DecodeError{Offset: start, Err: ErrDepth}
		}
		if arg > uint64(c.limits.MaxElements) {
			return msgs.Typed{}, start, &DecodeError{Offset: start, Err: ErrTooManyElements}
		}
		if major == majorArray {
			return c.walkArray(data, off, depth+1, int(arg))
		}
		return c.walkMap(data, off, depth+1, int(arg))
	}
	return msgs.Typed{}, start, &DecodeError{Offset: start, Err: fmt.Errorf("%w: major type %d", ErrUnsupported, major)}
}

func (c *Codec) walkArray(data []byte, off, depth, count int) (msgs.Typed, int, error) {
	items := make([]msgs.Typed, count)
	for i := range items {
		item, next, err := c.walk(data, off, depth)
		if err != nil {
			return msgs.Typed{}, next, err
		}
		items[i], off = item, next
	}
	return msgs.List(items...), off, nil
}

func (c *Codec) walkMap(data []byte, off, depth, count int) (msgs.Typed, int, error) {
	m := msgs.Map()
	for i := 0; i < count; i++ {
		keyOff := off
		kv, next, err := c.walk(data, off, depth)
		if err != nil {
			return msgs.Typed{}, next, err
		}
		var key msgs.Key
		switch kv.Kind() {
		case msgs.KindInt:
			n, err := kv.Int()
			if err != nil {
				return msgs.Typed{}, keyOff, &DecodeError{Offset: keyOff, Err: ErrInvalidKey}
			}
			key = msgs.IntKey(n)
		case msgs.KindText:
			s, _ := kv.TextValue()
			key = msgs.TextKey(s)
		default:
			return msgs.Typed{}, keyOff, &DecodeError{Offset: keyOff, Err: fmt.Errorf("%w: %s", ErrInvalidKey, kv.Kind())}
		}
		if _, err := m.Get(key); err == nil {
			return msgs.Typed{}, keyOff, &DecodeError{Offset: keyOff, Err: fmt.Errorf("%w: %s", ErrDuplicateKey, key)}
		}
		val, next, err := c.walk(data, next, depth)
		if err != nil {
			return msgs.Typed{}, next, err
		}
		m.Set(key, val)
		off = next
	}
	return m, off, nil
}

// readHead reads the initial byte and argument of a data item.
func readHead(data []byte, off int) (major byte, arg uint64, n int, err error) {
	if off >= len(data) {
		return 0, 0, 0, &DecodeError{Offset: off, Err: ErrTruncated}
	}
	major, ai := data[off]>>5, data[off]&0x1f
	if ai < 24 {
		return major, uint64(ai), 1, nil
	}
	var size int
	switch ai {
	case 24:
		size = 1
	case 25:
		size = 2
	case 26:
		size = 4
	case 27:
		size = 8
	default:
		return major, 0, 0, &DecodeError{Offset: off, Err: fmt.Errorf("%w: additional info %d", ErrUnsupported, ai)}
	}
	if len(data)-off-1 < size {
		return major, 0, 0, &DecodeError{Offset: off, Err: ErrTruncated}
	}
	b := data[off+1 : off+1+size]
	switch size {
	case 1:
		arg = uint64(b[0])
	case 2:
		arg = uint64(binary.BigEndian.Uint16(b))
	case 4:
		arg = uint64(binary.BigEndian.Uint32(b))
	case 8:
		arg = binary.BigEndian.Uint64(b)
	}
	return major, arg, 1 + size, nil
}

// appendHead appends the shortest head for major type and argument.
func appendHead(dst []byte, major byte, arg uint64) []byte {
	mt := major << 5
	switch {
	case arg < 24:
		return append(dst, mt|byte(arg))
	case arg <= math.MaxUint8:
		return append(dst, mt|24, byte(arg))
	case arg <= math.MaxUint16:
		dst = append(dst, mt|25, 0, 0)
		binary.BigEndian.PutUint16(dst[len(dst)-2:], uint16(arg))
	case arg <= math.MaxUint32:
		dst = append(dst, mt|26, 0, 0, 0, 0)
		binary.BigEndian.PutUint32(dst[len(dst)-4:], uint32(arg))
	default:
		dst = append(dst, mt|27, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(dst[len(dst)-8:], arg)
	}
	return dst
}

func libError(err error) error {
	var (
		nestedErr *cbor.MaxNestedLevelError
		arrayErr  *cbor.MaxArrayElementsError
		mapErr    *cbor.MaxMapPairsError
		indefErr  *cbor.IndefiniteLengthError
		tagsErr   *cbor.TagsMdError
		sentinel  error
	)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		sentinel = ErrTruncated
	case errors.As(err, &nestedErr):
		sentinel = ErrDepth
	case errors.As(err, &arrayErr), errors.As(err, &mapErr):
		sentinel = ErrTooManyElements
	case errors.As(err, &indefErr), errors.As(err, &tagsErr):
		sentinel = ErrUnsupported
	default:
		sentinel = ErrMalformed
	}
	return &DecodeError{Offset: -1, Err: fmt.Errorf("%w: %v", sentinel, err)}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
