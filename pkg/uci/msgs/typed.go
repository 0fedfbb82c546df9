package msgs

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the type tag of a Typed value.
type Kind int

// Kinds of Typed values.
const (
	KindInt Kind = iota
	KindBytes
	KindText
	KindList
	KindMap
)

var kindNames = [...]string{"int", "bytes", "text", "list", "map"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

var (
	// ErrIntRange indicates the integer doesn't fit the requested Go type.
	ErrIntRange = errors.New("integer out of range")
	// ErrNoKey indicates the key is not present in a map.
	ErrNoKey = errors.New("key not found")
	// ErrIndexRange indicates a list index is out of range.
	ErrIndexRange = errors.New("index out of range")
)

// TypeError is returned when a value is read back with a different kind.
type TypeError struct {
	Want Kind
	Got  Kind
}

// Error implements error.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.Want, e.Got)
}

// Typed is a node of a typed message: an integer, a byte string, a text
// string, a list of Typed or an ordered map keyed by Key.
//
// Integers cover both the int64 and the uint64 range and are a single kind,
// so Int(5) and Uint(5) are the same value. The zero Typed is the integer 0.
type Typed struct {
	kind  Kind
	neg   bool
	mag   uint64
	bytes []byte
	text  string
	items []Typed
	pairs []Pair
}

// Pair is one entry of a map.
type Pair struct {
	Key   Key
	Value Typed
}

// Key is a map key, either a small integer or a text string.
type Key struct {
	text   string
	num    int64
	isText bool
}

// IntKey creates an integer key.
func IntKey(n int64) Key { return Key{num: n} }

// TextKey creates a text key. Invalid UTF-8 is replaced as in Text.
func TextKey(s string) Key { return Key{text: validText(s), isText: true} }

// IsText indicates the key is a text key.
func (k Key) IsText() bool { return k.isText }

// Int returns the integer of an integer key.
func (k Key) Int() int64 { return k.num }

// Text returns the text of a text key.
func (k Key) Text() string { return k.text }

// String implements fmt.Stringer.
func (k Key) String() string {
	if k.isText {
		return strconv.Quote(k.text)
	}
	return strconv.FormatInt(k.num, 10)
}

// Int creates an integer value.
func Int(n int64) Typed {
	if n < 0 {
		return Typed{neg: true, mag: uint64(-(n + 1)) + 1}
	}
	return Typed{mag: uint64(n)}
}

// Uint creates an unsigned integer value.
func Uint(n uint64) Typed {
	return Typed{mag: n}
}

// Bytes creates a byte string value. The slice is copied.
func Bytes(b []byte) Typed {
	return Typed{kind: KindBytes, bytes: append([]byte{}, b...)}
}

// Text creates a text value. Each run of invalid UTF-8 bytes is
// replaced by U+FFFD, so every text value can be encoded and decoded.
func Text(s string) Typed {
	return Typed{kind: KindText, text: validText(s)}
}

func validText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// List creates a list value.
func List(items ...Typed) Typed {
	return Typed{kind: KindList, items: append([]Typed{}, items...)}
}

// Map creates a map value. Later pairs replace earlier pairs with
// the same key.
func Map(pairs ...Pair) Typed {
	m := Typed{kind: KindMap, pairs: make([]Pair, 0, len(pairs))}
	for _, p := range pairs {
		m.setPair(p.Key, p.Value)
	}
	return m
}

// P is a shortcut to build a Pair with a text key.
func P(key string, val Typed) Pair {
	return Pair{Key: TextKey(key), Value: val}
}

// PI is a shortcut to build a Pair with an integer key.
func PI(key int64, val Typed) Pair {
	return Pair{Key: IntKey(key), Value: val}
}

// Kind returns the type tag.
func (v Typed) Kind() Kind {
	return v.kind
}

// IsNegative indicates the value is a negative integer.
func (v Typed) IsNegative() bool {
	return v.kind == KindInt && v.neg
}

// Magnitude returns the absolute value of an integer.
func (v Typed) Magnitude() (uint64, error) {
	if err := v.expect(KindInt); err != nil {
		return 0, err
	}
	return v.mag, nil
}

// Int reads back an integer as int64.
func (v Typed) Int() (int64, error) {
	if err := v.expect(KindInt); err != nil {
		return 0, err
	}
	if v.neg {
		if v.mag > uint64(math.MaxInt64)+1 {
			return 0, ErrIntRange
		}
		return -int64(v.mag-1) - 1, nil
	}
	if v.mag > math.MaxInt64 {
		return 0, ErrIntRange
	}
	return int64(v.mag), nil
}

// Uint reads back an integer as uint64.
func (v Typed) Uint() (uint64, error) {
	if err := v.expect(KindInt); err != nil {
		return 0, err
	}
	if v.neg {
		return 0, ErrIntRange
	}
	return v.mag, nil
}

// BytesValue reads back a byte string.
func (v Typed) BytesValue() ([]byte, error) {
	if err := v.expect(KindBytes); err != nil {
		return nil, err
	}
	return v.bytes, nil
}

// TextValue reads back a text string.
func (v Typed) TextValue() (string, error) {
	if err := v.expect(KindText); err != nil {
		return "", err
	}
	return v.text, nil
}

// Items reads back the elements of a list.
func (v Typed) Items() ([]Typed, error) {
	if err := v.expect(KindList); err != nil {
		return nil, err
	}
	return v.items, nil
}

// Index reads back one element of a list.
func (v Typed) Index(i int) (Typed, error) {
	if err := v.expect(KindList); err != nil {
		return Typed{}, err
	}
	if i < 0 || i >= len(v.items) {
		return Typed{}, ErrIndexRange
	}
	return v.items[i], nil
}

// Pairs reads back the entries of a map in insertion order.
func (v Typed) Pairs() ([]Pair, error) {
	if err := v.expect(KindMap); err != nil {
		return nil, err
	}
	return v.pairs, nil
}

// Get looks up a map entry.
func (v Typed) Get(k Key) (Typed, error) {
	if err := v.expect(KindMap); err != nil {
		return Typed{}, err
	}
	if i := v.find(k); i >= 0 {
		return v.pairs[i].Value, nil
	}
	return Typed{}, fmt.Errorf("%w: %s", ErrNoKey, k)
}

// Len returns the number of elements of a list or entries of a map,
// or the length of a byte or text string. It is 0 for integers.
func (v Typed) Len() int {
	switch v.kind {
	case KindBytes:
		return len(v.bytes)
	case KindText:
		return len(v.text)
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.pairs)
	}
	return 0
}

// Append appends elements to a list.
func (v *Typed) Append(items ...Typed) error {
	if err := v.expect(KindList); err != nil {
		return err
	}
	v.items = append(v.items, items...)
	return nil
}

// Insert inserts an element into a list at position i.
func (v *Typed) Insert(i int, item Typed) error {
	if err := v.expect(KindList); err != nil {
		return err
	}
	if i < 0 || i > len(v.items) {
		return ErrIndexRange
	}
	v.items = append(v.items, Typed{})
	copy(v.items[i+1:], v.items[i:])
	v.items[i] = item
	return nil
}

// Set stores an entry into a map, replacing the value in place if the
// key exists, otherwise appending it.
func (v *Typed) Set(k Key, val Typed) error {
	if err := v.expect(KindMap); err != nil {
		return err
	}
	v.setPair(k, val)
	return nil
}

// Equal compares two values structurally.
func (v Typed) Equal(o Typed) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.mag == o.mag && v.neg == o.neg
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindText:
		return v.text == o.text
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for i := range v.pairs {
			if v.pairs[i].Key != o.pairs[i].Key || !v.pairs[i].Value.Equal(o.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// String formats the value in CBOR diagnostic notation.
func (v Typed) String() string {
	var sb strings.Builder
	v.writeDiag(&sb)
	return sb.String()
}

func (v Typed) writeDiag(sb *strings.Builder) {
	switch v.kind {
	case KindInt:
		if v.neg {
			sb.WriteByte('-')
		}
		sb.WriteString(strconv.FormatUint(v.mag, 10))
	case KindBytes:
		fmt.Fprintf(sb, "h'%x'", v.bytes)
	case KindText:
		sb.WriteString(strconv.Quote(v.text))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeDiag(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Key.String())
			sb.WriteString(": ")
			p.Value.writeDiag(sb)
		}
		sb.WriteByte('}')
	}
}

func (v Typed) expect(k Kind) error {
	if v.kind != k {
		return &TypeError{Want: k, Got: v.kind}
	}
	return nil
}

func (v Typed) find(k Key) int {
	for i := range v.pairs {
		if v.pairs[i].Key == k {
			return i
		}
	}
	return -1
}

func (v *Typed) setPair(k Key, val Typed) {
	if i := v.find(k); i >= 0 {
		v.pairs[i].Value = val
		return
	}
	v.pairs = append(v.pairs, Pair{Key: k, Value: val})
}
