package msgs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypedInt(t *testing.T) {
	testCases := []struct {
		name  string
		val   Typed
		i64   int64
		i64OK bool
		u64   uint64
		u64OK bool
		diag  string
	}{
		{"zero value", Typed{}, 0, true, 0, true, "0"},
		{"positive", Int(5), 5, true, 5, true, "5"},
		{"negative", Int(-5), -5, true, 0, false, "-5"},
		{"min int64", Int(math.MinInt64), math.MinInt64, true, 0, false, "-9223372036854775808"},
		{"max int64", Int(math.MaxInt64), math.MaxInt64, true, math.MaxInt64, true, "9223372036854775807"},
		{"max uint64", Uint(math.MaxUint64), 0, false, math.MaxUint64, true, "18446744073709551615"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, KindInt, tc.val.Kind())
			i, err := tc.val.Int()
			if tc.i64OK {
				require.NoError(t, err)
				require.Equal(t, tc.i64, i)
			} else {
				require.Equal(t, ErrIntRange, err)
			}
			u, err := tc.val.Uint()
			if tc.u64OK {
				require.NoError(t, err)
				require.Equal(t, tc.u64, u)
			} else {
				require.Equal(t, ErrIntRange, err)
			}
			require.Equal(t, tc.diag, tc.val.String())
		})
	}
}

func TestTypedIntUintSameValue(t *testing.T) {
	require.True(t, Int(42).Equal(Uint(42)))
	require.False(t, Int(-1).Equal(Uint(1)))
}

func TestTypedTypeMismatch(t *testing.T) {
	v := Text("12")
	_, err := v.Int()
	var typeErr *TypeError
	require.True(t, errors.As(err, &typeErr))
	require.Equal(t, KindInt, typeErr.Want)
	require.Equal(t, KindText, typeErr.Got)

	_, err = Int(12).TextValue()
	require.True(t, errors.As(err, &typeErr))
	require.Equal(t, KindText, typeErr.Want)

	_, err = Bytes([]byte{1}).Items()
	require.Error(t, err)
	_, err = List().Pairs()
	require.Error(t, err)
	_, err = Map().BytesValue()
	require.Error(t, err)
	require.Error(t, v.Append(Int(1)))
	require.Error(t, v.Set(TextKey("a"), Int(1)))
}

func TestTypedList(t *testing.T) {
	lst := List(Int(1))
	require.NoError(t, lst.Append(Int(3), Text("x")))
	require.NoError(t, lst.Insert(1, Int(2)))
	require.Equal(t, 4, lst.Len())
	require.Equal(t, ErrIndexRange, lst.Insert(9, Int(0)))

	item, err := lst.Index(1)
	require.NoError(t, err)
	require.True(t, item.Equal(Int(2)))
	_, err = lst.Index(4)
	require.Equal(t, ErrIndexRange, err)
	require.Equal(t, `[1, 2, 3, "x"]`, lst.String())
}

func TestTypedMap(t *testing.T) {
	m := Map(P("temperature", Int(-5)), P("label", Text("ok")))
	require.NoError(t, m.Set(IntKey(7), Bytes([]byte{0xca, 0xfe})))
	require.NoError(t, m.Set(TextKey("label"), Text("hot")))
	require.Equal(t, 3, m.Len())

	val, err := m.Get(TextKey("label"))
	require.NoError(t, err)
	s, err := val.TextValue()
	require.NoError(t, err)
	require.Equal(t, "hot", s)

	_, err = m.Get(TextKey("missing"))
	require.True(t, errors.Is(err, ErrNoKey))
	_, err = m.Get(IntKey(0))
	require.True(t, errors.Is(err, ErrNoKey))

	pairs, err := m.Pairs()
	require.NoError(t, err)
	require.Equal(t, []Key{TextKey("temperature"), TextKey("label"), IntKey(7)},
		[]Key{pairs[0].Key, pairs[1].Key, pairs[2].Key})
	require.Equal(t, `{"temperature": -5, "label": "hot", 7: h'cafe'}`, m.String())
}

func TestTypedMapDuplicateKeysInConstructor(t *testing.T) {
	m := Map(P("a", Int(1)), PI(1, Int(2)), P("a", Int(3)))
	require.Equal(t, 2, m.Len())
	val, err := m.Get(TextKey("a"))
	require.NoError(t, err)
	require.True(t, val.Equal(Int(3)))
}

func TestTypedTextInvalidUTF8(t *testing.T) {
	s, err := Text("ok\xff\xfe!").TextValue()
	require.NoError(t, err)
	require.Equal(t, "ok\uFFFD!", s)

	s, err = Text("héllo").TextValue()
	require.NoError(t, err)
	require.Equal(t, "héllo", s)

	require.Equal(t, TextKey("\uFFFD"), TextKey("\xfe"))
	m := Map(P("\xfe", Int(1)), P("\xff", Int(2)))
	require.Equal(t, 1, m.Len())
}

func TestTypedEqual(t *testing.T) {
	a := Map(P("x", List(Int(1), Bytes(nil))), PI(2, Text("y")))
	b := Map(P("x", List(Int(1), Bytes([]byte{}))), PI(2, Text("y")))
	require.True(t, a.Equal(b))

	testCases := []struct {
		name string
		val  Typed
	}{
		{"different order", Map(PI(2, Text("y")), P("x", List(Int(1), Bytes(nil))))},
		{"different key kind", Map(P("x", List(Int(1), Bytes(nil))), P("2", Text("y")))},
		{"different leaf", Map(P("x", List(Int(1), Bytes([]byte{0}))), PI(2, Text("y")))},
		{"different length", Map(P("x", List(Int(1))), PI(2, Text("y")))},
		{"different kind", List()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.False(t, a.Equal(tc.val))
		})
	}
}

func TestTypedBytesCopied(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := Bytes(raw)
	raw[0] = 9
	b, err := v.BytesValue()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "map", KindMap.String())
	require.Equal(t, "kind(9)", Kind(9).String())
}
