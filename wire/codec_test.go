package wire

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecScalarRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		typ  TypeID
		in   interface{}
		want interface{}
	}{
		{"ascii", TypeAscii, "hello", "hello"},
		{"bigint", TypeBigInt, int64(-42), int64(-42)},
		{"counter", TypeCounter, int64(100), int64(100)},
		{"blob", TypeBlob, []byte{0xDE, 0xAD}, []byte{0xDE, 0xAD}},
		{"boolean-true", TypeBoolean, true, true},
		{"boolean-false", TypeBoolean, false, false},
		{"double", TypeDouble, 3.14159, 3.14159},
		{"int", TypeInt, int64(100), int32(100)},
		{"text", TypeText, "héllo wörld", "héllo wörld"},
		{"varchar", TypeVarchar, "plain", "plain"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := Encode(c.typ, c.in)
			require.NoError(t, err)
			decoded, err := Decode(c.typ, encoded)
			require.NoError(t, err)
			assert.Equal(t, c.want, decoded)
		})
	}
}

func TestCodecFloatWithinTolerance(t *testing.T) {
	encoded, err := Encode(TypeFloat, 3.14159)
	require.NoError(t, err)
	decoded, err := Decode(TypeFloat, encoded)
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, decoded.(float64), 1e-3)
}

func TestCodecAsciiRejectsNonAscii(t *testing.T) {
	_, err := Encode(TypeAscii, "héllo")
	require.Error(t, err)
	var encErr *EncodingError
	assert.ErrorAs(t, err, &encErr)
}

func TestCodecTextRejectsInvalidUTF8OnDecode(t *testing.T) {
	_, err := Decode(TypeText, []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
}

func TestCodecUnknownTypeFallsBackToHex(t *testing.T) {
	v, err := Decode(TypeID(0x9999), []byte{0xAB, 0xCD})
	require.NoError(t, err)
	assert.Equal(t, "abcd", v)
}

func TestCodecUnknownTypeEncodePassesBytesThrough(t *testing.T) {
	raw := []byte{1, 2, 3}
	v, err := Encode(TypeID(0x9999), raw)
	require.NoError(t, err)
	assert.Equal(t, raw, v)
}

func TestVarintCanonicalBoundaries(t *testing.T) {
	cases := []string{
		"-1", "0", "1", "127", "128", "-128", "-129",
		"9223372036854775808",   // 2^63
		"-9223372036854775809",  // -2^63-1
		"340282366920938463463374607431768211456", // 2^128
	}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			n, ok := new(big.Int).SetString(s, 10)
			require.True(t, ok)
			encoded := encodeVarint(n)
			decoded := decodeVarint(encoded)
			assert.Equal(t, 0, n.Cmp(decoded), "want %s got %s", n, decoded)
		})
	}
}

func TestVarintMinimalLength(t *testing.T) {
	// 127 fits in one byte with no sign-extension needed.
	assert.Len(t, encodeVarint(big.NewInt(127)), 1)
	// 128 needs a leading zero byte since 0x80's high bit is set.
	assert.Len(t, encodeVarint(big.NewInt(128)), 2)
	// -128 fits in one byte (0x80 == -128 two's complement).
	assert.Len(t, encodeVarint(big.NewInt(-128)), 1)
	// -129 needs two bytes.
	assert.Len(t, encodeVarint(big.NewInt(-129)), 2)
}

func TestDecimalRoundTrip(t *testing.T) {
	d := Decimal{Scale: 2, Unscaled: big.NewInt(-12345)}
	encoded, err := Encode(TypeDecimal, d)
	require.NoError(t, err)
	decoded, err := Decode(TypeDecimal, encoded)
	require.NoError(t, err)
	got := decoded.(Decimal)
	assert.Equal(t, d.Scale, got.Scale)
	assert.Equal(t, 0, d.Unscaled.Cmp(got.Unscaled))
}

func TestTimestampFractionalSecondsMultiplyByThousand(t *testing.T) {
	encoded, err := Encode(TypeTimestamp, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 5, 0xDC}, encoded) // 1500ms
	decoded, err := Decode(TypeTimestamp, encoded)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, decoded.(float64), 1e-9)
}

func TestColumnTypeNestedRoundTrip(t *testing.T) {
	b := New()
	WriteColumnType(b, ColumnType{ID: TypeMap,
		Key:  &ColumnType{ID: TypeVarchar},
		Elem: &ColumnType{ID: TypeInt},
	})
	got, err := ReadColumnType(Wrap(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, TypeMap, got.ID)
	assert.Equal(t, TypeVarchar, got.Key.ID)
	assert.Equal(t, TypeInt, got.Elem.ID)
}

func TestColumnTypeCustomRoundTrip(t *testing.T) {
	b := New()
	WriteColumnType(b, ColumnType{ID: TypeCustom, CustomName: "org.apache.cassandra.db.marshal.UTF8Type"})
	got, err := ReadColumnType(Wrap(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, TypeCustom, got.ID)
	assert.Equal(t, "org.apache.cassandra.db.marshal.UTF8Type", got.CustomName)
}
