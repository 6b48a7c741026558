package wire

import (
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// TypeID identifies a CQL column type on the wire (§3 column type
// descriptor).
type TypeID uint16

const (
	TypeCustom    TypeID = 0x00
	TypeAscii     TypeID = 0x01
	TypeBigInt    TypeID = 0x02
	TypeBlob      TypeID = 0x03
	TypeBoolean   TypeID = 0x04
	TypeCounter   TypeID = 0x05
	TypeDecimal   TypeID = 0x06
	TypeDouble    TypeID = 0x07
	TypeFloat     TypeID = 0x08
	TypeInt       TypeID = 0x09
	TypeText      TypeID = 0x0A
	TypeTimestamp TypeID = 0x0B
	TypeUUID      TypeID = 0x0C
	TypeVarchar   TypeID = 0x0D
	TypeVarint    TypeID = 0x0E
	TypeTimeUUID  TypeID = 0x0F
	TypeInet      TypeID = 0x10
	TypeList      TypeID = 0x20
	TypeMap       TypeID = 0x21
	TypeSet       TypeID = 0x22
)

func (t TypeID) String() string {
	switch t {
	case TypeCustom:
		return "custom"
	case TypeAscii:
		return "ascii"
	case TypeBigInt:
		return "bigint"
	case TypeBlob:
		return "blob"
	case TypeBoolean:
		return "boolean"
	case TypeCounter:
		return "counter"
	case TypeDecimal:
		return "decimal"
	case TypeDouble:
		return "double"
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeVarchar:
		return "varchar"
	case TypeVarint:
		return "varint"
	case TypeTimeUUID:
		return "timeuuid"
	case TypeInet:
		return "inet"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypeSet:
		return "set"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(t))
	}
}

// ColumnType is the recursive tagged union for a column's type
// descriptor: CUSTOM carries a class name, LIST/SET carry one element
// type, MAP carries a key and a value type.
type ColumnType struct {
	ID         TypeID
	CustomName string // set only when ID == TypeCustom
	Key        *ColumnType // set only when ID == TypeMap
	Elem       *ColumnType // set only when ID == TypeList, TypeSet, or TypeMap (value)
}

// ReadColumnType parses one (possibly nested) type descriptor.
func ReadColumnType(b *Buffer) (ColumnType, error) {
	id, err := b.UnpackShort()
	if err != nil {
		return ColumnType{}, err
	}
	ct := ColumnType{ID: TypeID(id)}
	switch ct.ID {
	case TypeCustom:
		ct.CustomName, err = b.UnpackString()
		if err != nil {
			return ColumnType{}, err
		}
	case TypeMap:
		key, err := ReadColumnType(b)
		if err != nil {
			return ColumnType{}, err
		}
		ct.Key = &key
		val, err := ReadColumnType(b)
		if err != nil {
			return ColumnType{}, err
		}
		ct.Elem = &val
	case TypeList, TypeSet:
		val, err := ReadColumnType(b)
		if err != nil {
			return ColumnType{}, err
		}
		ct.Elem = &val
	}
	return ct, nil
}

// WriteColumnType appends a (possibly nested) type descriptor.
func WriteColumnType(b *Buffer, ct ColumnType) {
	b.PackShort(uint16(ct.ID))
	switch ct.ID {
	case TypeCustom:
		b.PackString(ct.CustomName)
	case TypeMap:
		WriteColumnType(b, *ct.Key)
		WriteColumnType(b, *ct.Elem)
	case TypeList, TypeSet:
		WriteColumnType(b, *ct.Elem)
	}
}

// EncodingError is a local, per-value failure: the connection is
// unaffected, only the originating call fails.
type EncodingError struct {
	Type TypeID
	Msg  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("wire: encode %s: %s", e.Type, e.Msg)
}

// Encode converts a Go value into the raw column-value bytes for the
// given type id. A nil value bypasses the codec entirely and must be
// represented as a null [bytes] (-1 length) by the caller at the
// framing layer.
func Encode(t TypeID, v interface{}) ([]byte, error) {
	switch t {
	case TypeAscii:
		s, err := asString(t, v)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(s); i++ {
			if s[i] > 0x7F {
				return nil, &EncodingError{t, fmt.Sprintf("byte 0x%02x at offset %d is not ASCII", s[i], i)}
			}
		}
		return []byte(s), nil

	case TypeBigInt, TypeCounter:
		n, err := asInt64(t, v)
		if err != nil {
			return nil, err
		}
		b := New()
		b.PackLong(n)
		return b.Bytes(), nil

	case TypeBlob:
		bs, ok := v.([]byte)
		if !ok {
			return nil, &EncodingError{t, fmt.Sprintf("expected []byte, got %T", v)}
		}
		return bs, nil

	case TypeBoolean:
		bv, ok := v.(bool)
		if !ok {
			return nil, &EncodingError{t, fmt.Sprintf("expected bool, got %T", v)}
		}
		if bv {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeDouble:
		f, err := asFloat64(t, v)
		if err != nil {
			return nil, err
		}
		b := New()
		b.PackLong(int64(math.Float64bits(f)))
		return b.Bytes(), nil

	case TypeFloat:
		f, err := asFloat64(t, v)
		if err != nil {
			return nil, err
		}
		b := New()
		b.PackInt(int32(math.Float32bits(float32(f))))
		return b.Bytes(), nil

	case TypeInt:
		n, err := asInt64(t, v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, &EncodingError{t, fmt.Sprintf("%d overflows int32", n)}
		}
		b := New()
		b.PackInt(int32(n))
		return b.Bytes(), nil

	case TypeText, TypeVarchar:
		s, err := asString(t, v)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(s) {
			return nil, &EncodingError{t, "invalid UTF-8"}
		}
		return []byte(s), nil

	case TypeTimestamp:
		ms, err := timestampMillis(v)
		if err != nil {
			return nil, err
		}
		b := New()
		b.PackLong(ms)
		return b.Bytes(), nil

	case TypeVarint:
		n, err := asBigInt(t, v)
		if err != nil {
			return nil, err
		}
		return encodeVarint(n), nil

	case TypeDecimal:
		d, ok := v.(Decimal)
		if !ok {
			return nil, &EncodingError{t, fmt.Sprintf("expected wire.Decimal, got %T", v)}
		}
		b := New()
		b.PackInt(int32(d.Scale))
		b.buf = append(b.buf, encodeVarint(d.Unscaled)...)
		return b.Bytes(), nil

	default:
		logrus.WithField("type", t).Warn("wire: encoding unsupported type; passing bytes through unchanged")
		bs, ok := v.([]byte)
		if !ok {
			return nil, &EncodingError{t, fmt.Sprintf("no codec for %s and value is not []byte (%T)", t, v)}
		}
		return bs, nil
	}
}

// Decode converts raw column-value bytes into a Go value for the
// given type id. Callers must handle the null case (nil bytes)
// themselves before calling Decode.
func Decode(t TypeID, raw []byte) (interface{}, error) {
	switch t {
	case TypeAscii:
		return string(raw), nil

	case TypeBigInt, TypeCounter:
		if len(raw) != 8 {
			return nil, &EncodingError{t, fmt.Sprintf("expected 8 bytes, got %d", len(raw))}
		}
		v, err := Wrap(raw).UnpackLong()
		return v, err

	case TypeBlob:
		return raw, nil

	case TypeBoolean:
		if len(raw) < 1 {
			return nil, &EncodingError{t, "expected at least 1 byte"}
		}
		return raw[0] != 0, nil

	case TypeDouble:
		if len(raw) != 8 {
			return nil, &EncodingError{t, fmt.Sprintf("expected 8 bytes, got %d", len(raw))}
		}
		bits, err := Wrap(raw).UnpackLong()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(uint64(bits)), nil

	case TypeFloat:
		if len(raw) != 4 {
			return nil, &EncodingError{t, fmt.Sprintf("expected 4 bytes, got %d", len(raw))}
		}
		bits, err := Wrap(raw).UnpackInt()
		if err != nil {
			return nil, err
		}
		return float64(math.Float32frombits(uint32(bits))), nil

	case TypeInt:
		if len(raw) != 4 {
			return nil, &EncodingError{t, fmt.Sprintf("expected 4 bytes, got %d", len(raw))}
		}
		v, err := Wrap(raw).UnpackInt()
		return v, err

	case TypeText, TypeVarchar:
		if !utf8.Valid(raw) {
			return nil, &EncodingError{t, "invalid UTF-8"}
		}
		return string(raw), nil

	case TypeTimestamp:
		if len(raw) != 8 {
			return nil, &EncodingError{t, fmt.Sprintf("expected 8 bytes, got %d", len(raw))}
		}
		ms, err := Wrap(raw).UnpackLong()
		if err != nil {
			return nil, err
		}
		return float64(ms) / 1000.0, nil // seconds, per the open-question resolution in DESIGN.md

	case TypeVarint:
		return decodeVarint(raw), nil

	case TypeDecimal:
		buf := Wrap(raw)
		scale, err := buf.UnpackInt()
		if err != nil {
			return nil, err
		}
		return Decimal{Scale: uint32(scale), Unscaled: decodeVarint(buf.Bytes())}, nil

	default:
		logrus.WithField("type", t).Warn("wire: decoding unsupported type; returning hex-rendered bytes")
		return fmt.Sprintf("%x", raw), nil
	}
}

// Decimal is the composite value for CQL's DECIMAL type: an arbitrary
// precision unscaled integer plus a scale (number of digits after the
// decimal point).
type Decimal struct {
	Scale    uint32
	Unscaled *big.Int
}

func asString(t TypeID, v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", &EncodingError{t, fmt.Sprintf("expected string, got %T", v)}
	}
}

func asInt64(t TypeID, v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, &EncodingError{t, fmt.Sprintf("expected integer, got %T", v)}
	}
}

func asFloat64(t TypeID, v interface{}) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	default:
		return 0, &EncodingError{t, fmt.Sprintf("expected float, got %T", v)}
	}
}

func asBigInt(t TypeID, v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	default:
		return nil, &EncodingError{t, fmt.Sprintf("expected *big.Int or integer, got %T", v)}
	}
}

func timestampMillis(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t * 1000), nil
	default:
		return 0, &EncodingError{TypeTimestamp, fmt.Sprintf("expected int64 milliseconds or float64 seconds, got %T", v)}
	}
}

// encodeVarint produces the minimal two's-complement big-endian
// representation of n, sign-extended by one leading byte only when
// the high bit of the magnitude would otherwise misrepresent the sign
// (§4.B VARINT details).
func encodeVarint(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	if n.Sign() > 0 {
		mag := n.Bytes()
		if mag[0]&0x80 != 0 {
			mag = append([]byte{0x00}, mag...)
		}
		return mag
	}
	// negative: bitwise-NOT of (-n-1)'s magnitude, padded, sign-extended.
	pos := new(big.Int).Neg(n)
	pos.Sub(pos, big.NewInt(1))
	mag := pos.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}
	out := make([]byte, len(mag))
	for i, bb := range mag {
		out[i] = ^bb
	}
	if out[0]&0x80 == 0 {
		out = append([]byte{0xFF}, out...)
	}
	return out
}

// decodeVarint mirrors encodeVarint.
func decodeVarint(raw []byte) *big.Int {
	if len(raw) == 0 {
		return big.NewInt(0)
	}
	if raw[0]&0x80 != 0 {
		inv := make([]byte, len(raw))
		for i, bb := range raw {
			inv[i] = ^bb
		}
		magnitude := new(big.Int).SetBytes(inv)
		magnitude.Add(magnitude, big.NewInt(1))
		return magnitude.Neg(magnitude)
	}
	return new(big.Int).SetBytes(raw)
}
