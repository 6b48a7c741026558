// Package wire implements the CQL v3 native protocol wire codec: the
// big-endian primitive framing (Buffer), the scalar type codecs, column
// metadata parsing, and OPCODE_RESULT decoding.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrUnderflow is returned by unpack operations when fewer bytes remain
// in the buffer than the primitive being read requires.
var ErrUnderflow = errors.New("wire: buffer underflow")

// Buffer is a mutable byte sequence used for both building outgoing
// message bodies (pack) and consuming incoming ones (unpack). Unpack
// operations consume from the front; pack operations append to the
// back. A single Buffer is never used for both roles at once.
type Buffer struct {
	buf []byte
}

// New returns an empty Buffer ready for packing.
func New() *Buffer {
	return &Buffer{}
}

// Wrap returns a Buffer over an existing byte slice, ready for
// unpacking. The slice is not copied; callers must not mutate it
// concurrently with unpack calls.
func Wrap(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) take(n int) ([]byte, error) {
	if len(b.buf) < n {
		return nil, ErrUnderflow
	}
	v := b.buf[:n]
	b.buf = b.buf[n:]
	return v, nil
}

// PackByte appends a single byte.
func (b *Buffer) PackByte(v byte) {
	b.buf = append(b.buf, v)
}

// UnpackByte removes and returns one byte.
func (b *Buffer) UnpackByte() (byte, error) {
	v, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// PackShort appends a big-endian uint16.
func (b *Buffer) PackShort(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// UnpackShort removes and returns a big-endian uint16.
func (b *Buffer) UnpackShort() (uint16, error) {
	v, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v), nil
}

// PackInt appends a big-endian signed int32.
func (b *Buffer) PackInt(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

// UnpackInt removes and returns a big-endian signed int32.
func (b *Buffer) UnpackInt() (int32, error) {
	v, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(v)), nil
}

// PackLong appends a big-endian signed int64.
func (b *Buffer) PackLong(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.buf = append(b.buf, tmp[:]...)
}

// UnpackLong removes and returns a big-endian signed int64.
func (b *Buffer) UnpackLong() (int64, error) {
	v, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

// PackString appends a [short]-length-prefixed byte sequence. Callers
// may pass already-encoded bytes; this is UTF-8-agnostic on input.
func (b *Buffer) PackString(s string) {
	if len(s) > 0xFFFF {
		panic(fmt.Sprintf("wire: string of %d bytes exceeds short-prefixed limit", len(s)))
	}
	b.PackShort(uint16(len(s)))
	b.buf = append(b.buf, s...)
}

// UnpackString removes and returns a [short]-length-prefixed string.
func (b *Buffer) UnpackString() (string, error) {
	n, err := b.UnpackShort()
	if err != nil {
		return "", err
	}
	v, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PackLongString appends an [int]-length-prefixed byte sequence.
func (b *Buffer) PackLongString(s string) {
	if len(s) > 0x7FFFFFFF {
		panic(fmt.Sprintf("wire: long string of %d bytes exceeds int-prefixed limit", len(s)))
	}
	b.PackInt(int32(len(s)))
	b.buf = append(b.buf, s...)
}

// UnpackLongString removes and returns an [int]-length-prefixed string.
func (b *Buffer) UnpackLongString() (string, error) {
	n, err := b.UnpackInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("wire: negative long string length %d", n)
	}
	v, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// PackBytes appends an [int]-length-prefixed byte sequence. A nil
// slice is encoded as length -1 (the CQL null marker).
func (b *Buffer) PackBytes(v []byte) {
	if v == nil {
		b.PackInt(-1)
		return
	}
	b.PackInt(int32(len(v)))
	b.buf = append(b.buf, v...)
}

// UnpackBytes removes and returns a [bytes] value. A length of -1 (or
// any negative length) decodes to nil, distinct from a present
// zero-length value.
func (b *Buffer) UnpackBytes() ([]byte, error) {
	n, err := b.UnpackInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	v, err := b.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// PackShortBytes appends a [short]-length-prefixed byte sequence. It
// is never null.
func (b *Buffer) PackShortBytes(v []byte) {
	b.PackShort(uint16(len(v)))
	b.buf = append(b.buf, v...)
}

// UnpackShortBytes removes and returns a [short bytes] value.
func (b *Buffer) UnpackShortBytes() ([]byte, error) {
	n, err := b.UnpackShort()
	if err != nil {
		return nil, err
	}
	v, err := b.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// PackStringList appends a [short] count followed by that many
// [string] entries.
func (b *Buffer) PackStringList(list []string) {
	b.PackShort(uint16(len(list)))
	for _, s := range list {
		b.PackString(s)
	}
}

// UnpackStringList removes and returns a [string list].
func (b *Buffer) UnpackStringList() ([]string, error) {
	n, err := b.UnpackShort()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = b.UnpackString()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PackStringMap appends a [string map], with keys sorted for
// deterministic wire output (stable test vectors).
func (b *Buffer) PackStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.PackShort(uint16(len(keys)))
	for _, k := range keys {
		b.PackString(k)
		b.PackString(m[k])
	}
}

// UnpackStringMap removes and returns a [string map].
func (b *Buffer) UnpackStringMap() (map[string]string, error) {
	n, err := b.UnpackShort()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint16(0); i < n; i++ {
		k, err := b.UnpackString()
		if err != nil {
			return nil, err
		}
		v, err := b.UnpackString()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// PackStringMultimap appends a [string multimap], keys sorted.
func (b *Buffer) PackStringMultimap(m map[string][]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.PackShort(uint16(len(keys)))
	for _, k := range keys {
		b.PackString(k)
		b.PackStringList(m[k])
	}
}

// UnpackStringMultimap removes and returns a [string multimap].
func (b *Buffer) UnpackStringMultimap() (map[string][]string, error) {
	n, err := b.UnpackShort()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, n)
	for i := uint16(0); i < n; i++ {
		k, err := b.UnpackString()
		if err != nil {
			return nil, err
		}
		v, err := b.UnpackStringList()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// PackInet appends an [inet]: a length byte, the address bytes (4 for
// IPv4, 16 for IPv6), then the port as an [int].
func (b *Buffer) PackInet(addr []byte, port int32) {
	b.PackByte(byte(len(addr)))
	b.buf = append(b.buf, addr...)
	b.PackInt(port)
}

// UnpackInet removes and returns an [inet]'s address bytes and port.
func (b *Buffer) UnpackInet() (addr []byte, port int32, err error) {
	n, err := b.UnpackByte()
	if err != nil {
		return nil, 0, err
	}
	a, err := b.take(int(n))
	if err != nil {
		return nil, 0, err
	}
	addr = make([]byte, len(a))
	copy(addr, a)
	port, err = b.UnpackInt()
	if err != nil {
		return nil, 0, err
	}
	return addr, port, nil
}
