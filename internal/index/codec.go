package index

// RecordCodec encodes and decodes a value of type T as a record in a
// FlatFile. Unlike node.Codec, records may be variable length: Encode
// returns the number of bytes written, and Decode reports how many bytes
// it consumed so the caller can locate the next record.
type RecordCodec[T any] interface {
	// MaxSize is an upper bound on the encoded size, used to size
	// scratch buffers before a length is known.
	MaxSize() int
	Encode(dst []byte, v T) int
	Decode(src []byte) (T, int)
}

// fixedSizeCodec adapts a fixed record size and an encode/decode function
// pair into a RecordCodec; Fixed constructs one.
type fixedSizeCodec[T any] struct {
	size   int
	encode func(dst []byte, v T)
	decode func(src []byte) T
}

func Fixed[T any](size int, encode func(dst []byte, v T), decode func(src []byte) T) RecordCodec[T] {
	return fixedSizeCodec[T]{size: size, encode: encode, decode: decode}
}

func (c fixedSizeCodec[T]) MaxSize() int { return c.size }
func (c fixedSizeCodec[T]) Encode(dst []byte, v T) int {
	c.encode(dst, v)
	return c.size
}
func (c fixedSizeCodec[T]) Decode(src []byte) (T, int) {
	return c.decode(src), c.size
}

// maxVarintLen is size_t_codec::max_size() for a 64-bit size_t: (64/7)+1.
const maxVarintLen = 64/7 + 1

// putVarint encodes n as a 7-bit continuation byte string, most
// significant group first: every byte but the last has its high bit set,
// matching _examples/original_source/include/boost/btree/support/
// size_t_codec.hpp exactly (encode walks backward from a fixed buffer; the
// byte order on the wire is unaffected by that implementation detail).
// It returns the number of bytes written at the front of dst.
func putVarint(dst []byte, n uint64) int {
	var tmp [maxVarintLen]byte
	p := maxVarintLen - 1
	tmp[p] = byte(n & 0x7f)
	n >>= 7
	for n != 0 {
		p--
		tmp[p] = byte(n&0x7f) | 0x80
		n >>= 7
	}
	return copy(dst, tmp[p:])
}

// getVarint decodes a length written by putVarint, returning the value
// and the number of bytes consumed.
func getVarint(src []byte) (uint64, int) {
	var v uint64
	i := 0
	for src[i]&0x80 != 0 {
		v |= uint64(src[i] & 0x7f)
		v <<= 7
		i++
	}
	v |= uint64(src[i] & 0x7f)
	return v, i + 1
}

// VarBytes is a RecordCodec for variable-length byte strings, stored as a
// varint length prefix (size_t_codec convention) followed by the raw
// bytes, matching the original's "a use case would be to encode the
// length of strings" (support/size_t_codec.hpp).
type varBytesCodec struct{ max int }

// VarBytes returns a RecordCodec for []byte values no longer than max.
func VarBytes(max int) RecordCodec[[]byte] { return varBytesCodec{max: max} }

func (c varBytesCodec) MaxSize() int { return maxVarintLen + c.max }

func (c varBytesCodec) Encode(dst []byte, v []byte) int {
	n := putVarint(dst, uint64(len(v)))
	n += copy(dst[n:], v)
	return n
}

func (c varBytesCodec) Decode(src []byte) ([]byte, int) {
	n, hdr := getVarint(src)
	out := make([]byte, n)
	copy(out, src[hdr:hdr+int(n)])
	return out, hdr + int(n)
}

// VarString is VarBytes adapted to string.
type varStringCodec struct{ inner varBytesCodec }

func VarString(max int) RecordCodec[string] { return varStringCodec{varBytesCodec{max: max}} }

func (c varStringCodec) MaxSize() int { return c.inner.MaxSize() }
func (c varStringCodec) Encode(dst []byte, v string) int {
	return c.inner.Encode(dst, []byte(v))
}
func (c varStringCodec) Decode(src []byte) (string, int) {
	b, n := c.inner.Decode(src)
	return string(b), n
}
