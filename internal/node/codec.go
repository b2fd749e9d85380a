// Package node implements the B+-tree node format (spec C4, §3/§4.4):
// the shared branch/leaf header prefix, fixed-size element and entry
// layout, and the trivially-copyable key/value codecs (native, and
// explicit big-/little-endian integer and fixed-byte-string traits).
//
// Grounded on the teacher's leaf/inner node serializers (index/leafnode.go,
// index/innernode.go), which hand-roll binary.BigEndian.PutUint64 calls
// directly against a page buffer; this package generalizes that pattern
// into a Codec[T] trait so the same node layout code works over any
// trivially-copyable key or value type, matching spec §4.4's "native /
// big-endian / little-endian traits" and "user-defined trivially copyable
// aggregates" requirements.
package node

import "encoding/binary"

// Codec encodes and decodes a fixed-size value of type T to and from a
// byte slice, with no marshaling beyond optional endian adaptation (spec
// §4.4: "trivially copyable").
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// --- unsigned integer codecs -------------------------------------------------

type uintCodec struct {
	size  int
	order binary.ByteOrder
}

func (c uintCodec) Size() int { return c.size }

func (c uintCodec) Encode(dst []byte, v uint64) {
	switch c.size {
	case 1:
		dst[0] = byte(v)
	case 2:
		c.order.PutUint16(dst, uint16(v))
	case 3:
		putUint24(dst, c.order, uint32(v))
	case 4:
		c.order.PutUint32(dst, uint32(v))
	case 6:
		putUint48(dst, c.order, v)
	case 8:
		c.order.PutUint64(dst, v)
	default:
		panic("node: unsupported uint codec width")
	}
}

func (c uintCodec) Decode(src []byte) uint64 {
	switch c.size {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(c.order.Uint16(src))
	case 3:
		return uint64(getUint24(src, c.order))
	case 4:
		return uint64(c.order.Uint32(src))
	case 6:
		return getUint48(src, c.order)
	case 8:
		return c.order.Uint64(src)
	default:
		panic("node: unsupported uint codec width")
	}
}

func putUint24(dst []byte, o binary.ByteOrder, v uint32) {
	if o == binary.BigEndian {
		dst[0] = byte(v >> 16)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v)
	} else {
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
	}
}

func getUint24(src []byte, o binary.ByteOrder) uint32 {
	if o == binary.BigEndian {
		return uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2])
	}
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
}

func putUint48(dst []byte, o binary.ByteOrder, v uint64) {
	if o == binary.BigEndian {
		for i := 0; i < 6; i++ {
			dst[i] = byte(v >> (40 - 8*i))
		}
	} else {
		for i := 0; i < 6; i++ {
			dst[i] = byte(v >> (8 * i))
		}
	}
}

func getUint48(src []byte, o binary.ByteOrder) uint64 {
	var v uint64
	if o == binary.BigEndian {
		for i := 0; i < 6; i++ {
			v = v<<8 | uint64(src[i])
		}
	} else {
		for i := 5; i >= 0; i-- {
			v = v<<8 | uint64(src[i])
		}
	}
	return v
}

// Uint8Codec, Uint16Codec, ... are width-specific unsigned codecs. BE/LE
// suffixes select the declared endian traits of spec §4.4; Native* uses
// encoding/binary.NativeEndian ("native traits": fastest, not portable).
type (
	uint8Codec  struct{ uintCodec }
	uint16Codec struct{ uintCodec }
	uint24Codec struct{ uintCodec }
	uint32Codec struct{ uintCodec }
	uint48Codec struct{ uintCodec }
	uint64Codec struct{ uintCodec }
)

func (c uint8Codec) Size() int                { return 1 }
func (c uint8Codec) Encode(dst []byte, v uint8) { dst[0] = v }
func (c uint8Codec) Decode(src []byte) uint8  { return src[0] }

func (c uint16Codec) Size() int                  { return 2 }
func (c uint16Codec) Encode(dst []byte, v uint16) { c.uintCodec.Encode(dst, uint64(v)) }
func (c uint16Codec) Decode(src []byte) uint16   { return uint16(c.uintCodec.Decode(src)) }

func (c uint24Codec) Size() int                  { return 3 }
func (c uint24Codec) Encode(dst []byte, v uint32) { c.uintCodec.Encode(dst, uint64(v)) }
func (c uint24Codec) Decode(src []byte) uint32   { return uint32(c.uintCodec.Decode(src)) }

func (c uint32Codec) Size() int                  { return 4 }
func (c uint32Codec) Encode(dst []byte, v uint32) { c.uintCodec.Encode(dst, uint64(v)) }
func (c uint32Codec) Decode(src []byte) uint32   { return uint32(c.uintCodec.Decode(src)) }

func (c uint48Codec) Size() int                  { return 6 }
func (c uint48Codec) Encode(dst []byte, v uint64) { c.uintCodec.Encode(dst, v) }
func (c uint48Codec) Decode(src []byte) uint64   { return c.uintCodec.Decode(src) }

func (c uint64Codec) Size() int                  { return 8 }
func (c uint64Codec) Encode(dst []byte, v uint64) { c.uintCodec.Encode(dst, v) }
func (c uint64Codec) Decode(src []byte) uint64   { return c.uintCodec.Decode(src) }

func Uint8Codec() Codec[uint8] { return uint8Codec{} }

func Uint16BECodec() Codec[uint16] { return uint16Codec{uintCodec{2, binary.BigEndian}} }
func Uint16LECodec() Codec[uint16] { return uint16Codec{uintCodec{2, binary.LittleEndian}} }
func Uint16NativeCodec() Codec[uint16] { return uint16Codec{uintCodec{2, binary.NativeEndian}} }

func Uint24BECodec() Codec[uint32] { return uint24Codec{uintCodec{3, binary.BigEndian}} }
func Uint24LECodec() Codec[uint32] { return uint24Codec{uintCodec{3, binary.LittleEndian}} }

func Uint32BECodec() Codec[uint32] { return uint32Codec{uintCodec{4, binary.BigEndian}} }
func Uint32LECodec() Codec[uint32] { return uint32Codec{uintCodec{4, binary.LittleEndian}} }
func Uint32NativeCodec() Codec[uint32] { return uint32Codec{uintCodec{4, binary.NativeEndian}} }

func Uint48BECodec() Codec[uint64] { return uint48Codec{uintCodec{6, binary.BigEndian}} }
func Uint48LECodec() Codec[uint64] { return uint48Codec{uintCodec{6, binary.LittleEndian}} }

func Uint64BECodec() Codec[uint64] { return uint64Codec{uintCodec{8, binary.BigEndian}} }
func Uint64LECodec() Codec[uint64] { return uint64Codec{uintCodec{8, binary.LittleEndian}} }
func Uint64NativeCodec() Codec[uint64] { return uint64Codec{uintCodec{8, binary.NativeEndian}} }

// --- signed integer codecs, via zig-zag-free two's complement bit cast ------

type int32Codec struct{ u Codec[uint32] }

func (c int32Codec) Size() int { return c.u.Size() }
func (c int32Codec) Encode(dst []byte, v int32) { c.u.Encode(dst, uint32(v)) }
func (c int32Codec) Decode(src []byte) int32    { return int32(c.u.Decode(src)) }

func Int32BECodec() Codec[int32] { return int32Codec{Uint32BECodec()} }
func Int32LECodec() Codec[int32] { return int32Codec{Uint32LECodec()} }
func Int32NativeCodec() Codec[int32] { return int32Codec{Uint32NativeCodec()} }

type int64Codec struct{ u Codec[uint64] }

func (c int64Codec) Size() int { return c.u.Size() }
func (c int64Codec) Encode(dst []byte, v int64) { c.u.Encode(dst, uint64(v)) }
func (c int64Codec) Decode(src []byte) int64    { return int64(c.u.Decode(src)) }

func Int64BECodec() Codec[int64] { return int64Codec{Uint64BECodec()} }
func Int64LECodec() Codec[int64] { return int64Codec{Uint64LECodec()} }
func Int64NativeCodec() Codec[int64] { return int64Codec{Uint64NativeCodec()} }

type int16Codec struct{ u Codec[uint16] }

func (c int16Codec) Size() int { return c.u.Size() }
func (c int16Codec) Encode(dst []byte, v int16) { c.u.Encode(dst, uint16(v)) }
func (c int16Codec) Decode(src []byte) int16    { return int16(c.u.Decode(src)) }

func Int16BECodec() Codec[int16] { return int16Codec{Uint16BECodec()} }
func Int16LECodec() Codec[int16] { return int16Codec{Uint16LECodec()} }

// --- fixed-length byte-string codec -----------------------------------------

// FixedBytesCodec is a fixed-width byte-string codec: the declared length is
// part of the codec, not the value, matching spec §4.4's "fixed-length
// byte strings."
type FixedBytesCodec struct{ N int }

func (c FixedBytesCodec) Size() int { return c.N }

func (c FixedBytesCodec) Encode(dst []byte, v []byte) {
	n := copy(dst[:c.N], v)
	for ; n < c.N; n++ {
		dst[n] = 0
	}
}

func (c FixedBytesCodec) Decode(src []byte) []byte {
	out := make([]byte, c.N)
	copy(out, src[:c.N])
	return out
}

// VoidCodec is the zero-size codec used as the value codec for sets (§3:
// "Leaf nodes carry n elements, where an element is a key for sets").
type VoidCodec struct{}

func (VoidCodec) Size() int                { return 0 }
func (VoidCodec) Encode(dst []byte, _ struct{}) {}
func (VoidCodec) Decode(_ []byte) struct{}  { return struct{}{} }
