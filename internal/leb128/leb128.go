// Package leb128 implements the variable-length integer encoding used throughout the WebAssembly binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

var (
	errOverflow32 = errors.New("overflows a 32-bit integer")
	errOverflow33 = errors.New("overflows a 33-bit integer")
	errOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		// Extract the sign bit.
		s := uint8(value & 0x40)
		value >>= 7

		// The encoding unambiguously ends when the remaining value is all sign bits.
		if (value != -1 || s == 0) && (value != 0 || s != 0) {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the value into a buffer in LEB128 format
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format
func EncodeUint64(value uint64) (buf []byte) {
	for {
		b := uint8(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// LoadUint32 reads an unsigned 32-bit integer from the head of buf, returning the count of bytes consumed.
func LoadUint32(buf []byte) (ret uint32, bytesRead uint64, err error) {
	v, n, err := loadUnsigned(sliceReader(buf), 32, errOverflow32)
	return uint32(v), n, err
}

// LoadUint64 reads an unsigned 64-bit integer from the head of buf, returning the count of bytes consumed.
func LoadUint64(buf []byte) (ret uint64, bytesRead uint64, err error) {
	return loadUnsigned(sliceReader(buf), 64, errOverflow64)
}

// LoadInt32 reads a signed 32-bit integer from the head of buf, returning the count of bytes consumed.
func LoadInt32(buf []byte) (ret int32, bytesRead uint64, err error) {
	v, n, err := loadSigned(sliceReader(buf), 32, errOverflow32)
	return int32(v), n, err
}

// LoadInt64 reads a signed 64-bit integer from the head of buf, returning the count of bytes consumed.
func LoadInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return loadSigned(sliceReader(buf), 64, errOverflow64)
}

// DecodeUint32 is like LoadUint32, but reads from an io.ByteReader.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	v, n, err := loadUnsigned(r.ReadByte, 32, errOverflow32)
	return uint32(v), n, err
}

// DecodeUint64 is like LoadUint64, but reads from an io.ByteReader.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	return loadUnsigned(r.ReadByte, 64, errOverflow64)
}

// DecodeInt32 is like LoadInt32, but reads from an io.ByteReader.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	v, n, err := loadSigned(r.ReadByte, 32, errOverflow32)
	return int32(v), n, err
}

// DecodeInt33AsInt64 reads a signed 33-bit integer, which is how block types index the type section.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-blocktype
func DecodeInt33AsInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	return loadSigned(r.ReadByte, 33, errOverflow33)
}

// DecodeInt64 is like LoadInt64, but reads from an io.ByteReader.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	return loadSigned(r.ReadByte, 64, errOverflow64)
}

// sliceReader adapts buf to a read function without allocating a bytes.Reader.
func sliceReader(buf []byte) func() (byte, error) {
	i := 0
	return func() (byte, error) {
		if i >= len(buf) {
			return 0, io.EOF
		}
		b := buf[i]
		i++
		return b, nil
	}
}

func loadUnsigned(next func() (byte, error), bits uint, overflow error) (ret uint64, bytesRead uint64, err error) {
	var shift uint
	for {
		b, err := next()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++
		if shift+7 >= bits {
			// Last permitted byte: no continuation and no bits beyond the width.
			if b&0x80 != 0 || uint64(b) >= 1<<(bits-shift) {
				return 0, 0, overflow
			}
			return ret | uint64(b)<<shift, bytesRead, nil
		}
		ret |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return ret, bytesRead, nil
		}
		shift += 7
	}
}

func loadSigned(next func() (byte, error), bits uint, overflow error) (ret int64, bytesRead uint64, err error) {
	var shift uint
	for {
		b, err := next()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++
		if shift+7 >= bits {
			// Last permitted byte: unused high bits must repeat the sign bit.
			used := bits - shift
			mask := byte(0x7f) >> (used - 1) << (used - 1)
			if b&0x80 != 0 || (b&mask != 0 && b&mask != mask) {
				return 0, 0, overflow
			}
			ret |= int64(b&0x7f) << shift
			if shift+7 < 64 && b&0x40 != 0 {
				ret |= -1 << (shift + 7)
			}
			return ret, bytesRead, nil
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if b&0x40 != 0 {
				ret |= -1 << shift
			}
			return ret, bytesRead, nil
		}
	}
}
