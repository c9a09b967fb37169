// Package ieee754 reads little-endian IEEE 754 floats as raw bits, so NaN payloads survive decoding unchanged.
package ieee754

import (
	"encoding/binary"
	"errors"
	"io"
)

var errUnexpectedEnd = errors.New("unexpected end of input")

// LoadFloat32Bits reads 4 bytes from the head of buf.
func LoadFloat32Bits(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, errUnexpectedEnd
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// LoadFloat64Bits reads 8 bytes from the head of buf.
func LoadFloat64Bits(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, errUnexpectedEnd
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// DecodeFloat32Bits is like LoadFloat32Bits, but reads from an io.Reader.
func DecodeFloat32Bits(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// DecodeFloat64Bits is like LoadFloat64Bits, but reads from an io.Reader.
func DecodeFloat64Bits(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// EncodeFloat32Bits appends the little-endian encoding of bits to buf.
func EncodeFloat32Bits(buf []byte, bits uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, bits)
}

// EncodeFloat64Bits appends the little-endian encoding of bits to buf.
func EncodeFloat64Bits(buf []byte, bits uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, bits)
}
