package wasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPageConsts(t *testing.T) {
	require.Equal(t, MemoryPageSize, uint32(1)<<MemoryPageSizeInBits)
	require.Equal(t, MemoryPageSize, uint32(1<<16))
	require.Equal(t, MemoryLimitPages, uint32(1<<16))
}

func TestMemoryPagesToBytesNum(t *testing.T) {
	for _, numPage := range []uint32{0, 1, 5, 10} {
		require.Equal(t, uint64(numPage*MemoryPageSize), MemoryPagesToBytesNum(numPage))
	}
}

func TestMemoryBytesNumToPages(t *testing.T) {
	for _, numbytes := range []uint32{0, MemoryPageSize * 1, MemoryPageSize * 10} {
		require.Equal(t, numbytes/MemoryPageSize, memoryBytesNumToPages(uint64(numbytes)))
	}
}

func TestPagesToUnitOfBytes(t *testing.T) {
	tests := []struct {
		name     string
		pages    uint32
		expected string
	}{
		{name: "zero", pages: 0, expected: "0B"},
		{name: "one", pages: 1, expected: "64KiB"},
		{name: "megs", pages: 100, expected: "6.25MiB"},
		{name: "max", pages: MemoryLimitPages, expected: "4GiB"},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, PagesToUnitOfBytes(tc.pages))
		})
	}
}

// recordingLimiter allows growth up to a byte or element count, and records what it was asked.
type recordingLimiter struct {
	maxBytes, maxElements uint64
	calls                 [][2]uint64
}

func (l *recordingLimiter) LimitMemoryGrowth(current, desired uint64) bool {
	l.calls = append(l.calls, [2]uint64{current, desired})
	return desired <= l.maxBytes
}

func (l *recordingLimiter) LimitTableGrowth(current, desired uint64) bool {
	l.calls = append(l.calls, [2]uint64{current, desired})
	return desired <= l.maxElements
}

func TestMemoryInstance_Grow(t *testing.T) {
	t.Run("declared max", func(t *testing.T) {
		m := &MemoryInstance{Max: 3}
		require.Equal(t, uint32(0), m.Pages())

		prev, ok := m.Grow(0)
		require.True(t, ok)
		require.Equal(t, uint32(0), prev)

		prev, ok = m.Grow(2)
		require.True(t, ok)
		require.Equal(t, uint32(0), prev)
		require.Equal(t, uint32(2), m.Pages())
		require.Equal(t, 2*MemoryPageSize, m.Size())

		_, ok = m.Grow(2)
		require.False(t, ok)
		require.Equal(t, uint32(2), m.Pages())

		prev, ok = m.Grow(1)
		require.True(t, ok)
		require.Equal(t, uint32(2), prev)
		require.Equal(t, uint32(3), m.Pages())
	})

	t.Run("new pages are zero", func(t *testing.T) {
		m := &MemoryInstance{Buffer: make([]byte, MemoryPageSize), Max: 2}
		m.Buffer[MemoryPageSize-1] = 1
		_, ok := m.Grow(1)
		require.True(t, ok)
		require.Equal(t, byte(1), m.Buffer[MemoryPageSize-1])
		require.Equal(t, make([]byte, MemoryPageSize), m.Buffer[MemoryPageSize:])
	})

	t.Run("overflow", func(t *testing.T) {
		m := &MemoryInstance{Buffer: make([]byte, MemoryPageSize), Max: MemoryLimitPages}
		_, ok := m.Grow(math.MaxUint32)
		require.False(t, ok)
	})

	t.Run("resource limiter", func(t *testing.T) {
		l := &recordingLimiter{maxBytes: uint64(2 * MemoryPageSize)}
		m := &MemoryInstance{Max: MemoryLimitPages, limiter: l}

		_, ok := m.Grow(2)
		require.True(t, ok)
		_, ok = m.Grow(1)
		require.False(t, ok)
		require.Equal(t, uint32(2), m.Pages())
		require.Equal(t, [][2]uint64{{0, 2 * 65536}, {2 * 65536, 3 * 65536}}, l.calls)
	})
}

func TestMemoryInstance_ReadWrite(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 16)}

	require.True(t, m.WriteByte(15, 0xff))
	require.False(t, m.WriteByte(16, 0xff))
	b, ok := m.ReadByte(15)
	require.True(t, ok)
	require.Equal(t, byte(0xff), b)

	require.True(t, m.WriteUint16Le(14, 0x0102))
	require.False(t, m.WriteUint16Le(15, 0x0102))
	v16, ok := m.ReadUint16Le(14)
	require.True(t, ok)
	require.Equal(t, uint16(0x0102), v16)
	require.Equal(t, []byte{0x02, 0x01}, m.Buffer[14:])

	require.True(t, m.WriteUint32Le(12, 0x01020304))
	require.False(t, m.WriteUint32Le(13, 0x01020304))
	v32, ok := m.ReadUint32Le(12)
	require.True(t, ok)
	require.Equal(t, uint32(0x01020304), v32)

	require.True(t, m.WriteUint64Le(8, math.MaxUint64-1))
	require.False(t, m.WriteUint64Le(9, 0))
	v64, ok := m.ReadUint64Le(8)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64-1), v64)

	require.True(t, m.WriteFloat32Le(0, float32(math.Inf(-1))))
	f32, ok := m.ReadFloat32Le(0)
	require.True(t, ok)
	require.Equal(t, float32(math.Inf(-1)), f32)

	require.True(t, m.WriteFloat64Le(0, math.Pi))
	f64, ok := m.ReadFloat64Le(0)
	require.True(t, ok)
	require.Equal(t, math.Pi, f64)
	_, ok = m.ReadFloat64Le(9)
	require.False(t, ok)

	require.True(t, m.Write(0, []byte{1, 2, 3}))
	require.False(t, m.Write(14, []byte{1, 2, 3}))
	buf, ok := m.Read(0, 3)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, buf)
	require.Equal(t, 3, cap(buf))

	// Offsets near the top of the address space don't wrap.
	_, ok = m.Read(math.MaxUint32, 2)
	require.False(t, ok)
	_, ok = m.ReadUint32Le(math.MaxUint32 - 1)
	require.False(t, ok)
}
