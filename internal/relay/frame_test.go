package relay

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFrame builds a masked client-to-server frame, the mirror of
// encodeFrame with the mask bit set and the payload XOR-ed.
func clientFrame(opcode byte, payload []byte, key [4]byte, fin bool) []byte {
	n := len(payload)
	var header []byte
	switch {
	case n < 126:
		header = []byte{opcode, 0x80 | byte(n)}
	case n < 1<<16:
		header = make([]byte, 4)
		header[0] = opcode
		header[1] = 0x80 | 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = opcode
		header[1] = 0x80 | 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	if fin {
		header[0] |= 0x80
	}
	out := append(header, key[:]...)
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ key[i&3]
	}
	return append(out, masked...)
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 31)
	}
	return p
}

func TestDecodeRoundTrip(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	for _, n := range []int{0, 1, 125, 126, 65535, 65536} {
		payload := pattern(n)
		frames, rest, err := decodeFrames(clientFrame(opText, payload, key, true))
		require.NoError(t, err, "length %d", n)
		require.Len(t, frames, 1, "length %d", n)
		assert.Empty(t, rest)
		assert.True(t, frames[0].fin)
		assert.Equal(t, byte(opText), frames[0].opcode)
		assert.Equal(t, payload, frames[0].payload)
	}
}

func TestEncodeFrameSizeClasses(t *testing.T) {
	// 7-bit literal length
	f := encodeFrame(opText, pattern(5))
	assert.Equal(t, byte(0x81), f[0])
	assert.Equal(t, byte(5), f[1])
	assert.Len(t, f, 2+5)

	// 16-bit extended length
	f = encodeFrame(opText, pattern(300))
	assert.Equal(t, byte(126), f[1])
	assert.Equal(t, uint16(300), binary.BigEndian.Uint16(f[2:]))
	assert.Len(t, f, 4+300)

	// 64-bit extended length
	f = encodeFrame(opBinary, pattern(70000))
	assert.Equal(t, byte(0x82), f[0])
	assert.Equal(t, byte(127), f[1])
	assert.Equal(t, uint64(70000), binary.BigEndian.Uint64(f[2:]))
	assert.Len(t, f, 10+70000)

	// no mask bit on server frames
	assert.Zero(t, f[1]&0x80)
}

func TestMaskingIdempotence(t *testing.T) {
	key := [4]byte{0xA5, 0x00, 0xFF, 0x3C}
	for n := 0; n <= 10000; n++ {
		payload := pattern(n)
		frames, _, err := decodeFrames(clientFrame(opText, payload, key, true))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, payload, frames[0].payload, "length %d", n)
	}

	// edge keys on a few lengths
	for _, key := range [][4]byte{
		{0, 0, 0, 0},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{1, 2, 3, 4},
	} {
		for _, n := range []int{0, 1, 3, 4, 5, 1000, 10000} {
			payload := pattern(n)
			frames, _, err := decodeFrames(clientFrame(opText, payload, key, true))
			require.NoError(t, err)
			require.Len(t, frames, 1)
			require.Equal(t, payload, frames[0].payload)
		}
	}
}

func TestPartialFrameEverySplitPoint(t *testing.T) {
	key := [4]byte{9, 8, 7, 6}
	payload := []byte(`{"type":"shoot","room":"a"}`)
	whole := clientFrame(opText, payload, key, true)

	for split := 0; split <= len(whole); split++ {
		buf := append([]byte{}, whole[:split]...)
		frames, rest, err := decodeFrames(buf)
		require.NoError(t, err, "split %d", split)

		total := len(frames)
		buf = append(append([]byte{}, rest...), whole[split:]...)
		more, rest, err := decodeFrames(buf)
		require.NoError(t, err, "split %d", split)
		total += len(more)

		require.Equal(t, 1, total, "split %d", split)
		assert.Empty(t, rest, "split %d", split)
		last := frames
		if len(more) > 0 {
			last = more
		}
		assert.Equal(t, payload, last[0].payload, "split %d", split)
	}
}

func TestDecodeMultipleFramesInOneBuffer(t *testing.T) {
	key := [4]byte{1, 1, 2, 2}
	buf := append(
		clientFrame(opText, []byte("one"), key, true),
		clientFrame(opText, []byte("two"), key, true)...,
	)
	frames, rest, err := decodeFrames(buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Empty(t, rest)
	assert.Equal(t, []byte("one"), frames[0].payload)
	assert.Equal(t, []byte("two"), frames[1].payload)
}

func TestUnmaskedFrameIsProtocolError(t *testing.T) {
	frames, _, err := decodeFrames(encodeFrame(opText, []byte("nope")))
	require.ErrorIs(t, err, ErrUnmaskedFrame)
	assert.Empty(t, frames)
	assert.Equal(t, uint16(closeProtocolError), closeCodeFor(err))
}

func TestOversized64BitLengthFails(t *testing.T) {
	// masked 127-class header whose high word is nonzero
	buf := []byte{0x81, 0x80 | 127, 0, 0, 0, 1, 0, 0, 0, 0, 1, 2, 3, 4}
	frames, _, err := decodeFrames(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Empty(t, frames)
	assert.Equal(t, uint16(closeTooLarge), closeCodeFor(err))
}

func TestFramesBeforeViolationStillDecoded(t *testing.T) {
	key := [4]byte{4, 3, 2, 1}
	buf := append(
		clientFrame(opText, []byte("ok"), key, true),
		encodeFrame(opText, []byte("unmasked"))...,
	)
	frames, _, err := decodeFrames(buf)
	require.ErrorIs(t, err, ErrUnmaskedFrame)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("ok"), frames[0].payload)
}
