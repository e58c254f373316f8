package plug

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// buildPIB constructs a complete, checksum-valid PIB of the given
// size (a multiple of 4) with master mac at the fixed offset.
func buildPIB(t *testing.T, size int, master MAC) []byte {
	t.Helper()
	require.Zero(t, size%4)
	require.GreaterOrEqual(t, size, pibMasterOffset+pibMasterLen)

	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[pibSizeOffset:], uint16(size))
	copy(buf[pibMasterOffset:pibMasterOffset+pibMasterLen], master[:])

	sum := pibChecksum(buf)
	binary.LittleEndian.PutUint32(buf[pibChecksumOffset:], sum)

	require.Zero(t, pibChecksum(buf))

	return buf
}

// pibTestBaseSize is the smallest valid PIB size: it holds the master
// field at its fixed offset and is already a multiple of 4.
const pibTestBaseSize = pibMasterOffset + pibMasterLen

func TestPIB_CompleteValidRoundTrip(t *testing.T) {
	mac := MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	buf := buildPIB(t, pibTestBaseSize, mac)

	pib, err := NewPIB(buf[:16])
	require.NoError(t, err)
	assert.False(t, pib.IsComplete())

	pib, err = pib.Append(buf[16:])
	require.NoError(t, err)
	assert.True(t, pib.IsComplete())
	assert.True(t, pib.IsValid())

	got, err := pib.MasterGet()
	require.NoError(t, err)
	assert.Equal(t, mac, got)
}

func TestPIB_MasterReplacePreservesValidity(t *testing.T) {
	orig := MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	repl := MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

	pib, err := NewPIB(buildPIB(t, pibTestBaseSize+8, orig))
	require.NoError(t, err)
	require.True(t, pib.IsValid())

	patched, err := pib.MasterReplace(repl)
	require.NoError(t, err)
	assert.True(t, patched.IsComplete())
	assert.True(t, patched.IsValid())

	got, err := patched.MasterGet()
	require.NoError(t, err)
	assert.Equal(t, repl, got)
}

func TestPIB_IncompleteRejectsMasterOps(t *testing.T) {
	pib, err := NewPIB(make([]byte, 16))
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(pib.buf[pibSizeOffset:], 1000)

	_, err = pib.MasterGet()
	assert.ErrorIs(t, err, ErrPIBNotComplete)

	_, err = pib.MasterReplace(MAC{})
	assert.ErrorIs(t, err, ErrPIBNotComplete)
}

func TestPIB_Append_NeverMutatesReceiver(t *testing.T) {
	mac := MAC{1, 2, 3, 4, 5, 6}
	full := buildPIB(t, pibTestBaseSize+4, mac)

	first, err := NewPIB(full[:16])
	require.NoError(t, err)

	before := append([]byte(nil), first.Bytes()...)

	_, err = first.Append(full[16:])
	require.NoError(t, err)

	assert.Equal(t, before, first.Bytes())
}

// pibChecksum folds consecutive little-endian u32 words under XOR then
// negates. Zeroing a word-aligned checksum field, computing the fold,
// and writing the result back into that field must always fold the
// whole buffer to zero — the same property MasterReplace relies on.
func TestPIBChecksum_SelfInverse(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(3, 64).Draw(rt, "words")
		data := make([]byte, n*4)

		for i := range data {
			data[i] = byte(rapid.IntRange(0, 255).Draw(rt, "byte"))
		}

		const checksumWord = 1 // word index of the stand-in checksum field

		data[checksumWord*4] = 0
		data[checksumWord*4+1] = 0
		data[checksumWord*4+2] = 0
		data[checksumWord*4+3] = 0

		sum := pibChecksum(data)
		binary.LittleEndian.PutUint32(data[checksumWord*4:], sum)

		assert.Equal(t, uint32(0), pibChecksum(data))
	})
}

// Append only ever grows the buffered length, and the declared size
// never changes underneath repeated appends of arbitrary chunking.
func TestPIB_AppendOnlyGrows(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mac := MAC{1, 2, 3, 4, 5, 6}
		size := rapid.IntRange(1, 8).Draw(rt, "extraWords")*4 + pibTestBaseSize
		full := buildPIB(t, size, mac)

		firstLen := rapid.IntRange(9, size).Draw(rt, "firstLen")

		pib, err := NewPIB(full[:firstLen])
		require.NoError(rt, err)

		prevLen := pib.Len()

		for prevLen < size {
			step := rapid.IntRange(1, size-prevLen).Draw(rt, "step")
			pib, err = pib.Append(full[prevLen : prevLen+step])
			require.NoError(rt, err)
			assert.Greater(rt, pib.Len(), prevLen)
			prevLen = pib.Len()
		}

		assert.True(rt, pib.IsComplete())
	})
}
