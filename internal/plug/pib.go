package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Immutable-by-append view over a device's Parameter
 *		Information Block (PIB), the ~12 KiB binary blob a
 *		HomePlug-AV outlet keeps its configuration in.
 *
 * Description:	The PIB carries its own declared total size in its
 *		header (offset 4, little-endian u16) and a whole-blob
 *		XOR checksum (offset 8, little-endian u32) that must
 *		fold to zero once the blob is complete. The "master"
 *		MAC of the controller the device obeys lives at a
 *		fixed offset (0x2c8a) near the tail of the blob.
 *
 *		See open-plc-utils/pib/pib.h for the on-wire layout
 *		this mirrors.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	pibSizeOffset     = 4
	pibChecksumOffset = 8
	pibChecksumLen    = 4
	pibMasterOffset   = 0x2c8a
	pibMasterLen      = 6
)

// ErrShortBuffer is returned by Append when the resulting buffer
// would be too short to even read a declared size from.
var ErrShortBuffer = errors.New("plug: pib buffer too short")

// ErrPIBNotComplete is returned by operations that require a complete
// PIB (MasterGet, MasterReplace) when len(buf) != declared size.
var ErrPIBNotComplete = errors.New("plug: pib is not complete")

// PIB is an immutable, append-only view over a PIB byte buffer. The
// zero value is not valid; construct one with NewPIB or Append.
type PIB struct {
	buf []byte
}

// NewPIB wraps an initial chunk of PIB bytes (normally the first
// read-confirmation's payload, starting at offset 0). It fails with
// ErrShortBuffer if buf is too short to contain a declared size.
func NewPIB(buf []byte) (PIB, error) {
	if len(buf) <= 8 {
		return PIB{}, fmt.Errorf("%w: %d bytes", ErrShortBuffer, len(buf))
	}

	out := make([]byte, len(buf))
	copy(out, buf)

	return PIB{buf: out}, nil
}

// DeclaredSize returns the total size the PIB header claims the
// complete blob will be.
func (p PIB) DeclaredSize() uint16 {
	return binary.LittleEndian.Uint16(p.buf[pibSizeOffset : pibSizeOffset+2])
}

// Len returns the number of bytes currently buffered.
func (p PIB) Len() int {
	return len(p.buf)
}

// IsComplete reports whether the buffered length matches the
// declared size.
func (p PIB) IsComplete() bool {
	return len(p.buf) == int(p.DeclaredSize())
}

// IsValid reports whether the whole-blob XOR checksum folds to zero.
// Only meaningful once IsComplete is true.
func (p PIB) IsValid() bool {
	return pibChecksum(p.buf) == 0
}

// Append returns a new PIB whose buffer is the concatenation of the
// receiver's buffer and chunk. The receiver is never mutated.
func (p PIB) Append(chunk []byte) (PIB, error) {
	out := make([]byte, 0, len(p.buf)+len(chunk))
	out = append(out, p.buf...)
	out = append(out, chunk...)

	return NewPIB(out)
}

// MasterGet returns the 6-byte master-MAC field. Valid only when
// IsComplete is true.
func (p PIB) MasterGet() (MAC, error) {
	if !p.IsComplete() {
		return MAC{}, ErrPIBNotComplete
	}

	return MACFromBytes(p.buf[pibMasterOffset : pibMasterOffset+pibMasterLen])
}

// MasterReplace returns a new, complete, valid PIB with the master
// field overwritten with mac and a freshly computed whole-blob
// checksum. Only meaningful on a complete PIB.
func (p PIB) MasterReplace(mac MAC) (PIB, error) {
	if !p.IsComplete() {
		return PIB{}, ErrPIBNotComplete
	}

	out := make([]byte, len(p.buf))
	copy(out, p.buf)

	for i := 0; i < pibChecksumLen; i++ {
		out[pibChecksumOffset+i] = 0
	}

	copy(out[pibMasterOffset:pibMasterOffset+pibMasterLen], mac[:])

	sum := pibChecksum(out)
	binary.LittleEndian.PutUint32(out[pibChecksumOffset:pibChecksumOffset+4], sum)

	return PIB{buf: out}, nil
}

// Bytes returns the buffered bytes. Callers must not mutate the
// returned slice.
func (p PIB) Bytes() []byte {
	return p.buf
}

// Slice returns a read-only view of p.buf[start:end], analogous to
// Python asokapy's PIB.__getitem__ slicing used to cut write chunks.
func (p PIB) Slice(start, end int) []byte {
	if end > len(p.buf) {
		end = len(p.buf)
	}

	if start > end {
		start = end
	}

	return p.buf[start:end]
}

// pibChecksum folds data as consecutive little-endian u32 words under
// XOR and bitwise-negates the 32-bit accumulator. len(data) must be a
// multiple of 4; a valid, complete PIB always satisfies this because
// its declared size and chunk sizes are word-aligned. The same
// function covers both the whole-PIB checksum and each write/read
// chunk checksum in the MME framing.
func pibChecksum(data []byte) uint32 {
	var acc uint32

	for i := 0; i+4 <= len(data); i += 4 {
		acc ^= binary.LittleEndian.Uint32(data[i : i+4])
	}

	return ^acc
}
