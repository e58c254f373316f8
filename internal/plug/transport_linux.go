//go:build linux

package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Raw-socket Transport implementation: bind an AF_PACKET/
 *		SOCK_RAW socket to a named interface and exchange whole
 *		Ethernet frames over it.
 *
 * Description:	Equivalent to asokapy's
 *		socket.socket(AF_PACKET, SOCK_RAW, htons(0x0003)) +
 *		bind((interface, 0)), using golang.org/x/sys/unix the
 *		same way the teacher repo's ptt.go/cm108.go reach for raw
 *		ioctls instead of cgo.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const rawRecvBufSize = 2048

// htons converts a host-order u16 to network order, matching
// socket.ntohs(0x0003) used to select ETH_P_ALL in the original.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)

	return binary.LittleEndian.Uint16(b[:])
}

// RawTransport binds a raw Ethernet socket to a named interface.
type RawTransport struct {
	fd int
}

// NewRawTransport opens an AF_PACKET/SOCK_RAW socket bound to ifname,
// receiving every EtherType (ETH_P_ALL) the way the dispatcher needs
// to see both vendor and HomePlug-AV frames.
func NewRawTransport(ifname string) (*RawTransport, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("plug: open raw socket: %w", err)
	}

	iface, err := unix.IfNameToIndex(ifname)
	if err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("plug: resolve interface %q: %w", ifname, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  int(iface),
	}

	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("plug: bind to %q: %w", ifname, err)
	}

	return &RawTransport{fd: fd}, nil
}

// Send writes frame to the socket as-is; the destination/source MAC
// and EtherType must already be present (the dispatcher prepends
// them).
func (t *RawTransport) Send(frame []byte) error {
	return unix.Send(t.fd, frame, 0)
}

// Recv waits up to timeout for one inbound frame using SO_RCVTIMEO.
func (t *RawTransport) Recv(timeout time.Duration) ([]byte, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(t.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, fmt.Errorf("plug: set recv timeout: %w", err)
	}

	buf := make([]byte, rawRecvBufSize)

	n, _, err := unix.Recvfrom(t.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrTransportTimeout
		}

		return nil, fmt.Errorf("plug: recv: %w", err)
	}

	return buf[:n], nil
}

// Close closes the underlying socket.
func (t *RawTransport) Close() error {
	return unix.Close(t.fd)
}
