package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Byte-oriented frame transport the dispatcher consumes:
 *		deliver inbound whole Ethernet frames, accept outbound
 *		ones. The core never opens a socket itself.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"time"
)

// ErrTransportTimeout is returned by Recv when no frame arrived within
// the requested timeout. It is not logged as an error by callers.
var ErrTransportTimeout = errors.New("plug: transport recv timeout")

// Transport is the byte-oriented link the dispatcher sends and
// receives whole Ethernet frames over (header included). A raw
// AF_PACKET socket is the production implementation; tests use an
// in-memory fake.
type Transport interface {
	// Send writes one whole outbound frame, header included.
	Send(frame []byte) error
	// Recv blocks for up to timeout waiting for one inbound frame. It
	// returns (nil, ErrTransportTimeout) if none arrived in time.
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}
