package plug

import (
	"time"
)

// FakeTransport is an in-memory Transport used by dispatcher tests: an
// inbound channel standing in for the raw socket, with Sent frames
// captured for assertions.
type FakeTransport struct {
	Sent   [][]byte
	inbox  chan []byte
	closed bool
}

// NewFakeTransport returns a ready-to-use FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{inbox: make(chan []byte, 64)}
}

// Send records frame in Sent.
func (t *FakeTransport) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.Sent = append(t.Sent, cp)

	return nil
}

// Deliver queues frame as if it had arrived from the wire.
func (t *FakeTransport) Deliver(frame []byte) {
	t.inbox <- frame
}

// Recv returns the next queued inbound frame, or ErrTransportTimeout
// if none arrives within timeout.
func (t *FakeTransport) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-t.inbox:
		return f, nil
	case <-time.After(timeout):
		return nil, ErrTransportTimeout
	}
}

// Close marks the transport closed.
func (t *FakeTransport) Close() error {
	t.closed = true

	return nil
}
