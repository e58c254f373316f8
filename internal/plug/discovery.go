package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Announce the control socket's presence over mDNS so
 *		plugctl can find a daemon without a configured address.
 *
 * Description:	Direct descendant of the teacher's dns_sd.go, which
 *		uses brutella/dnssd to register a service so a phone app
 *		can find a TNC on the LAN. Here the service type is
 *		private to this system and the "port" field is unused
 *		(Unix sockets have no port); the socket path travels in a
 *		TXT record instead, since dnssd.Config is built around
 *		IP:port services.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"os"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

const dnssdServiceType = "_plugd._tcp"

// Announcer advertises the daemon's control socket over mDNS/DNS-SD
// until Stop is called.
type Announcer struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
	logger    *log.Logger
}

// Announce registers name (falling back to the hostname if empty) as
// a _plugd._tcp service, carrying socketPath in a TXT record. The
// service is published in the background; call Stop to withdraw it.
func Announce(name, socketPath string, logger *log.Logger) (*Announcer, error) {
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "plugd"
		}

		name = host
	}

	cfg := dnssd.Config{
		Name: name,
		Type: dnssdServiceType,
		Port: 1, // unused: the real rendezvous point is the socket-path TXT record
		Text: map[string]string{
			"socket": socketPath,
		},
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("plug: build dns-sd service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("plug: build dns-sd responder: %w", err)
	}

	if _, err := responder.Add(service); err != nil {
		return nil, fmt.Errorf("plug: register dns-sd service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Announcer{responder: responder, cancel: cancel, logger: logger}

	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil && logger != nil {
			logger.Warn("dns-sd responder stopped", "err", err)
		}
	}()

	return a, nil
}

// Stop withdraws the service announcement.
func (a *Announcer) Stop() {
	a.cancel()
}
