package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Control-plane IPC between the daemon (cmd/plugd) and the
 *		CLI (cmd/plugctl): list devices, query status, command
 *		on/off, request a reload.
 *
 * Description:	asokapy has no analogue of this because its
 *		interactive.py TUI calls Server methods directly, in the
 *		same process. A split daemon/CLI needs real IPC; this is
 *		a small line-oriented JSON protocol over a Unix domain
 *		socket, grounded in the teacher's appserver.go (AGWPE
 *		command/response framing over a socket) and kissutil.go
 *		(a CLI tool talking to a TNC over a socket) — same shape,
 *		JSON instead of a legacy binary wire format since there
 *		is nothing legacy to preserve here.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// ControlRequest is one line of the control protocol's request side.
type ControlRequest struct {
	Cmd string `json:"cmd"`
	MAC string `json:"mac,omitempty"`
}

// ControlResponse is one line of the control protocol's response
// side.
type ControlResponse struct {
	OK    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	Info  *DeviceInfo  `json:"info,omitempty"`
	List  []ListEntry  `json:"list,omitempty"`
}

// ListEntry pairs a MAC with its alias for the "list" command.
type ListEntry struct {
	MAC   string `json:"mac"`
	Alias string `json:"alias,omitempty"`
}

// Reloader is the subset of Dispatcher/daemon behaviour the control
// server needs to trigger a config reload; it is an interface so
// tests can stub it.
type Reloader interface {
	ReloadFromDisk() error
}

// ControlServer accepts connections on a Unix domain socket and
// serves ControlRequests against a Dispatcher.
type ControlServer struct {
	dispatcher *Dispatcher
	reloader   Reloader
	logger     *log.Logger
	listener   net.Listener
}

// NewControlServer listens on socketPath (which must not already
// exist; callers remove stale sockets before calling this).
func NewControlServer(socketPath string, dispatcher *Dispatcher, reloader Reloader, logger *log.Logger) (*ControlServer, error) {
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("plug: listen on %q: %w", socketPath, err)
	}

	return &ControlServer{dispatcher: dispatcher, reloader: reloader, logger: logger, listener: l}, nil
}

// Serve accepts connections until the listener is closed.
func (s *ControlServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		go s.handleConn(conn)
	}
}

// Close closes the listening socket.
func (s *ControlServer) Close() error {
	return s.listener.Close()
}

func (s *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req ControlRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(ControlResponse{OK: false, Error: err.Error()})

			continue
		}

		resp := s.handle(req)
		if err := enc.Encode(resp); err != nil {
			if s.logger != nil {
				s.logger.Warn("control response write failed", "err", err)
			}

			return
		}
	}
}

func (s *ControlServer) handle(req ControlRequest) ControlResponse {
	switch req.Cmd {
	case "list":
		var entries []ListEntry

		for _, mac := range s.dispatcher.ListDevices() {
			info, err := s.dispatcher.DeviceInfo(mac)
			if err != nil {
				continue
			}

			entries = append(entries, ListEntry{MAC: mac.String(), Alias: info.Alias})
		}

		return ControlResponse{OK: true, List: entries}

	case "info":
		mac, err := ParseMAC(req.MAC)
		if err != nil {
			return ControlResponse{OK: false, Error: err.Error()}
		}

		info, err := s.dispatcher.DeviceInfo(mac)
		if err != nil {
			return ControlResponse{OK: false, Error: err.Error()}
		}

		return ControlResponse{OK: true, Info: &info}

	case "on", "off":
		mac, err := ParseMAC(req.MAC)
		if err != nil {
			return ControlResponse{OK: false, Error: err.Error()}
		}

		if req.Cmd == "on" {
			err = s.dispatcher.DeviceOn(mac)
		} else {
			err = s.dispatcher.DeviceOff(mac)
		}

		if err != nil {
			return ControlResponse{OK: false, Error: err.Error()}
		}

		return ControlResponse{OK: true}

	case "reload":
		if s.reloader == nil {
			return ControlResponse{OK: false, Error: "reload not supported"}
		}

		if err := s.reloader.ReloadFromDisk(); err != nil {
			return ControlResponse{OK: false, Error: err.Error()}
		}

		return ControlResponse{OK: true}

	default:
		return ControlResponse{OK: false, Error: "unknown command " + req.Cmd}
	}
}

// ControlClient is a thin client for cmd/plugctl.
type ControlClient struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// DialControl connects to a running daemon's control socket.
func DialControl(socketPath string, timeout time.Duration) (*ControlClient, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("plug: dial %q: %w", socketPath, err)
	}

	return &ControlClient{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

// Call sends req and returns the daemon's response.
func (c *ControlClient) Call(req ControlRequest) (ControlResponse, error) {
	if err := c.enc.Encode(req); err != nil {
		return ControlResponse{}, err
	}

	var resp ControlResponse
	if err := c.dec.Decode(&resp); err != nil {
		return ControlResponse{}, err
	}

	return resp, nil
}

// Close closes the underlying connection.
func (c *ControlClient) Close() error {
	return c.conn.Close()
}
