// Command plugd supervises a fleet of HomePlug-AV smart outlets over a
// single raw Ethernet interface: discovery, PIB provisioning, and
// steady-state polling, per asokapy's server.py.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hpavctl/plugd/internal/plug"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// daemon bundles the long-lived pieces main assembles, and is the
// Reloader the control socket's "reload" command drives.
type daemon struct {
	configPath string

	mu         sync.Mutex
	dispatcher *plug.Dispatcher
	datalog    plug.Datalog
	ifname     string
	logger     *log.Logger
}

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "/etc/plugd.conf", "configuration file path")
		logLevel    = pflag.String("log-level", "info", "debug, info, warn, or error")
		controlPath = pflag.String("control-socket", "", "override the control socket path from the config file")
		noAnnounce  = pflag.Bool("no-announce", false, "disable mDNS/DNS-SD announcement of the control socket")
	)

	pflag.Parse()

	logger := plug.NewLogger(os.Stderr, *logLevel)

	d := &daemon{configPath: *configPath, logger: logger}

	if err := d.run(*controlPath, *noAnnounce); err != nil {
		logger.Error("plugd exiting", "err", err)
		os.Exit(1)
	}
}

func (d *daemon) run(controlOverride string, noAnnounce bool) error {
	f, err := os.Open(d.configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}

	cfg, err := plug.ParseConfig(f)
	_ = f.Close()

	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	controlSocket := cfg.Master.ControlSocket
	if controlOverride != "" {
		controlSocket = controlOverride
	}

	if cfg.Master.Datalog != "" {
		lf, err := os.OpenFile(cfg.Master.Datalog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open datalog: %w", err)
		}

		d.datalog = plug.NewFileDatalog(lf)
	}

	transport, err := plug.NewRawTransport(cfg.Master.Interface)
	if err != nil {
		return fmt.Errorf("open transport on %q: %w", cfg.Master.Interface, err)
	}

	d.ifname = cfg.Master.Interface
	d.dispatcher = plug.NewDispatcher(cfg.Master.MAC, transport, d.datalog, d.logger)
	d.dispatcher.Reload(cfg)

	if controlSocket != "" {
		_ = os.Remove(controlSocket)
	}

	var control *plug.ControlServer

	if controlSocket != "" {
		control, err = plug.NewControlServer(controlSocket, d.dispatcher, d, d.logger)
		if err != nil {
			return fmt.Errorf("start control socket: %w", err)
		}
	}

	if cfg.Master.UID != nil || cfg.Master.GID != nil {
		if err := plug.DropPrivileges(cfg.Master.UID, cfg.Master.GID); err != nil {
			return fmt.Errorf("drop privileges: %w", err)
		}
	}

	var announcer *plug.Announcer

	if !noAnnounce && controlSocket != "" {
		announcer, err = plug.Announce(cfg.Master.DNSSDName, controlSocket, d.logger)
		if err != nil {
			d.logger.Warn("dns-sd announce failed, continuing without it", "err", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	if control != nil {
		go func() {
			if err := control.Serve(); err != nil {
				d.logger.Warn("control server stopped", "err", err)
			}
		}()
	}

	go d.dispatcher.Run()

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			if err := d.ReloadFromDisk(); err != nil {
				d.logger.Warn("reload failed", "err", err)
			} else {
				d.logger.Info("reloaded configuration")
			}
		default:
			d.dispatcher.Stop()

			if announcer != nil {
				announcer.Stop()
			}

			if control != nil {
				_ = control.Close()
			}

			if d.datalog != nil {
				if c, ok := d.datalog.(interface{ Close() error }); ok {
					_ = c.Close()
				}
			}

			return nil
		}
	}

	return errors.New("signal channel closed unexpectedly")
}

// ReloadFromDisk re-reads the configuration file and reconciles the
// device table against it, as triggered by SIGHUP or a control-socket
// "reload" command. A changed interface swaps in a fresh transport;
// every other section is applied in place.
func (d *daemon) ReloadFromDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(d.configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}

	cfg, err := plug.ParseConfig(f)
	_ = f.Close()

	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if cfg.Master.Interface != d.ifname {
		transport, err := plug.NewRawTransport(cfg.Master.Interface)
		if err != nil {
			return fmt.Errorf("open transport on %q: %w", cfg.Master.Interface, err)
		}

		d.dispatcher.SetTransport(transport)
		d.ifname = cfg.Master.Interface
	}

	d.dispatcher.Reload(cfg)

	return nil
}
