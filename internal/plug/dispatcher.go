package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Own the device table, demultiplex inbound frames to the
 *		right device, and drive a periodic tick across the fleet.
 *
 * Description:	Mirrors asokapy's Server: a status lock guards the
 *		device table and all mutable device state; a config lock
 *		guards reloads against the run loop, released briefly
 *		between iterations so a reload can acquire it.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ErrUnknownDevice is returned by device commands/queries for a MAC
// not present in the device table.
var ErrUnknownDevice = errors.New("plug: unknown device")

const ethHeaderLen = 14 // dst(6) + src(6) + ethertype(2)

// DeviceInfo is the read-only snapshot returned by DeviceInfo.
type DeviceInfo struct {
	Alias      string
	State      string
	IsOn       bool
	IsOnKnown  bool
	Power      float64
	PowerKnown bool
	DeviceType string
	Profile    string
}

// Dispatcher owns the fleet's device table and the transport it talks
// over. It is safe for concurrent use: Run (the background worker)
// and caller goroutines invoking the Device* methods synchronize via
// statusMu.
type Dispatcher struct {
	ControllerMAC MAC

	transport Transport
	datalog   Datalog
	logger    *log.Logger

	statusMu sync.Mutex
	devices  map[MAC]*Device
	order    []MAC
	profiles *ProfileTable

	configMu     sync.Mutex
	tickInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher constructs a dispatcher for controllerMAC, talking
// over transport and (optionally) logging reports to datalog.
func NewDispatcher(controllerMAC MAC, transport Transport, datalog Datalog, logger *log.Logger) *Dispatcher {
	profiles, err := LoadProfileTable()
	if err != nil {
		profiles = nil

		if logger != nil {
			logger.Warn("device profile table unavailable", "err", err)
		}
	}

	return &Dispatcher{
		ControllerMAC: controllerMAC,
		transport:     transport,
		datalog:       datalog,
		logger:        logger,
		devices:       make(map[MAC]*Device),
		profiles:      profiles,
		tickInterval:  time.Second,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Reload reconciles the device table against cfg's device sections:
// devices present in cfg but not in the table are created, devices in
// the table but absent from cfg are dropped, and survivors get their
// alias/interval updated. It never replaces the transport; interface
// changes are applied by the caller constructing a new transport and
// calling SetTransport.
func (d *Dispatcher) Reload(cfg *Config) {
	d.configMu.Lock()
	defer d.configMu.Unlock()

	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	newSet := make(map[MAC]struct{}, len(cfg.Devices))
	newOrder := make([]MAC, 0, len(cfg.Devices))

	for _, dc := range cfg.Devices {
		newSet[dc.MAC] = struct{}{}
		newOrder = append(newOrder, dc.MAC)
	}

	for mac := range d.devices {
		if _, ok := newSet[mac]; !ok {
			delete(d.devices, mac)
		}
	}

	for _, dc := range cfg.Devices {
		dev, ok := d.devices[dc.MAC]
		if !ok {
			dev = NewDevice(dc.MAC, d.logger)
			d.devices[dc.MAC] = dev
		}

		dev.Alias = dc.Alias
		dev.Interval = dc.Interval
		dev.ProfileOverride = dc.Profile
		dev.AlwaysRewritePIB = cfg.Master.AlwaysRewrite
	}

	d.order = newOrder
}

// SetTransport swaps the transport the dispatcher sends/receives
// over, closing the previous one. Used when the configured interface
// changes on reload.
func (d *Dispatcher) SetTransport(t Transport) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	if d.transport != nil {
		_ = d.transport.Close()
	}

	d.transport = t
}

// HandleInbound demultiplexes one whole inbound Ethernet frame
// (including its 14-byte header) to the owning device. It returns
// true if the frame was accepted: destination is the controller MAC,
// source is a known device MAC, and the device processed it.
func (d *Dispatcher) HandleInbound(now time.Time, frame []byte) bool {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	if len(frame) < ethHeaderLen {
		return false
	}

	dst, err := MACFromBytes(frame[0:6])
	if err != nil || dst != d.ControllerMAC {
		return false
	}

	src, err := MACFromBytes(frame[6:12])
	if err != nil {
		return false
	}

	dev, ok := d.devices[src]
	if !ok {
		return false
	}

	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	payload := frame[ethHeaderLen:]

	var accepted bool

	if etherType == EtherTypeHomePlugAV {
		mme, err := DecodeMMEFrame(payload)
		if err != nil {
			accepted = false
		} else {
			accepted = dev.HandleHomePlug(now, d.ControllerMAC, mme)
		}
	} else {
		accepted = dev.HandleVendor(now, payload)
	}

	if accepted && (dev.PowerKnown || dev.IsOnKnown) {
		d.report(dev)
	}

	d.emitFrames(dev, dev.TickFrames(now))

	return accepted
}

func (d *Dispatcher) report(dev *Device) {
	if d.datalog == nil {
		return
	}

	var power *float64
	if dev.PowerKnown {
		p := dev.Power
		power = &p
	}

	var isOn *bool
	if dev.IsOnKnown {
		v := dev.IsOn
		isOn = &v
	}

	if err := d.datalog.Report(time.Now(), dev.RemoteMAC, isOn, power); err != nil && d.logger != nil {
		d.logger.Warn("datalog write failed", "err", err)
	}
}

// TickAll invokes tick on every device in the table and ships any
// resulting outbound frames.
func (d *Dispatcher) TickAll(now time.Time) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	for _, mac := range d.order {
		dev, ok := d.devices[mac]
		if !ok {
			continue
		}

		d.emitFrames(dev, dev.TickFrames(now))
	}
}

func (d *Dispatcher) emitFrames(dev *Device, frames []Outbound) {
	if d.transport == nil {
		return
	}

	for _, f := range frames {
		var buf bytes.Buffer
		buf.Write(dev.RemoteMAC[:])
		buf.Write(d.ControllerMAC[:])

		if f.EtherType != 0 {
			buf.WriteByte(byte(f.EtherType >> 8))
			buf.WriteByte(byte(f.EtherType))
		}

		buf.Write(f.Payload)

		if err := d.transport.Send(buf.Bytes()); err != nil && d.logger != nil {
			d.logger.Warn("send failed", "mac", dev.RemoteMAC.String(), "err", err)
		}
	}
}

// DeviceOn sets mac's desired state to on.
func (d *Dispatcher) DeviceOn(mac MAC) error {
	return d.setWant(mac, WantOn)
}

// DeviceOff sets mac's desired state to off.
func (d *Dispatcher) DeviceOff(mac MAC) error {
	return d.setWant(mac, WantOff)
}

func (d *Dispatcher) setWant(mac MAC, want OnOffTarget) error {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	dev, ok := d.devices[mac]
	if !ok {
		return ErrUnknownDevice
	}

	dev.WantOn = want

	return nil
}

// DeviceInfo returns a snapshot of mac's known status.
func (d *Dispatcher) DeviceInfo(mac MAC) (DeviceInfo, error) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	dev, ok := d.devices[mac]
	if !ok {
		return DeviceInfo{}, ErrUnknownDevice
	}

	return DeviceInfo{
		Alias:      dev.Alias,
		State:      dev.State(),
		IsOn:       dev.IsOn,
		IsOnKnown:  dev.IsOnKnown,
		Power:      dev.Power,
		PowerKnown: dev.PowerKnown,
		DeviceType: dev.DeviceType,
		Profile:    d.resolveProfile(dev),
	}, nil
}

// resolveProfile names dev's vendor/model for display: an explicit
// "profile" config override wins, otherwise it's looked up by the
// wire device_type observed from the device's own reports.
func (d *Dispatcher) resolveProfile(dev *Device) string {
	if dev.ProfileOverride != "" {
		return dev.ProfileOverride
	}

	if d.profiles == nil || dev.DeviceType == "" {
		return ""
	}

	p, ok := d.profiles.Lookup(dev.DeviceType)
	if !ok {
		return ""
	}

	return p.Name
}

// ListDevices returns device MACs in configuration order.
func (d *Dispatcher) ListDevices() []MAC {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	out := make([]MAC, len(d.order))
	copy(out, d.order)

	return out
}

// Run is the dispatcher's background worker loop: it waits for an
// inbound frame or the next tick, whichever comes first, processes
// it, then releases configMu briefly so Reload can interleave, as
// asokapy's Server.run does with its 50ms sleep between iterations.
func (d *Dispatcher) Run() {
	defer close(d.doneCh)

	lastTick := time.Time{}

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.configMu.Lock()

		now := time.Now()

		wait := d.tickInterval - now.Sub(lastTick)
		if wait < 0 {
			wait = 0
		}

		frame, err := d.transport.Recv(wait)
		if err == nil && frame != nil {
			d.HandleInbound(time.Now(), frame)
		}

		if time.Since(lastTick) >= d.tickInterval {
			lastTick = time.Now()
			d.TickAll(lastTick)
		}

		d.configMu.Unlock()

		select {
		case <-d.stopCh:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Stop signals Run to exit at the next loop boundary and blocks until
// it has. No in-flight PIB operation is rolled back; the device
// simply resumes probing from Probing on the next start.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}
