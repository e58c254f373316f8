package plug

/*------------------------------------------------------------------
 *
 * Purpose:	Per-device protocol state machine: six states coordinating
 *		vendor-frame probing/on-off control and the HomePlug-AV
 *		PIB read -> patch -> write -> NVM-commit sub-protocol,
 *		followed by steady-state polling.
 *
 * Description:	Transitions to another state construct a new
 *		deviceState, following asokapy's namedtuples per state
 *		(DSProbing, DSProbingHP, DSReadPIB, DSWritePIB,
 *		DSWritePIBToNVM, DSRunning). Within a state, the send
 *		timestamp, the write offset and the partial PIB are
 *		updated in place.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

// deviceStateKind tags which of the six states a Device is in.
type deviceStateKind int

const (
	stateProbing deviceStateKind = iota
	stateProbingHP
	stateReadPIB
	stateWritePIB
	stateWritePIBToNVM
	stateRunning
)

func (k deviceStateKind) String() string {
	switch k {
	case stateProbing:
		return "Probing"
	case stateProbingHP:
		return "ProbingHP"
	case stateReadPIB:
		return "ReadPIB"
	case stateWritePIB:
		return "WritePIB"
	case stateWritePIBToNVM:
		return "WritePIBToNVM"
	case stateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// deviceState carries the tagged union of per-state data. Only the
// fields relevant to Kind are meaningful.
type deviceState struct {
	Kind deviceStateKind

	LastSent     time.Time
	LastReceived time.Time
	StartTime    time.Time
	NumSent      int

	PIB           PIB
	CurrentOffset uint32
}

// Protocol timing parameters, per spec.
const (
	probeDelay        = 10 * time.Second
	maxProbingTries   = 5
	pibChunkSize      = 1024
	pibAbortTime      = 20 * time.Second
	runningAbortTime  = 20 * time.Second
)

// OnOffTarget is the tri-state desired on/off target.
type OnOffTarget int

const (
	WantNone OnOffTarget = iota
	WantOn
	WantOff
)

// Outbound is a frame the device wants sent, with its EtherType so the
// caller knows which framing layer it belongs to.
type Outbound struct {
	EtherType uint16
	Payload   []byte
}

// Device is one fleet member's protocol state machine.
type Device struct {
	RemoteMAC MAC

	// static config
	Alias    string
	Interval time.Duration // 0 means "not configured"

	// ProfileOverride, when set, takes precedence over the profile
	// resolved by wire device_type in DeviceInfo; it comes from the
	// device's "profile" config key.
	ProfileOverride string

	// machine state
	state  deviceState
	WantOn OnOffTarget

	// last-observed status
	DeviceType     string // "2", "3", or "" if unknown
	VersionParts   []string
	Identity       []string
	Power          float64
	PowerKnown     bool
	IsOn           bool
	IsOnKnown      bool

	// AlwaysRewritePIB implements the feature-flag alternative to the
	// disabled "sometimes devices don't respond" branch in asokapy:
	// when true, the PIB is rewritten even if the stored master
	// already matches the controller. Default (false) preserves the
	// *active* branch: rewrite iff the master differs.
	AlwaysRewritePIB bool

	logger *log.Logger
}

// NewDevice creates a device in its initial Probing state.
func NewDevice(mac MAC, logger *log.Logger) *Device {
	d := &Device{RemoteMAC: mac, logger: logger}
	d.resetState()

	return d
}

func (d *Device) resetState() {
	d.state = deviceState{Kind: stateProbing}
	d.PowerKnown = false
	d.IsOnKnown = false
}

func (d *Device) logf(msg string, kv ...any) {
	if d.logger == nil {
		return
	}

	d.logger.Debug(msg, append([]any{"mac", d.RemoteMAC.String(), "state", d.state.Kind.String()}, kv...)...)
}

// State returns the current state's name, for diagnostics and tests.
func (d *Device) State() string {
	return d.state.Kind.String()
}

// Tick advances timers and retransmissions for now. It may produce an
// outbound frame. Use TickFrames instead when a state might emit more
// than one frame in a single tick (ProbingHP emits two).
func (d *Device) Tick(now time.Time) *Outbound {
	frames := d.TickFrames(now)
	if len(frames) == 0 {
		return nil
	}

	return &frames[0]
}

func (d *Device) tickProbing(now time.Time) *Outbound {
	if now.Sub(d.state.LastSent) < probeDelay {
		return nil
	}

	out := &Outbound{Payload: EncodeVendorProbe()}

	if d.state.NumSent >= maxProbingTries {
		d.state = deviceState{Kind: stateProbingHP, LastSent: now}
	} else {
		d.state = deviceState{Kind: stateProbing, LastSent: now, NumSent: d.state.NumSent + 1}
	}

	return out
}

// TickFrames returns every frame the device wants sent this tick.
// ProbingHP emits two (a vendor probe and a HomePlug read-PIB
// request); every other state emits at most one.
func (d *Device) TickFrames(now time.Time) []Outbound {
	switch d.state.Kind {
	case stateProbing:
		if out := d.tickProbing(now); out != nil {
			return []Outbound{*out}
		}

		return nil
	case stateProbingHP:
		if now.Sub(d.state.LastSent) < probeDelay {
			return nil
		}

		d.state = deviceState{Kind: stateProbingHP, LastSent: now}

		return []Outbound{
			{Payload: EncodeVendorProbe()},
			{EtherType: EtherTypeHomePlugAV, Payload: EncodeReadPIBRequest(0, pibChunkSize)},
		}
	case stateReadPIB, stateWritePIB, stateWritePIBToNVM:
		if out := d.tickPIBPhase(now); out != nil {
			return []Outbound{*out}
		}

		return nil
	case stateRunning:
		if out := d.tickRunning(now); out != nil {
			return []Outbound{*out}
		}

		return nil
	default:
		return nil
	}
}

func (d *Device) tickPIBPhase(now time.Time) *Outbound {
	if now.Sub(d.state.StartTime) > pibAbortTime {
		d.logf("pib phase timed out, resetting")
		d.resetState()

		return nil
	}

	if now.Sub(d.state.LastSent) < probeDelay {
		return nil
	}

	var payload []byte

	switch d.state.Kind {
	case stateReadPIB:
		remaining := int(d.state.PIB.DeclaredSize()) - d.state.PIB.Len()
		length := pibChunkSize
		if remaining < length {
			length = remaining
		}

		payload = EncodeReadPIBRequest(uint32(d.state.PIB.Len()), uint16(length))
		d.state.LastSent = now
	case stateWritePIB:
		chunk := d.state.PIB.Slice(int(d.state.CurrentOffset), int(d.state.CurrentOffset)+pibChunkSize)
		payload = EncodeWritePIBRequest(d.state.CurrentOffset, chunk)
		d.state.LastSent = now
	case stateWritePIBToNVM:
		payload = EncodeWritePIBToNVMRequest()
		d.state.LastSent = now
	}

	return &Outbound{EtherType: EtherTypeHomePlugAV, Payload: payload}
}

func (d *Device) tickRunning(now time.Time) *Outbound {
	if d.WantOn != WantNone && (d.WantOn == WantOn) != d.IsOn {
		var payload []byte

		if d.WantOn == WantOn {
			payload = EncodeVendorOn()
		} else {
			payload = EncodeVendorOff()
		}

		d.IsOnKnown = false
		d.state.LastSent = now

		return &Outbound{Payload: payload}
	}

	if d.Interval <= 0 {
		return nil
	}

	if now.Sub(d.state.LastReceived) > runningAbortTime {
		d.logf("running phase stale, resetting")
		d.resetState()

		return nil
	}

	if now.Sub(d.state.LastSent) >= d.Interval {
		d.state.LastSent = now

		return &Outbound{Payload: EncodeVendorProbe()}
	}

	return nil
}

// HandleHomePlug processes an inbound MME frame. It returns true if
// the frame was accepted (and should count as the device being
// alive), false if it was dropped.
func (d *Device) HandleHomePlug(now time.Time, controllerMAC MAC, frame MMEFrame) bool {
	switch d.state.Kind {
	case stateWritePIBToNVM:
		if frame.MMType != mmeWriteModuleDataToNVMConfirm {
			return false
		}

		if err := DecodeNVMConfirm(frame.Body); err != nil {
			d.logf("nvm confirm rejected", "err", err)

			return false
		}

		d.resetState()

		return true

	case stateWritePIB:
		if frame.MMType != mmeWriteModuleDataConfirm {
			return false
		}

		if err := DecodeWriteConfirm(frame.Body); err != nil {
			d.logf("write confirm rejected", "err", err)

			return false
		}

		if int(d.state.CurrentOffset)+pibChunkSize >= d.state.PIB.Len() {
			d.state = deviceState{Kind: stateWritePIBToNVM, StartTime: now}
		} else {
			d.state.CurrentOffset += pibChunkSize
			d.state.LastSent = time.Time{}
		}

		return true

	case stateProbingHP, stateReadPIB:
		if frame.MMType != mmeReadModuleDataConfirm {
			return false
		}

		confirm, err := DecodeReadConfirm(frame.Body)
		if err != nil {
			d.logf("read confirm rejected", "err", err)

			return false
		}

		return d.handleReadConfirm(now, controllerMAC, confirm)

	default:
		return false
	}
}

func (d *Device) handleReadConfirm(now time.Time, controllerMAC MAC, confirm ReadConfirm) bool {
	if d.state.Kind == stateProbingHP {
		if confirm.Offset != 0 {
			return false
		}

		pib, err := NewPIB(confirm.Chunk)
		if err != nil {
			d.logf("initial pib chunk rejected", "err", err)

			return false
		}

		d.state = deviceState{Kind: stateReadPIB, StartTime: now, PIB: pib}

		return true
	}

	// stateReadPIB
	if int(confirm.Offset) != d.state.PIB.Len() {
		return false
	}

	newPIB, err := d.state.PIB.Append(confirm.Chunk)
	if err != nil {
		d.logf("pib append rejected", "err", err)

		return false
	}

	if !newPIB.IsComplete() {
		d.state.PIB = newPIB
		d.state.LastSent = time.Time{}

		return true
	}

	if !newPIB.IsValid() {
		d.logf("downloaded pib failed checksum, resetting")
		d.resetState()

		return true
	}

	master, err := newPIB.MasterGet()
	if err != nil {
		d.logf("master get failed", "err", err)
		d.resetState()

		return true
	}

	if master == controllerMAC && !d.AlwaysRewritePIB {
		d.logf("pib master already ours, no rewrite needed")
		d.resetState()

		return true
	}

	patched, err := newPIB.MasterReplace(controllerMAC)
	if err != nil {
		d.logf("master replace failed", "err", err)
		d.resetState()

		return true
	}

	d.state = deviceState{Kind: stateWritePIB, StartTime: now, CurrentOffset: 0, PIB: patched}

	return true
}

// HandleVendor processes an inbound vendor-frame payload (everything
// after the EtherType). It returns true if at least one well-formed
// message was processed.
func (d *Device) HandleVendor(now time.Time, payload []byte) bool {
	switch d.state.Kind {
	case stateProbing, stateProbingHP, stateRunning:
	default:
		return false
	}

	msgs, err := DecodeVendorFrame(payload)
	if err != nil {
		d.logf("vendor frame rejected", "err", err)

		return false
	}

	accepted := false

	for _, msg := range msgs {
		switch msg.Function {
		case vendorFuncPowerReport:
			if d.handlePowerReport(msg.Payload) {
				accepted = true
			}
		case vendorFuncOnOffReply, vendorFuncOnOffUnsol:
			if d.handleOnOff(msg.Payload) {
				accepted = true
			}
		default:
			d.logf("unknown vendor message", "function", msg.Function)
		}
	}

	if accepted {
		d.state = deviceState{Kind: stateRunning, LastSent: d.state.LastSent, LastReceived: now}
	}

	return accepted
}

func (d *Device) handlePowerReport(payload []byte) bool {
	report, err := ParsePowerReport(payload)
	if err != nil {
		d.logf("power report rejected", "err", err)

		return false
	}

	if d.DeviceType != "" {
		if d.DeviceType != report.DeviceType || !stringsEqual(d.Identity, report.Identity) || !stringsEqual(d.VersionParts, report.VersionParts) {
			d.logf("identity mismatch, resetting",
				"have_type", d.DeviceType, "got_type", report.DeviceType)
			d.resetState()

			return false
		}
	} else {
		d.DeviceType = report.DeviceType
		d.Identity = report.Identity
		d.VersionParts = report.VersionParts
	}

	d.Power = report.PowerWatts
	d.PowerKnown = true
	d.IsOn = report.IsOn
	d.IsOnKnown = true
	d.reconcileWantOn()

	return true
}

func (d *Device) handleOnOff(payload []byte) bool {
	isOn, err := DecodeOnOff(payload)
	if err != nil {
		d.logf("on/off report rejected", "err", err)

		return false
	}

	d.IsOn = isOn
	d.IsOnKnown = true
	d.reconcileWantOn()

	return true
}

// reconcileWantOn clears WantOn once the observed is_on matches the
// target, so Running never re-sends an on/off frame for an
// already-correct state.
func (d *Device) reconcileWantOn() {
	if d.WantOn == WantNone {
		return
	}

	if (d.WantOn == WantOn) == d.IsOn {
		d.WantOn = WantNone
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
