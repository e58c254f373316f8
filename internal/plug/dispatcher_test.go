package plug

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildInboundVendorFrame(dst, src MAC, payload []byte) []byte {
	frame := make([]byte, 0, 14+len(payload))
	frame = append(frame, dst[:]...)
	frame = append(frame, src[:]...)
	frame = append(frame, 0x00, 0x01) // arbitrary non-HomePlug ethertype
	frame = append(frame, payload...)

	return frame
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *FakeTransport) {
	t.Helper()

	transport := NewFakeTransport()
	disp := NewDispatcher(testControllerMAC, transport, nil, nil)
	disp.Reload(&Config{Devices: []DeviceConfig{{MAC: testDeviceMAC, Alias: "kitchen", Interval: time.Second}}})

	return disp, transport
}

func TestDispatcher_UnknownSourceIgnored(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	stranger := MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	frame := buildInboundVendorFrame(testControllerMAC, stranger, EncodeVendorProbe())

	assert.False(t, disp.HandleInbound(time.Now(), frame))
}

func TestDispatcher_WrongDestinationIgnored(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	otherController := MAC{0xc0, 0xff, 0xee, 0x00, 0x00, 0x01}
	frame := buildInboundVendorFrame(otherController, testDeviceMAC, EncodeVendorProbe())

	assert.False(t, disp.HandleInbound(time.Now(), frame))
}

func TestDispatcher_AcceptedFrameUpdatesDeviceInfo(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	msg := buildVendorMsg(vendorFuncPowerReport, []byte("3;id;v;1;7.5"))
	payload := wrapVendorInbound(msg)
	frame := buildInboundVendorFrame(testControllerMAC, testDeviceMAC, payload)

	accepted := disp.HandleInbound(time.Now(), frame)
	require.True(t, accepted)

	info, err := disp.DeviceInfo(testDeviceMAC)
	require.NoError(t, err)
	assert.True(t, info.IsOn)
	assert.InDelta(t, 7.5, info.Power, 0.001)
	assert.Equal(t, "Running", info.State)
}

func TestDispatcher_OnOffCommandsUnknownDevice(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	unknown := MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	assert.ErrorIs(t, disp.DeviceOn(unknown), ErrUnknownDevice)
	assert.ErrorIs(t, disp.DeviceOff(unknown), ErrUnknownDevice)
}

func TestDispatcher_ReloadDropsRemovedDevices(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	require.Len(t, disp.ListDevices(), 1)

	disp.Reload(&Config{})

	assert.Empty(t, disp.ListDevices())

	_, err := disp.DeviceInfo(testDeviceMAC)
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestDispatcher_TickAllEmitsProbeFrames(t *testing.T) {
	disp, transport := newTestDispatcher(t)

	disp.TickAll(time.Now())

	assert.NotEmpty(t, transport.Sent)
}

func TestDispatcher_ReloadWiresAlwaysRewriteAndProfileOverride(t *testing.T) {
	transport := NewFakeTransport()
	disp := NewDispatcher(testControllerMAC, transport, nil, nil)

	disp.Reload(&Config{
		Master: MasterConfig{AlwaysRewrite: true},
		Devices: []DeviceConfig{
			{MAC: testDeviceMAC, Alias: "kitchen", Profile: "garage-override"},
		},
	})

	dev, ok := disp.devices[testDeviceMAC]
	require.True(t, ok)
	assert.True(t, dev.AlwaysRewritePIB)
	assert.Equal(t, "garage-override", dev.ProfileOverride)

	info, err := disp.DeviceInfo(testDeviceMAC)
	require.NoError(t, err)
	assert.Equal(t, "garage-override", info.Profile)
}

func TestDispatcher_DeviceInfoResolvesProfileFromDeviceType(t *testing.T) {
	disp, _ := newTestDispatcher(t)

	dev, ok := disp.devices[testDeviceMAC]
	require.True(t, ok)
	dev.DeviceType = "2"

	info, err := disp.DeviceInfo(testDeviceMAC)
	require.NoError(t, err)
	assert.Equal(t, "blue", info.Profile)
}
