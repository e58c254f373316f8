package plug

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorFrame_ProbeOnOffEncoding(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload []byte
	}{
		{"probe", EncodeVendorProbe()},
		{"on", EncodeVendorOn()},
		{"off", EncodeVendorOff()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, tc.payload, 66)
			assert.Equal(t, vendorHeader[0], tc.payload[0])
			assert.Equal(t, vendorHeader[1], tc.payload[1])
		})
	}
}

func wrapVendorInbound(msgs ...[]byte) []byte {
	out := []byte{vendorHeader[0], vendorHeader[1], 0x00, 0x00, byte(len(msgs) * vendorMessageSize)}
	for _, m := range msgs {
		out = append(out, m...)
	}

	return out
}

func buildVendorMsg(function byte, payload []byte) []byte {
	msg := make([]byte, vendorMessageSize)
	msg[0] = function
	msg[1] = byte(len(payload))
	copy(msg[2:], payload)

	return msg
}

func TestDecodeVendorFrame_PowerReportRoundTrip(t *testing.T) {
	inner := "3;ident1;v1;1;42.5"
	msg := buildVendorMsg(vendorFuncPowerReport, []byte(inner))
	frame := wrapVendorInbound(msg)

	msgs, err := DecodeVendorFrame(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, byte(vendorFuncPowerReport), msgs[0].Function)

	report, err := ParsePowerReport(msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "3", report.DeviceType)
	assert.True(t, report.IsOn)
	assert.InDelta(t, 42.5, report.PowerWatts, 0.001)
	assert.Equal(t, []string{"ident1"}, report.Identity)
	assert.Equal(t, []string{"v1"}, report.VersionParts)
}

func TestParsePowerReport_TypeTwoNeedsEightFields(t *testing.T) {
	_, err := ParsePowerReport([]byte("2;a;b;1;5.0"))
	assert.Error(t, err)

	report, err := ParsePowerReport([]byte("2;a;b;1;5.0;c;d;e"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, report.Identity)
	assert.Equal(t, []string{"b", "e"}, report.VersionParts)
}

func TestDecodeOnOff(t *testing.T) {
	on, err := DecodeOnOff([]byte{1})
	require.NoError(t, err)
	assert.True(t, on)

	off, err := DecodeOnOff([]byte{0})
	require.NoError(t, err)
	assert.False(t, off)

	_, err = DecodeOnOff([]byte{2})
	assert.Error(t, err)
}

func TestMME_ReadPIBRequestConfirmRoundTrip(t *testing.T) {
	req := EncodeReadPIBRequest(0, 16)

	mme, err := DecodeMMEFrame(req)
	require.NoError(t, err)
	assert.Equal(t, mmeReadModuleDataRequest, mme.MMType)

	chunk := make([]byte, 16)
	copy(chunk, []byte{1, 2, 3, 4})

	body := make([]byte, 16+len(chunk))
	body[4] = mmeModulePIB
	binary.LittleEndian.PutUint16(body[6:8], uint16(len(chunk)))
	binary.LittleEndian.PutUint32(body[8:12], 0) // offset

	checksumBuf := make([]byte, 4+len(chunk))
	copy(checksumBuf[4:], chunk)
	sum := pibChecksum(checksumBuf)
	binary.LittleEndian.PutUint32(body[12:16], sum)
	copy(body[16:], chunk)

	confirm, err := DecodeReadConfirm(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), confirm.Offset)
	assert.Equal(t, chunk, confirm.Chunk)
}

func TestEncodeWritePIBRequest_ChecksumMatchesChunk(t *testing.T) {
	chunk := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	req := EncodeWritePIBRequest(0x10, chunk)

	mme, err := DecodeMMEFrame(req)
	require.NoError(t, err)
	assert.Equal(t, mmeWriteModuleDataRequest, mme.MMType)

	gotOffset := uint32(mme.Body[4]) | uint32(mme.Body[5])<<8 | uint32(mme.Body[6])<<16 | uint32(mme.Body[7])<<24
	assert.Equal(t, uint32(0x10), gotOffset)

	gotChecksum := binary.LittleEndian.Uint32(mme.Body[8:12])
	assert.Equal(t, pibChecksum(chunk), gotChecksum)
}

func TestDecodeWriteAndNVMConfirm(t *testing.T) {
	assert.NoError(t, DecodeWriteConfirm([]byte{0}))
	assert.Error(t, DecodeWriteConfirm([]byte{1}))
	assert.NoError(t, DecodeNVMConfirm([]byte{0}))
	assert.Error(t, DecodeNVMConfirm([]byte{7}))
}

func TestDecodeMMEFrame_RejectsBadOUI(t *testing.T) {
	req := EncodeWritePIBToNVMRequest()
	req[3] = 0xff // corrupt OUI

	_, err := DecodeMMEFrame(req)
	assert.ErrorIs(t, err, ErrBadMME)
}
