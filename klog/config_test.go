package klog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleConfigBuf builds a self-consistent 125-byte config buffer: decode
// followed by render (with no mutation) must reproduce the same InBufCS as
// the freshly computed OutBufCS, since render recomputes over the same
// field values decodeConfig just read.
func sampleConfigBuf(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, configByteLen)
	buf[5] = 0x30 // contrast 3, alert enabled, DCF off, 24h clock, Celsius
	buf[6] = 0x02 // TZ offset
	buf[7] = 0x01 // 5-minute interval

	off := 16
	for slot := 0; slot < NumSlots; slot++ {
		encodeTemperature(buf, off, 35.0)
		off += 3
		encodeTemperature(buf, off, -10.0)
		off += 3
	}
	for slot := 0; slot < NumSlots; slot++ {
		encodeHumidity(buf, off, 70)
		off += 2
		encodeHumidity(buf, off, 20)
		off += 2
	}
	byteOff := (off + 1) / 2
	for i := 0; i < 5; i++ {
		buf[byteOff+i] = 0
	}
	byteOff += 5
	for slot := 0; slot < NumDescribedSlots; slot++ {
		desc := encodeDescription("SLOT" + string(rune('0'+slot)) + "     ")
		reverseBytes(desc)
		copy(buf[byteOff:byteOff+8], desc)
		byteOff += 8
	}

	cs := computeOutBufCS(buf)
	buf[123] = byte(cs >> 8)
	buf[124] = byte(cs)
	return buf
}

func TestConfigDecodeIsSelfConsistent(t *testing.T) {
	buf := sampleConfigBuf(t)
	cfg := decodeConfig(buf)
	assert.Equal(t, cfg.InBufCS, cfg.OutBufCS, "a buffer's own checksum byte should match the recomputed sum")
	assert.Equal(t, Interval5Min, cfg.Interval)
	assert.InDelta(t, 35.0, cfg.TempThreshold[0].Max, 1e-9)
	assert.InDelta(t, -10.0, cfg.TempThreshold[0].Min, 1e-9)
	assert.Equal(t, 70.0, cfg.HumThreshold[0].Max)
}

func TestConfigRoundTripMutationChangesChecksum(t *testing.T) {
	buf := sampleConfigBuf(t)
	original := decodeConfig(buf)

	oc := NewOutgoingConfig(original)
	ok := oc.SetDescription(0, "GARAGE")
	require.True(t, ok)

	changed := oc.changed(original.InBufCS)
	assert.True(t, changed, "mutating sensor text must change OutBufCS relative to the original InBufCS")
	assert.NotEqual(t, original.InBufCS, oc.OutBufCS)
}

func TestSetDescriptionRefusesAbsentSensorSlot(t *testing.T) {
	buf := sampleConfigBuf(t)
	cfg := decodeConfig(buf)
	cfg.Description[1] = sentinelDescription

	oc := NewOutgoingConfig(cfg)
	ok := oc.SetDescription(1, "GARAGE")
	assert.False(t, ok)
}

func TestSetDescriptionRefusesInvalidText(t *testing.T) {
	buf := sampleConfigBuf(t)
	cfg := decodeConfig(buf)
	oc := NewOutgoingConfig(cfg)
	assert.False(t, oc.SetDescription(0, "lowercase not allowed"))
}
