package klog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markOFL3 marks a 3-nibble temperature field as out-of-limit.
func markOFL3(buf []byte, off int) {
	setNibble(buf, off, 0xF)
	setNibble(buf, off+1, 0xF)
	setNibble(buf, off+2, 0xF)
}

// markOFL2 marks a 2-nibble humidity field as out-of-limit.
func markOFL2(buf []byte, off int) {
	setNibble(buf, off, 0xF)
	setNibble(buf, off+1, 0xF)
}

// buildCurrentPayload assembles a synthetic 229-byte current-weather frame
// with the given per-slot current temperature/humidity, marking every
// min/max field OFL so decodeCurrent skips timestamp parsing.
func buildCurrentPayload(temps [NumSlots]float64, hums [NumSlots]int) []byte {
	buf := make([]byte, 229)

	for slot := 0; slot < NumSlots; slot++ {
		m := currentBufmap[slot]
		encodeTemperature(buf, nibbleOffsetAt(m[2], false), temps[slot])
		markOFL3(buf, nibbleOffsetAt(m[0], false))
		markOFL3(buf, nibbleOffsetAt(m[1], true))

		encodeHumidity(buf, nibbleOffsetAt(m[7], true), hums[slot])
		markOFL2(buf, nibbleOffsetAt(m[5], true))
		markOFL2(buf, nibbleOffsetAt(m[6], true))
	}
	return buf
}

func TestDecodeCurrentSlotValues(t *testing.T) {
	var temps [NumSlots]float64
	var hums [NumSlots]int
	temps[0], hums[0] = 21.1, 39
	temps[1], hums[1] = 11.8, 66
	temps[2], hums[2] = 8.2, 67

	buf := buildCurrentPayload(temps, hums)
	buf[4] = 80 // signal quality

	cur := decodeCurrent(buf, nil)
	assert.Equal(t, 80, cur.SignalQuality)
	assert.InDelta(t, 21.1, cur.Temperature[0].Current.Value, 1e-9)
	assert.Equal(t, 39.0, cur.Humidity[0].Current.Value)
	assert.InDelta(t, 11.8, cur.Temperature[1].Current.Value, 1e-9)
	assert.Equal(t, 66.0, cur.Humidity[1].Current.Value)
	assert.InDelta(t, 8.2, cur.Temperature[2].Current.Value, 1e-9)
	assert.Equal(t, 67.0, cur.Humidity[2].Current.Value)
	assert.True(t, cur.Temperature[0].Min.Absent)
	assert.True(t, cur.Temperature[0].Max.Absent)
}

func TestDecodeCurrentBatteryLowBits(t *testing.T) {
	var temps [NumSlots]float64
	var hums [NumSlots]int
	buf := buildCurrentPayload(temps, hums)
	buf[223] = 0x01 // alarm byte[0]: slot 1 low battery
	buf[224] = 0x80 // alarm byte[1]: bit 0x80 -> slot 0 low battery

	cur := decodeCurrent(buf, nil)
	assert.True(t, cur.BatteryLow[0])
	assert.True(t, cur.BatteryLow[1])
	assert.False(t, cur.BatteryLow[2])
}

func TestDecodeCurrentBatteryLowLatches(t *testing.T) {
	var temps [NumSlots]float64
	var hums [NumSlots]int
	buf := buildCurrentPayload(temps, hums)
	buf[223] = 0x01 // slot 1 low battery this frame

	prev := decodeCurrent(buf, nil)
	require.True(t, prev.BatteryLow[1])

	nextBuf := buildCurrentPayload(temps, hums) // no bits set this time
	next := decodeCurrent(nextBuf, prev)
	assert.True(t, next.BatteryLow[1], "battery-low must latch across frames until explicitly cleared")
}
