package klog

// NumSlots is the number of sensor channels: slot 0 is the console's own
// base sensor, slots 1..8 are the remote sensors.
const NumSlots = 9

// Measurement is a single decoded reading, carrying its sentinel state so
// callers can distinguish NP/OFL from a real value rather than overloading
// zero (§7 DecodeSentinel).
type Measurement struct {
	Value  float64
	Absent bool // true if NP or OFL; Value still holds the sentinel constant
}

// SlotReading holds the current/min/max view for one measured quantity
// (temperature or humidity) on one slot.
type SlotReading struct {
	Current Measurement
	Min     Measurement
	MinAt   Timestamp
	Max     Measurement
	MaxAt   Timestamp
}

// Current is the decoded "current weather" snapshot (§3, §4.D).
type Current struct {
	SignalQuality int // 0..100
	Temperature   [NumSlots]SlotReading
	Humidity      [NumSlots]SlotReading
	// BatteryLow is latched per §SUPPLEMENTED-FEATURES item 2: once a slot
	// reports low battery it stays set in every later snapshot; no frame
	// clears it.
	BatteryLow [NumSlots]bool
	// ThresholdTrip is the raw low half of the 12-byte alarm bitfield,
	// indexed by slot; each bit is a {humidity-high,humidity-low,
	// temp-high,temp-low} trip flag packed per §3.
	ThresholdTrip [NumSlots]byte
}

// currentBufmap holds, per slot, the byte offset within the full
// current-weather frame of: tempMax, tempMin, tempCurrent, tempMaxDT,
// tempMinDT, humMax, humMin, humCurrent, humMaxDT, humMinDT. Grounded
// directly on the original driver's CurrentData.BUFMAP table.
var currentBufmap = [NumSlots][10]int{
	{26, 28, 29, 18, 22, 15, 16, 17, 7, 11},
	{50, 52, 53, 42, 46, 39, 40, 41, 31, 35},
	{74, 76, 77, 66, 70, 63, 64, 65, 55, 59},
	{98, 100, 101, 90, 94, 87, 88, 89, 79, 83},
	{122, 124, 125, 114, 118, 111, 112, 113, 103, 107},
	{146, 148, 149, 138, 142, 135, 136, 137, 127, 131},
	{170, 172, 173, 162, 166, 159, 160, 161, 151, 155},
	{194, 196, 197, 186, 190, 183, 184, 185, 175, 179},
	{218, 220, 221, 210, 214, 207, 208, 209, 199, 203},
}

// decodeCurrent decodes a 229-byte current-weather frame (offsets are
// absolute, matching the original driver's buffer indexing) into a Current
// snapshot, carrying forward battery-low latches from prev.
func decodeCurrent(buf []byte, prev *Current) *Current {
	c := &Current{}
	if prev != nil {
		c.BatteryLow = prev.BatteryLow
	}

	c.SignalQuality = int(buf[4] & 0x7F)

	// 12-byte alarm bitfield starting near the end of the frame; bytes past
	// the end of buf read as zero.
	alarm := make([]byte, 12)
	copy(alarm, buf[223:])

	// Slot 0 battery-low lives in alarm byte [1] bit 0x80; slots 1..8 live
	// in alarm byte [0] bits 0x01..0x80 (§6).
	if alarm[1]&0x80 != 0 {
		c.BatteryLow[0] = true
	}
	for slot := 1; slot <= 8; slot++ {
		bit := byte(1) << uint(slot-1)
		if alarm[0]&bit != 0 {
			c.BatteryLow[slot] = true
		}
	}
	for slot := 0; slot < NumSlots; slot++ {
		c.ThresholdTrip[slot] = alarm[2+slot%len(alarm[2:])]
	}

	for slot := 0; slot < NumSlots; slot++ {
		m := currentBufmap[slot]
		c.Temperature[slot] = decodeTempReading(buf, m)
		c.Humidity[slot] = decodeHumReading(buf, m)
	}
	return c
}

// decodeTempReading decodes one slot's (max, min, current, maxDT, minDT)
// temperature group. Max/current start on the low nibble, min starts on the
// high nibble, per CurrentData.read's startOnHiNibble arguments.
func decodeTempReading(buf []byte, m [10]int) SlotReading {
	var sr SlotReading

	maxV, maxSK := decodeTemperature(buf, nibbleOffsetAt(m[0], false))
	minV, minSK := decodeTemperature(buf, nibbleOffsetAt(m[1], true))
	curV, curSK := decodeTemperature(buf, nibbleOffsetAt(m[2], false))
	sr.Max = Measurement{Value: maxV, Absent: maxSK != sentinelNone}
	sr.Min = Measurement{Value: minV, Absent: minSK != sentinelNone}
	sr.Current = Measurement{Value: curV, Absent: curSK != sentinelNone}

	if !sr.Max.Absent {
		sr.MaxAt = decodeTimestamp8(buf, nibbleOffsetAt(m[3], false))
	} else {
		sr.MaxAt = TimestampUnknown()
	}
	if !sr.Min.Absent {
		sr.MinAt = decodeTimestamp8(buf, nibbleOffsetAt(m[4], false))
	} else {
		sr.MinAt = TimestampUnknown()
	}
	return sr
}

// decodeHumReading decodes one slot's (max, min, current, maxDT, minDT)
// humidity group. All five fields start on the high nibble.
func decodeHumReading(buf []byte, m [10]int) SlotReading {
	var sr SlotReading

	maxV, maxSK := decodeHumidity(buf, nibbleOffsetAt(m[5], true))
	minV, minSK := decodeHumidity(buf, nibbleOffsetAt(m[6], true))
	curV, curSK := decodeHumidity(buf, nibbleOffsetAt(m[7], true))
	sr.Max = Measurement{Value: maxV, Absent: maxSK != sentinelNone}
	sr.Min = Measurement{Value: minV, Absent: minSK != sentinelNone}
	sr.Current = Measurement{Value: curV, Absent: curSK != sentinelNone}

	if !sr.Max.Absent {
		sr.MaxAt = decodeTimestamp8(buf, nibbleOffsetAt(m[8], true))
	} else {
		sr.MaxAt = TimestampUnknown()
	}
	if !sr.Min.Absent {
		sr.MinAt = decodeTimestamp8(buf, nibbleOffsetAt(m[9], true))
	} else {
		sr.MinAt = TimestampUnknown()
	}
	return sr
}
