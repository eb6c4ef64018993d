package klog

// Interval is one of the console's supported history-sampling cadences.
type Interval int

const (
	Interval1Min  Interval = 1
	Interval5Min  Interval = 5
	Interval10Min Interval = 10
	Interval15Min Interval = 15
	Interval30Min Interval = 30
	Interval1Hour Interval = 60
	Interval2Hour Interval = 120
	Interval3Hour Interval = 180
	Interval6Hour Interval = 360
)

// SlotThreshold is a per-slot min/max alarm threshold pair.
type SlotThreshold struct {
	Min, Max float64
}

// Config is the station configuration model (§3, §4.D). It is produced by
// decodeConfig from a GetConfig reply and is treated as read-only: the
// egress path mutates a separate OutgoingConfig (see DESIGN.md — splitting
// "received" from "outgoing" replaces the original driver's in-place shared
// mutation).
type Config struct {
	Contrast      int // 0..7
	AlertEnabled  bool
	DCFEnabled    bool
	Clock24h      bool
	Celsius       bool
	TZOffsetHours int8 // signed, stored modulo 256 on the wire
	Interval      Interval

	TempThreshold [NumSlots]SlotThreshold
	HumThreshold  [NumSlots]SlotThreshold
	AlarmEnable   [5]byte // 5-byte alarm-enable bitfield

	// Description holds sensor text for the 8 remote slots only (index 0 =
	// slot 1 .. index 7 = slot 8); the console's own built-in base sensor
	// (slot 0) has no user-assignable description on the wire.
	Description [NumDescribedSlots]string

	ResetHiLo bool

	InBufCS  uint16
	OutBufCS uint16
}

// configByteLen is the size of the wire config area (§3).
const configByteLen = 125

// NumDescribedSlots is the number of remote sensor slots that carry a
// user-assignable text description (slots 1..8; the console's own base
// sensor in slot 0 has none).
const NumDescribedSlots = NumSlots - 1

// checksumRange is the byte range the OutBufCS/InBufCS checksum is computed
// over: "sum of config bytes [5..122] plus 7" (§3 invariants).
var checksumRange = struct{ lo, hi int }{5, 123}

// computeOutBufCS recomputes the OutBufCS checksum over a full 125-byte
// config buffer.
func computeOutBufCS(buf []byte) uint16 {
	return checksum(buf[checksumRange.lo:checksumRange.hi])
}

// decodeConfig decodes a 125-byte GetConfig reply body into a Config.
func decodeConfig(buf []byte) *Config {
	c := &Config{}
	flags := buf[5]
	c.Contrast = int((flags >> 4) & 0x0F)
	c.AlertEnabled = flags&0x08 == 0
	c.DCFEnabled = flags&0x04 != 0
	c.Clock24h = flags&0x02 == 0
	c.Celsius = flags&0x01 == 0
	c.TZOffsetHours = int8(buf[6])
	c.Interval = decodeInterval(buf[7])

	off := 16 // nibble offset of byte 8, just past the header bytes
	for slot := 0; slot < NumSlots; slot++ {
		c.TempThreshold[slot].Max, _ = decodeTemperature(buf, off)
		off += 3
		c.TempThreshold[slot].Min, _ = decodeTemperature(buf, off)
		off += 3
	}
	for slot := 0; slot < NumSlots; slot++ {
		hi, _ := decodeHumidity(buf, off)
		c.HumThreshold[slot].Max = hi
		off += 2
		lo, _ := decodeHumidity(buf, off)
		c.HumThreshold[slot].Min = lo
		off += 2
	}

	byteOff := (off + 1) / 2
	copy(c.AlarmEnable[:], buf[byteOff:byteOff+5])
	byteOff += 5

	for slot := 0; slot < NumDescribedSlots; slot++ {
		desc := make([]byte, 8)
		copy(desc, buf[byteOff:byteOff+8])
		reverseBytes(desc)
		c.Description[slot] = decodeDescription(desc)
		byteOff += 8
	}

	c.ResetHiLo = buf[byteOff]&0x01 != 0

	c.InBufCS = uint16(buf[123])<<8 | uint16(buf[124])
	c.OutBufCS = computeOutBufCS(buf)
	return c
}

func decodeInterval(b byte) Interval {
	switch b & 0x0F {
	case 0:
		return Interval1Min
	case 1:
		return Interval5Min
	case 2:
		return Interval10Min
	case 3:
		return Interval15Min
	case 4:
		return Interval30Min
	case 5:
		return Interval1Hour
	case 6:
		return Interval2Hour
	case 7:
		return Interval3Hour
	case 8:
		return Interval6Hour
	default:
		return Interval5Min
	}
}

func encodeInterval(iv Interval) byte {
	switch iv {
	case Interval1Min:
		return 0
	case Interval5Min:
		return 1
	case Interval10Min:
		return 2
	case Interval15Min:
		return 3
	case Interval30Min:
		return 4
	case Interval1Hour:
		return 5
	case Interval2Hour:
		return 6
	case Interval3Hour:
		return 7
	case Interval6Hour:
		return 8
	default:
		return 1
	}
}

// OutgoingConfig is the mutable config the driver builds and pushes to the
// console. It is distinct from the immutable Config decoded off the wire
// (DESIGN.md).
type OutgoingConfig struct {
	Config
}

// NewOutgoingConfig seeds an outgoing config from the last-received config.
func NewOutgoingConfig(received *Config) *OutgoingConfig {
	oc := &OutgoingConfig{Config: *received}
	return oc
}

// render serializes the outgoing config into a full 125-byte buffer whose
// last two bytes carry the recomputed OutBufCS, per §4.D's config builder.
// It is not a pure function: it also stores that checksum in oc.OutBufCS.
func (oc *OutgoingConfig) render() []byte {
	buf := make([]byte, configByteLen)

	var flags byte
	if !oc.AlertEnabled {
		flags |= 0x08
	}
	if oc.DCFEnabled {
		flags |= 0x04
	}
	if !oc.Clock24h {
		flags |= 0x02
	}
	if !oc.Celsius {
		flags |= 0x01
	}
	flags |= byte(oc.Contrast&0x0F) << 4
	buf[5] = flags
	buf[6] = byte(oc.TZOffsetHours)
	buf[7] = encodeInterval(oc.Interval)

	off := 16 // nibble offset of byte 8, just past the header bytes
	for slot := 0; slot < NumSlots; slot++ {
		encodeTemperature(buf, off, oc.TempThreshold[slot].Max)
		off += 3
		encodeTemperature(buf, off, oc.TempThreshold[slot].Min)
		off += 3
	}
	for slot := 0; slot < NumSlots; slot++ {
		encodeHumidity(buf, off, int(oc.HumThreshold[slot].Max))
		off += 2
		encodeHumidity(buf, off, int(oc.HumThreshold[slot].Min))
		off += 2
	}

	byteOff := (off + 1) / 2
	copy(buf[byteOff:byteOff+5], oc.AlarmEnable[:])
	byteOff += 5

	for slot := 0; slot < NumDescribedSlots; slot++ {
		desc := encodeDescription(oc.Description[slot])
		reverseBytes(desc)
		copy(buf[byteOff:byteOff+8], desc)
		byteOff += 8
	}

	if oc.ResetHiLo {
		buf[byteOff] |= 0x01
	}

	oc.OutBufCS = computeOutBufCS(buf)
	buf[123] = byte(oc.OutBufCS >> 8)
	buf[124] = byte(oc.OutBufCS)
	return buf
}

// changed reports whether the outgoing config differs from the last
// received config, by checksum comparison only (§3, §4.G delta).
func (oc *OutgoingConfig) changed(lastReceivedCS uint16) bool {
	oc.render()
	return oc.OutBufCS != lastReceivedCS
}
