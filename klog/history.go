package klog

// historyAlarmMarker is the marker byte (at a slot-specific offset) that
// flags a history slot as carrying an alarm record rather than a normal
// reading (§4.D). Offsets are empirical per §9 open questions; pinned here
// as literals and exercised by tests.
const historyAlarmMarker = 0xEE

// alarmKind identifies which threshold tripped in an AlarmRecord.
type alarmKind int

const (
	AlarmHumidityHigh alarmKind = iota
	AlarmHumidityLow
	AlarmTempHigh
	AlarmTempLow
)

// AlarmRecord is one alarm-flavored history slot.
type AlarmRecord struct {
	SensorIndex int
	Kind        alarmKind
	Value       float64
	Limit       float64
}

// HistoryRecord is one archive tuple: a timestamp plus temperature and
// humidity for all nine slots.
type HistoryRecord struct {
	Timestamp   Timestamp
	Temperature [NumSlots]Measurement
	Humidity    [NumSlots]Measurement
}

// HistorySlot is either a HistoryRecord or an AlarmRecord, up to six per
// frame (§3).
type HistorySlot struct {
	IsAlarm bool
	Record  HistoryRecord
	Alarm   AlarmRecord
}

// historySlotByteWidth is the per-slot pitch within a history frame: the
// original driver's BUFMAPALA alarm-marker offsets for slots 1..6 (180, 152,
// 124, 96, 68, 40) step by exactly 28 bytes.
const historySlotByteWidth = 28
const historySlotNibbleWidth = historySlotByteWidth * 2

// decodeHistoryFrame decodes a 181-byte history frame body into up to six
// HistorySlots, in the order they appear in the payload. HistoryCursor
// keeps a record only if it is newer than the one before it, so the slots
// are expected to run oldest first.
func decodeHistoryFrame(payload []byte) []HistorySlot {
	slots := make([]HistorySlot, 0, 6)
	for i := 0; i < 6; i++ {
		base := 1 + i*historySlotByteWidth // byte offset: 1-byte header, then one slot block
		if base+historySlotByteWidth > len(payload) {
			break
		}
		block := payload[base : base+historySlotByteWidth]
		if block[0] == historyAlarmMarker {
			slots = append(slots, HistorySlot{IsAlarm: true, Alarm: decodeAlarmRecord(block)})
			continue
		}
		slots = append(slots, HistorySlot{Record: decodeHistoryRecord(block)})
	}
	return slots
}

func decodeHistoryRecord(block []byte) HistoryRecord {
	var rec HistoryRecord
	off := 0
	for slot := 0; slot < NumSlots; slot++ {
		v, sk := decodeTemperature(block, off)
		rec.Temperature[slot] = Measurement{Value: v, Absent: sk != sentinelNone}
		off += 3
	}
	for slot := 0; slot < NumSlots; slot++ {
		v, sk := decodeHumidity(block, off)
		rec.Humidity[slot] = Measurement{Value: v, Absent: sk != sentinelNone}
		off += 2
	}
	rec.Timestamp = decodeTimestamp10(block, off)
	return rec
}

func decodeAlarmRecord(block []byte) AlarmRecord {
	return AlarmRecord{
		SensorIndex: int(block[1]),
		Kind:        alarmKind(block[2] & 0x3),
		Value:       float64(int8(block[3])) / 10,
		Limit:       float64(int8(block[4])) / 10,
	}
}
