package klog

// Frame sizes per §3: large frames (current weather, history, config, set
// config) top out at 273 bytes; control frames (ACK, set-time, the 7-byte
// request frames) are at most 21 bytes.
const (
	maxLargeFrame   = 273
	maxControlFrame = 21
)

// DeviceID is the console's 16-bit identifier embedded in every
// console-originated frame.
type DeviceID uint16

// pairingDeviceID is the wildcard DeviceID a console broadcasts before it
// has been paired with a transceiver.
const pairingDeviceID DeviceID = 0xF0F0

// pairingCS is the "unknown checksum" wildcard that buildACK writes into the
// checksum field of every ACK.
const pairingCS = 0xFFFF

// unknownHistoryIndex is the "don't know yet" history-address sentinel.
const unknownHistoryIndex = 0xFFFF

// responseType is the message-kind byte (bytes[3] & 0xF0) the console tags
// every response frame with.
type responseType byte

const (
	respDataWritten     responseType = 0x10 // data-written confirmation
	respGetConfig       responseType = 0x20 // GetConfig reply
	respCurrentWeather  responseType = 0x30 // current weather
	respHistory         responseType = 0x40 // history
	respFirstTimeConfig responseType = 0x51 // first-time config request
	respSetConfig       responseType = 0x52 // set-config request
	respSetTime         responseType = 0x53 // set-time request
	respMemoryStatus    responseType = 0x50 // cosmetic memory-percent payload
)

// action is the outbound request byte the engine places in its ACK/request
// frame, telling the console what to send next.
type action byte

const (
	actionGetHistory action = 0x00
	actionSetTime    action = 0x01
	actionSetConfig  action = 0x02
	actionGetConfig  action = 0x03
	actionGetCurrent action = 0x04
)

func readDeviceID(buf []byte) DeviceID {
	return DeviceID(uint16(buf[0])<<8 | uint16(buf[1]))
}

func writeDeviceID(buf []byte, id DeviceID) {
	buf[0] = byte(id >> 8)
	buf[1] = byte(id)
}

// historyAddrToIndex converts a 24-bit history address into the logical,
// modulo-51200 history record index (§3).
func historyAddrToIndex(addr uint32) int {
	return int(((addr - 0x070000) / 32) % historySlots)
}

// historyIndexToAddr is the inverse of historyAddrToIndex.
func historyIndexToAddr(index int) uint32 {
	index = ((index % historySlots) + historySlots) % historySlots
	return 0x070000 + uint32(index)*32
}

const historySlots = 51200
