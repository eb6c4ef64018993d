package klog

import (
	"math"
	"time"
)

// Sentinel values for decoded temperature/humidity readings (§3 invariants).
const (
	TempNotPresent = 81.1
	TempOutOfLimit = 136.0
	HumNotPresent  = 110
	HumOutOfLimit  = 121
)

// nibble extracts nibble index i (0 = first/high nibble of buf[0]) from a
// byte buffer, high nibble first within each byte.
func nibble(buf []byte, i int) byte {
	b := buf[i/2]
	if i%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

// nibbleError reports whether a nibble value is one of the codec's "error"
// codes (0xA..0xE); 0xF means OFL and is handled by callers separately.
func nibbleError(n byte) bool {
	return n >= 0xA && n <= 0xE
}

// decodeHumidity decodes a 2-nibble integer humidity field starting at
// nibble offset off. Returns the value and its sentinel kind, which is
// sentinelNone only for a real reading (NP for error nibbles, OFL for all-F).
func decodeHumidity(buf []byte, off int) (float64, sentinelKind) {
	hi, lo := nibble(buf, off), nibble(buf, off+1)
	if hi == 0xF && lo == 0xF {
		return HumOutOfLimit, sentinelOFL
	}
	if nibbleError(hi) || nibbleError(lo) {
		return HumNotPresent, sentinelNP
	}
	v := float64(hi)*10 + float64(lo)
	return v, sentinelNone
}

type sentinelKind int

const (
	sentinelNone sentinelKind = iota
	sentinelNP
	sentinelOFL
)

// decodeTemperature decodes a 3-nibble (H,M,L) temperature field with 0.1
// resolution and a fixed 40C offset, starting at nibble offset off.
func decodeTemperature(buf []byte, off int) (float64, sentinelKind) {
	h, m, l := nibble(buf, off), nibble(buf, off+1), nibble(buf, off+2)
	if h == 0xF && m == 0xF && l == 0xF {
		return TempOutOfLimit, sentinelOFL
	}
	if nibbleError(h) || nibbleError(m) || nibbleError(l) {
		return TempNotPresent, sentinelNP
	}
	v := float64(h)*10 + float64(m) + float64(l)*0.1 - 40
	return v, sentinelNone
}

// encodeTemperature is the inverse of decodeTemperature: given a Celsius
// value at 0.1 resolution, writes three nibbles at nibble offset off.
func encodeTemperature(buf []byte, off int, celsius float64) {
	v := int(math.Round(celsius*10)) + 400
	h := byte(v / 100 % 10)
	m := byte(v / 10 % 10)
	l := byte(v % 10)
	setNibble(buf, off, h)
	setNibble(buf, off+1, m)
	setNibble(buf, off+2, l)
}

// encodeHumidity is the inverse of decodeHumidity.
func encodeHumidity(buf []byte, off int, pct int) {
	setNibble(buf, off, byte(pct/10%10))
	setNibble(buf, off+1, byte(pct%10))
}

// nibbleOffsetAt translates the original driver's (byteStart, startOnHiNibble)
// addressing convention into this package's flat nibble-offset convention:
// startOnHiNibble selects the high nibble of buf[byteStart] (even offset),
// otherwise the low nibble (odd offset, one nibble further in).
func nibbleOffsetAt(byteStart int, startOnHiNibble bool) int {
	if startOnHiNibble {
		return byteStart * 2
	}
	return byteStart*2 + 1
}

func setNibble(buf []byte, i int, v byte) {
	bi := i / 2
	if i%2 == 0 {
		buf[bi] = (buf[bi] & 0x0f) | (v << 4)
	} else {
		buf[bi] = (buf[bi] & 0xf0) | (v & 0x0f)
	}
}

// decodeTimestamp10 decodes the 10-nibble "YY MM DD hh mm" timestamp layout
// used by history records, starting at nibble offset off.
func decodeTimestamp10(buf []byte, off int) Timestamp {
	digits := make([]int, 10)
	for i := 0; i < 10; i++ {
		n := nibble(buf, off+i)
		if n > 9 {
			return TimestampInvalid()
		}
		digits[i] = int(n)
	}
	year := 2000 + digits[0]*10 + digits[1]
	month := digits[2]*10 + digits[3]
	day := digits[4]*10 + digits[5]
	hour := digits[6]*10 + digits[7]
	minute := digits[8]*10 + digits[9]
	return buildTimestamp(year, month, day, hour, minute)
}

// decodeTimestamp8 decodes the 8-nibble asymmetric timestamp layout: the low
// nibble of the "hours" digit carrying a value >=10 signals a PM carry, per
// §4.C.
func decodeTimestamp8(buf []byte, off int) Timestamp {
	n := make([]byte, 8)
	for i := range n {
		n[i] = nibble(buf, off+i)
	}
	year := 2000 + int(n[0])*10 + int(n[1])
	month := int(n[2])
	day := int(n[3])*10 + int(n[4])
	hour := int(n[5])
	pm := false
	if n[6] >= 10 {
		pm = true
		hour += (int(n[6]) - 10) * 10
	} else {
		hour += int(n[6]) * 10
	}
	minute := int(n[7]) * 10
	if pm && hour < 12 {
		hour += 12
	}
	return buildTimestamp(year, month, day, hour, minute)
}

func buildTimestamp(year, month, day, hour, minute int) Timestamp {
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return TimestampInvalid()
	}
	return TimestampAt(time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC))
}

// sensorAlphabet is the 64-symbol alphabet used to pack sensor description
// text 6 bits/char (§4.C): digits are shifted one position so that '0' lands
// on index 10 rather than 0, index 0 is space, and index 0x29 is the
// lowercase-o degree glyph. Several trailing indices are unused padding that
// also decode to space.
var sensorAlphabet = [64]byte{
	0: ' ', 1: '1', 2: '2', 3: '3', 4: '4', 5: '5', 6: '6', 7: '7', 8: '8', 9: '9',
	10: '0',
	11: 'A', 12: 'B', 13: 'C', 14: 'D', 15: 'E', 16: 'F', 17: 'G', 18: 'H', 19: 'I',
	20: 'J', 21: 'K', 22: 'L', 23: 'M', 24: 'N', 25: 'O', 26: 'P', 27: 'Q', 28: 'R',
	29: 'S', 30: 'T', 31: 'U', 32: 'V', 33: 'W', 34: 'X', 35: 'Y', 36: 'Z',
	37: '-', 38: '+', 39: '(', 40: ')',
	41: 'o', // lowercase degree glyph
	42: '*', 43: ',', 44: '/', 45: '\\', 46: ' ', 47: '.',
	48: ' ', 49: ' ', 50: ' ', 51: ' ', 52: ' ', 53: ' ', 54: ' ', 55: ' ',
	56: ' ', 57: ' ', 58: ' ', 59: ' ', 60: ' ', 61: ' ', 62: ' ',
	63: '@',
}

// sensorAlphabetIndex is the reverse lookup. Several source indices decode
// to the same space character; the first occurrence (index 0) wins so that
// encoding a space is always canonical.
var sensorAlphabetIndex = func() map[byte]byte {
	m := make(map[byte]byte, len(sensorAlphabet))
	for i, c := range sensorAlphabet {
		if _, seen := m[c]; !seen {
			m[c] = byte(i)
		}
	}
	return m
}()

// reverseBytes reverses a byte range in place, used by descriptor fields
// whose on-wire byte order runs opposite to logical character order.
func reverseBytes(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

// checksum computes the unsigned sum of buf plus the constant 7 used
// throughout the protocol (station config OutBufCS, among others).
func checksum(buf []byte) uint16 {
	var sum uint16
	for _, b := range buf {
		sum += uint16(b)
	}
	return sum + 7
}
