package klog

import (
	"fmt"

	"github.com/pkg/errors"
)

// Band selects the transceiver's base RF frequency (§4.B).
type Band int

const (
	BandEU Band = iota
	BandUS
)

const (
	freqEUHz = 868300000
	freqUSHz = 905000000
	xtalHz   = 16000000
)

// radio register addresses on the AX5051-compatible RF front-end.
const (
	regFreq3 = 0x22
	regFreq2 = 0x23
	regFreq1 = 0x24
	regFreq0 = 0x25
)

// fixedRegisters is the vendor's register table for FSK modulation, 0x07
// line encoding, 0x84 framing, CRC init 0xFFFFFFFF and AGC/PLL/TX-driver
// defaults. Values are opaque to this driver; they're programmed verbatim.
var fixedRegisters = []struct{ reg, val byte }{
	{0x0C, 0x00},
	{0x0D, 0x08},
	{0x10, 0x43},
	{0x11, 0x07}, // line encoding
	{0x12, 0x84}, // framing
	{0x13, 0xFF}, {0x14, 0xFF}, {0x15, 0xFF}, {0x16, 0xFF}, // CRC init
	{0x17, 0x07},
	{0x18, 0x88},
	{0x19, 0x80}, // AGC
	{0x1A, 0x90}, // PLL
	{0x1B, 0x0E}, {0x1C, 0x80}, // TX driver
}

// pllFrequencyWord computes the 24-bit PLL frequency word: base frequency
// times 2^24/xtal, plus a correction word read from config flash at 0x1F5,
// forced odd (§4.B).
func pllFrequencyWord(band Band, correction uint32) uint32 {
	base := uint64(freqEUHz)
	if band == BandUS {
		base = freqUSHz
	}
	word := uint32(base * (1 << 24) / xtalHz)
	word += correction
	return word | 1 // force odd
}

// programRadio performs the one-shot RF register configuration described in
// §4.B: frequency correction, the fixed register table, and reading back
// DeviceID/serial.
func programRadio(t *transport, band Band) (DeviceID, string, error) {
	corrBuf, err := t.readConfigFlash(0x1F5, 4)
	if err != nil {
		return 0, "", err
	}
	correction := uint32(corrBuf[0])<<24 | uint32(corrBuf[1])<<16 | uint32(corrBuf[2])<<8 | uint32(corrBuf[3])

	word := pllFrequencyWord(band, correction)
	freqBytes := [4]byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
	regs := [4]byte{regFreq3, regFreq2, regFreq1, regFreq0}
	for i, reg := range regs {
		if err := t.writeReg(reg, freqBytes[i]); err != nil {
			return 0, "", err
		}
	}

	for _, r := range fixedRegisters {
		if err := t.writeReg(r.reg, r.val); err != nil {
			return 0, "", err
		}
	}

	idBuf, err := t.readConfigFlash(0x1F9+5, 2)
	if err != nil {
		return 0, "", err
	}
	devID := DeviceID(uint16(idBuf[0])<<8 | uint16(idBuf[1]))

	serial, err := t.readSerialString()
	if err != nil {
		return 0, "", err
	}

	return devID, serial, nil
}

func (b Band) String() string {
	switch b {
	case BandEU:
		return "EU"
	case BandUS:
		return "US"
	default:
		return fmt.Sprintf("Band(%d)", int(b))
	}
}

// ParseBand parses the `transceiver_frequency` host config option.
func ParseBand(s string) (Band, error) {
	switch s {
	case "EU", "":
		return BandEU, nil
	case "US":
		return BandUS, nil
	default:
		return 0, errors.Errorf("klog: unknown transceiver_frequency %q", s)
	}
}
