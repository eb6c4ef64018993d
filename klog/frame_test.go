package klog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryIndexAddrRoundTrip(t *testing.T) {
	for _, idx := range []int{0, 1, 51190, 51199, 25600} {
		addr := historyIndexToAddr(idx)
		got := historyAddrToIndex(addr)
		assert.Equal(t, idx, got)
	}
}

func TestHistoryIndexToAddrWraps(t *testing.T) {
	assert.Equal(t, historyIndexToAddr(0), historyIndexToAddr(historySlots))
}

func TestDeviceIDRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	writeDeviceID(buf, DeviceID(0xABCD))
	assert.Equal(t, DeviceID(0xABCD), readDeviceID(buf))
}
