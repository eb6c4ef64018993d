package klog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDriver builds a Driver around a bare engine, bypassing Open's USB
// dependency, to exercise the facade's snapshot/accessor behavior in
// isolation.
func newTestDriver() *Driver {
	e := &engine{
		cfg:   EngineConfig{ArchiveInterval: 5 * time.Minute, LimitRecRead: 3001},
		nowFn: time.Now,
	}
	return &Driver{e: e, stop: make(chan struct{})}
}

func TestGetCurrentDataReturnsCopy(t *testing.T) {
	d := newTestDriver()
	assert.Nil(t, d.GetCurrentData())

	d.e.current = &Current{SignalQuality: 42}
	snap := d.GetCurrentData()
	require.NotNil(t, snap)
	assert.Equal(t, 42, snap.SignalQuality)

	snap.SignalQuality = 0
	assert.Equal(t, 42, d.e.current.SignalQuality, "mutating the returned snapshot must not affect engine state")
}

func TestGetConfigDataReturnsCopy(t *testing.T) {
	d := newTestDriver()
	assert.Nil(t, d.GetConfigData())

	d.e.receivedConfig = &Config{InBufCS: 7}
	snap := d.GetConfigData()
	require.NotNil(t, snap)
	assert.Equal(t, uint16(7), snap.InBufCS)
}

func TestPushConfigNoopWithoutReceivedConfig(t *testing.T) {
	d := newTestDriver()
	d.PushConfig(func(oc *OutgoingConfig) { oc.ResetHiLo = true })
	assert.Nil(t, d.e.outgoing)
}

func TestResetMinMaxSetsFlag(t *testing.T) {
	d := newTestDriver()
	d.e.receivedConfig = &Config{InBufCS: 1}
	d.ResetMinMax()
	require.NotNil(t, d.e.outgoing)
	assert.True(t, d.e.outgoing.ResetHiLo)
}

func TestIsPresentReflectsEngineState(t *testing.T) {
	d := newTestDriver()
	assert.False(t, d.IsPresent())
	d.e.present = true
	assert.True(t, d.IsPresent())
}

func TestHistoryCacheDrainAndClear(t *testing.T) {
	d := newTestDriver()
	d.e.cursor.records = []HistoryRecord{{}, {}}

	recs := d.GetHistoryCacheRecords()
	assert.Len(t, recs, 2)
	assert.Empty(t, d.e.cursor.records)
}
