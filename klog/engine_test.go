package klog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *engine {
	return &engine{
		cfg:   EngineConfig{CommInterval: 8, ArchiveInterval: 5 * time.Minute, LimitRecRead: 3001},
		nowFn: time.Now,
	}
}

// TestBuildACKPairingShape covers scenario 1 (pairing): the outbound ACK the
// engine emits on a wildcard pairing frame carries the transceiver's own
// DeviceID, action=GetConfig (0x03), and the "unknown" 0xFFFFFF history
// address.
func TestBuildACKPairingShape(t *testing.T) {
	e := testEngine()
	e.deviceID = 0x1234

	buf := e.buildACK(actionGetConfig, unknownHistoryIndex)
	require.Len(t, buf, 11)
	assert.Equal(t, DeviceID(0x1234), readDeviceID(buf))
	assert.Equal(t, byte(actionGetConfig), buf[3])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, buf[8:11])
}

func TestBuildACKEncodesHistoryAddress(t *testing.T) {
	e := testEngine()
	e.deviceID = 0xABCD

	buf := e.buildACK(actionGetHistory, 51195)
	require.Len(t, buf, 11)
	assert.Equal(t, byte(actionGetHistory), buf[3])
	addr := uint32(buf[8])<<16 | uint32(buf[9])<<8 | uint32(buf[10])
	assert.Equal(t, historyIndexToAddr(51195), addr)
}

// TestDecideNextAfterWeatherGetConfigFirst covers the "haven't seen a config
// yet" branch: the very first decision after pairing must be GetConfig.
func TestDecideNextAfterWeatherGetConfigFirst(t *testing.T) {
	e := testEngine()
	e.haveInBufCS = false

	out := e.decideNextAfterWeather(false)
	assert.Equal(t, byte(actionGetConfig), out[3])
}

// TestDecideNextAfterWeatherSetConfig covers scenario 4 (config round-trip):
// once the outgoing config's checksum differs from the last received
// InBufCS, the engine must choose SetConfig over GetHistory.
func TestDecideNextAfterWeatherSetConfig(t *testing.T) {
	e := testEngine()
	e.haveInBufCS = true
	e.receivedConfig = &Config{InBufCS: 0xBEEF}
	e.outgoing = NewOutgoingConfig(e.receivedConfig)
	require.True(t, e.outgoing.SetDescription(0, "GARAGE"))

	out := e.decideNextAfterWeather(false)
	assert.Equal(t, byte(actionSetConfig), out[3])
}

// TestDecideNextAfterWeatherGetHistory covers the default branch: config is
// known and unchanged, so the engine asks for history next.
func TestDecideNextAfterWeatherGetHistory(t *testing.T) {
	e := testEngine()
	e.haveInBufCS = true
	e.receivedConfig = &Config{InBufCS: 0xBEEF}
	e.lastWeatherAt = e.nowFn()

	out := e.decideNextAfterWeather(false)
	assert.Equal(t, byte(actionGetHistory), out[3])
}

// TestDecideNextAfterWeatherMorphsToGetCurrent covers scenario 6 (morphing):
// once the last current-weather timestamp is older than 2*(commInterval+1)
// seconds, an about-to-be-emitted GetHistory is rewritten to GetCurrent,
// unless the frame came from the wildcard pairing broadcast.
func TestDecideNextAfterWeatherMorphsToGetCurrent(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := testEngine()
	e.nowFn = func() time.Time { return base }
	e.haveInBufCS = true
	e.receivedConfig = &Config{InBufCS: 0xBEEF}
	e.lastWeatherAt = base.Add(-time.Duration(2*(e.cfg.CommInterval+1)+1) * time.Second)

	out := e.decideNextAfterWeather(false)
	assert.Equal(t, byte(actionGetCurrent), out[3], "should morph to GetCurrent once stale past the threshold")
}

func TestDecideNextAfterWeatherWildcardNeverMorphs(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := testEngine()
	e.nowFn = func() time.Time { return base }
	e.haveInBufCS = true
	e.receivedConfig = &Config{InBufCS: 0xBEEF}
	e.lastWeatherAt = base.Add(-1 * time.Hour)

	out := e.decideNextAfterWeather(true)
	assert.Equal(t, byte(actionGetHistory), out[3], "a wildcard-sourced frame must not morph")
}

// TestCatchUpSizing covers scenario 5 (catch-up sizing), applying the
// formula from §4.F faithfully: nreq = ceil(elapsed/interval) + 5, clipped
// to min(nreq, limit, nrec). With since_ts = now-3600s and a 5-minute
// interval this yields ceil(3600s/300s)+5 = 17, not the spec prose's
// literal "725" (see DESIGN.md for the unit-mismatch note); the clip to
// station-reported nrec is exercised by capping nrec below nreq.
func TestCatchUpSizing(t *testing.T) {
	var cur HistoryCursor
	now := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	since := now.Add(-3600 * time.Second)
	cur.startCachingHistory(since, 0, 5*time.Minute, 3001)

	latestIndex := 10 // nrec = mod(latestIndex-thisIndex, historySlots) = 10, below nreq
	cur.primeFromFirstFrame(now, latestIndex, 0)
	assert.Equal(t, 10, cur.numOutstanding, "clip to station-reported nrec when it is the smallest bound")
}

func TestCatchUpSizingClipsToRecordLimit(t *testing.T) {
	var cur HistoryCursor
	now := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	since := now.Add(-3600 * time.Second)
	cur.startCachingHistory(since, 0, 5*time.Minute, 10)

	cur.primeFromFirstFrame(now, 50000, 0)
	assert.Equal(t, 10, cur.numOutstanding, "clip to the configured record-read limit")
}

func TestHandleHistoryIgnoredWhenCursorInactive(t *testing.T) {
	e := testEngine()
	e.deviceID = 0x1111
	e.cursor.active = false

	frame := make([]byte, 181)
	frame[1], frame[2], frame[3] = 0, 0, 0
	out := e.handleHistory(frame)
	assert.Equal(t, byte(actionGetCurrent), out[3])
}
