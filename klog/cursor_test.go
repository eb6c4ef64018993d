package klog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkSlot(ts time.Time) HistorySlot {
	return HistorySlot{Record: HistoryRecord{Timestamp: TimestampAt(ts)}}
}

func TestHistoryIndexArithmetic(t *testing.T) {
	var cur HistoryCursor
	cur.startCachingHistory(time.Time{}, 10, 5*time.Minute, historySlots-1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cur.primeFromFirstFrame(now, 0, 0)

	require.Equal(t, 51190, cur.startIndex)
	require.Equal(t, 51190, cur.nextIndex)

	base := now.Add(-1 * time.Hour)
	var slots []HistorySlot
	for i := 0; i < 6; i++ {
		slots = append(slots, mkSlot(base.Add(time.Duration(i)*5*time.Minute)))
	}

	ok := cur.acceptFrame(now, 51195, slots)
	require.True(t, ok)
	assert.Equal(t, 51195, cur.nextIndex)
	assert.Len(t, cur.records, 6)
}

func TestAcceptFrameRejectsFutureOnlyRecord(t *testing.T) {
	var cur HistoryCursor
	cur.startCachingHistory(time.Time{}, 1, 5*time.Minute, historySlots-1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cur.primeFromFirstFrame(now, 0, 0)

	slots := []HistorySlot{mkSlot(now.Add(400 * time.Second))}
	cur.acceptFrame(now, cur.nextIndex+1, slots)
	assert.Empty(t, cur.records)
}

func TestAcceptFrameKeepsFirstOfDuplicateTimestamp(t *testing.T) {
	var cur HistoryCursor
	cur.startCachingHistory(time.Time{}, 2, 5*time.Minute, historySlots-1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cur.primeFromFirstFrame(now, 0, 0)

	ts := now.Add(-time.Hour)
	slots := []HistorySlot{mkSlot(ts), mkSlot(ts)}
	cur.acceptFrame(now, cur.nextIndex+1, slots)
	assert.Len(t, cur.records, 1)
}

func TestAcceptFrameRejectsPreSanityFloorRecord(t *testing.T) {
	var cur HistoryCursor
	cur.startCachingHistory(time.Time{}, 1, 5*time.Minute, historySlots-1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cur.primeFromFirstFrame(now, 0, 0)

	slots := []HistorySlot{mkSlot(time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC))}
	cur.acceptFrame(now, cur.nextIndex+1, slots)
	assert.Empty(t, cur.records)
}

func TestAcceptFrameRespectsSinceTS(t *testing.T) {
	since := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	var cur HistoryCursor
	cur.startCachingHistory(since, 0, 5*time.Minute, historySlots-1)
	now := since.Add(2 * time.Hour)
	cur.primeFromFirstFrame(now, 100, 0)

	slots := []HistorySlot{
		mkSlot(since.Add(-10 * time.Minute)),
		mkSlot(since.Add(10 * time.Minute)),
	}
	cur.acceptFrame(now, cur.nextIndex+1, slots)
	require.Len(t, cur.records, 1)
	ts, ok := cur.records[0].Timestamp.Time()
	require.True(t, ok)
	assert.False(t, ts.Before(since))
}

func TestAcceptFrameOutOfRangeIndexRejected(t *testing.T) {
	var cur HistoryCursor
	cur.startCachingHistory(time.Time{}, 1, 5*time.Minute, historySlots-1)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cur.primeFromFirstFrame(now, 0, 0)

	ok := cur.acceptFrame(now, cur.nextIndex+20, []HistorySlot{mkSlot(now)})
	assert.False(t, ok)
	assert.Empty(t, cur.records)
}
