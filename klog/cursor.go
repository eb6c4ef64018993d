package klog

import (
	"math"
	"time"
)

// HistoryCursor owns the bounded history-record cache and backfill
// bookkeeping described in §4.F. It is mutated only by the exchange engine;
// the facade exposes read-only snapshots.
type HistoryCursor struct {
	active bool
	primed bool // true once primeFromFirstFrame has run for this backfill

	sinceTS       time.Time
	numRec        int // explicit count requested; 0 = "until up to date"
	archiveInterval time.Duration
	recordLimit   int // configurable_limit (host `limit_rec_read_to`)

	startIndex int
	nextIndex  int
	latestIndex int

	records    []HistoryRecord
	tsLastRec  time.Time
	haveLast   bool

	numOutstanding int
	numScanned     int
}

// startCachingHistory begins a new backfill. sinceTS is the inclusive lower
// bound (zero value means "no lower bound"); numRec>0 requests an explicit
// count instead.
func (h *HistoryCursor) startCachingHistory(sinceTS time.Time, numRec int, archiveInterval time.Duration, recordLimit int) {
	*h = HistoryCursor{
		active:          true,
		sinceTS:         sinceTS,
		numRec:          numRec,
		archiveInterval: archiveInterval,
		recordLimit:     recordLimit,
	}
}

func (h *HistoryCursor) stopCachingHistory() { h.active = false }

// primeFromFirstFrame computes nreq and the starting index on the first
// history frame after startCachingHistory, per §4.F.
func (h *HistoryCursor) primeFromFirstFrame(now time.Time, latestIndex, thisIndex int) {
	h.primed = true
	h.latestIndex = latestIndex
	nrec := mod(latestIndex-thisIndex, historySlots)

	var nreq int
	switch {
	case h.numRec > 0:
		nreq = h.numRec
	case !h.sinceTS.IsZero():
		if h.archiveInterval <= 0 {
			h.archiveInterval = 5 * time.Minute
		}
		elapsed := now.Sub(h.sinceTS)
		nreq = int(math.Ceil(float64(elapsed)/float64(h.archiveInterval))) + 5
		if nreq > nrec {
			nreq = nrec
		}
	default:
		nreq = nrec
	}

	limit := h.recordLimit
	if limit <= 0 || limit > historySlots-1 {
		limit = historySlots - 1
	}
	if nreq > limit {
		nreq = limit
	}
	if nreq > historySlots-1 {
		nreq = historySlots - 1
	}
	if nreq < 0 {
		nreq = 0
	}

	h.startIndex = mod(latestIndex-nreq, historySlots)
	h.nextIndex = h.startIndex
	h.numOutstanding = nreq
}

func mod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// nextRequestIndex is the history address the next outgoing ACK should ask
// for; unknownHistoryIndex sentinel semantics are handled by the engine.
func (h *HistoryCursor) nextRequestIndex() int { return h.nextIndex }

// acceptFrame validates and applies one decoded history frame, per §4.F's
// filtering properties. thisIndex is the frame's own history index.
func (h *HistoryCursor) acceptFrame(now time.Time, thisIndex int, slots []HistorySlot) bool {
	lo := mod(h.nextIndex+1, historySlots)
	hi := mod(h.nextIndex+6, historySlots)
	if !indexInCircularRange(thisIndex, lo, hi) {
		return false
	}

	for _, slot := range slots {
		h.numScanned++
		if slot.IsAlarm {
			continue
		}
		rec := slot.Record
		ts, ok := rec.Timestamp.Time()
		if !ok {
			continue
		}
		if ts.Before(historySanityFloor) {
			continue
		}
		if !h.sinceTS.IsZero() && ts.Before(h.sinceTS) {
			continue
		}
		if ts.After(now.Add(300 * time.Second)) {
			continue
		}
		if h.haveLast {
			if !ts.After(h.tsLastRec) {
				continue
			}
			if ts.Sub(h.tsLastRec) > 86400*time.Second {
				continue
			}
		}
		h.records = append(h.records, rec)
		h.tsLastRec = ts
		h.haveLast = true
	}

	h.nextIndex = thisIndex
	if h.numOutstanding > 0 {
		h.numOutstanding = mod(h.latestIndex-h.nextIndex, historySlots)
	}
	return true
}

// indexInCircularRange reports whether idx lies in (lo-1, hi] modulo
// historySlots, i.e. the inclusive range reached by walking forward from
// lo-1 to hi — used to validate "this_index in (next_index, next_index+6]".
func indexInCircularRange(idx, lo, hi int) bool {
	span := mod(hi-lo, historySlots) + 1
	offset := mod(idx-lo, historySlots)
	return offset < span
}

// complete reports whether the backfill has caught up to the console's
// latest index.
func (h *HistoryCursor) complete() bool {
	return h.numOutstanding == 0
}

// drainRecords returns and clears the accumulated records (consumer drain).
func (h *HistoryCursor) drainRecords() []HistoryRecord {
	recs := h.records
	h.records = nil
	return recs
}

func (h *HistoryCursor) uncachedCount() int  { return h.numOutstanding }
func (h *HistoryCursor) scannedCount() int   { return h.numScanned }
func (h *HistoryCursor) nextIndexValue() int { return h.nextIndex }
func (h *HistoryCursor) latestIndexValue() int { return h.latestIndex }
