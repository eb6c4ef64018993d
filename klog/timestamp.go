package klog

import "time"

// Timestamp is a tagged variant over the console's decoded time fields.
// Design note (DESIGN.md): the original driver represented "field failed to
// validate" and "field not yet known" with a magic pre-epoch date
// (1900-01-01). That sentinel is recast here as an explicit tag so callers
// can't accidentally do arithmetic on a fake date.
type Timestamp struct {
	kind timestampKind
	t    time.Time
}

type timestampKind int

const (
	tsInvalid timestampKind = iota // component(s) failed validation
	tsUnknown                      // not yet populated (e.g. before pairing)
	tsValue                        // a real, validated point in time
)

// TimestampInvalid is returned when a decoded timestamp's components fail
// range validation (e.g. month 0).
func TimestampInvalid() Timestamp { return Timestamp{kind: tsInvalid} }

// TimestampUnknown represents "no timestamp received yet".
func TimestampUnknown() Timestamp { return Timestamp{kind: tsUnknown} }

// TimestampAt wraps a concrete, validated time.
func TimestampAt(t time.Time) Timestamp { return Timestamp{kind: tsValue, t: t} }

// Valid reports whether this timestamp carries a real time.Time value.
func (ts Timestamp) Valid() bool { return ts.kind == tsValue }

// Time returns the wrapped time and whether it was valid.
func (ts Timestamp) Time() (time.Time, bool) {
	if ts.kind != tsValue {
		return time.Time{}, false
	}
	return ts.t, true
}

// Unix returns seconds since epoch, or 0 if invalid/unknown.
func (ts Timestamp) Unix() int64 {
	if ts.kind != tsValue {
		return 0
	}
	return ts.t.Unix()
}

func (ts Timestamp) String() string {
	switch ts.kind {
	case tsInvalid:
		return "invalid"
	case tsUnknown:
		return "unknown"
	default:
		return ts.t.Format(time.RFC3339)
	}
}

// historySanityFloor is the hard floor below which a history record's
// timestamp is considered console-clock garbage (§4.F).
var historySanityFloor = time.Date(2010, time.July, 1, 0, 0, 0, 0, time.UTC)
