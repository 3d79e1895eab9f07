// Package focus turns raw focused-time reports into canonical second values
// and derives the overdue state of a todo from its planned duration.
package focus

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	// MillisecondThreshold is the value above which a report is assumed to be
	// milliseconds. This heuristic is kept only for compatibility with clients
	// and rows written before normalization existed; do not build on it.
	MillisecondThreshold = 1_000_000

	// MaxFocusedSeconds caps a single todo at one day of focus.
	MaxFocusedSeconds = 24 * 3600

	// MaxDurationField bounds duration_hours and duration_minutes. It is the
	// range of the integer columns that store them, and keeps PlannedSeconds
	// far from int64 overflow.
	MaxDurationField = 1<<31 - 1
)

// Correction describes what Normalize had to do to a raw value.
type Correction string

const (
	CorrectionNone         Correction = "none"
	CorrectionNegative     Correction = "negative"
	CorrectionMilliseconds Correction = "milliseconds"
	CorrectionClamped      Correction = "clamped"
	CorrectionMillisClamp  Correction = "milliseconds+clamped"
)

type Result struct {
	FocusedTime int64
	WasOverdue  bool
	OverdueTime int64
	Correction  Correction
}

// PlannedSeconds is the effort budget of a todo in seconds.
func PlannedSeconds(hours, minutes int) int64 {
	return int64(hours)*3600 + int64(minutes)*60
}

// Normalize applies the unit correction and daily clamp to raw and computes
// the overdue state against planned. It is pure.
func Normalize(raw int64, planned int64) Result {
	res := Result{Correction: CorrectionNone}

	ft := raw
	if ft < 0 {
		ft = 0
		res.Correction = CorrectionNegative
	}
	if ft > MillisecondThreshold {
		ft /= 1000
		res.Correction = CorrectionMilliseconds
	}
	if ft > MaxFocusedSeconds {
		ft = MaxFocusedSeconds
		if res.Correction == CorrectionMilliseconds {
			res.Correction = CorrectionMillisClamp
		} else {
			res.Correction = CorrectionClamped
		}
	}
	res.FocusedTime = ft

	if planned > 0 && ft > planned {
		res.WasOverdue = true
		res.OverdueTime = ft - planned
	}
	return res
}

// Repair recomputes a stored row whose focused time was written in
// milliseconds. ok is false when the stored value is below the threshold and
// the row must be left untouched.
// Unlike the legacy fix script, overdue is recomputed rather than scaled, so
// a row with no plan ends with overdue_time 0.
func Repair(storedFocused int64, planned int64) (res Result, ok bool) {
	if storedFocused <= MillisecondThreshold {
		return Result{}, false
	}
	return Normalize(storedFocused, planned), true
}

// Coerce converts an arbitrary JSON value into an integer focus report.
// Anything that is not a number, numeric string or boolean yields 0. The sign
// is kept so Normalize can report the negative correction.
func Coerce(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0
	}

	var n int64
	switch t := v.(type) {
	case json.Number:
		n = parseNumber(string(t))
	case string:
		n = parseIntString(t)
	case bool:
		if t {
			n = 1
		}
	default:
		return 0
	}
	return n
}

func parseNumber(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	} else if errors.Is(err, strconv.ErrRange) {
		return saturate(strings.HasPrefix(s, "-"))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return saturate(strings.HasPrefix(s, "-"))
		}
		return 0
	}
	return truncate(f)
}

func parseIntString(s string) int64 {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return saturate(strings.HasPrefix(s, "-"))
		}
		return 0
	}
	return n
}

func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Trunc(f))
}

func saturate(negative bool) int64 {
	if negative {
		return math.MinInt64
	}
	return math.MaxInt64
}
