package focus

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     int64
		planned int64
		want    Result
	}{
		{"under plan", 1200, 3600, Result{FocusedTime: 1200, Correction: CorrectionNone}},
		{"overdue", 4000, 3600, Result{FocusedTime: 4000, WasOverdue: true, OverdueTime: 400, Correction: CorrectionNone}},
		{"exactly planned", 3600, 3600, Result{FocusedTime: 3600, Correction: CorrectionNone}},
		{"milliseconds", 5_000_000, 3600, Result{FocusedTime: 5000, WasOverdue: true, OverdueTime: 1400, Correction: CorrectionMilliseconds}},
		{"threshold itself stays seconds", 1_000_000, 0, Result{FocusedTime: MaxFocusedSeconds, Correction: CorrectionClamped}},
		{"clamped", 90_000, 3600, Result{FocusedTime: 86_400, WasOverdue: true, OverdueTime: 82_800, Correction: CorrectionClamped}},
		{"milliseconds then clamped", 200_000_000, 0, Result{FocusedTime: 86_400, Correction: CorrectionMillisClamp}},
		{"negative", -5, 60, Result{FocusedTime: 0, Correction: CorrectionNegative}},
		{"no plan never overdue", 50_000, 0, Result{FocusedTime: 50_000, Correction: CorrectionNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw, tt.planned); got != tt.want {
				t.Fatalf("Normalize(%d, %d) = %+v, want %+v", tt.raw, tt.planned, got, tt.want)
			}
		})
	}
}

func TestNormalizeProperties(t *testing.T) {
	samples := []int64{0, 1, 59, 86_399, 86_400, 86_401, 999_999, 1_000_000, 1_000_001, 86_400_000, 86_400_999, math.MaxInt64, -1, math.MinInt64}
	plans := []int64{0, 60, 3600, 86_400}

	for _, v := range samples {
		for _, p := range plans {
			a := Normalize(v, p)
			if b := Normalize(v, p); a != b {
				t.Fatalf("Normalize(%d, %d) is not deterministic: %+v != %+v", v, p, a, b)
			}
			if a.FocusedTime < 0 || a.FocusedTime > MaxFocusedSeconds {
				t.Fatalf("Normalize(%d, %d) focused time %d out of range", v, p, a.FocusedTime)
			}
			if a.WasOverdue != (a.OverdueTime > 0) {
				t.Fatalf("Normalize(%d, %d) overdue flag inconsistent: %+v", v, p, a)
			}
			if p == 0 && (a.WasOverdue || a.OverdueTime != 0) {
				t.Fatalf("Normalize(%d, 0) reported overdue: %+v", v, a)
			}
			if v > MillisecondThreshold {
				want := v / 1000
				if want > MaxFocusedSeconds {
					want = MaxFocusedSeconds
				}
				if a.FocusedTime != want {
					t.Fatalf("Normalize(%d, %d) focused time = %d, want %d", v, p, a.FocusedTime, want)
				}
			}
		}
	}
}

func TestRepair(t *testing.T) {
	if _, ok := Repair(86_400, 3600); ok {
		t.Fatalf("expected values below the threshold to be left alone")
	}

	res, ok := Repair(4_000_000, 3600)
	if !ok {
		t.Fatalf("expected repair for millisecond value")
	}
	if res.FocusedTime != 4000 || !res.WasOverdue || res.OverdueTime != 400 {
		t.Fatalf("unexpected repair result: %+v", res)
	}

	if _, again := Repair(res.FocusedTime, 3600); again {
		t.Fatalf("repair must be idempotent")
	}

	res, ok = Repair(7_000_000, 0)
	if !ok || res.FocusedTime != 7000 || res.WasOverdue || res.OverdueTime != 0 {
		t.Fatalf("unexpected repair result without plan: %+v ok=%v", res, ok)
	}
}

func TestPlannedSeconds(t *testing.T) {
	if got := PlannedSeconds(1, 30); got != 5400 {
		t.Fatalf("PlannedSeconds(1, 30) = %d", got)
	}
	if got := PlannedSeconds(0, 0); got != 0 {
		t.Fatalf("PlannedSeconds(0, 0) = %d", got)
	}
}

func TestNegativeReportIsCorrectedByNormalize(t *testing.T) {
	res := Normalize(Coerce(json.RawMessage(`"-30"`)), 3600)
	if res.FocusedTime != 0 || res.Correction != CorrectionNegative {
		t.Fatalf("unexpected result for negative report: %+v", res)
	}
}

func TestPlannedSecondsAtDurationBound(t *testing.T) {
	got := PlannedSeconds(MaxDurationField, MaxDurationField)
	want := int64(MaxDurationField)*3600 + int64(MaxDurationField)*60
	if got != want || got <= 0 {
		t.Fatalf("PlannedSeconds at bound = %d, want %d", got, want)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{``, 0},
		{`null`, 0},
		{`4000`, 4000},
		{`4000.9`, 4000},
		{`-12`, -12},
		{`"-3"`, -3},
		{`-99999999999999999999999`, math.MinInt64},
		{`"1500"`, 1500},
		{`"  1500 "`, 1500},
		{`"+7"`, 7},
		{`"12.5"`, 0},
		{`"abc"`, 0},
		{`true`, 1},
		{`false`, 0},
		{`{"v":1}`, 0},
		{`[1]`, 0},
		{`{bad`, 0},
		{`1e3`, 1000},
		{`99999999999999999999999`, math.MaxInt64},
		{`"99999999999999999999999"`, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := Coerce(json.RawMessage(tt.raw)); got != tt.want {
				t.Fatalf("Coerce(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCoerceThenNormalizeSaturatesToOneDay(t *testing.T) {
	got := Normalize(Coerce(json.RawMessage(`1e300`)), 60)
	if got.FocusedTime != MaxFocusedSeconds {
		t.Fatalf("expected clamp to %d, got %+v", MaxFocusedSeconds, got)
	}
}
