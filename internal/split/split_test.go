package split_test

import (
	"errors"
	"testing"
	"time"

	"wf-backtest/internal/split"
)

// hourly timestamps from start for the given number of days
func hourly(start time.Time, days int) []time.Time {
	out := make([]time.Time, 0, days*24)
	for i := 0; i < days*24; i++ {
		out = append(out, start.Add(time.Duration(i)*time.Hour))
	}
	return out
}

func TestAddMonths_ClampsDay(t *testing.T) {
	cases := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 3, 31, 12, 30, 0, 0, time.UTC), 1, time.Date(2023, 4, 30, 12, 30, 0, 0, time.UTC)},
		{time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC), 3, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC), 24, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)},
		{time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), -1, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := split.AddMonths(c.in, c.n); !got.Equal(c.want) {
			t.Errorf("AddMonths(%s, %d) = %s, want %s", c.in, c.n, got, c.want)
		}
	}
}

func TestWindows_Boundaries(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourly(start, 365)
	s := split.Splitter{TrainMonths: 3, ValidMonths: 1, TestMonths: 1, StepMonths: 1}

	ws := s.Collect(times)
	if len(ws) == 0 {
		t.Fatalf("expected windows, got none")
	}
	w0 := ws[0]
	if want := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC); !w0.TrainStart.Equal(want) {
		t.Fatalf("cursor start = %s, want %s", w0.TrainStart, want)
	}
	if want := time.Date(2022, 4, 2, 0, 0, 0, 0, time.UTC); !w0.ValidStart.Equal(want) {
		t.Fatalf("valid start = %s, want %s", w0.ValidStart, want)
	}
	if want := time.Date(2022, 6, 2, 0, 0, 0, 0, time.UTC); !w0.TestEnd.Equal(want) {
		t.Fatalf("test end = %s, want %s", w0.TestEnd, want)
	}
	// first train bar is exactly the cursor (24 hourly bars on Jan 1 precede it)
	if w0.Train.Start != 24 {
		t.Fatalf("train start index = %d, want 24", w0.Train.Start)
	}
	if !times[w0.Valid.Start].Equal(w0.ValidStart) || !times[w0.Test.Start].Equal(w0.TestStart) {
		t.Fatalf("ranges do not begin at boundaries")
	}

	// last window must still fit: cursor + 5 months <= series end
	end := times[len(times)-1]
	for _, w := range ws {
		if w.TestEnd.After(end) {
			t.Fatalf("window %d test end %s past series end %s", w.Index, w.TestEnd, end)
		}
	}
	if got := s.Count(times); got != len(ws) {
		t.Fatalf("Count = %d, Collect = %d", got, len(ws))
	}
	// Jan 2 .. Dec 31: cursors Jan2..Jul2 fit (Jul 2 + 5 = Dec 2), Aug 2 + 5 = Jan 2 does not.
	if len(ws) != 7 {
		t.Fatalf("window count = %d, want 7", len(ws))
	}
}

func TestWindows_DisjointAndOrdered(t *testing.T) {
	start := time.Date(2021, 3, 17, 5, 0, 0, 0, time.UTC)
	times := hourly(start, 800)
	s := split.Splitter{TrainMonths: 6, ValidMonths: 2, TestMonths: 2, StepMonths: 2}

	var prev *split.Window
	for w := range s.Windows(times) {
		if w.Train.Empty() || w.Valid.Empty() || w.Test.Empty() {
			t.Fatalf("window %d has an empty set: %+v", w.Index, w)
		}
		if !(w.Train.End <= w.Valid.Start && w.Valid.End <= w.Test.Start) {
			t.Fatalf("window %d sets overlap: %+v", w.Index, w)
		}
		if !(w.Train.End-1 < w.Valid.Start && w.Valid.Start < w.Valid.End-1 && w.Valid.End-1 < w.Test.Start) {
			t.Fatalf("window %d violates max(train) < min(valid) < max(valid) < min(test)", w.Index)
		}
		if prev != nil {
			if w.TestStart.Before(split.AddMonths(prev.TestStart, s.StepMonths)) {
				t.Fatalf("window %d test start %s did not advance by step from %s", w.Index, w.TestStart, prev.TestStart)
			}
			if w.Index != prev.Index+1 {
				t.Fatalf("window indices not consecutive")
			}
		}
		ww := w
		prev = &ww
	}
	if prev == nil {
		t.Fatalf("no windows generated")
	}
}

func TestWindows_EmptyWhenTooShort(t *testing.T) {
	times := hourly(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 60)
	s := split.Splitter{TrainMonths: 3, ValidMonths: 1, TestMonths: 1, StepMonths: 1}
	if n := s.Count(times); n != 0 {
		t.Fatalf("expected no windows, got %d", n)
	}
	if n := s.Count(nil); n != 0 {
		t.Fatalf("expected no windows for empty input, got %d", n)
	}
}

func TestWindows_Restartable(t *testing.T) {
	times := hourly(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 400)
	s := split.Splitter{TrainMonths: 2, ValidMonths: 1, TestMonths: 1, StepMonths: 1}
	seq := s.Windows(times)

	var a, b []split.Window
	for w := range seq {
		a = append(a, w)
	}
	for w := range seq {
		b = append(b, w)
	}
	if len(a) != len(b) || len(a) == 0 {
		t.Fatalf("replay lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("window %d differs on replay", i)
		}
	}

	// early break must not leak state into the next iteration
	for w := range seq {
		if w.Index == 1 {
			break
		}
	}
	if got := s.Count(times); got != len(a) {
		t.Fatalf("count after break = %d, want %d", got, len(a))
	}
}

func TestEstimateCount_IsApproximate(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourly(start, 3*365)
	s := split.Splitter{TrainMonths: 12, ValidMonths: 3, TestMonths: 3, StepMonths: 3}

	exact := s.Count(times)
	est := s.EstimateCount(times[0], times[len(times)-1])
	if diff := est - exact; diff < -1 || diff > 1 {
		t.Fatalf("estimate %d too far from exact %d", est, exact)
	}
	if got := s.EstimateCount(start, start.AddDate(0, 5, 0)); got != 0 {
		t.Fatalf("estimate for short span = %d, want 0", got)
	}
}

func TestCheck(t *testing.T) {
	if err := split.Check(nil); !errors.Is(err, split.ErrNoTimestamps) {
		t.Fatalf("want ErrNoTimestamps, got %v", err)
	}
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := split.Check([]time.Time{t0, t0.Add(-time.Minute)}); !errors.Is(err, split.ErrUnsorted) {
		t.Fatalf("want ErrUnsorted, got %v", err)
	}
	if err := split.Check([]time.Time{t0, t0.Add(time.Minute)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSplitter_Validate(t *testing.T) {
	bad := []split.Splitter{
		{TrainMonths: 0, ValidMonths: 1, TestMonths: 1, StepMonths: 1},
		{TrainMonths: 1, ValidMonths: -1, TestMonths: 1, StepMonths: 1},
		{TrainMonths: 1, ValidMonths: 1, TestMonths: 0, StepMonths: 1},
		{TrainMonths: 1, ValidMonths: 1, TestMonths: 1, StepMonths: 0},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
	if err := (split.Splitter{TrainMonths: 1, ValidMonths: 1, TestMonths: 1, StepMonths: 1}).Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
