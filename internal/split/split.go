package split

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"
)

var (
	ErrNoTimestamps = errors.New("no timestamps")
	ErrUnsorted     = errors.New("timestamps are not sorted ascending")
)

// Splitter generates walk-forward (train, valid, test) windows over calendar months.
// All durations are whole months; a window advances by StepMonths.
type Splitter struct {
	TrainMonths int
	ValidMonths int
	TestMonths  int
	StepMonths  int

	// Location is the calendar used for day truncation and month arithmetic.
	// Nil means UTC.
	Location *time.Location
}

// IndexRange is a half-open range [Start, End) of bar positions.
type IndexRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r IndexRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r IndexRange) Empty() bool { return r.Len() == 0 }

// Window is one walk-forward split. Boundaries are instants: train covers
// [TrainStart, ValidStart), valid [ValidStart, TestStart), test [TestStart, TestEnd).
type Window struct {
	Index int `json:"index"`

	TrainStart time.Time `json:"train_start"`
	ValidStart time.Time `json:"valid_start"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`

	Train IndexRange `json:"train"`
	Valid IndexRange `json:"valid"`
	Test  IndexRange `json:"test"`
}

func (s Splitter) Validate() error {
	if s.TrainMonths <= 0 {
		return errors.New("train_months must be > 0")
	}
	if s.ValidMonths <= 0 {
		return errors.New("valid_months must be > 0")
	}
	if s.TestMonths <= 0 {
		return errors.New("test_months must be > 0")
	}
	if s.StepMonths <= 0 {
		return errors.New("step_months must be > 0")
	}
	return nil
}

func (s Splitter) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Check rejects inputs the splitter cannot reason about.
func Check(times []time.Time) error {
	if len(times) == 0 {
		return ErrNoTimestamps
	}
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return fmt.Errorf("%w: index %d (%s < %s)", ErrUnsorted, i, times[i], times[i-1])
		}
	}
	return nil
}

// Windows returns the lazy window sequence for times, which must be non-empty and
// sorted (see Check). Each range call re-derives the windows from scratch.
// When no window fits inside the series the sequence is empty.
func (s Splitter) Windows(times []time.Time) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if len(times) == 0 {
			return
		}
		loc := s.loc()
		first := times[0].In(loc)
		end := times[len(times)-1]
		span := s.TrainMonths + s.ValidMonths + s.TestMonths

		cur := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		for k := 0; !AddMonths(cur, span).After(end); k++ {
			t0 := cur
			t1 := AddMonths(t0, s.TrainMonths)
			v1 := AddMonths(t1, s.ValidMonths)
			s1 := AddMonths(v1, s.TestMonths)
			w := Window{
				Index:      k,
				TrainStart: t0,
				ValidStart: t1,
				TestStart:  v1,
				TestEnd:    s1,
				Train:      rangeBetween(times, t0, t1),
				Valid:      rangeBetween(times, t1, v1),
				Test:       rangeBetween(times, v1, s1),
			}
			if !yield(w) {
				return
			}
			cur = AddMonths(cur, s.StepMonths)
		}
	}
}

// Collect materialises every window.
func (s Splitter) Collect(times []time.Time) []Window {
	var out []Window
	for w := range s.Windows(times) {
		out = append(out, w)
	}
	return out
}

// Count is the exact number of windows Windows would produce.
func (s Splitter) Count(times []time.Time) int {
	n := 0
	for range s.Windows(times) {
		n++
	}
	return n
}

// EstimateCount approximates the window count from the covered duration using an
// average month of 30.44 days. It is an estimate only: calendar months vary in
// length, so it can disagree with Count by one or more windows.
func (s Splitter) EstimateCount(start, end time.Time) int {
	months := end.Sub(start).Hours() / 24 / 30.44
	span := float64(s.TrainMonths + s.ValidMonths + s.TestMonths)
	n := int((months-span)/float64(s.StepMonths)) + 1
	if months < span || n < 0 {
		return 0
	}
	return n
}

// AddMonths adds n calendar months keeping the day of month, clamped to the last
// day of the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	month := time.Month(total + 1)
	if last := daysIn(y, month, t.Location()); d > last {
		d = last
	}
	return time.Date(y, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// rangeBetween returns the positions with lo <= times[i] < hi.
func rangeBetween(times []time.Time, lo, hi time.Time) IndexRange {
	start := sort.Search(len(times), func(i int) bool { return !times[i].Before(lo) })
	end := sort.Search(len(times), func(i int) bool { return !times[i].Before(hi) })
	return IndexRange{Start: start, End: end}
}
