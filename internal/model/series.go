package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrEmptySeries = errors.New("series is empty")
	ErrUnsorted    = errors.New("timestamps are not strictly increasing")
	ErrNonFinite   = errors.New("value is not finite")
)

// Bar is one OHLCV sample. ATR is zero when the source carried no ATR column.
type Bar struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	ATR    float64   `json:"atr,omitempty"`
}

// Series is a uniform-interval bar series, already timezone-normalized and gap-filled
// upstream. It is read-only once validated and may be shared across windows.
type Series struct {
	Symbol string
	Bars   []Bar
	HasATR bool
}

// ValidationError pinpoints the first bar that violates the ingestion schema.
type ValidationError struct {
	Index  int
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bar %d: %s: %v", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Validate checks the schema once at the boundary so simulation code can assume
// finite, ordered input.
func (s *Series) Validate() error {
	if s.Len() == 0 {
		return ErrEmptySeries
	}
	for i, b := range s.Bars {
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return &ValidationError{Index: i, Field: "timestamp", Reason: ErrUnsorted}
		}
		for _, f := range []struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume}} {
			if !IsFinite(f.v) {
				return &ValidationError{Index: i, Field: f.name, Reason: ErrNonFinite}
			}
		}
		if b.Volume < 0 {
			return &ValidationError{Index: i, Field: "volume", Reason: errors.New("must be >= 0")}
		}
		if s.HasATR {
			if !IsFinite(b.ATR) {
				return &ValidationError{Index: i, Field: "atr", Reason: ErrNonFinite}
			}
			if b.ATR <= 0 {
				return &ValidationError{Index: i, Field: "atr", Reason: errors.New("must be > 0")}
			}
		}
	}
	return nil
}

// Slice returns a view over bars [lo, hi).
func (s *Series) Slice(lo, hi int) *Series {
	return &Series{Symbol: s.Symbol, Bars: s.Bars[lo:hi], HasATR: s.HasATR}
}

func (s *Series) Times() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

func (s *Series) ATRs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.ATR
	}
	return out
}

func (s *Series) Start() time.Time { return s.Bars[0].Time }
func (s *Series) End() time.Time   { return s.Bars[len(s.Bars)-1].Time }

func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
