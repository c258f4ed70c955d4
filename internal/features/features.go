package features

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/markcheno/go-talib"

	"wf-backtest/internal/model"
)

// Config selects the indicator set. Periods are in bars.
type Config struct {
	ReturnLags []int `yaml:"return_lags"`
	EMAPeriods []int `yaml:"ema_periods"`
	RSIPeriod  int   `yaml:"rsi_period"`
}

func (c Config) Validate() error {
	for _, l := range c.ReturnLags {
		if l <= 0 {
			return fmt.Errorf("return lag %d must be > 0", l)
		}
	}
	for _, p := range c.EMAPeriods {
		if p <= 1 {
			return fmt.Errorf("ema period %d must be > 1", p)
		}
	}
	if c.RSIPeriod <= 1 {
		return errors.New("rsi_period must be > 1")
	}
	return nil
}

// Matrix holds one feature row per bar. Rows before Warmup contain NaN and must be
// trimmed before use.
type Matrix struct {
	Names  []string
	Rows   [][]float64
	Warmup int
}

func (m *Matrix) Width() int { return len(m.Names) }

// Build derives the feature matrix from a validated series that carries ATR.
func Build(s *model.Series, cfg Config) (*Matrix, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !s.HasATR {
		return nil, errors.New("series has no atr column")
	}
	n := s.Len()
	closes := s.Closes()

	var cols []column
	add := func(name string, v []float64) { cols = append(cols, column{name, v}) }

	logret := make([]float64, n)
	logret[0] = math.NaN()
	for i := 1; i < n; i++ {
		logret[i] = math.Log(closes[i] / closes[i-1])
	}
	add("logret", logret)

	for _, h := range cfg.ReturnLags {
		v := nanSlice(n)
		for i := h + 1; i < n; i++ {
			sum := 0.0
			for k := i - h; k < i; k++ {
				sum += logret[k]
			}
			v[i] = sum
		}
		add(fmt.Sprintf("logret_lag_%d", h), v)
	}

	atr, atrNorm := make([]float64, n), make([]float64, n)
	for i, b := range s.Bars {
		atr[i] = b.ATR
		atrNorm[i] = b.ATR / b.Close
	}
	add("atr", atr)
	add("atr_norm", atrNorm)

	for _, p := range cfg.EMAPeriods {
		v := nanSlice(n)
		if n >= p {
			ema := talib.Ema(closes, p)
			for i := p - 1; i < n; i++ {
				v[i] = (closes[i] - ema[i]) / closes[i]
			}
		}
		add(fmt.Sprintf("ema_%d_gap", p), v)
	}

	rsi := nanSlice(n)
	if n > cfg.RSIPeriod {
		raw := talib.Rsi(closes, cfg.RSIPeriod)
		for i := cfg.RSIPeriod; i < n; i++ {
			rsi[i] = clip(raw[i]/100, 0, 1)
		}
	}
	add("rsi", rsi)

	body, hl := make([]float64, n), make([]float64, n)
	for i, b := range s.Bars {
		rng := b.High - b.Low
		if rng != 0 {
			body[i] = clip((b.Close-b.Open)/rng, -5, 5)
		}
		hl[i] = rng / b.Close
	}
	add("body_norm", body)
	add("hl_range", hl)

	todSin, todCos, dowSin, dowCos := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range s.Bars {
		ts := b.Time.UTC()
		minute := float64(ts.Hour()*60 + ts.Minute())
		todSin[i] = math.Sin(2 * math.Pi * minute / 1440)
		todCos[i] = math.Cos(2 * math.Pi * minute / 1440)
		dow := float64(mondayFirst(ts.Weekday()))
		dowSin[i] = math.Sin(2 * math.Pi * dow / 7)
		dowCos[i] = math.Cos(2 * math.Pi * dow / 7)
	}
	add("tod_sin", todSin)
	add("tod_cos", todCos)
	add("dow_sin", dowSin)
	add("dow_cos", dowCos)

	m := &Matrix{Rows: make([][]float64, n)}
	for _, c := range cols {
		m.Names = append(m.Names, c.name)
	}
	for i := 0; i < n; i++ {
		row := make([]float64, len(cols))
		complete := true
		for k, c := range cols {
			row[k] = c.values[i]
			if !model.IsFinite(row[k]) {
				complete = false
			}
		}
		m.Rows[i] = row
		if !complete {
			m.Warmup = i + 1
		}
	}
	if m.Warmup >= n {
		return nil, fmt.Errorf("series of %d bars is shorter than the feature warm-up", n)
	}
	return m, nil
}

// Trim drops the warm-up prefix from both the matrix and the series so that rows and
// bars stay aligned.
func Trim(m *Matrix, s *model.Series) (*Matrix, *model.Series) {
	out := &Matrix{Names: slices.Clone(m.Names), Rows: m.Rows[m.Warmup:]}
	return out, s.Slice(m.Warmup, s.Len())
}

type column struct {
	name   string
	values []float64
}

func nanSlice(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// mondayFirst numbers weekdays Monday=0 .. Sunday=6.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}
