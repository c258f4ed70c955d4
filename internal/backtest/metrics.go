package backtest

import (
	"encoding/json"
	"math"
)

// ProfitFactorCap is written in place of an infinite profit factor when a format
// cannot carry infinity (JSON).
const ProfitFactorCap = 999.0

// Metrics summarises a trade list. When Trades is zero the other fields are
// meaningless and are not serialised.
type Metrics struct {
	Trades int

	WinRate float64
	// ProfitFactor is +Inf when there are no losing trades.
	ProfitFactor float64
	RewardRisk   float64
	TotalReturn  float64
	MaxDrawdown  float64
}

func (m Metrics) Empty() bool { return m.Trades == 0 }

// InfiniteProfitFactor reports the "no losses" sentinel.
func (m Metrics) InfiniteProfitFactor() bool {
	return m.Trades > 0 && math.IsInf(m.ProfitFactor, 1)
}

// ComputeMetrics derives aggregate statistics from scratch.
func ComputeMetrics(trades []Trade) Metrics {
	n := len(trades)
	if n == 0 {
		return Metrics{}
	}

	var wins, losses int
	var grossWin, grossLoss float64
	equity, peak := 1.0, math.Inf(-1)
	maxDD := 0.0
	for _, t := range trades {
		switch {
		case t.Return > 0:
			wins++
			grossWin += t.Return
		case t.Return < 0:
			losses++
			grossLoss += -t.Return
		}
		// the curve starts at the first trade's equity, not at 1.0
		equity *= 1 + t.Return
		if equity > peak {
			peak = equity
		}
		if dd := equity/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}

	m := Metrics{
		Trades:       n,
		WinRate:      float64(wins) / float64(n),
		ProfitFactor: math.Inf(1),
		TotalReturn:  equity - 1,
		MaxDrawdown:  maxDD,
	}
	if losses > 0 {
		m.ProfitFactor = grossWin / grossLoss
		avgLoss := grossLoss / float64(losses)
		avgWin := 0.0
		if wins > 0 {
			avgWin = grossWin / float64(wins)
		}
		if avgLoss > 0 {
			m.RewardRisk = avgWin / avgLoss
		}
	}
	return m
}

type metricsJSON struct {
	Trades               int      `json:"trades"`
	WinRate              *float64 `json:"win_rate,omitempty"`
	ProfitFactor         *float64 `json:"profit_factor,omitempty"`
	ProfitFactorInfinite bool     `json:"profit_factor_infinite,omitempty"`
	RewardRisk           *float64 `json:"rr,omitempty"`
	TotalReturn          *float64 `json:"total_return_equity,omitempty"`
	MaxDrawdown          *float64 `json:"max_drawdown,omitempty"`
}

// MarshalJSON writes {"trades":0} for an empty run and substitutes ProfitFactorCap
// for an infinite profit factor, flagging it with profit_factor_infinite.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := metricsJSON{Trades: m.Trades}
	if !m.Empty() {
		pf := m.ProfitFactor
		if m.InfiniteProfitFactor() {
			pf = ProfitFactorCap
			out.ProfitFactorInfinite = true
		}
		out.WinRate = &m.WinRate
		out.ProfitFactor = &pf
		out.RewardRisk = &m.RewardRisk
		out.TotalReturn = &m.TotalReturn
		out.MaxDrawdown = &m.MaxDrawdown
	}
	return json.Marshal(out)
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var in metricsJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*m = Metrics{Trades: in.Trades}
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	m.WinRate = deref(in.WinRate)
	m.ProfitFactor = deref(in.ProfitFactor)
	if in.ProfitFactorInfinite {
		m.ProfitFactor = math.Inf(1)
	}
	m.RewardRisk = deref(in.RewardRisk)
	m.TotalReturn = deref(in.TotalReturn)
	m.MaxDrawdown = deref(in.MaxDrawdown)
	return nil
}
