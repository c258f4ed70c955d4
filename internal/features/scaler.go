package features

import (
	"errors"
	"math"
)

const scalerEps = 1e-6

// Scaler standardises each column with statistics from the rows it was fitted on.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column mean and population standard deviation (+eps).
func Fit(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("scaler: no rows to fit")
	}
	w := len(rows[0])
	s := &Scaler{Mean: make([]float64, w), Std: make([]float64, w)}
	for _, r := range rows {
		for k := 0; k < w; k++ {
			s.Mean[k] += r[k]
		}
	}
	n := float64(len(rows))
	for k := range s.Mean {
		s.Mean[k] /= n
	}
	for _, r := range rows {
		for k := 0; k < w; k++ {
			d := r[k] - s.Mean[k]
			s.Std[k] += d * d
		}
	}
	for k := range s.Std {
		s.Std[k] = math.Sqrt(s.Std[k]/n) + scalerEps
	}
	return s, nil
}

// Transform returns standardised copies of rows.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		z := make([]float64, len(r))
		for k, v := range r {
			z[k] = (v - s.Mean[k]) / s.Std[k]
		}
		out[i] = z
	}
	return out
}
