package predict

import (
	"context"
	"fmt"
	"math"

	"wf-backtest/internal/backtest"
	"wf-backtest/internal/label"
)

// CentroidTrainer fits one centroid per class on an embedding made of the last
// step of a sequence followed by the sequence mean. Prediction is a softmax over
// negative squared distances scaled by the embedding dimension.
type CentroidTrainer struct{}

func NewCentroidTrainer() *CentroidTrainer { return &CentroidTrainer{} }

func (t *CentroidTrainer) Name() string { return "centroid" }

// FitReport describes a fitted centroid model.
type FitReport struct {
	Samples       int                   `json:"samples"`
	ClassCounts   [label.NumClasses]int `json:"class_counts"`
	ValidSamples  int                   `json:"valid_samples"`
	ValidAccuracy float64               `json:"valid_accuracy"`
}

// CentroidModel is the Predictor produced by CentroidTrainer.
type CentroidModel struct {
	width     int
	centroids [label.NumClasses][]float64 // nil for classes absent from training
	Report    FitReport
}

func (t *CentroidTrainer) Fit(ctx context.Context, train, valid *Dataset) (Predictor, error) {
	samples := train.Samples()
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	width := train.Width()
	dim := 2 * width

	var sums [label.NumClasses][]float64
	m := &CentroidModel{width: width}
	for i, s := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c := s.Class.Index()
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		embedInto(sums[c], s.Seq, true)
		m.Report.ClassCounts[c]++
	}
	for c := range sums {
		if sums[c] == nil {
			continue
		}
		n := float64(m.Report.ClassCounts[c])
		for j := range sums[c] {
			sums[c][j] /= n
		}
		m.centroids[c] = sums[c]
	}
	m.Report.Samples = len(samples)

	if vs := valid.Samples(); len(vs) > 0 && valid.Width() == width {
		seqs := make([]Sequence, len(vs))
		for i, s := range vs {
			seqs[i] = s.Seq
		}
		proba, err := m.Predict(ctx, seqs)
		if err != nil {
			return nil, err
		}
		hits := 0
		for i, p := range proba {
			if argmax(p) == vs[i].Class.Index() {
				hits++
			}
		}
		m.Report.ValidSamples = len(vs)
		m.Report.ValidAccuracy = float64(hits) / float64(len(vs))
	}
	return m, nil
}

func (m *CentroidModel) Predict(ctx context.Context, batch []Sequence) ([]backtest.Probabilities, error) {
	dim := 2 * m.width
	out := make([]backtest.Probabilities, len(batch))
	emb := make([]float64, dim)
	for i, seq := range batch {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(seq) == 0 || len(seq[0]) != m.width {
			return nil, fmt.Errorf("sequence %d: %w", i, ErrWidthMismatch)
		}
		for j := range emb {
			emb[j] = 0
		}
		embedInto(emb, seq, false)

		var logits [label.NumClasses]float64
		best := math.Inf(-1)
		for c, cen := range m.centroids {
			if cen == nil {
				continue
			}
			var d2 float64
			for j, v := range emb {
				diff := v - cen[j]
				d2 += diff * diff
			}
			logits[c] = -d2 / float64(dim)
			if logits[c] > best {
				best = logits[c]
			}
		}
		var z float64
		for c, cen := range m.centroids {
			if cen == nil {
				continue
			}
			out[i][c] = math.Exp(logits[c] - best)
			z += out[i][c]
		}
		for c := range out[i] {
			out[i][c] /= z
		}
	}
	return out, nil
}

// embedInto writes (or adds, when accumulate is set) the last step followed by the
// per-column mean of seq into dst.
func embedInto(dst []float64, seq Sequence, accumulate bool) {
	w := len(seq[0])
	last := seq[len(seq)-1]
	n := float64(len(seq))
	for j := 0; j < w; j++ {
		var mean float64
		for _, row := range seq {
			mean += row[j]
		}
		mean /= n
		if accumulate {
			dst[j] += last[j]
			dst[w+j] += mean
		} else {
			dst[j] = last[j]
			dst[w+j] = mean
		}
	}
}

func argmax(p backtest.Probabilities) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}
