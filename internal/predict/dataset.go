package predict

import "wf-backtest/internal/label"

// Dataset holds the scaled rows of one split. Sample k covers rows [k, k+SeqLen)
// and is labelled with the target of its last row.
type Dataset struct {
	Rows    [][]float64
	Targets []label.Target // aligned with Rows; nil for unlabelled sets
	SeqLen  int
}

// Sample is a sequence with a defined target.
type Sample struct {
	Seq   Sequence
	Class label.Class
}

// Len is the number of full sequences.
func (d *Dataset) Len() int {
	if d == nil || d.SeqLen <= 0 {
		return 0
	}
	n := len(d.Rows) - d.SeqLen + 1
	if n < 0 {
		return 0
	}
	return n
}

func (d *Dataset) Width() int {
	if d == nil || len(d.Rows) == 0 {
		return 0
	}
	return len(d.Rows[0])
}

func (d *Dataset) Sequence(k int) Sequence {
	return Sequence(d.Rows[k : k+d.SeqLen])
}

// Sequences returns every full sequence, labelled or not.
func (d *Dataset) Sequences() []Sequence {
	out := make([]Sequence, d.Len())
	for k := range out {
		out[k] = d.Sequence(k)
	}
	return out
}

// Samples returns the sequences whose last row has a defined target.
func (d *Dataset) Samples() []Sample {
	if d == nil || d.Targets == nil {
		return nil
	}
	var out []Sample
	for k := 0; k < d.Len(); k++ {
		t := d.Targets[k+d.SeqLen-1]
		if !t.Defined {
			continue
		}
		out = append(out, Sample{Seq: d.Sequence(k), Class: t.Class})
	}
	return out
}
