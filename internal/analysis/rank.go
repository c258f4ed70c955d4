package analysis

import "sort"

// RankedWindow is a window with its position in the ranking, 1 being best.
type RankedWindow struct {
	Rank int `json:"rank"`
	WindowMetrics
}

// RankWindows sorts windows descending by total return. Ties keep window order.
func RankWindows(results []WindowMetrics) []RankedWindow {
	out := make([]RankedWindow, len(results))
	for i, r := range results {
		out[i] = RankedWindow{WindowMetrics: r}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.TotalReturn > out[j].Metrics.TotalReturn
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
