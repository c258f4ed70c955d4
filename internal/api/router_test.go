package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"wf-backtest/internal/api"
	"wf-backtest/internal/api/handlers"
	"wf-backtest/internal/api/models"
	"wf-backtest/internal/data"
	"wf-backtest/internal/predict"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	w := do(t, api.NewRouter(api.Options{}), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func prices(closes ...float64) []map[string]any {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]map[string]any, len(closes))
	for i, c := range closes {
		out[i] = map[string]any{"timestamp": t0.Add(time.Duration(i) * 5 * time.Minute), "close": c, "atr": 1.0}
	}
	return out
}

func TestBacktest(t *testing.T) {
	r := api.NewRouter(api.Options{})
	body := map[string]any{
		"prices":  prices(100, 101, 103, 99, 98),
		"proba":   [][3]float64{{0.1, 0.1, 0.8}, {0.1, 0.8, 0.1}, {0.1, 0.8, 0.1}, {0.1, 0.8, 0.1}, {0.1, 0.8, 0.1}},
		"params":  map[string]any{"proba_threshold": 0.5, "atr_mult_tp": 2, "atr_mult_sl": 1, "max_holding": 3},
		"options": map[string]any{"include_trades": true},
	}
	w := do(t, r, http.MethodPost, "/api/v1/backtest", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[models.BacktestResponse](t, w)
	if resp.Metrics.Trades != 1 || len(resp.Trades) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	tr := resp.Trades[0]
	if tr.Side != "LONG" || tr.Reason != "TAKE_PROFIT" || math.Abs(tr.Return-0.03) > 1e-9 {
		t.Fatalf("trade = %+v", tr)
	}
}

func TestBacktest_Errors(t *testing.T) {
	r := api.NewRouter(api.Options{})
	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{"missing prices", map[string]any{"proba": [][3]float64{}, "params": map[string]any{"max_holding": 3}}, "INVALID_REQUEST"},
		{"length mismatch", map[string]any{
			"prices": prices(100, 101, 102, 103),
			"proba":  [][3]float64{{0, 0, 1}},
			"params": map[string]any{"proba_threshold": 0.5, "max_holding": 3},
		}, "LENGTH_MISMATCH"},
		{"bad threshold", map[string]any{
			"prices": prices(100, 101),
			"proba":  [][3]float64{{0, 0, 1}, {0, 0, 1}},
			"params": map[string]any{"proba_threshold": 2, "max_holding": 3},
		}, "INVALID_INPUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/backtest", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if got := decode[models.ErrorResponse](t, w).Error.Code; got != tc.code {
				t.Fatalf("code = %s, want %s", got, tc.code)
			}
		})
	}
}

func TestCompareBacktests(t *testing.T) {
	r := api.NewRouter(api.Options{})
	body := map[string]any{
		"prices": prices(100, 101, 103, 99, 98),
		"proba":  [][3]float64{{0.1, 0.1, 0.8}, {0.1, 0.8, 0.1}, {0.1, 0.8, 0.1}, {0.1, 0.8, 0.1}},
		"variations": []map[string]any{
			{"name": "tight", "params": map[string]any{"proba_threshold": 0.5, "atr_mult_tp": 2, "atr_mult_sl": 1, "max_holding": 3}},
			{"name": "strict", "params": map[string]any{"proba_threshold": 0.9, "atr_mult_tp": 2, "atr_mult_sl": 1, "max_holding": 3}},
			{"name": "broken", "params": map[string]any{"proba_threshold": 0.5, "fee_bps": -1, "max_holding": 3}},
		},
	}
	w := do(t, r, http.MethodPost, "/api/v1/backtest/compare", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[models.CompareBacktestResponse](t, w)
	if len(resp.Comparison) != 3 {
		t.Fatalf("comparison = %+v", resp.Comparison)
	}
	if resp.Comparison[0].Metrics.Trades != 1 || resp.Comparison[1].Metrics.Trades != 0 {
		t.Fatalf("comparison = %+v", resp.Comparison)
	}
	if resp.Comparison[2].Error == "" || resp.Comparison[2].Metrics != nil {
		t.Fatalf("invalid variation should report an error: %+v", resp.Comparison[2])
	}
}

func TestLabels(t *testing.T) {
	r := api.NewRouter(api.Options{})
	w := do(t, r, http.MethodPost, "/api/v1/labels", map[string]any{
		"closes": []float64{100, 101, 102, 101, 100}, "max_holding": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[models.LabelResponse](t, w)
	if len(resp.Labels) != 5 || resp.Defined != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Labels[0] == nil || *resp.Labels[0] != 1 || resp.Labels[2] == nil || *resp.Labels[2] != -1 {
		t.Fatalf("labels = %v", resp.Labels)
	}
	if resp.Labels[3] != nil || resp.Labels[4] != nil {
		t.Fatalf("tail labels must be null")
	}
	if resp.Counts.Up != 1 || resp.Counts.Flat != 1 || resp.Counts.Down != 1 {
		t.Fatalf("counts = %+v", resp.Counts)
	}
}

func TestWindows(t *testing.T) {
	r := api.NewRouter(api.Options{})
	w := do(t, r, http.MethodPost, "/api/v1/windows", map[string]any{
		"start": "2022-01-01T00:00:00Z",
		"end":   "2022-12-31T23:00:00Z",
		"split": map[string]int{"train_months": 3, "valid_months": 1, "test_months": 1, "step_months": 1},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[models.WindowsResponse](t, w)
	if resp.Count != 7 || len(resp.Windows) != 7 || resp.Bars != 8760 {
		t.Fatalf("resp count=%d bars=%d", resp.Count, resp.Bars)
	}
	if d := resp.Estimate - resp.Count; d < -1 || d > 1 {
		t.Fatalf("estimate %d too far from %d", resp.Estimate, resp.Count)
	}

	bad := do(t, r, http.MethodPost, "/api/v1/windows", map[string]any{
		"start": "2022-01-01T00:00:00Z", "end": "2022-12-31T23:00:00Z", "interval": "-5m",
		"split": map[string]int{"train_months": 3, "valid_months": 1, "test_months": 1, "step_months": 1},
	})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("negative interval status = %d", bad.Code)
	}
}

func TestTrainers(t *testing.T) {
	w := do(t, api.NewRouter(api.Options{}), http.MethodGet, "/api/v1/trainers", nil)
	resp := decode[models.TrainersResponse](t, w)
	if len(resp.Trainers) != 1 || resp.Trainers[0].Name != "centroid" {
		t.Fatalf("trainers = %+v", resp.Trainers)
	}
}

func TestNoRoute(t *testing.T) {
	w := do(t, api.NewRouter(api.Options{}), http.MethodGet, "/api/v1/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := api.NewRouter(api.Options{AllowedOrigins: []string{"http://localhost:5173"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/backtest", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

// writeBars writes days of hourly bars without an atr column.
func writeBars(t *testing.T, dir string, days int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	t0 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := 100.0
	for i := 0; i < days*24; i++ {
		c := 100 + 10*math.Sin(float64(i)/50) + 0.5*math.Sin(float64(i)/7)
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,1\n", t0.Add(time.Duration(i)*time.Hour).Format(time.RFC3339),
			prev, math.Max(prev, c)+0.5, math.Min(prev, c)-0.5, c)
		prev = c
	}
	if err := os.WriteFile(filepath.Join(dir, "bars.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

const runConfig = `
split: {train_months: 3, valid_months: 1, test_months: 1, step_months: 1}
feature: {atr_period: 14, return_lags: [1, 3], ema_periods: [9, 21], rsi_period: 14}
label: {max_holding: 12, min_move_bps: 5}
train: {trainer: centroid, seq_len: 8}
trade: {proba_threshold: 0.4, max_holding: 12}
run: {workers: 2}
`

func newRunServer(t *testing.T, reg *predict.Registry) (http.Handler, *handlers.RunHandler, string) {
	t.Helper()
	dataDir, outDir := t.TempDir(), t.TempDir()
	writeBars(t, dataDir, 210)
	runs := handlers.NewRunHandler(context.Background(), handlers.RunHandlerOptions{
		Registry: reg,
		DataDir:  dataDir,
		OutDir:   outDir,
	})
	t.Cleanup(runs.Shutdown)
	return api.NewRouter(api.Options{Runs: runs, Registry: reg}), runs, outDir
}

func TestRuns_Lifecycle(t *testing.T) {
	r, runs, outDir := newRunServer(t, nil)

	w := do(t, r, http.MethodPost, "/api/v1/runs", map[string]any{"data_path": "bars.csv", "config": runConfig})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	created := decode[models.RunResponse](t, w)
	if created.ID == "" || created.Trainer != "centroid" {
		t.Fatalf("created = %+v", created)
	}
	runs.Wait()

	got := decode[models.RunResponse](t, do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID, nil))
	if got.Status != models.RunCompleted || got.Result == nil {
		t.Fatalf("run = %+v", got)
	}
	if got.Result.Generated != 2 || len(got.Result.Windows) != 2 {
		t.Fatalf("generated=%d windows=%d", got.Result.Generated, len(got.Result.Windows))
	}

	tw := do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID+"/trades/0?format=csv", nil)
	if tw.Code != http.StatusOK || !strings.HasPrefix(tw.Body.String(), "entry_index,") {
		t.Fatalf("trades csv = %d %q", tw.Code, tw.Body.String())
	}
	if miss := do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID+"/trades/9", nil); miss.Code != http.StatusNotFound {
		t.Fatalf("missing window status = %d", miss.Code)
	}

	rank := decode[models.RankResponse](t, do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID+"/rank?limit=1", nil))
	if rank.Count != 1 || rank.Rankings[0].Rank != 1 {
		t.Fatalf("rank = %+v", rank)
	}

	list := do(t, r, http.MethodGet, "/api/v1/runs", nil)
	if !strings.Contains(list.Body.String(), created.ID) {
		t.Fatalf("list = %s", list.Body.String())
	}

	if _, err := os.Stat(filepath.Join(outDir, created.ID, "summary.json")); err != nil {
		t.Fatalf("summary.json not written: %v", err)
	}
}

func TestRuns_Rejects(t *testing.T) {
	r, _, _ := newRunServer(t, nil)
	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"escape", map[string]any{"data_path": "../bars.csv"}, http.StatusBadRequest, "INVALID_DATA_PATH"},
		{"absolute", map[string]any{"data_path": "/etc/passwd"}, http.StatusBadRequest, "INVALID_DATA_PATH"},
		{"missing", map[string]any{"data_path": "nope.csv"}, http.StatusNotFound, "DATA_NOT_FOUND"},
		{"bad config", map[string]any{"data_path": "bars.csv", "config": "train: {seq_len: 0}"}, http.StatusBadRequest, "INVALID_CONFIG"},
		{"unknown trainer", map[string]any{"data_path": "bars.csv", "config": "train: {trainer: lstm}"}, http.StatusBadRequest, "UNKNOWN_TRAINER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/runs", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			if got := decode[models.ErrorResponse](t, w).Error.Code; got != tc.code {
				t.Fatalf("code = %s, want %s", got, tc.code)
			}
		})
	}
	if w := do(t, r, http.MethodGet, "/api/v1/runs/does-not-exist", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown run status = %d", w.Code)
	}
}

func TestRuns_SymbolDoesNotLeakIntoCache(t *testing.T) {
	dataDir := t.TempDir()
	writeBars(t, dataDir, 210)
	cache := data.NewSeriesCache(time.Hour)
	runs := handlers.NewRunHandler(context.Background(), handlers.RunHandlerOptions{
		Cache:   cache,
		DataDir: dataDir,
	})
	t.Cleanup(runs.Shutdown)
	r := api.NewRouter(api.Options{Runs: runs})

	for _, sym := range []string{"AAA", "BBB"} {
		cfg := runConfig + "data: {symbol: " + sym + "}\n"
		if w := do(t, r, http.MethodPost, "/api/v1/runs", map[string]any{"data_path": "bars.csv", "config": cfg}); w.Code != http.StatusAccepted {
			t.Fatalf("%s: status = %d: %s", sym, w.Code, w.Body.String())
		}
	}
	runs.Wait()

	if cache.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1", cache.Len())
	}
	cached, err := cache.Load(filepath.Join(dataDir, "bars.csv"), 14)
	if err != nil {
		t.Fatal(err)
	}
	if cached.Symbol != "" {
		t.Fatalf("cached series symbol = %q, want empty", cached.Symbol)
	}
}

// blocking never finishes fitting until its context is cancelled.
type blocking struct{}

func (blocking) Name() string { return "blocking" }

func (blocking) Fit(ctx context.Context, _, _ *predict.Dataset) (predict.Predictor, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRuns_Cancel(t *testing.T) {
	reg := predict.DefaultRegistry()
	reg.Register(predict.TrainerInfo{Name: "blocking"}, func() predict.Trainer { return blocking{} })
	r, runs, _ := newRunServer(t, reg)

	cfg := strings.Replace(runConfig, "trainer: centroid", "trainer: blocking", 1)
	created := decode[models.RunResponse](t, do(t, r, http.MethodPost, "/api/v1/runs", map[string]any{"data_path": "bars.csv", "config": cfg}))

	if w := do(t, r, http.MethodDelete, "/api/v1/runs/"+created.ID, nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", w.Code)
	}
	runs.Wait()

	got := decode[models.RunResponse](t, do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID, nil))
	if got.Status != models.RunCancelled {
		t.Fatalf("status = %s (%s)", got.Status, got.Error)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/runs/"+created.ID+"/rank", nil); w.Code != http.StatusOK {
		t.Fatalf("rank after cancel = %d: partial results should be rankable", w.Code)
	}
}
