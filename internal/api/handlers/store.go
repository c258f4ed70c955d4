package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/pipeline"
)

// Run is the server-side state of one walk-forward run.
type Run struct {
	mu       sync.RWMutex
	resp     models.RunResponse
	trades   map[int][]backtest.Trade
	cancel   context.CancelFunc
	finished time.Time
}

func newRun(resp models.RunResponse, cancel context.CancelFunc) *Run {
	return &Run{resp: resp, trades: make(map[int][]backtest.Trade), cancel: cancel}
}

// Snapshot copies the current state for serialisation.
func (r *Run) Snapshot() models.RunResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resp
}

func (r *Run) Trades(window int) ([]backtest.Trade, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trades[window]
	return t, ok
}

func (r *Run) Cancel() { r.cancel() }

func (r *Run) setStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resp.Status = status
}

func (r *Run) addWindow(w pipeline.WindowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[w.Window.Index] = w.Trades
}

func (r *Run) finish(status string, res *pipeline.RunResult, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resp.Status = status
	r.resp.Result = res
	if err != nil {
		r.resp.Error = err.Error()
	}
	r.resp.CompletedAt = &at
	r.finished = at
}

func (r *Run) done() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished, !r.finished.IsZero()
}

// RunStore keeps runs in memory. Finished runs expire ttl after completion;
// runs still in progress never expire.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
	ttl  time.Duration
	now  func() time.Time
}

func NewRunStore(ttl time.Duration) *RunStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RunStore{runs: make(map[string]*Run), ttl: ttl, now: time.Now}
}

func (s *RunStore) expired(r *Run, now time.Time) bool {
	at, ok := r.done()
	return ok && now.After(at.Add(s.ttl))
}

// Add stores r and drops expired runs.
func (s *RunStore) Add(r *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, old := range s.runs {
		if s.expired(old, now) {
			delete(s.runs, id)
		}
	}
	s.runs[r.Snapshot().ID] = r
}

func (s *RunStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok || s.expired(r, s.now()) {
		return nil, false
	}
	return r, true
}

// List returns live runs, newest first, without their results.
func (s *RunStore) List() []models.RunResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]models.RunResponse, 0, len(s.runs))
	for _, r := range s.runs {
		if s.expired(r, now) {
			continue
		}
		snap := r.Snapshot()
		snap.Result = nil
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
