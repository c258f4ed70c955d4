package predict

import (
	"fmt"
	"sort"
	"sync"
)

// TrainerInfo describes a registered trainer.
type TrainerInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	info TrainerInfo
	new  func() Trainer
}

// Registry maps trainer names to constructors.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// DefaultRegistry holds the built-in trainers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TrainerInfo{
		Name:        "centroid",
		Description: "Nearest class mean over the last feature step and the sequence mean. Deterministic, no hyperparameters.",
	}, func() Trainer { return NewCentroidTrainer() })
	return r
}

func (r *Registry) Register(info TrainerInfo, newFn func() Trainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.Name] = entry{info: info, new: newFn}
}

// Lookup returns a fresh trainer for name.
func (r *Registry) Lookup(name string) (Trainer, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown trainer %q (available: %v)", name, r.Names())
	}
	return e.new(), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) List() []TrainerInfo {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TrainerInfo, len(names))
	for i, n := range names {
		out[i] = r.entries[n].info
	}
	return out
}
