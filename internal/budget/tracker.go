// Package budget tracks token and cost consumption for a run, broken down
// by the component that spent it.
package budget

import (
	"sort"
	"sync"
	"time"
)

// Usage is the accumulated consumption for one component.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Calls        int
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// ModelPricing defines cost per million tokens for a model.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost computes the USD cost of a token count under this pricing.
func (p ModelPricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1e6*p.InputPer1M + float64(outputTokens)/1e6*p.OutputPer1M
}

// Tracker accumulates run-level usage per component. Safe for concurrent
// use: the oracle adapter reports usage from whatever goroutine invoked it.
type Tracker struct {
	mu      sync.RWMutex
	started time.Time
	byName  map[string]*Usage
}

// NewTracker creates a tracker with the run clock started now.
func NewTracker() *Tracker {
	return &Tracker{
		started: time.Now(),
		byName:  make(map[string]*Usage),
	}
}

// Add records one call's consumption against a component.
func (t *Tracker) Add(component string, inputTokens, outputTokens int64, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.byName[component]
	if !ok {
		u = &Usage{}
		t.byName[component] = u
	}
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.CostUSD += costUSD
	u.Calls++
}

// Component returns the accumulated usage for one component.
func (t *Tracker) Component(name string) Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if u, ok := t.byName[name]; ok {
		return *u
	}
	return Usage{}
}

// Components returns the tracked component names, sorted.
func (t *Tracker) Components() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total returns the run-wide accumulated usage.
func (t *Tracker) Total() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total Usage
	for _, u := range t.byName {
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.CostUSD += u.CostUSD
		total.Calls += u.Calls
	}
	return total
}

// BurnRate returns tokens per minute and cost per hour since the tracker
// started. Both are zero until any usage is recorded.
func (t *Tracker) BurnRate() (tokensPerMinute, costPerHour float64) {
	total := t.Total()
	minutes := time.Since(t.startTime()).Minutes()
	if minutes <= 0 || total.Calls == 0 {
		return 0, 0
	}
	return float64(total.TotalTokens()) / minutes, total.CostUSD / minutes * 60
}

func (t *Tracker) startTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// DefaultPricing returns per-model pricing in USD per million tokens.
func DefaultPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"opus":   {InputPer1M: 15.00, OutputPer1M: 75.00},
		"sonnet": {InputPer1M: 3.00, OutputPer1M: 15.00},
		"haiku":  {InputPer1M: 1.00, OutputPer1M: 5.00},
	}
}
