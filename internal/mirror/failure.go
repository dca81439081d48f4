package mirror

import (
	"path"
	"sync"
)

// FailureState is the shared attempt counter of lazy-retry failures.
// One instance serves every file and every request of a server.
type FailureState struct {
	mu        sync.Mutex
	count     int
	threshold int
}

// NewFailureState returns a counter that lets the threshold-th attempt
// through. Thresholds below 1 are raised to 1.
func NewFailureState(threshold int) *FailureState {
	return &FailureState{threshold: max(threshold, 1)}
}

// Attempt counts one request. It returns false while the count is below
// the threshold. Reaching the threshold resets the count and returns true.
func (s *FailureState) Attempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count < s.threshold {
		return false
	}
	s.count = 0
	return true
}

// Reset sets the count back to zero.
func (s *FailureState) Reset() {
	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()
}

// Count returns the current count.
func (s *FailureState) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// InjectorState is the behavior applied to one file.
type InjectorState int

const (
	StateHealthy InjectorState = iota
	StateFailingByCount
	StateFailingPermanently
	StateCorrupting
)

func (st InjectorState) String() string {
	switch st {
	case StateFailingByCount:
		return "failing-by-count"
	case StateFailingPermanently:
		return "failing-permanently"
	case StateCorrupting:
		return "corrupting"
	}
	return "healthy"
}

func stateForMode(m FailureMode) InjectorState {
	switch m {
	case FailureNotFound:
		return StateFailingPermanently
	case FailureCorrupt:
		return StateCorrupting
	case FailureLazy:
		return StateFailingByCount
	}
	return StateHealthy
}

// Decision is what the router does with a request after injection.
type Decision int

const (
	DecisionServe Decision = iota
	DecisionNotFound
	DecisionCorrupt
)

// FailureInjector decides per file name whether a request fails.
type FailureInjector struct {
	state     InjectorState
	broken    map[string]struct{}
	overrides map[string]InjectorState
	counter   *FailureState
}

// NewFailureInjector builds an injector from cfg. Lazy-retry decisions go
// through counter.
func NewFailureInjector(cfg FailureConfig, counter *FailureState) *FailureInjector {
	fi := &FailureInjector{
		state:     stateForMode(cfg.Mode),
		broken:    make(map[string]struct{}, len(cfg.Broken)),
		overrides: make(map[string]InjectorState, len(cfg.Overrides)),
		counter:   counter,
	}
	for _, name := range cfg.Broken {
		fi.broken[name] = struct{}{}
	}
	for name, mode := range cfg.Overrides {
		fi.overrides[name] = stateForMode(mode)
	}
	return fi
}

// StateFor returns the state applied to the file name.
func (fi *FailureInjector) StateFor(filename string) InjectorState {
	if st, ok := fi.overrides[filename]; ok {
		return st
	}
	if _, ok := fi.broken[filename]; ok {
		return fi.state
	}
	return StateHealthy
}

// Decide returns the decision for a request path. Only the final path
// segment is matched against the broken set.
func (fi *FailureInjector) Decide(urlPath string) Decision {
	switch fi.StateFor(path.Base(urlPath)) {
	case StateFailingPermanently:
		return DecisionNotFound
	case StateCorrupting:
		return DecisionCorrupt
	case StateFailingByCount:
		if fi.counter.Attempt() {
			return DecisionServe
		}
		return DecisionNotFound
	}
	return DecisionServe
}
