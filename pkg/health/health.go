package health

import (
	"sort"
	"sync"
)

// CheckFunc reports whether a dependency is healthy, with a short human-readable message.
type CheckFunc func() (bool, string)

// Result is the outcome of one named check.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Checker runs a set of named checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// Register adds or replaces a check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll runs every check concurrently. ok is false if any check fails.
func (c *Checker) RunAll() (bool, map[string]Result) {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(checks))
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			ok, msg := fn()
			mu.Lock()
			results[name] = Result{OK: ok, Message: msg}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	allOK := true
	for _, r := range results {
		if !r.OK {
			allOK = false
		}
	}
	return allOK, results
}
