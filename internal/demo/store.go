// Package demo is a small application built on webmod: greetings, named
// counters, an upload echo, a server-sent event ticker and an admin area
// guarded by a short-circuiting middleware.
package demo

import (
	"sort"
	"sync"
)

// CounterStore keeps named counters. It is shared by every request.
type CounterStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounterStore creates an empty store.
func NewCounterStore() *CounterStore {
	return &CounterStore{counts: make(map[string]int)}
}

// Incr adds one to name and returns the new value.
func (s *CounterStore) Incr(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++
	return s.counts[name]
}

// Get returns the value of name.
func (s *CounterStore) Get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// Reset clears every counter and returns how many there were.
func (s *CounterStore) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.counts)
	s.counts = make(map[string]int)
	return n
}

// Snapshot copies every counter.
func (s *CounterStore) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Names lists counter names in order.
func (s *CounterStore) Names() []string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Greeter builds greetings and counts them.
type Greeter struct {
	Salutation string
	store      *CounterStore
}

// Greet returns the greeting for name.
func (g *Greeter) Greet(name string) string {
	g.store.Incr("greetings")
	return g.Salutation + ", " + name + "!"
}

// AdminSettings holds the token the admin area expects.
type AdminSettings struct {
	Token string
}
