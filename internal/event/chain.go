// Package event provides ordered handler chains for the sync extension
// points and operation lifecycle notifications.
//
// Every dispatch passes a pointer to a mutable event through the chain.
// Handlers run in ascending priority order, ties in registration order, so
// a handler registered later at the same or a higher priority sees and may
// replace what earlier handlers wrote. Built-in defaults register at
// PriorityDefault and therefore always run first.
package event

import (
	"context"
	"math"
	"sort"
	"sync"
)

// PriorityDefault is the priority of built-in default handlers.
const PriorityDefault = math.MinInt32

// PriorityNormal is the priority for ordinary extension handlers.
const PriorityNormal = 0

// Handler processes one event. A returned error stops the chain.
type Handler[E any] func(ctx context.Context, e *E) error

type entry[E any] struct {
	name     string
	priority int
	seq      int
	fn       Handler[E]
}

// Chain is an ordered list of handlers for one event type.
// The zero value is ready to use.
type Chain[E any] struct {
	mu      sync.RWMutex
	entries []entry[E]
	seq     int
}

// Register adds a handler under a diagnostic name.
func (c *Chain[E]) Register(name string, priority int, fn Handler[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries = append(c.entries, entry[E]{name: name, priority: priority, seq: c.seq, fn: fn})
	sort.SliceStable(c.entries, func(i, j int) bool {
		if c.entries[i].priority != c.entries[j].priority {
			return c.entries[i].priority < c.entries[j].priority
		}
		return c.entries[i].seq < c.entries[j].seq
	})
}

// Dispatch runs every handler in order and returns the first error.
func (c *Chain[E]) Dispatch(ctx context.Context, e *E) error {
	c.mu.RLock()
	entries := make([]entry[E], len(c.entries))
	copy(entries, c.entries)
	c.mu.RUnlock()

	for _, en := range entries {
		if err := en.fn(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered handler names in dispatch order.
func (c *Chain[E]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.entries))
	for i, en := range c.entries {
		names[i] = en.name
	}
	return names
}

// Len returns the number of registered handlers.
func (c *Chain[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
