package testutil

import (
	"fmt"
	"sync"
)

// FixedTraceGenerator generates trace-1, trace-2, ... so that golden traces
// are byte-identical across runs.
//
// Implements engine.TraceGenerator.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedTraceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedTraceGenerator creates a generator. If prefix is empty, "trace"
// is used.
func NewFixedTraceGenerator(prefix string) *FixedTraceGenerator {
	if prefix == "" {
		prefix = "trace"
	}
	return &FixedTraceGenerator{prefix: prefix}
}

// Generate returns the next trace id.
func (g *FixedTraceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
