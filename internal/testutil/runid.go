package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDs returns predetermined run IDs in order.
//
// Once the list is exhausted it continues with "<prefix>-<n>", so a test
// that runs the pipeline more often than it listed IDs still gets unique,
// reproducible ones.
//
// Thread-safety: FixedRunIDs is safe for concurrent use via internal mutex.
type FixedRunIDs struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

// NewFixedRunIDs creates a generator returning ids first, then
// "test-run-<n>".
func NewFixedRunIDs(ids ...string) *FixedRunIDs {
	return &FixedRunIDs{ids: ids, prefix: "test-run"}
}

// Generate implements pipeline.RunIDGenerator.
func (g *FixedRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	if g.n <= len(g.ids) {
		return g.ids[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
