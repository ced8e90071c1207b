// Package testutil provides deterministic helpers shared by test suites:
// fixed bridge-id generation and PRNG stream inspection, so fixtures
// reproduce byte-identically across runs without re-deriving seeds
// inline.
package testutil

import (
	"fmt"
	"sync"
)

// FixedBridgeGenerator returns predetermined bridge ids for testing.
//
// Unlike protocol.UUIDv7Generator, ids are stable across runs, which
// keeps verbose log fixtures and snapshot output reproducible.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedBridgeGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewFixedBridgeGenerator creates a generator producing
// "<prefix>-1", "<prefix>-2", ... in order. An empty prefix defaults to
// "test-bridge".
func NewFixedBridgeGenerator(prefix string) *FixedBridgeGenerator {
	if prefix == "" {
		prefix = "test-bridge"
	}
	return &FixedBridgeGenerator{prefix: prefix}
}

// Generate returns the next fixed bridge id.
// Implements protocol.BridgeIDGenerator.
func (g *FixedBridgeGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
