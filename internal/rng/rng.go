package rng

import (
	"hash/fnv"
	"math/rand"

	"synthctl/ports"
)

// Adapter implements ports.RNGPort with streams derived from the
// operation name and seed, so repeated runs draw identical sequences.
type Adapter struct{}

// NewAdapter creates a deterministic RNG adapter
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a named deterministic stream
func (a *Adapter) SeededStream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

var _ ports.RNGPort = (*Adapter)(nil)
