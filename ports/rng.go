package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic
// permutation draws. Identical (name, seed) pairs must yield identical
// streams across runs.
type RNGPort interface {
	SeededStream(name string, seed int64) *rand.Rand
}
