// Package randutil builds the seeded generators that shuffle seating plans.
package randutil

import (
	rand "math/rand/v2"
	"time"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a generator seeded deterministically from seed. The daemon logs
// the seed it used, so a disputed seating draw can be replayed.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// SeedFrom derives a non-zero seed from an instant, for when none was given.
func SeedFrom(now time.Time) int64 {
	seed := int64(mix(uint64(now.UnixNano())) >> 1)
	if seed == 0 {
		return 1
	}
	return seed
}

// splitmix64 finaliser
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
