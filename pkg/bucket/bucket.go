// Package bucket maps a (flag, stable key) pair onto a rollout bucket.
// The mapping is pure and stable across process restarts, so a key that
// falls inside a rollout percentage stays inside it as the percentage
// is raised.
package bucket

import "github.com/twmb/murmur3"

// separator keeps "ab"+"c" and "a"+"bc" from colliding.
const separator = "\x00"

// Bucket returns a value in [0,100) for the given flag and stable key.
// Identical inputs always produce identical output.
func Bucket(flagID string, stableKey string) int {
	h := murmur3.Sum64([]byte(flagID + separator + stableKey))
	return int(h % 100)
}

// InRollout reports whether the key's bucket falls below the rollout
// percentage. Raising the percentage can only move a key from out to
// in, never the reverse.
func InRollout(flagID string, stableKey string, percentage int) bool {
	return Bucket(flagID, stableKey) < percentage
}
