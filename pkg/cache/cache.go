// Package cache provides prediction result caches.
//
// Predictions are deterministic for a fixed model artifact, so a result can
// be memoized under a key derived from the artifact digest and the feature
// vector. Values are opaque bytes; the inference package owns the encoding.
package cache

import (
	"context"
	"strconv"
	"strings"
)

// Cache stores encoded prediction results.
type Cache interface {
	// Get returns the value stored under key. found is false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores value under key, replacing any existing entry.
	Put(ctx context.Context, key string, value []byte) error
}

// Key builds a cache key from a model identifier and a feature vector.
// Floats use the shortest representation that round-trips, so equal vectors
// always map to the same key.
func Key(modelID string, features []float64) string {
	var b strings.Builder
	b.Grow(len(modelID) + 1 + len(features)*8)
	b.WriteString(modelID)
	b.WriteByte(':')
	for i, v := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
