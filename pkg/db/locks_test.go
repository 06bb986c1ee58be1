package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseLockKeyStable(t *testing.T) {
	assert.Equal(t, caseLockKey(42), caseLockKey(42))
}

func TestCaseLockKeyDistinct(t *testing.T) {
	seen := make(map[int64]int64)

	for id := int64(1); id <= 1000; id++ {
		key := caseLockKey(id)

		if prev, ok := seen[key]; ok {
			t.Fatalf("cases %d and %d share lock key %d", prev, id, key)
		}

		seen[key] = id
	}
}

func TestCaseLockKeyNamespaced(t *testing.T) {
	// The top 32 bits carry the application namespace so keys cannot
	// collide with other advisory-lock users on the shared database.
	assert.Equal(t, int64(lockNamespace), caseLockKey(7)>>32)
}
