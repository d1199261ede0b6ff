package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testID uint64

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry[testID]()

	first := r.Register("Cube")
	require.NotEqual(t, testID(InvalidID), first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Register("Cube"))
		assert.Equal(t, first, r.Lookup("Cube", false))
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistryIDsAreMonotonicFromOne(t *testing.T) {
	r := NewRegistry[testID]()
	for i := 1; i <= 100; i++ {
		assert.Equal(t, testID(i), r.Register(fmt.Sprintf("asset-%d", i)))
	}
}

func TestRegistryLookupUnknownReturnsInvalid(t *testing.T) {
	r := NewRegistry[testID]()
	r.Register("Cube")
	r.Register("Quad")

	assert.Equal(t, testID(InvalidID), r.Lookup("Sphere", true))
	assert.Equal(t, testID(InvalidID), r.Lookup("", true))
	assert.False(t, r.IsID("Sphere"))
	assert.True(t, r.IsID("Quad"))
}

func TestRegistryReverseStaysConsistent(t *testing.T) {
	r := NewRegistry[testID]()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		r.Register(n)
	}
	for _, n := range names {
		id := r.Lookup(n, false)
		got, ok := r.Reverse(id)
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
	_, ok := r.Reverse(InvalidID)
	assert.False(t, ok)
}

func TestRegistryClearRestartsNumbering(t *testing.T) {
	r := NewRegistry[testID]()
	r.Register("a")
	r.Register("b")
	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.IsID("a"))
	assert.Equal(t, testID(1), r.Register("c"))
}
