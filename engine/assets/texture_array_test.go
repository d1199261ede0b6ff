package assets

import (
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func TestTextureArrayDirtyFlag(t *testing.T) {
	arr := NewTextureArray(8)
	assert.False(t, arr.ConsumeDirty())

	for k := 1; k <= 3; k++ {
		slot := arr.AddTexture(metadata.ImageView(k), metadata.Sampler(1))
		assert.Equal(t, uint32(k-1), slot)
	}
	assert.True(t, arr.ConsumeDirty())
	assert.False(t, arr.ConsumeDirty())

	arr.AddTexture(metadata.ImageView(9), metadata.Sampler(1))
	assert.True(t, arr.ConsumeDirty())
	assert.Equal(t, uint64(4), arr.Version())
}

func TestTextureArrayDeduplicates(t *testing.T) {
	arr := NewTextureArray(8)
	a := arr.AddTexture(1, 1)
	arr.ConsumeDirty()
	b := arr.AddTexture(1, 1)

	assert.Equal(t, a, b)
	assert.False(t, arr.ConsumeDirty())
	assert.Equal(t, 1, arr.Len())
	assert.NotEqual(t, a, arr.AddTexture(1, 2))
}

func TestTextureArrayFullFallsBackToSlotZero(t *testing.T) {
	arr := NewTextureArray(2)
	arr.AddTexture(1, 1)
	arr.AddTexture(2, 1)
	version := arr.Version()

	assert.Equal(t, uint32(0), arr.AddTexture(3, 1))
	assert.Equal(t, version, arr.Version())
}

func TestTextureArrayPairsArePadded(t *testing.T) {
	arr := NewTextureArray(4)
	assert.Len(t, arr.Pairs(), 4)

	arr.AddTexture(5, 6)
	arr.AddTexture(7, 6)
	pairs := arr.Pairs()
	assert.Equal(t, []metadata.TexturePair{{View: 5, Sampler: 6}, {View: 7, Sampler: 6}, {View: 5, Sampler: 6}, {View: 5, Sampler: 6}}, pairs)
}
