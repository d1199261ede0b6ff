package assets

import (
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief The shader visible table of texture and sampler pairs. Every growth
 * bumps the version so consumers can tell when to upload the table again.
 */
type TextureArray struct {
	pairs    []metadata.TexturePair
	slots    map[metadata.TexturePair]uint32
	capacity uint32

	version  uint64
	consumed uint64
}

func NewTextureArray(capacity uint32) *TextureArray {
	return &TextureArray{
		slots:    make(map[metadata.TexturePair]uint32),
		capacity: capacity,
	}
}

// AddTexture returns the slot of the pair, appending it when new. When the
// array is full slot 0 is returned.
func (t *TextureArray) AddTexture(view metadata.ImageView, sampler metadata.Sampler) uint32 {
	pair := metadata.TexturePair{View: view, Sampler: sampler}
	if slot, ok := t.slots[pair]; ok {
		return slot
	}
	if uint32(len(t.pairs)) >= t.capacity {
		core.LogWarn("texture array full (%d slots), falling back to slot 0", t.capacity)
		return 0
	}
	slot := uint32(len(t.pairs))
	t.pairs = append(t.pairs, pair)
	t.slots[pair] = slot
	t.version++
	return slot
}

// ConsumeDirty reports whether the array grew since the previous call.
func (t *TextureArray) ConsumeDirty() bool {
	dirty := t.version != t.consumed
	t.consumed = t.version
	return dirty
}

// Version increases every time the array grows.
func (t *TextureArray) Version() uint64 {
	return t.version
}

// Pairs returns the table padded to capacity with the pair in slot 0.
func (t *TextureArray) Pairs() []metadata.TexturePair {
	out := make([]metadata.TexturePair, t.capacity)
	copy(out, t.pairs)
	if len(t.pairs) > 0 {
		for i := len(t.pairs); i < len(out); i++ {
			out[i] = t.pairs[0]
		}
	}
	return out
}

func (t *TextureArray) Len() int {
	return len(t.pairs)
}

func (t *TextureArray) Capacity() uint32 {
	return t.capacity
}

// Reset forgets every pair. The version keeps increasing.
func (t *TextureArray) Reset() {
	t.pairs = nil
	t.slots = make(map[metadata.TexturePair]uint32)
	t.version++
}
