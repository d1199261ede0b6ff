package assets

import "github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"

// table is a dense record list with an identifier index on top.
type table[T any] struct {
	records []*T
	index   map[metadata.AssetID]int
}

func newTable[T any]() *table[T] {
	return &table[T]{index: make(map[metadata.AssetID]int)}
}

func (t *table[T]) get(id metadata.AssetID) (*T, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.records[i], true
}

func (t *table[T]) add(id metadata.AssetID, record *T) {
	t.index[id] = len(t.records)
	t.records = append(t.records, record)
}

// each visits records in registration order.
func (t *table[T]) each(fn func(*T)) {
	for _, r := range t.records {
		fn(r)
	}
}

func (t *table[T]) len() int {
	return len(t.records)
}

func (t *table[T]) clear() {
	t.records = nil
	t.index = make(map[metadata.AssetID]int)
}
