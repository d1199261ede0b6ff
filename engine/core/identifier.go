package core

// InvalidID is never handed out by a Registry.
const InvalidID = 0

// Registry maps names to monotonically increasing numeric identifiers and
// back. Identifiers start at 1 and are never reused until Clear is called.
type Registry[ID ~uint64] struct {
	byName map[string]ID
	byID   map[ID]string
	nextID ID
}

func NewRegistry[ID ~uint64]() *Registry[ID] {
	r := &Registry[ID]{}
	r.Clear()
	return r
}

// Register returns the identifier for name, allocating the next one if the
// name is new. Registering an existing name is a no-op.
func (r *Registry[ID]) Register(name string) ID {
	if id, ok := r.byName[name]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.byName[name] = id
	r.byID[id] = name
	return id
}

// Lookup returns the identifier for name or InvalidID. Misses are logged
// unless silence is set.
func (r *Registry[ID]) Lookup(name string, silence bool) ID {
	id, ok := r.byName[name]
	if !ok {
		if !silence {
			LogError("no identifier registered for name '%s'", name)
		}
		return InvalidID
	}
	return id
}

// Reverse returns the name registered for id.
func (r *Registry[ID]) Reverse(id ID) (string, bool) {
	name, ok := r.byID[id]
	return name, ok
}

func (r *Registry[ID]) IsID(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry[ID]) Len() int {
	return len(r.byName)
}

// Clear drops every mapping and restarts numbering at 1.
func (r *Registry[ID]) Clear() {
	r.byName = make(map[string]ID)
	r.byID = make(map[ID]string)
	r.nextID = 1
}
