package cl

// handles maps driver-side objects to the opaque integer handles handed out
// to callers. Not safe for concurrent use; drivers guard it with their lock.
type handles[T comparable] struct {
	next  uint64
	items map[uint64]T
	ids   map[T]uint64
}

func newHandles[T comparable]() *handles[T] {
	return &handles[T]{
		items: make(map[uint64]T),
		ids:   make(map[T]uint64),
	}
}

// add registers v and returns its handle. Registering the same object twice
// returns the handle it already has.
func (h *handles[T]) add(v T) uint64 {
	if id, ok := h.ids[v]; ok {
		return id
	}
	h.next++
	h.items[h.next] = v
	h.ids[v] = h.next
	return h.next
}

func (h *handles[T]) get(id uint64) (T, bool) {
	v, ok := h.items[id]
	return v, ok
}

func (h *handles[T]) remove(id uint64) (T, bool) {
	v, ok := h.items[id]
	if ok {
		delete(h.items, id)
		delete(h.ids, v)
	}
	return v, ok
}

func (h *handles[T]) len() int {
	return len(h.items)
}

// each visits live objects; removing the visited entry is allowed.
func (h *handles[T]) each(fn func(id uint64, v T)) {
	for id, v := range h.items {
		fn(id, v)
	}
}
