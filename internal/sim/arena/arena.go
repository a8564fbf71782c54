// Package arena stores entities densely while handing out handles that stay
// valid across insertions and removals of other entries.
package arena

// Handle names one arena slot at one generation. The zero Handle is never
// valid.
type Handle struct {
	slot uint32
	gen  uint32
}

func (h Handle) IsZero() bool { return h.gen == 0 }

type slot struct {
	dense int // index into items, or -1 when free
	gen   uint32
}

// Arena keeps items in a dense slice in insertion order. Removal preserves
// the relative order of the remaining items.
type Arena[T any] struct {
	items  []T
	owners []uint32 // owners[i] is the slot of items[i]
	slots  []slot
	free   []uint32
}

func (a *Arena[T]) Len() int { return len(a.items) }

// Insert appends v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var s uint32
	if n := len(a.free); n > 0 {
		s = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		s = uint32(len(a.slots))
		a.slots = append(a.slots, slot{dense: -1})
	}
	a.slots[s].gen++
	if a.slots[s].gen == 0 {
		a.slots[s].gen = 1
	}
	a.slots[s].dense = len(a.items)
	a.items = append(a.items, v)
	a.owners = append(a.owners, s)
	return Handle{slot: s, gen: a.slots[s].gen}
}

func (a *Arena[T]) lookup(h Handle) (int, bool) {
	if h.gen == 0 || int(h.slot) >= len(a.slots) {
		return 0, false
	}
	s := a.slots[h.slot]
	if s.gen != h.gen || s.dense < 0 {
		return 0, false
	}
	return s.dense, true
}

// Get returns a pointer to the item named by h, or false if it was removed.
// The pointer is only valid until the next Insert or Remove.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	i, ok := a.lookup(h)
	if !ok {
		return nil, false
	}
	return &a.items[i], true
}

// Index returns the dense position of h.
func (a *Arena[T]) Index(h Handle) (int, bool) {
	return a.lookup(h)
}

func (a *Arena[T]) Remove(h Handle) bool {
	i, ok := a.lookup(h)
	if !ok {
		return false
	}
	s := a.owners[i]
	a.slots[s].dense = -1
	a.free = append(a.free, s)

	copy(a.items[i:], a.items[i+1:])
	var zero T
	a.items[len(a.items)-1] = zero
	a.items = a.items[:len(a.items)-1]
	copy(a.owners[i:], a.owners[i+1:])
	a.owners = a.owners[:len(a.owners)-1]
	for j := i; j < len(a.owners); j++ {
		a.slots[a.owners[j]].dense = j
	}
	return true
}

// At returns the i-th item in dense order with its handle.
func (a *Arena[T]) At(i int) (*T, Handle) {
	s := a.owners[i]
	return &a.items[i], Handle{slot: s, gen: a.slots[s].gen}
}

// Items exposes the dense slice for iteration. Callers must not append to it.
func (a *Arena[T]) Items() []T { return a.items }

// Clear removes every item. Outstanding handles become invalid.
func (a *Arena[T]) Clear() {
	for _, s := range a.owners {
		a.slots[s].dense = -1
		a.free = append(a.free, s)
	}
	var zero T
	for i := range a.items {
		a.items[i] = zero
	}
	a.items = a.items[:0]
	a.owners = a.owners[:0]
}
