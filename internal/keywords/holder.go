package keywords

import (
	"sync/atomic"
)

// Holder owns the process taxonomy. Readers take a Snapshot per request; admin
// changes go through Update, which swaps in a new value.
type Holder struct {
	current atomic.Pointer[Taxonomy]
}

func NewHolder(t *Taxonomy) *Holder {
	if t == nil {
		t = Default()
	}
	h := &Holder{}
	h.current.Store(t)
	return h
}

func (h *Holder) Snapshot() *Taxonomy {
	return h.current.Load()
}

// Update applies fn to the current taxonomy and stores the result. Concurrent
// updates are retried against the latest value so none is lost.
func (h *Holder) Update(fn func(*Taxonomy) (*Taxonomy, error)) (*Taxonomy, error) {
	for {
		old := h.current.Load()
		next, err := fn(old)
		if err != nil {
			return nil, err
		}
		if next == old {
			return old, nil
		}
		if h.current.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}
