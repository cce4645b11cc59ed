package stream

import "sync/atomic"

type idSet map[ItemID]struct{}

// Overlay holds the ids flagged locally for the current session. Every write
// installs a fresh copy of the set, so readers never observe a partial update.
type Overlay struct {
	set atomic.Pointer[idSet]
}

func NewOverlay() *Overlay {
	o := &Overlay{}
	o.set.Store(&idSet{})
	return o
}

// LoadInitial replaces the whole set.
func (o *Overlay) LoadInitial(ids []ItemID) {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	o.set.Store(&s)
}

func (o *Overlay) Contains(id ItemID) bool {
	_, ok := (*o.set.Load())[id]
	return ok
}

func (o *Overlay) Add(id ItemID) {
	o.update(func(s idSet) { s[id] = struct{}{} })
}

func (o *Overlay) Remove(id ItemID) {
	o.update(func(s idSet) { delete(s, id) })
}

func (o *Overlay) Len() int {
	return len(*o.set.Load())
}

func (o *Overlay) update(fn func(idSet)) {
	for {
		cur := o.set.Load()
		next := make(idSet, len(*cur)+1)
		for k := range *cur {
			next[k] = struct{}{}
		}
		fn(next)
		if o.set.CompareAndSwap(cur, &next) {
			return
		}
	}
}
