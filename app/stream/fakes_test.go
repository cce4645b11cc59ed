package stream

import (
	"context"
	"fmt"
	"sync"
	"time"
)

func makeItems(prefix string, n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID:        ItemID(fmt.Sprintf("%s-%d", prefix, i)),
			OwnerID:   "owner",
			LikeCount: i,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}
	return items
}

// fakeFetcher serves canned pages. A page listed in gates blocks until its
// channel is closed, ignoring context cancellation so that stale results
// really reach the controller.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[int][]Item
	errs    map[int]error
	gates   map[int]chan struct{}
	started chan int
	calls   []int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:   make(map[int][]Item),
		errs:    make(map[int]error),
		gates:   make(map[int]chan struct{}),
		started: make(chan int, 64),
	}
}

func (f *fakeFetcher) setPage(index int, items []Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[index] = items
}

func (f *fakeFetcher) setErr(index int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, index)
		return
	}
	f.errs[index] = err
}

func (f *fakeFetcher) block(index int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[index] = gate
	return gate
}

func (f *fakeFetcher) callCount(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == index {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) FetchPage(ctx context.Context, key Key, pageIndex int) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageIndex)
	gate := f.gates[pageIndex]
	delete(f.gates, pageIndex)
	items := append([]Item(nil), f.pages[pageIndex]...)
	err := f.errs[pageIndex]
	f.mu.Unlock()

	select {
	case f.started <- pageIndex:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return Page{}, err
	}
	return Page{Index: pageIndex, Items: items}, nil
}

type fakeSeed struct {
	ids []ItemID
	err error
}

func (s *fakeSeed) SavedIDs(ctx context.Context) ([]ItemID, error) {
	return s.ids, s.err
}

type fakeRemote struct {
	mu          sync.Mutex
	likeCount   int
	likeErr     error
	saveOK      bool
	saveErr     error
	deleteOK    bool
	deleteErr   error
	likeGate    chan struct{}
	deleteGate  chan struct{}
	entered     chan ItemID
	likeCalls   []likeCall
	removeCalls []string
	saved       map[ItemID]bool
}

type likeCall struct {
	id    ItemID
	liked bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		saveOK:   true,
		deleteOK: true,
		entered:  make(chan ItemID, 64),
		saved:    make(map[ItemID]bool),
	}
}

func (r *fakeRemote) Like(ctx context.Context, id ItemID, currentlyLiked bool) (int, error) {
	r.mu.Lock()
	r.likeCalls = append(r.likeCalls, likeCall{id: id, liked: currentlyLiked})
	gate := r.likeGate
	count, err := r.likeCount, r.likeErr
	r.mu.Unlock()

	select {
	case r.entered <- id:
	default:
	}
	if gate != nil {
		<-gate
	}
	return count, err
}

func (r *fakeRemote) Save(ctx context.Context, item Item, saved bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil || !r.saveOK {
		return r.saveOK, r.saveErr
	}
	r.saved[item.ID] = saved
	return true, nil
}

func (r *fakeRemote) Remove(ctx context.Context, action string, id ItemID) (bool, error) {
	r.mu.Lock()
	r.removeCalls = append(r.removeCalls, action)
	gate := r.deleteGate
	ok, err := r.deleteOK, r.deleteErr
	r.mu.Unlock()

	select {
	case r.entered <- id:
	default:
	}
	if gate != nil {
		<-gate
	}
	return ok, err
}

func (r *fakeRemote) callsFor(id ItemID) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, c := range r.likeCalls {
		if c.id == id {
			out = append(out, c.liked)
		}
	}
	return out
}
