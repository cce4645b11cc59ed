package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lysyi3m/clubfeed/app/metrics"
	"golang.org/x/sync/semaphore"
)

type itemLock struct {
	sem  *semaphore.Weighted
	refs int
}

// Mutator applies like, save and remove actions to the items of one stream.
// Actions on the same item run one after another; actions on different items
// run concurrently.
type Mutator struct {
	ctl    *Controller
	remote Remote
	logger *slog.Logger

	mu    sync.Mutex
	locks map[ItemID]*itemLock
}

func NewMutator(ctl *Controller, remote Remote, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		ctl:    ctl,
		remote: remote,
		logger: logger.With("stream", ctl.Key().String()),
		locks:  make(map[ItemID]*itemLock),
	}
}

// ToggleLike flips the like flag locally, then asks the backend. The
// server-reported like count replaces the predicted one; a failure restores
// the item exactly as it was.
func (m *Mutator) ToggleLike(ctx context.Context, id ItemID) (Item, error) {
	unlock, err := m.acquire(ctx, id)
	if err != nil {
		return Item{}, err
	}
	defer unlock()

	prev, ok := m.ctl.updateItem(id, func(it *Item) {
		if it.LikedByUser {
			it.LikeCount--
		} else {
			it.LikeCount++
		}
		it.LikedByUser = !it.LikedByUser
	})
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	count, err := m.remote.Like(ctx, id, prev.LikedByUser)
	metrics.RecordMutation("like", err)
	if err != nil {
		m.ctl.updateItem(id, func(it *Item) {
			it.LikedByUser = prev.LikedByUser
			it.LikeCount = prev.LikeCount
		})
		metrics.RecordRollback("like")
		return m.fail("like", id, err)
	}

	updated := prev
	updated.LikedByUser = !prev.LikedByUser
	updated.LikeCount = count
	m.ctl.updateItem(id, func(it *Item) {
		it.LikedByUser = updated.LikedByUser
		it.LikeCount = updated.LikeCount
	})

	m.logger.Debug("Like confirmed", "item_id", id, "liked", updated.LikedByUser, "like_count", count)
	return updated, nil
}

// ToggleSave flips the saved flag and the overlay locally, then persists the
// change through the remote. A failure restores both.
func (m *Mutator) ToggleSave(ctx context.Context, id ItemID) (Item, error) {
	unlock, err := m.acquire(ctx, id)
	if err != nil {
		return Item{}, err
	}
	defer unlock()

	overlay := m.ctl.Overlay()
	prev, ok := m.ctl.updateItem(id, func(it *Item) {
		it.Saved = !it.Saved
	})
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	saved := !prev.Saved
	setOverlay(overlay, id, saved)

	next := prev
	next.Saved = saved
	confirmed, err := m.remote.Save(ctx, next, saved)
	if err == nil && !confirmed {
		err = ErrNotConfirmed
	}
	metrics.RecordMutation("save", err)
	if err != nil {
		m.ctl.updateItem(id, func(it *Item) {
			it.Saved = prev.Saved
		})
		setOverlay(overlay, id, prev.Saved)
		metrics.RecordRollback("save")
		return m.fail("save", id, err)
	}

	m.logger.Debug("Save confirmed", "item_id", id, "saved", saved)
	if current, ok := m.ctl.item(id); ok {
		return current, nil
	}
	return next, nil
}

// Delete removes the item only after the backend confirmed the deletion.
func (m *Mutator) Delete(ctx context.Context, id ItemID) error {
	return m.Remove(ctx, id, ActionDelete)
}

// Remove runs a remove-style action such as delete, accept or decline. The
// item is dropped only after the backend confirmed the action.
func (m *Mutator) Remove(ctx context.Context, id ItemID, action string) error {
	unlock, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := m.ctl.item(id); !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	confirmed, err := m.remote.Remove(ctx, action, id)
	if err == nil && !confirmed {
		err = ErrNotConfirmed
	}
	metrics.RecordMutation(action, err)
	if err != nil {
		_, err = m.fail(action, id, err)
		return err
	}

	m.ctl.removeItem(id)
	m.ctl.Overlay().Remove(id)

	m.logger.Debug("Remove confirmed", "action", action, "item_id", id)
	return nil
}

func (m *Mutator) fail(action string, id ItemID, err error) (Item, error) {
	merr := minor(action, err)
	m.ctl.reportMinor(merr)
	m.logger.Warn("Mutation failed", "action", action, "item_id", id, "error", err)
	current, _ := m.ctl.item(id)
	return current, merr
}

// acquire serializes mutations per item id. The returned func releases the
// slot and drops the lock entry once nobody else waits on it.
func (m *Mutator) acquire(ctx context.Context, id ItemID) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &itemLock{sem: semaphore.NewWeighted(1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.release(id, l)
		return nil, err
	}

	return func() {
		l.sem.Release(1)
		m.release(id, l)
	}, nil
}

func (m *Mutator) release(id ItemID, l *itemLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
}

func setOverlay(o *Overlay, id ItemID, saved bool) {
	if saved {
		o.Add(id)
	} else {
		o.Remove(id)
	}
}
