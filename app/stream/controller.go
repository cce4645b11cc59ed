package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/clubfeed/app/metrics"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	PageSize  int
	FirstPage int
	// Overlay is shared with the Mutator of the same session. A fresh one is
	// created when nil.
	Overlay *Overlay
	// Seed, when set, is read on every LoadInitial and replaces the overlay.
	Seed   OverlaySource
	Logger *slog.Logger
}

// Controller owns the materialized state of one stream and guarantees that at
// most one page fetch is in flight for it.
type Controller struct {
	key       Key
	fetcher   PageFetcher
	overlay   *Overlay
	seed      OverlaySource
	pageSize  int
	firstPage int
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	items       []Item
	index       map[ItemID]int
	pageIndex   int
	endOfStream bool
	lastErr     error
	generation  uint64
	cancel      context.CancelFunc
	closed      bool
}

func NewController(key Key, fetcher PageFetcher, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Overlay == nil {
		opts.Overlay = NewOverlay()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		key:       key,
		fetcher:   fetcher,
		overlay:   opts.Overlay,
		seed:      opts.Seed,
		pageSize:  opts.PageSize,
		firstPage: opts.FirstPage,
		logger:    opts.Logger.With("stream", key.String()),
		state:     StateIdle,
		index:     make(map[ItemID]int),
		pageIndex: opts.FirstPage,
	}
}

func (c *Controller) Key() Key { return c.key }

func (c *Controller) Overlay() *Overlay { return c.overlay }

func (c *Controller) PageSize() int { return c.pageSize }

// LoadInitial (re)starts the stream from its first page. Any operation still
// in flight is cancelled and its result discarded. On failure the stream
// enters StateError and keeps the items of the previous load.
func (c *Controller) LoadInitial(ctx context.Context) error {
	return c.loadInitial(ctx, false)
}

// LoadIfIdle runs LoadInitial only when the stream was never loaded.
// Concurrent callers start a single load; the others return nil at once.
func (c *Controller) LoadIfIdle(ctx context.Context) error {
	return c.loadInitial(ctx, true)
}

func (c *Controller) loadInitial(ctx context.Context, onlyIdle bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if onlyIdle && c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	gen, fetchCtx, cancel := c.issueLocked(ctx)
	c.state = StateLoadingInitial
	c.pageIndex = c.firstPage
	pageIndex := c.pageIndex
	c.mu.Unlock()
	defer cancel()

	start := time.Now()

	var (
		ids  []ItemID
		page Page
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	if c.seed != nil {
		g.Go(func() error {
			var err error
			ids, err = c.seed.SavedIDs(gctx)
			if err != nil {
				return fmt.Errorf("failed to load overlay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		page, err = c.fetcher.FetchPage(gctx, c.key, pageIndex)
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		metrics.RecordPageFetch(c.key.Kind, "initial", "superseded", time.Since(start))
		c.logger.Debug("Discarding superseded initial load", "page", pageIndex)
		return ErrSuperseded
	}
	c.cancel = nil

	if err != nil {
		metrics.RecordPageFetch(c.key.Kind, "initial", "error", time.Since(start))
		c.state = StateError
		c.lastErr = fatal("load initial", err)
		c.logger.Error("Initial load failed", "page", pageIndex, "items_kept", len(c.items), "error", err)
		return c.lastErr
	}
	metrics.RecordPageFetch(c.key.Kind, "initial", "ok", time.Since(start))

	if c.seed != nil {
		c.overlay.LoadInitial(ids)
	}

	items, end := Merge(nil, page, c.overlay, c.pageSize)
	c.items = items
	c.reindexLocked()
	c.pageIndex = pageIndex + 1
	c.endOfStream = end
	c.lastErr = nil
	c.state = StateReady

	c.logger.Debug("Initial load completed",
		"page", pageIndex,
		"items", len(items),
		"end_of_stream", end,
		"duration", time.Since(start))

	return nil
}

// LoadMore fetches the next page. It returns ErrLoadSkipped without touching
// the network unless the stream is Ready, not at its end and idle.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateReady || c.endOfStream || c.cancel != nil {
		state, end := c.state, c.endOfStream
		c.mu.Unlock()
		return fmt.Errorf("%w: state %s, end of stream %t", ErrLoadSkipped, state, end)
	}
	gen, fetchCtx, cancel := c.issueLocked(ctx)
	c.state = StateLoadingMore
	pageIndex := c.pageIndex
	c.mu.Unlock()
	defer cancel()

	start := time.Now()
	page, err := c.fetcher.FetchPage(fetchCtx, c.key, pageIndex)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		metrics.RecordPageFetch(c.key.Kind, "more", "superseded", time.Since(start))
		c.logger.Debug("Discarding superseded page", "page", pageIndex)
		return ErrSuperseded
	}
	c.cancel = nil
	c.state = StateReady

	if err != nil {
		metrics.RecordPageFetch(c.key.Kind, "more", "error", time.Since(start))
		c.lastErr = minor("load more", err)
		c.logger.Warn("Load more failed", "page", pageIndex, "error", err)
		return c.lastErr
	}
	metrics.RecordPageFetch(c.key.Kind, "more", "ok", time.Since(start))

	items, end := Merge(c.index, page, c.overlay, c.pageSize)
	for _, item := range items {
		c.index[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	c.pageIndex = pageIndex + 1
	c.endOfStream = end
	c.lastErr = nil

	c.logger.Debug("Page merged",
		"page", pageIndex,
		"received", len(page.Items),
		"new", len(items),
		"end_of_stream", end)

	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]Item, len(c.items))
	copy(items, c.items)

	return Snapshot{
		Key:         c.key,
		Items:       items,
		PageIndex:   c.pageIndex,
		EndOfStream: c.endOfStream,
		State:       c.state,
		LastError:   c.lastErr,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DismissError clears a minor error. Fatal errors are only cleared by a
// successful LoadInitial.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if IsMinor(c.lastErr) {
		c.lastErr = nil
	}
}

// Close cancels the in-flight operation. The controller cannot be reused.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.closed = true
}

// issueLocked cancels the live token and returns a new one.
func (c *Controller) issueLocked(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	return c.generation, ctx, cancel
}

func (c *Controller) reindexLocked() {
	c.index = make(map[ItemID]int, len(c.items))
	for i, item := range c.items {
		c.index[item.ID] = i
	}
}

func (c *Controller) item(id ItemID) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// updateItem applies fn to the item in place and returns its previous value.
func (c *Controller) updateItem(id ItemID, fn func(*Item)) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	prev := c.items[i]
	fn(&c.items[i])
	return prev, true
}

func (c *Controller) removeItem(id ItemID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindexLocked()
	return true
}

func (c *Controller) reportMinor(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateError || errors.Is(err, context.Canceled) {
		return
	}
	c.lastErr = err
}
