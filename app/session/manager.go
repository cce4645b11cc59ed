package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/metrics"
	"github.com/lysyi3m/clubfeed/app/stream"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownStream  = errors.New("unknown stream kind")
	ErrStreamDisabled = errors.New("stream kind disabled")
	ErrNotOpen        = errors.New("stream session not open")
	ErrUnknownAction  = errors.New("unknown stream action")
)

// Provider supplies the collaborators a session is built from.
type Provider interface {
	Fetcher(config *feed.Config) (stream.PageFetcher, error)
	Seed() stream.OverlaySource
	Remote(config *feed.Config) stream.Remote
}

// Session is one open stream with its mutator.
type Session struct {
	Key        stream.Key
	Config     *feed.Config
	Controller *stream.Controller
	Mutator    *stream.Mutator

	lastUsed atomic.Int64
}

func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

type Manager struct {
	configs  *feed.ConfigCache
	provider Provider

	mu       sync.Mutex
	sessions map[stream.Key]*Session
}

func NewManager(configs *feed.ConfigCache, provider Provider) *Manager {
	return &Manager{
		configs:  configs,
		provider: provider,
		sessions: make(map[stream.Key]*Session),
	}
}

// Open returns the session for key, creating it when needed. created reports
// whether a new session was built; a new session is idle until LoadInitial.
func (m *Manager) Open(key stream.Key) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		s.Touch()
		return s, false, nil
	}

	config, err := m.configs.GetConfig(key.Kind)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownStream, key.Kind)
	}
	if !config.Settings.Enabled {
		return nil, false, fmt.Errorf("%w: %s", ErrStreamDisabled, key.Kind)
	}

	fetcher, err := m.provider.Fetcher(config)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create fetcher for %s: %w", key, err)
	}

	logger := slog.Default().With("source", config.Source)
	ctl := stream.NewController(key, fetcher, stream.Options{
		PageSize:  config.Settings.PageSize,
		FirstPage: config.Settings.FirstPage,
		Seed:      m.provider.Seed(),
		Logger:    logger,
	})

	s := &Session{
		Key:        key,
		Config:     config,
		Controller: ctl,
		Mutator:    stream.NewMutator(ctl, m.provider.Remote(config), logger),
	}
	s.Touch()

	m.sessions[key] = s
	metrics.SetOpenSessions(len(m.sessions))
	slog.Debug("Stream session opened", "stream", key.String())

	return s, true, nil
}

func (m *Manager) Get(key stream.Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, key)
	}
	s.Touch()
	return s, nil
}

// Peek returns the open session for key without marking it as used.
func (m *Manager) Peek(key stream.Key) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	return s, ok
}

// Close closes and forgets the session. It reports whether one was open.
func (m *Manager) Close(key stream.Key) bool {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
		metrics.SetOpenSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if ok {
		s.Controller.Close()
		slog.Debug("Stream session closed", "stream", key.String())
	}
	return ok
}

func (m *Manager) CloseAll() {
	for _, s := range m.Sessions() {
		m.Close(s.Key)
	}
}

// Sessions returns the open sessions ordered by key.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Key.String() < sessions[j].Key.String()
	})
	return sessions
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExpireIdle closes sessions unused since before now-maxIdle and returns how
// many were closed.
func (m *Manager) ExpireIdle(now time.Time, maxIdle time.Duration) int {
	cutoff := now.Add(-maxIdle)

	expired := 0
	for _, s := range m.Sessions() {
		if s.LastUsed().Before(cutoff) && m.Close(s.Key) {
			expired++
		}
	}
	return expired
}

// Failed returns the sessions in the error state whose definition allows
// automatic retries.
func (m *Manager) Failed() []*Session {
	var failed []*Session
	for _, s := range m.Sessions() {
		if s.Config.Settings.RetryFailed && s.Controller.State() == stream.StateError {
			failed = append(failed, s)
		}
	}
	return failed
}

// Reload runs LoadInitial on the given sessions, at most limit at a time.
// One failing session does not cancel the others; every failure is reported.
// Sessions that were superseded or closed meanwhile do not count as failures.
func (m *Manager) Reload(ctx context.Context, sessions []*Session, limit int) error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, s := range sessions {
		g.Go(func() error {
			err := s.Controller.LoadInitial(ctx)
			if err == nil || errors.Is(err, stream.ErrSuperseded) || errors.Is(err, stream.ErrClosed) {
				return nil
			}

			mu.Lock()
			result = multierror.Append(result, fmt.Errorf("failed to reload %s: %w", s.Key, err))
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return result.ErrorOrNil()
}
