// Package runner keeps one clustering session per map client. Each session
// owns a manager and buffers the updates it renders until the client polls
// for them. Idle sessions are evicted.
package runner

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"web/mapcluster/cluster"
	"web/mapcluster/dataset"
	"web/mapcluster/internal/logging"
	"web/mapcluster/manager"
	"web/mapcluster/quadtree"
)

const (
	DefaultMaxSessions     = 64
	DefaultSessionTTL      = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	// maxPendingUpdates bounds the updates buffered for a client that stopped
	// polling. Older updates are dropped and the client is told to resync.
	maxPendingUpdates = 256
)

// ErrSessionNotFound is returned for ids the registry does not hold.
var ErrSessionNotFound = errors.New("runner: session not found")

type Options struct {
	MaxSessions     int
	SessionTTL      time.Duration
	CleanupInterval time.Duration
	Manager         manager.Options
}

// Session is one client's clustering state.
type Session struct {
	ID      string
	Created time.Time

	manager *manager.Manager[*dataset.Item]

	mu       sync.Mutex
	items    int
	extent   *quadtree.Rect
	seq      uint64
	pending  []Update
	dropped  bool
	rendered []*cluster.Cluster[*dataset.Item]
}

// SessionInfo describes a session for listings.
type SessionInfo struct {
	ID           string    `json:"id"`
	Items        int            `json:"items"`
	Extent       *quadtree.Rect `json:"extent,omitempty"`
	Clusters     int            `json:"clusters"`
	Created      time.Time      `json:"created"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

// Render buffers r for the client and records the new rendered set.
func (s *Session) Render(r cluster.Reconciliation[*dataset.Item]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rendered = r.Clusters()
	if r.Empty() {
		return
	}

	s.seq++
	s.pending = append(s.pending, convertReconciliation(s.seq, r))
	if len(s.pending) > maxPendingUpdates {
		s.pending = s.pending[len(s.pending)-maxPendingUpdates:]
		s.dropped = true
	}
}

// SetItems replaces the session's item set.
func (s *Session) SetItems(items []*dataset.Item) error {
	if err := s.manager.SetItems(items); err != nil {
		return err
	}

	var extent *quadtree.Rect
	if r, ok := dataset.Extent(items); ok {
		extent = &r
	}

	s.mu.Lock()
	s.items = len(items)
	s.extent = extent
	s.mu.Unlock()

	return nil
}

// LoadDataset reads a dataset file and makes it the session's item set.
func (s *Session) LoadDataset(filename string) (int, error) {
	start := time.Now()
	items, err := dataset.Load(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to load dataset %s: %w", filename, err)
	}

	if err := s.SetItems(items); err != nil {
		return 0, err
	}

	logging.Logger().Info("dataset loaded", "session", s.ID, "file", filename,
		"items", len(items), "duration", time.Since(start))
	return len(items), nil
}

// SetViewport reports the client's settled viewport.
func (s *Session) SetViewport(bounds quadtree.Rect, zoom float64) error {
	return s.manager.OnViewportIdle(bounds, zoom)
}

// Updates drains the buffered updates. resync reports that older updates
// were dropped; the client should then replace its markers with Clusters.
func (s *Session) Updates() (updates []Update, resync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates, resync = s.pending, s.dropped
	s.pending, s.dropped = nil, false
	if updates == nil {
		updates = []Update{}
	}
	return updates, resync
}

// Clusters returns the set most recently rendered.
func (s *Session) Clusters() []*cluster.Cluster[*dataset.Item] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

// Summary aggregates the set most recently rendered.
func (s *Session) Summary() cluster.Summary {
	return cluster.Summarize(s.Clusters())
}

func (s *Session) info(lastAccessed time.Time) SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionInfo{
		ID:           s.ID,
		Items:        s.items,
		Extent:       s.extent,
		Clusters:     len(s.rendered),
		Created:      s.Created,
		LastAccessed: lastAccessed,
	}
}

func (s *Session) close() {
	if err := s.manager.Close(); err != nil && !errors.Is(err, manager.ErrClosed) {
		logging.Logger().Error("failed to close session", "session", s.ID, "error", err)
	}
}

// Registry holds the live sessions.
type Registry struct {
	opts Options

	sessions     map[string]*Session
	lastAccessed map[string]time.Time
	sessionLock  sync.RWMutex

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRegistry returns an empty registry and starts its cleanup goroutine.
// Stop releases it.
func NewRegistry(opts Options) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}

	r := &Registry{
		opts:         opts,
		sessions:     make(map[string]*Session),
		lastAccessed: make(map[string]time.Time),
		now:          time.Now,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	go r.cleanupInactiveSessions()

	return r
}

// Create starts a new session, evicting the least recently used one when the
// registry is full.
func (r *Registry) Create() (*Session, error) {
	s := &Session{ID: uuid.New().String()}

	m, err := manager.New[*dataset.Item](s, r.opts.Manager)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	s.manager = m

	r.sessionLock.Lock()
	s.Created = r.now()
	var evicted *Session
	if len(r.sessions) >= r.opts.MaxSessions {
		evicted = r.removeLocked(r.oldestLocked())
	}
	r.sessions[s.ID] = s
	r.lastAccessed[s.ID] = s.Created
	r.sessionLock.Unlock()

	if evicted != nil {
		logging.Logger().Info("session evicted", "session", evicted.ID, "reason", "capacity")
		evicted.close()
	}
	logging.Logger().Info("session created", "session", s.ID)

	return s, nil
}

// Get returns a session and marks it as accessed.
func (r *Registry) Get(id string) (*Session, error) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	r.lastAccessed[id] = r.now()
	return s, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	r.sessionLock.Lock()
	s := r.removeLocked(id)
	r.sessionLock.Unlock()

	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.close()
	logging.Logger().Info("session deleted", "session", id)
	return nil
}

// List returns the live sessions, most recently accessed first.
func (r *Registry) List() []SessionInfo {
	r.sessionLock.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		infos = append(infos, s.info(r.lastAccessed[id]))
	}
	r.sessionLock.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].LastAccessed.Equal(infos[j].LastAccessed) {
			return infos[i].LastAccessed.After(infos[j].LastAccessed)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()
	return len(r.sessions)
}

// Stop ends the cleanup goroutine and closes every session.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.stopped

		r.sessionLock.Lock()
		sessions := make([]*Session, 0, len(r.sessions))
		for id := range r.sessions {
			sessions = append(sessions, r.removeLocked(id))
		}
		r.sessionLock.Unlock()

		for _, s := range sessions {
			s.close()
		}
	})
}

func (r *Registry) cleanupInactiveSessions() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictInactive()
		}
	}
}

// evictInactive removes sessions idle for longer than the TTL.
func (r *Registry) evictInactive() int {
	r.sessionLock.Lock()
	now := r.now()

	var toRemove []*Session
	for id, lastAccess := range r.lastAccessed {
		if now.Sub(lastAccess) > r.opts.SessionTTL {
			toRemove = append(toRemove, r.removeLocked(id))
		}
	}
	r.sessionLock.Unlock()

	for _, s := range toRemove {
		logging.Logger().Info("session evicted", "session", s.ID, "reason", "inactive")
		s.close()
	}
	return len(toRemove)
}

func (r *Registry) oldestLocked() string {
	var oldestID string
	var oldestTime time.Time
	first := true

	for id, accessTime := range r.lastAccessed {
		if first || accessTime.Before(oldestTime) {
			oldestID = id
			oldestTime = accessTime
			first = false
		}
	}
	return oldestID
}

func (r *Registry) removeLocked(id string) *Session {
	s, exists := r.sessions[id]
	if !exists {
		return nil
	}
	delete(r.sessions, id)
	delete(r.lastAccessed, id)
	return s
}
