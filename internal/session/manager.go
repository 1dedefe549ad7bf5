// Package session ties one proxied page visit to its server-side editing
// state: a message bus, the overlay state machine, and the side panel.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/internal/overlay"
	"github.com/plsfix/plsfix/internal/panel"
)

// EditSession is the per-visit editing context. Created when a proxied page
// is served; the page shim and panel shim dial back in with its ID.
type EditSession struct {
	ID        string
	ShortCode string
	TargetURL string
	CreatedAt time.Time

	Bus     *bus.Bus
	Overlay *overlay.Session
	Panel   *panel.Panel
	Host    *overlay.RemoteHost
	Output  *panel.RemoteOutput

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch marks the session as recently active.
func (s *EditSession) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *EditSession) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *EditSession) close() {
	s.Overlay.Close()
	s.Panel.Close()
}

// Manager owns the live edit sessions and reaps idle ones.
type Manager struct {
	sessions sync.Map // map[string]*EditSession
	ttl      time.Duration
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager whose reaper closes sessions idle for longer
// than ttl. The reaper runs until Close.
func NewManager(ttl time.Duration, log *zap.Logger) *Manager {
	m := &Manager{
		ttl:  ttl,
		log:  log,
		stop: make(chan struct{}),
	}
	go m.reap()
	return m
}

// Create builds a fresh edit session for one proxied page visit. The overlay
// and panel attach to a private bus; DOM effects and panel renders flow out
// through the remote host and output once the shims connect.
func (m *Manager) Create(shortCode, targetURL string) *EditSession {
	id := uuid.New().String()
	log := m.log.With(zap.String("session", id), zap.String("shortCode", shortCode))

	b := bus.New()
	host := overlay.NewRemoteHost(log)
	output := panel.NewRemoteOutput(log)

	s := &EditSession{
		ID:        id,
		ShortCode: shortCode,
		TargetURL: targetURL,
		CreatedAt: time.Now(),
		Bus:       b,
		Overlay:   overlay.NewSession(b, host, log),
		Panel:     panel.New(b, output, log),
		Host:      host,
		Output:    output,
		lastSeen:  time.Now(),
	}
	m.sessions.Store(id, s)

	log.Info("edit session created", zap.String("targetUrl", targetURL))
	return s
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*EditSession, error) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return value.(*EditSession), nil
}

// Delete tears down a session.
func (m *Manager) Delete(id string) {
	value, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return
	}
	value.(*EditSession).close()
	m.log.Info("edit session closed", zap.String("session", id))
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the reaper and tears down every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.sessions.Range(func(key, _ any) bool {
		m.Delete(key.(string))
		return true
	})
}

func (m *Manager) reap() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sessions.Range(func(key, value any) bool {
				s := value.(*EditSession)
				if s.idleSince(now) > m.ttl {
					m.log.Info("reaping idle edit session", zap.String("session", s.ID))
					m.Delete(s.ID)
				}
				return true
			})
		}
	}
}
