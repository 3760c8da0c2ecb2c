package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerConfig tunes the reconnect loop around one session at a time.
type ManagerConfig struct {
	Session       SessionConfig
	Channels      []string
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64
}

// Status is the feed state snapshot served by the HTTP API.
type Status struct {
	Connected      bool      `json:"connected"`
	Authenticated  bool      `json:"authenticated"`
	SessionStart   time.Time `json:"session_start,omitzero"`
	LastHealth     time.Time `json:"last_health,omitzero"`
	ReconnectCount int       `json:"reconnect_count"`
}

// Manager runs the dial/auth/read loop and re-dials after failures with
// health-aware backoff. It owns the ingestion goroutine: every routed frame
// is handled on Run's goroutine.
type Manager struct {
	cfg     ManagerConfig
	router  *Router
	log     *zap.Logger
	stop    <-chan struct{}
	backoff *Backoff

	mu            sync.Mutex
	connected     bool
	authenticated bool
	sessionStart  time.Time
	lastHealth    time.Time
	reconnects    int
}

func NewManager(cfg ManagerConfig, router *Router, log *zap.Logger, stop <-chan struct{}) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Session.DialTimeout <= 0 {
		cfg.Session.DialTimeout = 30 * time.Second
	}
	if cfg.Session.PingInterval <= 0 {
		cfg.Session.PingInterval = 30 * time.Second
	}
	if cfg.Session.PingTimeout <= 0 {
		cfg.Session.PingTimeout = 5 * time.Second
	}
	m := &Manager{
		cfg:     cfg,
		router:  router,
		log:     log,
		stop:    stop,
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffJitter),
	}
	router.OnHealth = m.markHealth
	return m
}

// Status returns the feed state for the API.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Connected:      m.connected,
		Authenticated:  m.authenticated,
		SessionStart:   m.sessionStart,
		LastHealth:     m.lastHealth,
		ReconnectCount: m.reconnects,
	}
}

// Run keeps exactly one session alive until the stop signal fires.
func (m *Manager) Run() {
	first := true
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		if !first {
			m.mu.Lock()
			m.reconnects++
			m.mu.Unlock()
		}
		first = false

		sessionStart := time.Now()
		m.setSessionStart(sessionStart)
		m.runSession(sessionStart)

		select {
		case <-m.stop:
			return
		default:
		}

		hadHealth := m.healthSince(sessionStart)
		wait := m.backoff.Next(hadHealth)
		m.log.Info("reconnecting",
			zap.Bool("had_health", hadHealth),
			zap.Duration("wait", wait),
		)
		if !m.sleep(wait) {
			return
		}
	}
}

// runSession dials, authenticates and reads frames until the connection
// breaks or shutdown begins.
func (m *Manager) runSession(sessionStart time.Time) {
	dialCtx, cancel := context.WithTimeout(context.Background(), m.cfg.Session.DialTimeout)
	sess, err := Dial(dialCtx, m.cfg.Session, m.log)
	cancel()
	if err != nil {
		m.log.Warn("ws dial failed", zap.Error(err))
		return
	}
	defer sess.Close()
	m.setConnected(true)
	defer m.setConnected(false)
	m.log.Info("ws connected", zap.String("url", m.cfg.Session.URL))

	// Subscribe only after the venue confirms authentication.
	m.router.OnAuthenticated = func() {
		m.setAuthenticated(true)
		if err := sess.Subscribe(m.cfg.Channels); err != nil {
			m.log.Warn("subscribe failed", zap.Error(err))
			sess.Close()
			return
		}
		m.log.Info("subscribed", zap.Strings("channels", m.cfg.Channels))
	}

	if err := sess.Authenticate(); err != nil {
		m.log.Warn("auth send failed", zap.Error(err))
		return
	}

	// Close the socket as soon as shutdown begins so the read below
	// unblocks; the pinger doubles as the watcher.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pinger(sess, pingDone)

	for {
		msg, err := sess.ReadMessage()
		if err != nil {
			select {
			case <-m.stop:
			default:
				m.log.Warn("ws read failed", zap.Error(err))
			}
			return
		}
		m.router.Route(msg)
	}
}

func (m *Manager) pinger(sess *Session, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.Session.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-m.stop:
			sess.Close()
			return
		case <-ticker.C:
			if err := sess.Ping(); err != nil {
				m.log.Warn("ping failed", zap.Error(err))
				sess.Close()
				return
			}
		}
	}
}

// sleep waits the given duration in small slices so shutdown is never
// delayed by a long backoff. Returns false when interrupted.
func (m *Manager) sleep(d time.Duration) bool {
	const step = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-m.stop:
			return false
		case <-time.After(step):
		}
	}
	return true
}

func (m *Manager) markHealth() {
	m.mu.Lock()
	m.lastHealth = time.Now()
	m.mu.Unlock()
}

func (m *Manager) healthSince(sessionStart time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastHealth.Before(sessionStart)
}

func (m *Manager) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	if !v {
		m.authenticated = false
	}
	m.mu.Unlock()
}

func (m *Manager) setAuthenticated(v bool) {
	m.mu.Lock()
	m.authenticated = v
	m.mu.Unlock()
}

func (m *Manager) setSessionStart(t time.Time) {
	m.mu.Lock()
	m.sessionStart = t
	m.mu.Unlock()
}
