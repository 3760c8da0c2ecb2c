// Package stream maintains the private websocket feed: one authenticated
// session at a time, re-dialed with health-aware backoff when it drops.
package stream

import (
	"context"
	"crypto/tls"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/pkg/delta"
)

// SessionConfig carries everything needed to open and authenticate one
// websocket session.
type SessionConfig struct {
	URL          string
	APIKey       string
	APISecret    string
	Insecure     bool
	DialTimeout  time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Session wraps one live websocket connection. Reads happen on the manager's
// goroutine; writes (auth, subscribe, pings) are serialized by a mutex.
type Session struct {
	cfg  SessionConfig
	conn *websocket.Conn
	wmu  sync.Mutex
	log  *zap.Logger

	closeOnce sync.Once
}

// Dial opens the websocket connection.
func Dial(ctx context.Context, cfg SessionConfig, log *zap.Logger) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}
	if cfg.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, conn: conn, log: log}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readDeadline()))
	})
	_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline()))
	return s, nil
}

func (s *Session) readDeadline() time.Duration {
	return s.cfg.PingInterval + s.cfg.PingTimeout
}

// Authenticate sends the signed auth frame. The venue answers with a success
// message on the read side; subscription waits for it.
func (s *Session) Authenticate() error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := delta.Sign(s.cfg.APISecret, "GET", ts, "/live", "")
	return s.writeJSON(map[string]any{
		"type": "auth",
		"payload": map[string]any{
			"api-key":   s.cfg.APIKey,
			"signature": sig,
			"timestamp": ts,
		},
	})
}

// Subscribe requests the private channels for all symbols and turns on
// venue heartbeats.
func (s *Session) Subscribe(channels []string) error {
	subs := make([]map[string]any, 0, len(channels))
	for _, name := range channels {
		subs = append(subs, map[string]any{
			"name":    name,
			"symbols": []string{"all"},
		})
	}
	if err := s.writeJSON(map[string]any{
		"type":    "subscribe",
		"payload": map[string]any{"channels": subs},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]any{"type": "enable_heartbeat"})
}

// Ping sends a websocket-level ping.
func (s *Session) Ping() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PingTimeout))
}

// ReadMessage blocks for the next frame.
func (s *Session) ReadMessage() ([]byte, error) {
	_, msg, err := s.conn.ReadMessage()
	return msg, err
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.wmu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *Session) writeJSON(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(v)
}
