// Package simulator provides a loopback VenueClient used by tests and
// local runs. It is not a real exchange adapter: it runs its own
// WebSocket server in-process and streams synthetic order-book
// snapshots, so FeedIngestor's stale-detection and reconnect logic
// (spec.md §4.1) exercises a real websocket transport rather than an
// in-memory fake channel.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectConfig configures the exponential backoff used to
// re-establish a dropped websocket connection.
type ReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int // 0 = unlimited
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultReconnectConfig mirrors the backoff schedule the engine uses
// against real venues: 2s, 4s, 8s, 16s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 5 * time.Second,
		PingInterval:   15 * time.Second,
		PongTimeout:    5 * time.Second,
	}
}

// ConnState is the lifecycle state of a managed websocket connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReconnectManager owns one websocket connection and transparently
// re-dials it with exponential backoff on any read/ping error.
type ReconnectManager struct {
	name   string
	url    string
	cfg    ReconnectConfig
	log    *zap.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	state      int32 // atomic ConnState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	callbackMu   sync.RWMutex
	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)

	subMu sync.RWMutex
	subs  []interface{}
}

// NewReconnectManager creates a manager for one websocket URL.
func NewReconnectManager(name, url string, cfg ReconnectConfig, log *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		name:      name,
		url:       url,
		cfg:       cfg,
		log:       log,
		closeChan: make(chan struct{}),
	}
}

func (m *ReconnectManager) SetOnMessage(h func([]byte))    { m.callbackMu.Lock(); m.onMessage = h; m.callbackMu.Unlock() }
func (m *ReconnectManager) SetOnConnect(h func())          { m.callbackMu.Lock(); m.onConnect = h; m.callbackMu.Unlock() }
func (m *ReconnectManager) SetOnDisconnect(h func(error))  { m.callbackMu.Lock(); m.onDisconnect = h; m.callbackMu.Unlock() }

// AddSubscription records a subscribe message replayed after every
// reconnect.
func (m *ReconnectManager) AddSubscription(sub interface{}) {
	m.subMu.Lock()
	m.subs = append(m.subs, sub)
	m.subMu.Unlock()
}

func (m *ReconnectManager) State() ConnState {
	return ConnState(atomic.LoadInt32(&m.state))
}

// Connect dials once; on later drops the manager reconnects on its own.
func (m *ReconnectManager) Connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("%s: manager is closed", m.name)
	default:
	}

	atomic.StoreInt32(&m.state, int32(StateConnecting))
	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(StateDisconnected))
		return err
	}
	atomic.StoreInt32(&m.state, int32(StateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	m.fireOnConnect()
	go m.readPump()
	go m.pingPump()
	return nil
}

func (m *ReconnectManager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("%s: dial: %w", m.name, err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if err := m.resubscribe(); err != nil && m.log != nil {
		m.log.Warn("resubscribe after dial failed", zap.String("venue", m.name), zap.Error(err))
	}
	return nil
}

func (m *ReconnectManager) resubscribe() error {
	m.subMu.RLock()
	subs := append([]interface{}{}, m.subs...)
	m.subMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	for _, s := range subs {
		if err := conn.WriteJSON(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *ReconnectManager) readPump() {
	defer m.handleDisconnect(nil)
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

func (m *ReconnectManager) pingPump() {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.State() != StateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *ReconnectManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.State()
	if state == StateReconnecting || state == StateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(StateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	m.callbackMu.RLock()
	onDisconnect := m.onDisconnect
	m.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if err != nil && m.log != nil {
		m.log.Warn("websocket disconnected", zap.String("venue", m.name), zap.Error(err))
	}

	go m.reconnectLoop()
}

func (m *ReconnectManager) reconnectLoop() {
	delay := m.cfg.InitialDelay
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)
		if m.cfg.MaxRetries > 0 && int(retryCount) > m.cfg.MaxRetries {
			atomic.StoreInt32(&m.state, int32(StateDisconnected))
			return
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			delay *= 2
			if delay > m.cfg.MaxDelay {
				delay = m.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(StateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		m.fireOnConnect()
		go m.readPump()
		go m.pingPump()
		return
	}
}

func (m *ReconnectManager) fireOnConnect() {
	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}
}

// Close shuts the manager down permanently.
func (m *ReconnectManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(StateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
