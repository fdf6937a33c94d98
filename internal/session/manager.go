// Package session maps HTTP sessions to lazily-created wallet protocol
// clients and manages their lifecycle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/humansinstitute/bush-starter/internal/nwc"
)

// ErrNotConfigured is returned when a session has no wallet connection.
var ErrNotConfigured = errors.New("session has no wallet connection configured")

// WalletClient is the slice of the NWC client the rest of the gateway
// needs. *nwc.Client satisfies it; tests substitute stubs.
type WalletClient interface {
	GetBalance(ctx context.Context) (*nwc.GetBalanceResult, error)
	MakeInvoice(ctx context.Context, params nwc.MakeInvoiceParams) (*nwc.Transaction, error)
	PayInvoice(ctx context.Context, invoice string) (*nwc.PayInvoiceResult, error)
	LookupInvoice(ctx context.Context, params nwc.LookupInvoiceParams) (*nwc.Transaction, error)
	ListTransactions(ctx context.Context, params nwc.ListTransactionsParams) (*nwc.ListTransactionsResult, error)
	GetInfo(ctx context.Context) (*nwc.GetInfoResult, error)
	Close() error
}

// ClientFactory builds a protocol client for a parsed connection.
type ClientFactory func(conn *nwc.Connection) (WalletClient, error)

// Status reports what a session currently points at.
type Status struct {
	Configured   bool   `json:"configured"`
	Connected    bool   `json:"connected"`
	WalletPubkey string `json:"wallet_pubkey,omitempty"`
	RelayURL     string `json:"relay_url,omitempty"`
	Lud16        string `json:"lud16,omitempty"`
}

type entry struct {
	mu       sync.Mutex
	conn     *nwc.Connection
	client   WalletClient
	lastUsed time.Time
}

// Manager owns per-session wallet state. Each session holds at most one
// client, created on first use and reused until the session is
// reconfigured, disconnected, or swept for idleness.
type Manager struct {
	factory ClientFactory
	ttl     time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	done     chan struct{}
	once     sync.Once
}

// NewManager builds a manager and starts its idle sweeper. TTL <= 0
// disables sweeping.
func NewManager(factory ClientFactory, ttl time.Duration, log zerolog.Logger) *Manager {
	m := &Manager{
		factory:  factory,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go m.sweep()
	}
	return m
}

// Configure installs a wallet connection string for the session, tearing
// down any client built for the previous configuration. The old client is
// always closed before the new connection becomes visible.
func (m *Manager) Configure(sessionID, raw string) (*nwc.Connection, error) {
	conn, err := nwc.ParseConnectionString(raw)
	if err != nil {
		return nil, err
	}

	e := m.entry(sessionID)
	e.mu.Lock()
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			m.log.Warn().Err(err).Str("session", sessionID).Msg("closing replaced wallet client")
		}
		e.client = nil
	}
	e.conn = conn
	e.lastUsed = time.Now()
	e.mu.Unlock()

	m.log.Info().Str("session", sessionID).Str("wallet", conn.WalletPubkey).Msg("session configured")
	return conn, nil
}

// Client returns the session's wallet client, creating it on first use.
func (m *Manager) Client(sessionID string) (WalletClient, error) {
	e := m.entry(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return nil, ErrNotConfigured
	}
	if e.client == nil {
		client, err := m.factory(e.conn)
		if err != nil {
			return nil, err
		}
		e.client = client
		m.log.Debug().Str("session", sessionID).Msg("wallet client created")
	}
	e.lastUsed = time.Now()
	return e.client, nil
}

// Disconnect closes and forgets the session's client and configuration.
// Disconnecting an unknown or already-disconnected session is a no-op.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	client := e.client
	e.client = nil
	e.conn = nil
	e.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			m.log.Warn().Err(err).Str("session", sessionID).Msg("closing wallet client")
		}
	}
	m.log.Info().Str("session", sessionID).Msg("session disconnected")
}

// Status reports the session's connection state without creating a client.
func (m *Manager) Status(sessionID string) Status {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Status{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return Status{}
	}
	return Status{
		Configured:   true,
		Connected:    e.client != nil,
		WalletPubkey: e.conn.WalletPubkey,
		RelayURL:     e.conn.RelayURL,
		Lud16:        e.conn.Lud16,
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the sweeper and tears down every session.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range sessions {
		e.mu.Lock()
		client := e.client
		e.client = nil
		e.mu.Unlock()
		if client != nil {
			if err := client.Close(); err != nil {
				m.log.Warn().Err(err).Str("session", id).Msg("closing wallet client")
			}
		}
	}
}

func (m *Manager) entry(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &entry{lastUsed: time.Now()}
		m.sessions[sessionID] = e
	}
	return e
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-m.ttl))
		}
	}
}

func (m *Manager) evictIdle(cutoff time.Time) {
	m.mu.Lock()
	var stale []string
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.log.Debug().Str("session", id).Msg("evicting idle session")
		m.Disconnect(id)
	}
}
