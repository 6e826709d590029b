// Package connections tracks the status of provider connections. Rows are created by the
// connect flow elsewhere; webhooks only ever update existing rows.
package connections

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/graphsync/internal/core/apperr"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusError    Status = "ERROR"
	StatusInactive Status = "INACTIVE"
)

type Connection struct {
	ConnectionID string                 `json:"connectionId"`
	Provider     string                 `json:"provider"`
	Status       Status                 `json:"status"`
	LastSyncAt   *time.Time             `json:"lastSyncAt,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Update carries the fields to change; zero values leave the column untouched.
type Update struct {
	Status     Status
	LastSyncAt *time.Time
	Metadata   map[string]interface{}
}

type Store interface {
	// Get returns apperr.ErrNotFound when the connection does not exist.
	Get(ctx context.Context, connectionID string) (*Connection, error)
	Update(ctx context.Context, connectionID string, u Update) error
	Close() error
}

// Memory is an in-process Store used when no database is configured.
type Memory struct {
	mu   sync.Mutex
	rows map[string]*Connection
}

func NewMemory(seed ...Connection) *Memory {
	m := &Memory{rows: make(map[string]*Connection)}
	for i := range seed {
		c := seed[i]
		m.rows[c.ConnectionID] = &c
	}
	return m
}

func (m *Memory) Get(_ context.Context, connectionID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[connectionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) Update(_ context.Context, connectionID string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[connectionID]
	if !ok {
		return apperr.ErrNotFound
	}
	apply(c, u)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Close() error { return nil }

func apply(c *Connection, u Update) {
	if u.Status != "" {
		c.Status = u.Status
	}
	if u.LastSyncAt != nil {
		t := *u.LastSyncAt
		c.LastSyncAt = &t
	}
	if u.Metadata != nil {
		c.Metadata = u.Metadata
	}
}
