package connections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/agenthands/graphsync/internal/core/apperr"
)

const (
	postgresTableName        = "graphsync_connections"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type Postgres struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	return &Postgres{dsn: dsn, openDB: sql.Open}, nil
}

func (p *Postgres) Get(ctx context.Context, connectionID string) (*Connection, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var (
		c        Connection
		status   string
		lastSync sql.NullTime
		metadata sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT connection_id, provider, status, last_sync_at, metadata, updated_at
		FROM `+postgresTableName+` WHERE connection_id = $1`, connectionID,
	).Scan(&c.ConnectionID, &c.Provider, &status, &lastSync, &metadata, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select connection %s: %w", connectionID, err)
	}
	c.Status = Status(status)
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		c.LastSyncAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode connection metadata: %w", err)
		}
	}
	return &c, nil
}

func (p *Postgres) Update(ctx context.Context, connectionID string, u Update) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	var metadata interface{}
	if u.Metadata != nil {
		raw, err := json.Marshal(u.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `
		UPDATE `+postgresTableName+` SET
			status = COALESCE(NULLIF($2, ''), status),
			last_sync_at = COALESCE($3, last_sync_at),
			metadata = COALESCE($4::jsonb, metadata),
			updated_at = NOW()
		WHERE connection_id = $1`,
		connectionID, string(u.Status), u.LastSyncAt, metadata)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", connectionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+postgresTableName+` (
				connection_id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'ACTIVE',
				last_sync_at TIMESTAMPTZ,
				metadata JSONB,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}
