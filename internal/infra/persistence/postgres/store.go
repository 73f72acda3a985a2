// Package postgres provides a Postgres-backed store that mirrors the
// in-memory semantics and snapshots the engine state into a JSONB table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"epoccore/internal/infra/persistence/memory"
	"epoccore/pkg/domain"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Storage = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewStore receives an empty DSN.
	DefaultDSN = "postgres://localhost/epoc?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const (
	bucketRecords       = "records"
	bucketTemplateLinks = "template_links"
	bucketMeta          = "meta"
)

var postgresBuckets = []string{bucketRecords, bucketTemplateLinks, bucketMeta}

type meta struct {
	NextUID int `json:"next_uid"`
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to DefaultDSN), ensures the snapshot table exists and hydrates the
// in-memory store from any existing snapshot.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// Save persists obj through the memory store, then snapshots to Postgres.
func (s *Store) Save(ctx context.Context, obj domain.Object, saveChildren bool) error {
	if err := s.Store.Save(ctx, obj, saveChildren); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Delete removes obj through the memory store, then snapshots to Postgres.
func (s *Store) Delete(ctx context.Context, obj domain.Object, deleteChildren bool) error {
	if err := s.Store.Delete(ctx, obj, deleteChildren); err != nil {
		return err
	}
	return s.persist(ctx)
}

// LinkTemplate records the link, then snapshots to Postgres.
func (s *Store) LinkTemplate(ctx context.Context, parentUID int, obj domain.Object) error {
	if err := s.Store.LinkTemplate(ctx, parentUID, obj); err != nil {
		return err
	}
	return s.persist(ctx)
}

// UnlinkTemplate drops the link, then snapshots to Postgres.
func (s *Store) UnlinkTemplate(ctx context.Context, parentUID, uid int, t domain.ObjType) error {
	if err := s.Store.UnlinkTemplate(ctx, parentUID, uid, t); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	var m meta
	targets := map[string]any{
		bucketRecords:       &snapshot.Records,
		bucketTemplateLinks: &snapshot.TemplateLinks,
		bucketMeta:          &m,
	}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	snapshot.NextUID = m.NextUID
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
		var data []byte
		switch bucket {
		case bucketRecords:
			data, err = json.Marshal(snapshot.Records)
		case bucketTemplateLinks:
			data, err = json.Marshal(snapshot.TemplateLinks)
		case bucketMeta:
			data, err = json.Marshal(meta{NextUID: snapshot.NextUID})
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
