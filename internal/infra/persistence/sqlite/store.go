// Package sqlite persists engine objects in a single SQLite file. The
// working set lives in an embedded memory store; its state is written back
// as JSON buckets after every successful mutation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"epoccore/internal/infra/persistence/memory"
	"epoccore/pkg/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.Storage = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful mutation.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "epoc.db"

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const (
	bucketRecords       = "records"
	bucketTemplateLinks = "template_links"
	bucketMeta          = "meta"
)

var sqliteBuckets = []string{bucketRecords, bucketTemplateLinks, bucketMeta}

type meta struct {
	NextUID int `json:"next_uid"`
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case bucketRecords:
			if err := json.Unmarshal(r.payload, &snapshot.Records); err != nil {
				return fmt.Errorf("decode records: %w", err)
			}
		case bucketTemplateLinks:
			if err := json.Unmarshal(r.payload, &snapshot.TemplateLinks); err != nil {
				return fmt.Errorf("decode template links: %w", err)
			}
		case bucketMeta:
			var m meta
			if err := json.Unmarshal(r.payload, &m); err != nil {
				return fmt.Errorf("decode meta: %w", err)
			}
			snapshot.NextUID = m.NextUID
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
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
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Save persists obj through the memory store, then snapshots to SQLite.
func (s *Store) Save(ctx context.Context, obj domain.Object, saveChildren bool) error {
	if err := s.Store.Save(ctx, obj, saveChildren); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Delete removes obj through the memory store, then snapshots to SQLite.
func (s *Store) Delete(ctx context.Context, obj domain.Object, deleteChildren bool) error {
	if err := s.Store.Delete(ctx, obj, deleteChildren); err != nil {
		return err
	}
	return s.persist(ctx)
}

// LinkTemplate records the link, then snapshots to SQLite.
func (s *Store) LinkTemplate(ctx context.Context, parentUID int, obj domain.Object) error {
	if err := s.Store.LinkTemplate(ctx, parentUID, obj); err != nil {
		return err
	}
	return s.persist(ctx)
}

// UnlinkTemplate drops the link, then snapshots to SQLite.
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
