package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// sqliteTimeLayout is fixed width so exported_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps one row per save in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	path   string
	opts   options
	logger *zap.Logger
}

// NewSQLiteStore opens (creating when needed) the database at path.
func NewSQLiteStore(ctx context.Context, path, table string, opts ...Option) (*SQLiteStore, error) {
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open sqlite database")
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to sqlite database")
	}

	o := buildOptions(opts)
	s := &SQLiteStore{db: db, table: table, path: path, opts: o, logger: o.logger.With(zap.String("store", "sqlite"))}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			module_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0,
			exported_at TEXT NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s (location_id, module_id, exported_at)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.ErrorTypePersistence, "failed to create sqlite schema")
		}
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error) {
	doc, err := newDocument(domain, data, locationID, description, s.opts.clock())
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, module_id, location_id, description, data, record_count, exported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, query,
		doc.id, doc.domain, doc.locationID, doc.description, string(doc.payload), doc.count,
		doc.exportedAt.Format(sqliteTimeLayout),
	); err != nil {
		return nil, persistenceError(err, "sqlite", "save", domain)
	}
	s.logger.Debug("snapshot saved", zap.String("domain", domain), zap.Int("count", doc.count))
	return doc.ack(s.path + "#" + s.table), nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, domain, locationID string) (*Snapshot, error) {
	query := fmt.Sprintf(`SELECT id, description, data, record_count, exported_at FROM %s
		WHERE module_id = ? AND location_id = ? ORDER BY exported_at DESC LIMIT 1`, s.table)

	var (
		snap     = Snapshot{Domain: domain, LocationID: locationID}
		data     string
		exported string
	)
	err := s.db.QueryRowContext(ctx, query, domain, locationID).
		Scan(&snap.ID, &snap.Description, &data, &snap.Count, &exported)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError(err, "sqlite", "read", domain)
	}
	if snap.ExportedAt, err = time.Parse(sqliteTimeLayout, exported); err != nil {
		return nil, persistenceError(err, "sqlite", "read", domain)
	}
	snap.Data = []byte(data)
	return &snap, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, locationID string) (Manifest, error) {
	query := fmt.Sprintf(`SELECT id, module_id, description, record_count, exported_at FROM %s
		WHERE location_id = ? ORDER BY exported_at ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, query, locationID)
	if err != nil {
		return nil, persistenceError(err, "sqlite", "list", "")
	}
	defer rows.Close()

	m := Manifest{}
	for rows.Next() {
		var (
			entry    ManifestEntry
			domain   string
			exported string
		)
		if err := rows.Scan(&entry.ID, &domain, &entry.Description, &entry.Count, &exported); err != nil {
			return nil, persistenceError(err, "sqlite", "list", "")
		}
		if entry.ExportedAt, err = time.Parse(sqliteTimeLayout, exported); err != nil {
			return nil, persistenceError(err, "sqlite", "list", domain)
		}
		m[domain] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "sqlite", "list", "")
	}
	return m, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
