package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

const (
	pgMaxConns = 4
	pgMinConns = 1
)

// PostgresStore keeps one row per save with the payload as JSONB.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	opts   options
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and creates the table when missing.
func NewPostgresStore(ctx context.Context, dsn, table string, opts ...Option) (*PostgresStore, error) {
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
	}
	poolConfig.MaxConns = pgMaxConns
	poolConfig.MinConns = pgMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}

	o := buildOptions(opts)
	s := &PostgresStore{pool: pool, table: table, opts: o, logger: o.logger.With(zap.String("store", "postgres"))}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			module_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			data JSONB NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0,
			exported_at TIMESTAMPTZ NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s (location_id, module_id, exported_at DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.ErrorTypePersistence, "failed to create postgres schema")
		}
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error) {
	doc, err := newDocument(domain, data, locationID, description, s.opts.clock())
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, module_id, location_id, description, data, record_count, exported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		doc.id, doc.domain, doc.locationID, doc.description, string(doc.payload), doc.count, doc.exportedAt,
	); err != nil {
		return nil, persistenceError(err, "postgres", "save", domain)
	}
	s.logger.Debug("snapshot saved", zap.String("domain", domain), zap.Int("count", doc.count))
	return doc.ack(s.table), nil
}

// Read implements Store.
func (s *PostgresStore) Read(ctx context.Context, domain, locationID string) (*Snapshot, error) {
	query := fmt.Sprintf(`SELECT id::text, description, data, record_count, exported_at FROM %s
		WHERE module_id = $1 AND location_id = $2 ORDER BY exported_at DESC LIMIT 1`, s.table)

	snap := Snapshot{Domain: domain, LocationID: locationID}
	var data []byte
	err := s.pool.QueryRow(ctx, query, domain, locationID).
		Scan(&snap.ID, &snap.Description, &data, &snap.Count, &snap.ExportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError(err, "postgres", "read", domain)
	}
	snap.Data = data
	snap.ExportedAt = snap.ExportedAt.UTC()
	return &snap, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, locationID string) (Manifest, error) {
	query := fmt.Sprintf(`SELECT DISTINCT ON (module_id) id::text, module_id, description, record_count, exported_at
		FROM %s WHERE location_id = $1 ORDER BY module_id, exported_at DESC`, s.table)
	rows, err := s.pool.Query(ctx, query, locationID)
	if err != nil {
		return nil, persistenceError(err, "postgres", "list", "")
	}
	defer rows.Close()

	m := Manifest{}
	for rows.Next() {
		var (
			entry  ManifestEntry
			domain string
		)
		if err := rows.Scan(&entry.ID, &domain, &entry.Description, &entry.Count, &entry.ExportedAt); err != nil {
			return nil, persistenceError(err, "postgres", "list", "")
		}
		entry.ExportedAt = entry.ExportedAt.UTC()
		m[domain] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "postgres", "list", "")
	}
	return m, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
