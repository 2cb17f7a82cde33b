package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ajitpratap0/ghlexport/pkg/compression"
	"github.com/ajitpratap0/ghlexport/pkg/config"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
)

// DefaultSQLiteFile is the database name used when the sqlite store has
// no dsn; it is created in the export directory.
const DefaultSQLiteFile = "ghlexport.db"

// Open builds the configured backend. Configured mirrors wrap it in a
// MultiStore. Export.Dir and Export.Compression apply to the file backend
// and the object stores.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	algo, err := compression.ParseAlgorithm(cfg.Export.Compression)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithCompression(algo)}, opts...)

	primary, err := openOne(ctx, cfg.Store, cfg.Export.Dir, opts)
	if err != nil {
		return nil, err
	}
	if len(cfg.Store.Mirrors) == 0 {
		return primary, nil
	}

	mirrors := make([]Mirror, 0, len(cfg.Store.Mirrors))
	for i, sc := range cfg.Store.Mirrors {
		s, err := openOne(ctx, sc, cfg.Export.Dir, opts)
		if err != nil {
			_ = primary.Close()
			for _, m := range mirrors {
				_ = m.Store.Close()
			}
			return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("mirror %d", i))
		}
		mirrors = append(mirrors, Mirror{Name: fmt.Sprintf("%s#%d", sc.Type, i), Store: s})
	}
	return NewMultiStore(primary, mirrors, opts...), nil
}

func openOne(ctx context.Context, sc config.StoreConfig, dir string, opts []Option) (Store, error) {
	switch sc.Type {
	case "", "file":
		if sc.Prefix != "" {
			dir = filepath.Join(dir, sc.Prefix)
		}
		return NewFileStore(dir, opts...)
	case "sqlite":
		path := sc.DSN
		if path == "" {
			path = filepath.Join(dir, DefaultSQLiteFile)
		}
		return NewSQLiteStore(ctx, path, sc.Table, opts...)
	case "postgres":
		return NewPostgresStore(ctx, sc.DSN, sc.Table, opts...)
	case "mongo":
		return NewMongoStore(ctx, sc.DSN, sc.Database, sc.Table, opts...)
	case "s3":
		return NewS3Store(ctx, sc.Bucket, sc.Prefix, sc.Region, opts...)
	case "gcs":
		return NewGCSStore(ctx, sc.Bucket, sc.Prefix, sc.CredentialsFile, opts...)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown store type %q", sc.Type)
	}
}
