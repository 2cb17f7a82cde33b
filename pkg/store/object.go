package store

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/compression"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
)

// stampLayout names the per-run snapshot directory.
const stampLayout = "2006-01-02T15-04-05"

var errObjectNotFound = errors.New(errors.ErrorTypeNotFound, "object not found")

// bucket is a flat key/value object namespace.
type bucket interface {
	Put(ctx context.Context, key string, body []byte) error
	// Get returns errObjectNotFound when key does not exist
	Get(ctx context.Context, key string) ([]byte, error)
	URI(key string) string
	Close() error
}

// manifestDoc is the manifest object: location id, then domain.
type manifestDoc map[string]Manifest

// ObjectStore writes each snapshot to <prefix>/<run stamp>/<domain>.json
// (plus the compression suffix) and keeps <prefix>/_manifest.json pointing
// at the newest snapshot of every domain.
type ObjectStore struct {
	backend string
	bucket  bucket
	prefix  string
	stamp   string
	algo    compression.Algorithm
	comp    compression.Compressor
	opts    options
	logger  *zap.Logger

	mu sync.Mutex
}

func newObjectStore(backend string, b bucket, prefix string, o options) (*ObjectStore, error) {
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: o.compression})
	if err != nil {
		return nil, err
	}
	return &ObjectStore{
		backend: backend,
		bucket:  b,
		prefix:  prefix,
		stamp:   o.clock().UTC().Format(stampLayout),
		algo:    comp.Algorithm(),
		comp:    comp,
		opts:    o,
		logger:  o.logger.With(zap.String("store", backend)),
	}, nil
}

// NewFileStore stores snapshots under dir on the local filesystem.
func NewFileStore(dir string, opts ...Option) (*ObjectStore, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create export directory")
	}
	return newObjectStore("file", &dirBucket{root: dir}, "", buildOptions(opts))
}

// RunDir returns the key prefix of snapshots written by this store.
func (s *ObjectStore) RunDir() string {
	return s.bucket.URI(path.Join(s.prefix, s.stamp))
}

// Save implements Store.
func (s *ObjectStore) Save(ctx context.Context, domain string, data interface{}, locationID, description string) (*Ack, error) {
	doc, err := newDocument(domain, data, locationID, description, s.opts.clock())
	if err != nil {
		return nil, err
	}

	body, err := s.comp.Compress(doc.payload)
	if err != nil {
		return nil, persistenceError(err, s.backend, "compress", domain)
	}
	key := path.Join(s.prefix, s.stamp, domain+".json"+compression.Extension(s.algo))
	if err := s.bucket.Put(ctx, key, body); err != nil {
		return nil, persistenceError(err, s.backend, "save", domain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifest(ctx)
	if err != nil {
		return nil, persistenceError(err, s.backend, "manifest read", domain)
	}
	if m[locationID] == nil {
		m[locationID] = Manifest{}
	}
	m[locationID][domain] = ManifestEntry{
		ID:          doc.id,
		Count:       doc.count,
		ExportedAt:  doc.exportedAt,
		Description: doc.description,
		Key:         key,
	}
	raw, err := jsonpool.MarshalPretty(m)
	if err != nil {
		return nil, persistenceError(err, s.backend, "manifest encode", domain)
	}
	if err := s.bucket.Put(ctx, s.manifestKey(), raw); err != nil {
		return nil, persistenceError(err, s.backend, "manifest write", domain)
	}

	s.logger.Debug("snapshot saved",
		zap.String("domain", domain),
		zap.String("key", key),
		zap.Int("count", doc.count),
		zap.Int("bytes", len(body)))
	return doc.ack(s.bucket.URI(key)), nil
}

// Read implements Store.
func (s *ObjectStore) Read(ctx context.Context, domain, locationID string) (*Snapshot, error) {
	s.mu.Lock()
	m, err := s.loadManifest(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, persistenceError(err, s.backend, "manifest read", domain)
	}

	entry, ok := m[locationID][domain]
	if !ok {
		return nil, nil
	}
	body, err := s.bucket.Get(ctx, entry.Key)
	if errors.Is(err, errObjectNotFound) {
		s.logger.Warn("manifest points at a missing snapshot", zap.String("domain", domain), zap.String("key", entry.Key))
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError(err, s.backend, "read", domain)
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.FromFilename(entry.Key)})
	if err != nil {
		return nil, persistenceError(err, s.backend, "read", domain)
	}
	data, err := comp.Decompress(body)
	if err != nil {
		return nil, persistenceError(err, s.backend, "decompress", domain)
	}

	return &Snapshot{
		ID:          entry.ID,
		Domain:      domain,
		LocationID:  locationID,
		Description: entry.Description,
		Count:       entry.Count,
		ExportedAt:  entry.ExportedAt,
		Data:        bytes.TrimSpace(data),
	}, nil
}

// List implements Store.
func (s *ObjectStore) List(ctx context.Context, locationID string) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifest(ctx)
	if err != nil {
		return nil, persistenceError(err, s.backend, "manifest read", "")
	}
	out := Manifest{}
	for domain, entry := range m[locationID] {
		out[domain] = entry
	}
	return out, nil
}

// Close implements Store.
func (s *ObjectStore) Close() error {
	return s.bucket.Close()
}

func (s *ObjectStore) manifestKey() string {
	return path.Join(s.prefix, ManifestFile)
}

// loadManifest reads the manifest; a missing or unreadable manifest starts
// over empty. Callers hold s.mu.
func (s *ObjectStore) loadManifest(ctx context.Context) (manifestDoc, error) {
	raw, err := s.bucket.Get(ctx, s.manifestKey())
	if errors.Is(err, errObjectNotFound) {
		return manifestDoc{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := manifestDoc{}
	if err := jsonpool.Unmarshal(raw, &m); err != nil {
		s.logger.Warn("discarding unreadable manifest", zap.Error(err))
		return manifestDoc{}, nil
	}
	return m, nil
}

// dirBucket maps keys to files below root.
type dirBucket struct {
	root string
}

func (b *dirBucket) Put(_ context.Context, key string, body []byte) error {
	target := b.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (b *dirBucket) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, errObjectNotFound
	}
	return data, err
}

func (b *dirBucket) URI(key string) string { return b.path(key) }

func (b *dirBucket) Close() error { return nil }

func (b *dirBucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}
