package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/config"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	"github.com/ajitpratap0/ghlexport/pkg/metrics"
	"github.com/ajitpratap0/ghlexport/pkg/testutil"
)

func TestMultiStoreMirrorsBestEffort(t *testing.T) {
	primary, err := NewFileStore(t.TempDir(), WithClock(steppingClock(epoch)))
	require.NoError(t, err)
	healthy, err := NewFileStore(t.TempDir(), WithClock(steppingClock(epoch)))
	require.NoError(t, err)
	broken := newMemBucket()
	broken.failPut = true
	brokenStore, err := newObjectStore("mem", broken, "", buildOptions(nil))
	require.NoError(t, err)

	m := metrics.New()
	s := NewMultiStore(primary, []Mirror{
		{Name: "broken", Store: brokenStore},
		{Name: "healthy", Store: healthy},
	}, WithLogger(testutil.TestLogger(t)), WithMetrics(m))
	defer s.Close()

	ctx := context.Background()
	ack, err := s.Save(ctx, "contacts", contacts(2), "loc-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, ack.Count)

	mirrored, err := healthy.Read(ctx, "contacts", "loc-1")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, 2, mirrored.Count)

	snap, err := s.Read(ctx, "contacts", "loc-1")
	require.NoError(t, err)
	assert.Equal(t, ack.ID, snap.ID)
}

func TestMultiStorePrimaryFailureIsReturned(t *testing.T) {
	b := newMemBucket()
	b.failPut = true
	primary, err := newObjectStore("mem", b, "", buildOptions(nil))
	require.NoError(t, err)
	mirror, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	s := NewMultiStore(primary, []Mirror{{Name: "file", Store: mirror}})
	_, err = s.Save(context.Background(), "contacts", contacts(1), "loc-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))

	m, err := mirror.List(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefault()
	cfg.Export.Dir = dir
	cfg.Export.Compression = "gzip"
	cfg.Store.Mirrors = []config.StoreConfig{{Type: "sqlite"}}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	multi, ok := s.(*MultiStore)
	require.True(t, ok)
	assert.IsType(t, &ObjectStore{}, multi.primary)
	assert.Equal(t, "sqlite#0", multi.mirrors[0].Name)

	ack, err := s.Save(context.Background(), "users", contacts(1), "loc-1", "")
	require.NoError(t, err)
	assert.Contains(t, ack.Location, ".json.gz")

	fromMirror, err := multi.mirrors[0].Store.Read(context.Background(), "users", "loc-1")
	require.NoError(t, err)
	require.NotNil(t, fromMirror)
	assert.Equal(t, 1, fromMirror.Count)
}

func TestOpenRejectsUnknownSettings(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Export.Dir = t.TempDir()

	cfg.Store.Type = "ftp"
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)

	cfg.Store.Type = "file"
	cfg.Export.Compression = "brotli"
	_, err = Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestDiscardKeepsNothing(t *testing.T) {
	ctx := context.Background()
	var s Store = Discard{}
	ack, err := s.Save(ctx, "contacts", contacts(3), "loc-1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, ack.Count)

	snap, err := s.Read(ctx, "contacts", "loc-1")
	require.NoError(t, err)
	assert.Nil(t, snap)
	m, err := s.List(ctx, "loc-1")
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.NoError(t, s.Close())
}
