package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Environment variables that point backend tests at live services.
const (
	EnvTestPostgresDSN = "GHL_TEST_POSTGRES_DSN"
	EnvTestMongoURI    = "GHL_TEST_MONGO_URI"
)

// suiteTimeout bounds every test of a suite together.
const suiteTimeout = 2 * time.Minute

// IntegrationTestSuite is embedded by suites that write real files or
// databases. Each suite gets one scratch directory and one deadline.
type IntegrationTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	scratch string
}

// SetupSuite creates the scratch directory.
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), suiteTimeout)
	dir, err := os.MkdirTemp("", "ghlexport-*")
	require.NoError(s.T(), err)
	s.scratch = dir
}

// TearDownSuite removes the scratch directory.
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.scratch != "" {
		_ = os.RemoveAll(s.scratch)
	}
}

// Context is cancelled when the suite deadline passes.
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// Logger writes through the current test.
func (s *IntegrationTestSuite) Logger() *zap.Logger {
	return zaptest.NewLogger(s.T(), zaptest.Level(zap.WarnLevel))
}

// SubDir creates a named directory in the scratch space. Tests that want
// isolation pass distinct names.
func (s *IntegrationTestSuite) SubDir(name string) string {
	path := filepath.Join(s.scratch, name)
	require.NoError(s.T(), os.MkdirAll(path, 0o755))
	return path
}

// IntegrationTest skips in -short mode.
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
}

// RequireEnv skips the test unless every named variable is set, returning
// their values in order.
func RequireEnv(t *testing.T, names ...string) []string {
	t.Helper()
	values := make([]string, len(names))
	for i, name := range names {
		v := os.Getenv(name)
		if v == "" {
			t.Skipf("%s not set", name)
		}
		values[i] = v
	}
	return values
}

// RequireBackend combines IntegrationTest and RequireEnv for one live
// backend and returns its connection string.
func RequireBackend(t *testing.T, env string) string {
	t.Helper()
	IntegrationTest(t)
	return RequireEnv(t, env)[0]
}
