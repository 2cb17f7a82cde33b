package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/ghlexport/pkg/models"
	"github.com/ajitpratap0/ghlexport/pkg/testutil"
)

type SQLiteStoreSuite struct {
	testutil.IntegrationTestSuite
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) open(name string) *SQLiteStore {
	path := filepath.Join(s.SubDir(name), "exports.db")
	st, err := NewSQLiteStore(s.Context(), path, "", WithClock(steppingClock(epoch)), WithLogger(s.Logger()))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = st.Close() })
	return st
}

func (s *SQLiteStoreSuite) TestContract() {
	contract(s.T(), s.open("contract"))
}

func (s *SQLiteStoreSuite) TestKeepsEverySave() {
	st := s.open("history")
	ctx := s.Context()

	for i := 1; i <= 3; i++ {
		_, err := st.Save(ctx, "contacts", contacts(i), "loc-1", "")
		s.Require().NoError(err)
	}

	var rows int
	s.Require().NoError(st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ghl_exports").Scan(&rows))
	s.Equal(3, rows)

	m, err := st.List(ctx, "loc-1")
	s.Require().NoError(err)
	s.Equal(3, m["contacts"].Count)
}

func (s *SQLiteStoreSuite) TestReopenKeepsData() {
	dir := s.SubDir("reopen")
	path := filepath.Join(dir, "exports.db")
	ctx := s.Context()

	st, err := NewSQLiteStore(ctx, path, "snapshots")
	s.Require().NoError(err)
	_, err = st.Save(ctx, "users", []models.Record{{"id": "u1"}}, "loc-1", "Team members")
	s.Require().NoError(err)
	s.Require().NoError(st.Close())

	st, err = NewSQLiteStore(ctx, path, "snapshots")
	s.Require().NoError(err)
	defer st.Close()

	snap, err := st.Read(ctx, "users", "loc-1")
	s.Require().NoError(err)
	s.Require().NotNil(snap)
	s.Equal("Team members", snap.Description)
	s.JSONEq(`[{"id":"u1"}]`, string(snap.Data))
}

func TestSQLiteStoreRejectsBadTable(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "x.db"), "bad-name")
	require.Error(t, err)
}

func TestSQLiteStoreTimeLayoutSorts(t *testing.T) {
	early := epoch.Format(sqliteTimeLayout)
	late := epoch.Add(1500 * time.Millisecond).Format(sqliteTimeLayout)
	assert.Len(t, early, len(late))
	assert.Less(t, early, late)
}
