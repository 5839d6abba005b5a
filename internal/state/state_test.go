package state

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *State {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	return s
}

const testTenant = "acme"

// --- LoadAt ---

func TestLoadAt_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "state.db")
	_, err := LoadAt(dbPath)
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestLoadAt_ReopensExistingDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.SetSession(Session{User: "dev", Token: "persist-me"}))

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)

	sess, err := s2.Session()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "persist-me", sess.Token)
}

func TestLoadAt_SharedWhileInUse(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	watch, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, watch.RecordTransfer(testTenant, LedgerEntry{Path: "a.txt", Hash: "h1"}))

	start := time.Now()
	status, err := LoadAt(dbPath)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	entries, err := status.Ledger(testTenant)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, status.RecordTransfer("other", LedgerEntry{Path: "b.txt"}))
	require.NoError(t, watch.RecordTransfer(testTenant, LedgerEntry{Path: "c.txt"}))

	entries, err = status.Ledger(testTenant)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	other, err := watch.Ledger("other")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestState_ConcurrentWriters(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	first, err := LoadAt(dbPath)
	require.NoError(t, err)
	second, err := LoadAt(dbPath)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for i, s := range []*State{first, second, first, second} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range 10 {
				p := fmt.Sprintf("w%d/f%d.txt", i, j)
				assert.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: p}))
			}
		}()
	}

	wg.Wait()

	entries, err := first.Ledger(testTenant)
	require.NoError(t, err)
	assert.Len(t, entries, 40)
}

// --- Session ---

func TestSession_NilByDefault(t *testing.T) {
	s := testDB(t)
	sess, err := s.Session()
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSetSession_Overwrite(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetSession(Session{Token: "old"}))
	require.NoError(t, s.SetSession(Session{Token: "new", User: "dev", LoadedAt: 42}))

	sess, err := s.Session()
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "new", User: "dev", LoadedAt: 42}, *sess)
}

func TestClearSession(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.SetSession(Session{Token: "tok"}))
	require.NoError(t, s.ClearSession())

	sess, err := s.Session()
	require.NoError(t, err)
	assert.Nil(t, sess)
}

// --- Ledger ---

func TestRecordTransfer_RoundTrip(t *testing.T) {
	s := testDB(t)
	e := LedgerEntry{Path: "index.html", Direction: DirectionDownload, Hash: "abc", SyncedAt: 1000}
	require.NoError(t, s.RecordTransfer(testTenant, e))

	got, err := s.LastTransfer(testTenant, "index.html")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e, *got)
}

func TestRecordTransfer_RequiresPath(t *testing.T) {
	s := testDB(t)
	err := s.RecordTransfer(testTenant, LedgerEntry{Direction: DirectionUpload})
	assert.Error(t, err)
}

func TestRecordTransfer_LastWins(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "a.css", Hash: "h1"}))
	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "a.css", Hash: "h2", Conflict: true, BackupPath: "a.css.local.bak"}))

	got, err := s.LastTransfer(testTenant, "a.css")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.Hash)
	assert.True(t, got.Conflict)
	assert.Equal(t, "a.css.local.bak", got.BackupPath)
}

func TestLastTransfer_UnknownTenantOrPath(t *testing.T) {
	s := testDB(t)

	got, err := s.LastTransfer("nobody", "x")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "a"}))
	got, err = s.LastTransfer(testTenant, "b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLedger_SortedAndIsolated(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "z.txt"}))
	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "a/b.txt"}))
	require.NoError(t, s.RecordTransfer("other", LedgerEntry{Path: "c.txt"}))

	entries, err := s.Ledger(testTenant)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a/b.txt", entries[0].Path)
	assert.Equal(t, "z.txt", entries[1].Path)

	empty, err := s.Ledger("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestForgetPath(t *testing.T) {
	s := testDB(t)
	require.NoError(t, s.RecordTransfer(testTenant, LedgerEntry{Path: "gone.txt"}))
	require.NoError(t, s.ForgetPath(testTenant, "gone.txt"))
	require.NoError(t, s.ForgetPath("missing-tenant", "gone.txt"))

	got, err := s.LastTransfer(testTenant, "gone.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}
