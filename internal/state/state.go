package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket  = []byte("app")
	sessionKey = []byte("session")
)

func ledgerBucket(tenant string) []byte {
	return []byte("tenant:" + tenant + ":ledger")
}

// Transfer directions recorded in the ledger.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Session is the authentication context for remote calls. It is loaded
// once at startup and passed explicitly to the remote client.
type Session struct {
	User     string `json:"user"`
	Token    string `json:"token"`
	LoadedAt int64  `json:"loaded_at"`
}

// LedgerEntry records the last completed transfer for a tenant path.
// It is informational: reconciliation always recomputes from disk.
type LedgerEntry struct {
	Path       string `json:"path"`
	Direction  string `json:"direction"`
	ActionType string `json:"action_type"`
	Hash       string `json:"hash"`
	SyncedAt   int64  `json:"synced_at"`
	Conflict   bool   `json:"conflict,omitempty"`
	BackupPath string `json:"backup_path,omitempty"`
}

// State persists application state in a bbolt database. The file is
// opened for one transaction at a time and closed again, so several
// processes (a long-running watch and a status query, or watchers for
// different tenants) can share it. bbolt's file lock serializes them.
type State struct {
	path string
	mu   sync.Mutex
}

// LoadAt prepares a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &State{path: path}

	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return s, nil
}

// view runs fn in a read-only transaction. Read-only opens take a shared
// lock, so concurrent readers do not wait on each other.
func (s *State) view(fn func(tx *bolt.Tx) error) error {
	return s.with(true, func(db *bolt.DB) error {
		return db.View(fn)
	})
}

// update runs fn in a read-write transaction.
func (s *State) update(fn func(tx *bolt.Tx) error) error {
	return s.with(false, func(db *bolt.DB) error {
		return db.Update(fn)
	})
}

func (s *State) with(readOnly bool, fn func(db *bolt.DB) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := bolt.Open(s.path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("opening state db: %w", err)
	}

	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing state db: %w", cerr)
		}
	}()

	return fn(db)
}

// Session returns the cached session, or nil if none is stored.
func (s *State) Session() (*Session, error) {
	var sess *Session

	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if b == nil {
			return nil
		}

		v := b.Get(sessionKey)
		if v == nil {
			return nil
		}

		sess = &Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// SetSession persists the session.
func (s *State) SetSession(sess Session) error {
	return s.update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		b, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		return b.Put(sessionKey, data)
	})
}

// ClearSession removes the cached session.
func (s *State) ClearSession() error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if b == nil {
			return nil
		}

		return b.Delete(sessionKey)
	})
}

// RecordTransfer stores the ledger entry for a tenant path, replacing any
// previous entry for the same path.
func (s *State) RecordTransfer(tenant string, e LedgerEntry) error {
	if e.Path == "" {
		return fmt.Errorf("ledger entry path is required")
	}

	return s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(ledgerBucket(tenant))
		if err != nil {
			return err
		}

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		return b.Put([]byte(e.Path), data)
	})
}

// ForgetPath removes the ledger entry for a tenant path.
func (s *State) ForgetPath(tenant, path string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(tenant))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(path))
	})
}

// LastTransfer returns the ledger entry for a tenant path, or nil.
func (s *State) LastTransfer(tenant, path string) (*LedgerEntry, error) {
	var e *LedgerEntry

	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(tenant))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(path))
		if v == nil {
			return nil
		}

		e = &LedgerEntry{}

		return json.Unmarshal(v, e)
	})

	return e, err
}

// Ledger returns all ledger entries for a tenant sorted by path.
func (s *State) Ledger(tenant string) ([]LedgerEntry, error) {
	var entries []LedgerEntry

	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(tenant))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var e LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}

			entries = append(entries, e)

			return nil
		})
	})

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return entries, err
}
