package projects

import (
	"crypto/md5" //nolint:gosec // the remote manifest identifies content by MD5
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
)

// FileRecord is the local state of one tenant file. Hash is the
// lowercase hex MD5 of the content and LastModified is in whole seconds.
// A record with Exists false carries no hash or timestamp.
type FileRecord struct {
	Path         string
	Hash         string
	LastModified int64
	Exists       bool
}

// Fingerprint reads a file by relative path and returns its record. A
// missing file yields Exists false and no error.
func (p *Project) Fingerprint(relPath string) (FileRecord, error) {
	relPath = normalizePath(relPath)
	rec := FileRecord{Path: relPath}

	absPath, err := p.resolve(relPath)
	if err != nil {
		return rec, fmt.Errorf("%w: %w", apperrors.ErrLocalIO, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, mtime, err := hashFile(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return rec, nil
	}

	if err != nil {
		return rec, fmt.Errorf("%w: fingerprinting %s: %w", apperrors.ErrLocalIO, relPath, err)
	}

	rec.Hash = hash
	rec.LastModified = mtime
	rec.Exists = true

	return rec, nil
}

// hashFile returns the MD5 hex digest and mtime in seconds of a file.
func hashFile(absPath string) (string, int64, error) {
	f, err := os.Open(absPath) //nolint:gosec // G304: callers pass resolved paths
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}

	if info.IsDir() {
		return "", 0, fmt.Errorf("%s is a directory", absPath)
	}

	h := md5.New() //nolint:gosec // see import
	if _, err := io.Copy(h, f); err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), info.ModTime().Unix(), nil
}

// contentHash returns the MD5 hex digest of data.
func contentHash(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
