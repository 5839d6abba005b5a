package projects

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// projectDirPerm is the permission mode for directories created
	// inside a tenant root.
	projectDirPerm = fs.FileMode(0o755)

	// projectFilePerm is the permission mode for files written inside a
	// tenant root.
	projectFilePerm = fs.FileMode(0o644)

	// wireRoot is the prefix the remote uses for tenant paths, independent
	// of where the projects directory lives locally.
	wireRoot = "projects"
)

// mtimeMin and mtimeMax clamp remote-provided modification times to a
// reasonable range before they are applied to local files.
var (
	mtimeMin = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	mtimeMax = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Project provides filesystem operations on one tenant root. Writes take
// an exclusive lock and reads a shared lock so a reader never sees a
// partial write from the executor.
type Project struct {
	dir    string
	tenant string
	mu     sync.RWMutex
}

// NewProject creates a Project for tenant rooted at dir, creating the
// directory if it does not exist. dir must be absolute.
func NewProject(dir, tenant string) (*Project, error) {
	if dir == "" {
		return nil, fmt.Errorf("project directory must not be empty")
	}

	if tenant == "" {
		return nil, fmt.Errorf("tenant must not be empty")
	}

	if err := os.MkdirAll(dir, projectDirPerm); err != nil {
		return nil, fmt.Errorf("creating project directory %s: %w", dir, err)
	}

	return &Project{dir: filepath.Clean(dir), tenant: tenant}, nil
}

// Dir returns the tenant root directory.
func (p *Project) Dir() string {
	return p.dir
}

// Tenant returns the tenant name.
func (p *Project) Tenant() string {
	return p.tenant
}

// WirePath returns the path the remote uses for a tenant-relative path:
// projects/<tenant>/<rel>. An empty rel yields the tenant root.
func (p *Project) WirePath(relPath string) string {
	relPath = normalizePath(relPath)
	if relPath == "" {
		return wireRoot + "/" + p.tenant
	}

	return wireRoot + "/" + p.tenant + "/" + relPath
}

// Rel converts an absolute path under the tenant root into a normalized
// relative path. Returns "" for the root itself or paths outside it.
func (p *Project) Rel(absPath string) string {
	rel, err := filepath.Rel(p.dir, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return ""
	}

	return normalizePath(rel)
}

// ReadFile reads a file by relative path.
func (p *Project) ReadFile(relPath string) ([]byte, error) {
	absPath, err := p.resolve(relPath)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return os.ReadFile(absPath) //nolint:gosec // G304: absPath validated by Project.resolve
}

// WriteFile writes content to a file by relative path, creating parent
// directories as needed. Existing content is replaced. If mtime is
// non-zero it is applied after the write so downloaded files carry the
// remote timestamp.
func (p *Project) WriteFile(relPath string, data []byte, mtime time.Time) error {
	absPath, err := p.resolve(relPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(absPath), projectDirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", relPath, err)
	}

	if err := os.WriteFile(absPath, data, projectFilePerm); err != nil {
		return err
	}

	if !mtime.IsZero() {
		mtime = clampMtime(mtime)
		if err := os.Chtimes(absPath, mtime, mtime); err != nil {
			return fmt.Errorf("setting mtime for %s: %w", relPath, err)
		}
	}

	return nil
}

// Stat returns file info for a relative path.
func (p *Project) Stat(relPath string) (os.FileInfo, error) {
	absPath, err := p.resolve(relPath)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return os.Stat(absPath)
}

// resolve converts a relative path to an absolute path within the
// tenant root, rejecting null bytes, ".." segments and symlinks that
// escape the root.
func (p *Project) resolve(relPath string) (string, error) {
	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("path contains null byte: %q", relPath)
	}

	relPath = normalizePath(relPath)
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}

	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains ..: %q", relPath)
		}
	}

	absPath := filepath.Join(p.dir, filepath.FromSlash(relPath))
	if !strings.HasPrefix(absPath, p.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal blocked: %q resolves outside project dir", relPath)
	}

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// New files do not exist yet; the prefix check above covers them
		// unless an existing parent is a symlink out of the root.
		if os.IsNotExist(err) {
			parentReal, pErr := filepath.EvalSymlinks(filepath.Dir(absPath))
			if pErr != nil {
				return absPath, nil //nolint:nilerr // parent will be created by MkdirAll
			}

			rootReal, rErr := filepath.EvalSymlinks(p.dir)
			if rErr != nil {
				rootReal = p.dir
			}

			if parentReal != rootReal && !strings.HasPrefix(parentReal, rootReal+string(os.PathSeparator)) {
				return "", fmt.Errorf("symlink traversal blocked: parent of %q resolves to %q outside project", relPath, parentReal)
			}

			return absPath, nil
		}

		return "", fmt.Errorf("resolving symlinks for %q: %w", relPath, err)
	}

	rootReal, err := filepath.EvalSymlinks(p.dir)
	if err != nil {
		rootReal = p.dir
	}

	if !strings.HasPrefix(realPath, rootReal+string(os.PathSeparator)) {
		return "", fmt.Errorf("symlink traversal blocked: %q resolves to %q outside project dir", relPath, realPath)
	}

	return absPath, nil
}

// clampMtime restricts a timestamp to the range [2000, 2100).
func clampMtime(t time.Time) time.Time {
	if t.Before(mtimeMin) {
		return mtimeMin
	}

	if t.After(mtimeMax) {
		return mtimeMax
	}

	return t
}

// normalizePath converts separators to forward slashes, collapses
// repeated slashes, drops "." segments, trims leading and trailing
// slashes and applies Unicode NFC. Every path entering the package goes
// through here before it is compared with anything.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	var b strings.Builder

	prevSlash := false

	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	segs := strings.Split(strings.Trim(b.String(), "/"), "/")
	kept := segs[:0]

	for _, s := range segs {
		if s == "." {
			continue
		}

		kept = append(kept, s)
	}

	return norm.NFC.String(strings.Join(kept, "/"))
}

// baseName returns the last element of a normalized path.
func baseName(relPath string) string {
	return path.Base(relPath)
}
