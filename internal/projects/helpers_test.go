package projects

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/project-sync/internal/remote"
	"github.com/stretchr/testify/require"
)

const testTenant = "acme"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// denyAccess removes all permissions from rel until the test ends.
// Root ignores permission bits, so the test is skipped there.
func denyAccess(t *testing.T, p *Project, rel string) {
	t.Helper()

	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	abs := filepath.Join(p.Dir(), filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(abs, 0))
	t.Cleanup(func() { _ = os.Chmod(abs, info.Mode().Perm()) })
}

func defaultFilter() *Filter {
	return NewFilter([]string{".gitkeep", ".ignore", ".gitignore", ".temp", ".bak", ".sync.json"}, []string{".git"})
}

func newTestProject(t *testing.T) *Project {
	t.Helper()

	p, err := NewProject(filepath.Join(t.TempDir(), "projects", testTenant), testTenant)
	require.NoError(t, err)

	return p
}

// writeLocal writes a file under the project and sets its mtime in
// seconds when mtime is positive.
func writeLocal(t *testing.T, p *Project, rel, content string, mtime int64) {
	t.Helper()

	abs := filepath.Join(p.Dir(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	if mtime > 0 {
		ts := time.Unix(mtime, 0)
		require.NoError(t, os.Chtimes(abs, ts, ts))
	}
}

func readLocal(t *testing.T, p *Project, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(p.Dir(), filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

func localExists(p *Project, rel string) bool {
	_, err := os.Stat(filepath.Join(p.Dir(), filepath.FromSlash(rel)))
	return err == nil
}

type memFile struct {
	data         []byte
	lastModified int64
}

// memRemote is an in-memory tenant store that behaves like the API:
// uploads become manifest entries and downloads return base64 content.
type memRemote struct {
	mu        sync.Mutex
	files     map[string]memFile
	uploads   []remote.UploadPayload
	downloads []string
}

func newMemRemote() *memRemote {
	return &memRemote{files: make(map[string]memFile)}
}

func (m *memRemote) put(rel, content string, lastModified int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[rel] = memFile{data: []byte(content), lastModified: lastModified}
}

func (m *memRemote) Manifest(_ context.Context, _ string) ([]remote.ManifestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]remote.ManifestEntry, 0, len(m.files))
	for rel, f := range m.files {
		out = append(out, remote.ManifestEntry{Location: rel, Hash: contentHash(f.data), LastModified: f.lastModified})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })

	return out, nil
}

func (m *memRemote) Upload(_ context.Context, tenant string, p remote.UploadPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads = append(m.uploads, p)
	prefix := "projects/" + tenant + "/"

	switch p.ActionType {
	case remote.ActionCreate, remote.ActionUpdate:
		data, err := base64.StdEncoding.DecodeString(p.Content)
		if err != nil {
			return err
		}

		lm, _ := strconv.ParseInt(p.LastModified, 10, 64)
		m.files[strings.TrimPrefix(p.FilePath, prefix)] = memFile{data: data, lastModified: lm}
	case remote.ActionDelete:
		target := p.Directory
		if p.FilePath != "" {
			target = p.FilePath
		}

		delete(m.files, strings.TrimPrefix(target, prefix))
	}

	return nil
}

func (m *memRemote) Download(_ context.Context, tenant, wirePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloads = append(m.downloads, wirePath)

	f, ok := m.files[strings.TrimPrefix(wirePath, "projects/"+tenant+"/")]
	if !ok {
		return "", &remote.APIError{Endpoint: "/download/" + tenant, Status: "error", Message: "not found: " + path.Base(wirePath)}
	}

	return base64.StdEncoding.EncodeToString(f.data), nil
}

func (m *memRemote) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}
