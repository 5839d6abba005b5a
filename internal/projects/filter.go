package projects

import (
	"strings"
)

// Filter decides which paths take part in sync. Files are ignored by
// extension; the scanner also skips whole folders by name.
type Filter struct {
	extensions []string
	folders    map[string]struct{}
}

// NewFilter builds a Filter. Extensions are matched as suffixes of the
// file's base name, so multi-part entries such as ".sync.json" work and
// ".gitkeep" matches a file named exactly ".gitkeep".
func NewFilter(extensions, folders []string) *Filter {
	f := &Filter{folders: make(map[string]struct{}, len(folders))}

	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		f.extensions = append(f.extensions, ext)
	}

	for _, name := range folders {
		name = strings.TrimSpace(name)
		if name != "" {
			f.folders[name] = struct{}{}
		}
	}

	return f
}

// IgnoredFile reports whether a file path is excluded by extension.
// A nil Filter ignores nothing.
func (f *Filter) IgnoredFile(relPath string) bool {
	if f == nil {
		return false
	}

	base := baseName(normalizePath(relPath))
	for _, ext := range f.extensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}

	return false
}

// IgnoredFolder reports whether a directory name is skipped by the scanner.
func (f *Filter) IgnoredFolder(name string) bool {
	if f == nil {
		return false
	}

	_, ok := f.folders[name]

	return ok
}

// Folders returns the ignored folder names.
func (f *Filter) Folders() []string {
	if f == nil {
		return nil
	}

	out := make([]string, 0, len(f.folders))
	for name := range f.folders {
		out = append(out, name)
	}

	return out
}

// isDotPath reports whether any segment of a relative path starts with
// a dot. The watcher never reports such paths.
func isDotPath(relPath string) bool {
	for _, seg := range strings.Split(normalizePath(relPath), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}

	return false
}
