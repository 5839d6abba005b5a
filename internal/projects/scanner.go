package projects

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
)

// Scan lists every regular file under root, skipping directories whose
// name is in ignoreFolders. Symlinks are not followed. Results are
// absolute paths; order is not significant.
func Scan(root string, ignoreFolders []string) ([]string, error) {
	skip := make(map[string]struct{}, len(ignoreFolders))
	for _, name := range ignoreFolders {
		skip[name] = struct{}{}
	}

	var files []string

	stack := []string{root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrDirectoryUnreadable, dir, err)
		}

		var subdirs []string

		for _, e := range entries {
			full := filepath.Join(dir, e.Name())

			switch {
			case e.Type()&os.ModeSymlink != 0:
				continue
			case e.IsDir():
				if _, ok := skip[e.Name()]; ok {
					continue
				}

				subdirs = append(subdirs, full)
			case e.Type().IsRegular():
				files = append(files, full)
			}
		}

		// Push in reverse so subdirectories are visited in listing order.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return files, nil
}
