package projects

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before the
// semantic and efficiency cleanup passes run.
const diffCleanupThreshold = 2

// ConflictReport summarizes what a conflict download discarded from the
// working copy. The discarded content itself is kept in BackupPath.
type ConflictReport struct {
	Path       string
	BackupPath string
	LocalHash  string
	RemoteHash string

	// Insertions and Deletions count runes the remote version adds to
	// and removes from the local text. Both are zero for binary content.
	Insertions int
	Deletions  int
	Binary     bool
}

// compareContent builds a ConflictReport for replacing local with
// remoteData.
func compareContent(relPath, backupPath string, local, remoteData []byte) ConflictReport {
	r := ConflictReport{
		Path:       relPath,
		BackupPath: backupPath,
		LocalHash:  contentHash(local),
		RemoteHash: contentHash(remoteData),
	}

	if !utf8.Valid(local) || !utf8.Valid(remoteData) {
		r.Binary = true
		return r
	}

	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(string(local), string(remoteData), true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			r.Insertions += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			r.Deletions += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffEqual:
		}
	}

	return r
}
