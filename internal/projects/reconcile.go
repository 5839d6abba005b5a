package projects

import (
	"sort"

	"github.com/alexjbarnes/project-sync/internal/remote"
)

// backupSuffix is appended to a local file's path when a remote version
// overwrites it.
const backupSuffix = ".local.bak"

// ActionKind is the outcome of comparing one path between the local
// tree and the remote manifest. The executor performs I/O based on it.
type ActionKind int

const (
	// ActionSkip means both sides already agree or the difference does
	// not call for a transfer.
	ActionSkip ActionKind = iota

	// ActionUpload means the local file is sent to the remote with the
	// action's UploadType.
	ActionUpload

	// ActionDownload means the remote file replaces (or creates) the
	// local one.
	ActionDownload

	// ActionConflictDownload means the local copy is backed up to
	// BackupPath and then replaced by the remote version. Remote wins.
	ActionConflictDownload
)

func (k ActionKind) String() string {
	switch k {
	case ActionSkip:
		return "skip"
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	case ActionConflictDownload:
		return "conflict-download"
	default:
		return "unknown"
	}
}

// Action is one planned step for a single tenant-relative path.
type Action struct {
	Kind ActionKind
	Path string

	// UploadType is remote.ActionCreate or remote.ActionUpdate for uploads.
	UploadType string

	// BackupPath is set for conflict downloads.
	BackupPath string

	// RemoteModified is the manifest timestamp for downloads, in seconds.
	RemoteModified int64

	// RemoteHash is the manifest hash for downloads.
	RemoteHash string
}

// Plan is the ordered list of actions for one reconciliation pass.
// Download-pass actions come first, then upload-pass actions sorted by
// path.
type Plan struct {
	Actions []Action
}

// Pending returns the actions that transfer data.
func (p *Plan) Pending() []Action {
	var out []Action

	for _, a := range p.Actions {
		if a.Kind != ActionSkip {
			out = append(out, a)
		}
	}

	return out
}

// Empty reports whether the plan has nothing to transfer.
func (p *Plan) Empty() bool {
	return len(p.Pending()) == 0
}

// replace swaps the action for a.Path with a, keeping its position.
func (p *Plan) replace(a Action) {
	for i := range p.Actions {
		if p.Actions[i].Path == a.Path {
			p.Actions[i] = a
			return
		}
	}

	p.Actions = append(p.Actions, a)
}

// Count returns the number of actions of kind k.
func (p *Plan) Count(k ActionKind) int {
	n := 0

	for _, a := range p.Actions {
		if a.Kind == k {
			n++
		}
	}

	return n
}

// BuildPlan compares local records against a manifest snapshot and
// returns what to transfer. It does no I/O. local is keyed by
// normalized relative path; entries with Exists false stand for files
// the manifest names but the disk lacks. Paths the filter ignores never
// produce an action.
func BuildPlan(local map[string]FileRecord, manifest []remote.ManifestEntry, filter *Filter) *Plan {
	plan := &Plan{}
	remoteByPath := make(map[string]remote.ManifestEntry, len(manifest))
	settled := make(map[string]struct{}, len(manifest))

	for _, entry := range manifest {
		loc := normalizePath(entry.Location)
		if loc == "" || filter.IgnoredFile(loc) {
			continue
		}

		if _, dup := remoteByPath[loc]; dup {
			continue
		}

		entry.Location = loc
		remoteByPath[loc] = entry

		var rec *FileRecord
		if f, ok := local[loc]; ok && f.Exists {
			rec = &f
		}

		a := decideDownload(rec, entry)
		if a.Kind != ActionSkip {
			settled[loc] = struct{}{}
		}

		plan.Actions = append(plan.Actions, a)
	}

	paths := make([]string, 0, len(local))
	for p := range local {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		f := local[p]
		if !f.Exists || filter.IgnoredFile(p) {
			continue
		}

		if _, ok := settled[p]; ok {
			continue
		}

		entry, named := remoteByPath[p]
		if !named {
			plan.Actions = append(plan.Actions, decideUpload(f, nil))
			continue
		}

		// The download pass already holds a skip for this path; only an
		// upload replaces it.
		if a := decideUpload(f, &entry); a.Kind != ActionSkip {
			plan.replace(a)
		}
	}

	return plan
}

// decideDownload handles one manifest entry. local is nil when the file
// is absent on disk.
func decideDownload(local *FileRecord, entry remote.ManifestEntry) Action {
	a := Action{
		Path:           entry.Location,
		RemoteModified: entry.LastModified,
		RemoteHash:     entry.Hash,
	}

	switch {
	case local == nil:
		a.Kind = ActionDownload
	case local.Hash == entry.Hash:
		a.Kind = ActionSkip
	case entry.LastModified > local.LastModified:
		a.Kind = ActionDownload
	default:
		// Local is newer or timestamps tie: remote still wins, keep a copy.
		a.Kind = ActionConflictDownload
		a.BackupPath = entry.Location + backupSuffix
	}

	return a
}

// decideUpload handles one local file. entry is nil when the manifest
// has no record of it.
func decideUpload(local FileRecord, entry *remote.ManifestEntry) Action {
	a := Action{Path: local.Path}

	switch {
	case entry == nil:
		a.Kind = ActionUpload
		a.UploadType = remote.ActionCreate
	case entry.Hash == local.Hash:
		a.Kind = ActionSkip
	case entry.LastModified <= local.LastModified:
		a.Kind = ActionUpload
		a.UploadType = remote.ActionUpdate
	default:
		a.Kind = ActionSkip
	}

	return a
}
