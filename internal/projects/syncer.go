package projects

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/project-sync/internal/remote"
)

// Syncer runs full reconciliation passes for one tenant.
type Syncer struct {
	project *Project
	remote  RemoteStore
	exec    *Executor
	filter  *Filter
	logger  *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(project *Project, store RemoteStore, exec *Executor, filter *Filter, logger *slog.Logger) *Syncer {
	return &Syncer{
		project: project,
		remote:  store,
		exec:    exec,
		filter:  filter,
		logger:  logger,
	}
}

// Plan fetches the manifest once, fingerprints the local tree and
// returns the plan without performing it.
func (s *Syncer) Plan(ctx context.Context) (*Plan, error) {
	manifest, err := s.remote.Manifest(ctx, s.project.Tenant())
	if err != nil {
		return nil, err
	}

	local, err := s.collectLocal(manifestPaths(manifest))
	if err != nil {
		return nil, err
	}

	return BuildPlan(local, manifest, s.filter), nil
}

// Run performs one full pass: one manifest snapshot, a download pass
// then an upload pass, executed sequentially. The first failing action
// aborts the pass. The returned plan is non-nil whenever planning
// succeeded.
func (s *Syncer) Run(ctx context.Context) (*Plan, error) {
	plan, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}

	pending := plan.Pending()
	s.logger.Info("sync plan ready",
		slog.String("tenant", s.project.Tenant()),
		slog.Int("uploads", plan.Count(ActionUpload)),
		slog.Int("downloads", plan.Count(ActionDownload)),
		slog.Int("conflicts", plan.Count(ActionConflictDownload)),
		slog.Int("unchanged", plan.Count(ActionSkip)),
	)

	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		if err := s.exec.Apply(ctx, a); err != nil {
			return plan, fmt.Errorf("%s %s: %w", a.Kind, a.Path, err)
		}
	}

	s.logger.Info("sync complete", slog.String("tenant", s.project.Tenant()), slog.Int("transfers", len(pending)))

	return plan, nil
}

// PullMissing downloads every manifest entry that has no local file,
// leaving existing files untouched. Used after remote build commands
// that generate files. Returns the number of files downloaded.
func (s *Syncer) PullMissing(ctx context.Context) (int, error) {
	manifest, err := s.remote.Manifest(ctx, s.project.Tenant())
	if err != nil {
		return 0, err
	}

	local, err := s.collectLocal(manifestPaths(manifest))
	if err != nil {
		return 0, err
	}

	n := 0

	for _, entry := range manifest {
		loc := normalizePath(entry.Location)
		if loc == "" || s.filter.IgnoredFile(loc) || local[loc].Exists {
			continue
		}

		if err := s.exec.Download(ctx, loc, entry.LastModified); err != nil {
			return n, fmt.Errorf("download %s: %w", loc, err)
		}

		// Duplicate manifest entries must not download twice.
		local[loc] = FileRecord{Path: loc, Exists: true}
		n++
	}

	return n, nil
}

// collectLocal scans the tenant root, drops ignored files and
// fingerprints the rest. Paths in extra that the scan did not find
// (for example inside an ignored folder) are looked up directly so the
// planner knows whether they exist.
func (s *Syncer) collectLocal(extra []string) (map[string]FileRecord, error) {
	files, err := Scan(s.project.Dir(), s.filter.Folders())
	if err != nil {
		return nil, err
	}

	local := make(map[string]FileRecord, len(files))

	for _, abs := range files {
		rel := s.project.Rel(abs)
		if rel == "" || s.filter.IgnoredFile(rel) {
			continue
		}

		rec, err := s.project.Fingerprint(rel)
		if err != nil {
			return nil, err
		}

		local[rel] = rec
	}

	for _, rel := range extra {
		if _, ok := local[rel]; ok || rel == "" || s.filter.IgnoredFile(rel) {
			continue
		}

		rec, err := s.project.Fingerprint(rel)
		if err != nil {
			return nil, err
		}

		local[rel] = rec
	}

	return local, nil
}

func manifestPaths(manifest []remote.ManifestEntry) []string {
	out := make([]string, 0, len(manifest))
	for _, e := range manifest {
		out = append(out, normalizePath(e.Location))
	}

	return out
}
