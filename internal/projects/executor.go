package projects

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/alexjbarnes/project-sync/internal/config"
	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
	"github.com/alexjbarnes/project-sync/internal/remote"
	"github.com/alexjbarnes/project-sync/internal/state"
)

// RemoteStore is the subset of the remote client the sync engine needs.
// *remote.Client satisfies it.
type RemoteStore interface {
	Manifest(ctx context.Context, tenant string) ([]remote.ManifestEntry, error)
	Upload(ctx context.Context, tenant string, payload remote.UploadPayload) error
	Download(ctx context.Context, tenant, wirePath string) (string, error)
}

// Ledger records completed transfers. *state.State satisfies it.
type Ledger interface {
	RecordTransfer(tenant string, e state.LedgerEntry) error
	ForgetPath(tenant, path string) error
	LastTransfer(tenant, path string) (*state.LedgerEntry, error)
}

// Executor performs transfers for one tenant: it turns planned actions
// and watch events into remote calls and local writes.
type Executor struct {
	project       *Project
	remote        RemoteStore
	ledger        Ledger
	logger        *slog.Logger
	deletePayload string
	now           func() time.Time
}

// NewExecutor creates an Executor. ledger may be nil. deletePayload is
// config.DeletePayloadLegacy or config.DeletePayloadFile.
func NewExecutor(project *Project, store RemoteStore, ledger Ledger, logger *slog.Logger, deletePayload string) *Executor {
	if deletePayload == "" {
		deletePayload = config.DeletePayloadLegacy
	}

	return &Executor{
		project:       project,
		remote:        store,
		ledger:        ledger,
		logger:        logger,
		deletePayload: deletePayload,
		now:           time.Now,
	}
}

// Apply performs one planned action. Skip actions are a no-op.
func (e *Executor) Apply(ctx context.Context, a Action) error {
	switch a.Kind {
	case ActionSkip:
		return nil
	case ActionUpload:
		return e.Upload(ctx, a.Path, a.UploadType)
	case ActionDownload:
		return e.Download(ctx, a.Path, a.RemoteModified)
	case ActionConflictDownload:
		return e.ConflictDownload(ctx, a)
	default:
		return fmt.Errorf("unknown action kind %d for %s", a.Kind, a.Path)
	}
}

// Upload sends the current content of a local file with the given
// action type (create or update).
func (e *Executor) Upload(ctx context.Context, relPath, actionType string) error {
	data, err := e.project.ReadFile(relPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", apperrors.ErrLocalIO, relPath, err)
	}

	info, err := e.project.Stat(relPath)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", apperrors.ErrLocalIO, relPath, err)
	}

	wire := e.project.WirePath(relPath)
	payload := remote.UploadPayload{
		FileName:     baseName(wire),
		FilePath:     wire,
		Content:      base64.StdEncoding.EncodeToString(data),
		Directory:    path.Dir(wire),
		ActionType:   actionType,
		LastModified: strconv.FormatInt(info.ModTime().Unix(), 10),
	}

	if err := e.remote.Upload(ctx, e.project.Tenant(), payload); err != nil {
		return err
	}

	e.logger.Info("uploaded", slog.String("path", relPath), slog.String("action", actionType))
	e.record(state.LedgerEntry{
		Path:       normalizePath(relPath),
		Direction:  state.DirectionUpload,
		ActionType: actionType,
		Hash:       contentHash(data),
	})

	return nil
}

// fetch downloads and decodes the remote content of a file.
func (e *Executor) fetch(ctx context.Context, relPath string) ([]byte, error) {
	encoded, err := e.remote.Download(ctx, e.project.Tenant(), e.project.WirePath(relPath))
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding content of %s: %v", apperrors.ErrRemote, relPath, err)
	}

	return data, nil
}

// Download fetches a remote file and writes it locally, creating parent
// directories. remoteModified, in seconds, becomes the file's mtime
// when positive.
func (e *Executor) Download(ctx context.Context, relPath string, remoteModified int64) error {
	data, err := e.fetch(ctx, relPath)
	if err != nil {
		return err
	}

	if err := e.write(relPath, data, remoteModified); err != nil {
		return err
	}

	e.logger.Info("downloaded", slog.String("path", relPath))
	e.record(state.LedgerEntry{
		Path:       normalizePath(relPath),
		Direction:  state.DirectionDownload,
		ActionType: ActionDownload.String(),
		Hash:       contentHash(data),
	})

	return nil
}

// ConflictDownload backs up the local file then replaces it with the
// remote version. A failed backup aborts before anything is
// overwritten.
func (e *Executor) ConflictDownload(ctx context.Context, a Action) error {
	backupPath := a.BackupPath
	if backupPath == "" {
		backupPath = a.Path + backupSuffix
	}

	local, err := e.Backup(a.Path, backupPath)
	if err != nil {
		return err
	}

	data, err := e.fetch(ctx, a.Path)
	if err != nil {
		return err
	}

	if err := e.write(a.Path, data, a.RemoteModified); err != nil {
		return err
	}

	report := compareContent(a.Path, backupPath, local, data)
	e.logger.Warn("conflict: remote version replaced local changes",
		slog.String("path", report.Path),
		slog.String("backup", report.BackupPath),
		slog.String("local_hash", report.LocalHash),
		slog.String("remote_hash", report.RemoteHash),
		slog.Int("insertions", report.Insertions),
		slog.Int("deletions", report.Deletions),
		slog.Bool("binary", report.Binary),
	)

	e.record(state.LedgerEntry{
		Path:       normalizePath(a.Path),
		Direction:  state.DirectionDownload,
		ActionType: ActionConflictDownload.String(),
		Hash:       report.RemoteHash,
		Conflict:   true,
		BackupPath: backupPath,
	})

	return nil
}

// Backup copies the local file at relPath to backupPath, replacing any
// earlier backup, and returns the copied content.
func (e *Executor) Backup(relPath, backupPath string) ([]byte, error) {
	data, err := e.project.ReadFile(relPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s for backup: %w", apperrors.ErrLocalIO, relPath, err)
	}

	if err := e.project.WriteFile(backupPath, data, time.Time{}); err != nil {
		return nil, fmt.Errorf("%w: writing backup %s: %w", apperrors.ErrLocalIO, backupPath, err)
	}

	return data, nil
}

func (e *Executor) write(relPath string, data []byte, remoteModified int64) error {
	var mtime time.Time
	if remoteModified > 0 {
		mtime = time.Unix(remoteModified, 0)
	}

	if err := e.project.WriteFile(relPath, data, mtime); err != nil {
		return fmt.Errorf("%w: writing %s: %w", apperrors.ErrLocalIO, relPath, err)
	}

	return nil
}

// UploadDelete tells the remote a local file is gone. The payload shape
// depends on the configured delete mode: legacy puts the path in
// directory and leaves the file fields empty, file mode fills file_name
// and file_path like an upload.
func (e *Executor) UploadDelete(ctx context.Context, relPath string) error {
	wire := e.project.WirePath(relPath)

	payload := remote.UploadPayload{
		Directory:  wire,
		ActionType: remote.ActionDelete,
	}

	if e.deletePayload == config.DeletePayloadFile {
		payload.FileName = baseName(wire)
		payload.FilePath = wire
		payload.Directory = path.Dir(wire)
	}

	if err := e.remote.Upload(ctx, e.project.Tenant(), payload); err != nil {
		return err
	}

	e.logger.Info("deleted remote file", slog.String("path", relPath))
	e.forget(relPath)

	return nil
}

// UploadDir sends a directory create or delete.
func (e *Executor) UploadDir(ctx context.Context, relPath, actionType string) error {
	payload := remote.UploadPayload{
		Directory:  e.project.WirePath(relPath),
		ActionType: actionType,
	}

	if err := e.remote.Upload(ctx, e.project.Tenant(), payload); err != nil {
		return err
	}

	e.logger.Info("directory event sent", slog.String("path", relPath), slog.String("action", actionType))

	if actionType == remote.ActionDeleteDir {
		e.forget(relPath)
	}

	return nil
}

// HandleEvent performs the remote write for one coalesced watch event.
// Creates and updates whose content matches the last recorded transfer
// of the path are dropped: they are echoes of a download or rewrites
// with identical bytes.
func (e *Executor) HandleEvent(ctx context.Context, ev WatchEvent) error {
	switch ev.Kind {
	case EventCreate, EventUpdate:
		if e.unchanged(ev.Path) {
			e.logger.Debug("content matches last transfer, skipping", slog.String("path", ev.Path), slog.String("event", ev.Kind.String()))
			return nil
		}

		actionType := remote.ActionUpdate
		if ev.Kind == EventCreate {
			actionType = remote.ActionCreate
		}

		return e.Upload(ctx, ev.Path, actionType)
	case EventDelete:
		return e.UploadDelete(ctx, ev.Path)
	case EventCreateDir:
		return e.UploadDir(ctx, ev.Path, remote.ActionCreateDir)
	case EventDeleteDir:
		return e.UploadDir(ctx, ev.Path, remote.ActionDeleteDir)
	default:
		return fmt.Errorf("unknown event kind %d for %s", ev.Kind, ev.Path)
	}
}

// unchanged reports whether the file at relPath still hashes to the
// content of its last recorded transfer. Any lookup failure counts as
// changed.
func (e *Executor) unchanged(relPath string) bool {
	if e.ledger == nil {
		return false
	}

	last, err := e.ledger.LastTransfer(e.project.Tenant(), normalizePath(relPath))
	if err != nil || last == nil || last.Hash == "" {
		return false
	}

	rec, err := e.project.Fingerprint(relPath)
	if err != nil || !rec.Exists {
		return false
	}

	return rec.Hash == last.Hash
}

// record writes a ledger entry. Ledger failures are logged, never
// returned: the ledger does not influence sync decisions.
func (e *Executor) record(entry state.LedgerEntry) {
	if e.ledger == nil {
		return
	}

	entry.SyncedAt = e.now().Unix()
	if err := e.ledger.RecordTransfer(e.project.Tenant(), entry); err != nil {
		e.logger.Warn("recording transfer", slog.String("path", entry.Path), slog.String("error", err.Error()))
	}
}

func (e *Executor) forget(relPath string) {
	if e.ledger == nil {
		return
	}

	if err := e.ledger.ForgetPath(e.project.Tenant(), normalizePath(relPath)); err != nil {
		e.logger.Warn("forgetting transfer", slog.String("path", relPath), slog.String("error", err.Error()))
	}
}

// isFatal reports whether err must stop a watch session rather than
// being logged and skipped.
func isFatal(err error) bool {
	return errors.Is(err, apperrors.ErrRemote) ||
		errors.Is(err, apperrors.ErrTransport) ||
		errors.Is(err, apperrors.ErrInvalidToken) ||
		errors.Is(err, context.Canceled)
}
