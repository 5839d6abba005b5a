package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alexjbarnes/project-sync/internal/config"
	apperrors "github.com/alexjbarnes/project-sync/internal/errors"
	"github.com/alexjbarnes/project-sync/internal/remote"
	"github.com/alexjbarnes/project-sync/internal/state"
	"github.com/tidwall/gjson"
)

// sessionStore is the part of the state database that caches the
// session.
type sessionStore interface {
	Session() (*state.Session, error)
	SetSession(sess state.Session) error
	ClearSession() error
}

// resolveSession picks credentials in order: API_TOKEN, the cached
// session, then the session file (which is cached on success).
func resolveSession(cfg *config.Config, store sessionStore, logger *slog.Logger) (remote.Auth, error) {
	if cfg.APIToken != "" {
		logger.Debug("using API_TOKEN")
		return remote.Auth{Token: cfg.APIToken}, nil
	}

	cached, err := store.Session()
	if err != nil {
		return remote.Auth{}, fmt.Errorf("reading cached session: %w", err)
	}

	if cached != nil && cached.Token != "" {
		logger.Debug("using cached session", slog.String("user", cached.User))
		return remote.Auth{User: cached.User, Token: cached.Token}, nil
	}

	return importSessionFile(cfg.SessionFile, store, logger)
}

// reloadSession drops the cached session and imports the session file
// again. It fails when the file still holds the rejected token.
func reloadSession(cfg *config.Config, store sessionStore, rejected remote.Auth, logger *slog.Logger) (remote.Auth, error) {
	if cfg.APIToken != "" {
		return remote.Auth{}, fmt.Errorf("API_TOKEN was rejected; update it and retry")
	}

	if err := store.ClearSession(); err != nil {
		return remote.Auth{}, fmt.Errorf("clearing cached session: %w", err)
	}

	auth, err := importSessionFile(cfg.SessionFile, store, logger)
	if err != nil {
		return remote.Auth{}, err
	}

	if auth.Token == rejected.Token {
		return remote.Auth{}, fmt.Errorf("%s holds the rejected token; log in again", cfg.SessionFile)
	}

	return auth, nil
}

func importSessionFile(path string, store sessionStore, logger *slog.Logger) (remote.Auth, error) {
	sess, err := readSessionFile(path)
	if err != nil {
		return remote.Auth{}, err
	}

	sess.LoadedAt = time.Now().Unix()
	if err := store.SetSession(sess); err != nil {
		logger.Warn("caching session", slog.String("error", err.Error()))
	}

	logger.Info("session loaded", slog.String("file", path), slog.String("user", sess.User))

	return remote.Auth{User: sess.User, Token: sess.Token}, nil
}

// readSessionFile parses {"user": ..., "authorization": {"token": ...}}.
func readSessionFile(path string) (state.Session, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if errors.Is(err, os.ErrNotExist) {
		return state.Session{}, fmt.Errorf("%w: no API_TOKEN, cached session or %s", apperrors.ErrNoSession, path)
	}

	if err != nil {
		return state.Session{}, fmt.Errorf("reading session file: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return state.Session{}, fmt.Errorf("%w: %s is not valid JSON", apperrors.ErrNoSession, path)
	}

	parsed := gjson.ParseBytes(data)

	token := parsed.Get("authorization.token").String()
	if token == "" {
		return state.Session{}, fmt.Errorf("%w: %s has no authorization.token", apperrors.ErrNoSession, path)
	}

	user := parsed.Get("user")

	name := user.String()
	if user.IsObject() {
		name = user.Get("email").String()
		if name == "" {
			name = user.Get("name").String()
		}
	}

	return state.Session{User: name, Token: token}, nil
}
