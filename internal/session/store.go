// Package session keeps the signed-in user of the console. The record is
// mirrored into local storage so a restart resumes the session without a
// network call.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"autotest-console/internal/storage"
)

// StorageKey is the local storage key holding the serialized user record.
const StorageKey = "user"

const (
	loginPath   = "/api/login"
	logoutPath  = "/api/logout"
	successCode = 200
)

// ErrNoUser is returned by DecodeUser when nobody is signed in.
var ErrNoUser = errors.New("no user signed in")

// API is the backend transport the store talks to.
type API interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

type Option func(*Store)

// WithClearOnLogoutFailure makes a failed logout call still drop the local
// session. Logout keeps reporting false in that case.
func WithClearOnLogoutFailure(enabled bool) Option {
	return func(s *Store) {
		s.clearOnLogoutFailure = enabled
	}
}

// Store owns the session state. IsLoggedIn is derived from the user record on
// every read, so the two cannot disagree.
type Store struct {
	api                  API
	storage              storage.Store
	logger               *logrus.Entry
	clearOnLogoutFailure bool

	mu   sync.RWMutex
	user json.RawMessage
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		User json.RawMessage `json:"user"`
	} `json:"data"`
}

// New builds the store and seeds it from the record persisted under
// StorageKey, if any. A record that is not valid JSON is discarded.
func New(ctx context.Context, api API, store storage.Store, logger *logrus.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		api:     api,
		storage: store,
		logger:  logger.WithField("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read persisted session: %w", err)
	}
	if !ok {
		return s, nil
	}

	user, err := normalize(json.RawMessage(raw))
	if err != nil || user == nil {
		entry := s.logger
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("discarding unreadable persisted session")
		if err := store.Remove(ctx, StorageKey); err != nil {
			return nil, fmt.Errorf("remove persisted session: %w", err)
		}
		return s, nil
	}

	s.user = user
	s.logger.Info("resumed persisted session")
	return s, nil
}

// Login posts the credentials and, when the backend answers code 200 with a
// user record, stores and persists that record. Every failure is logged and
// reported as false with the previous state left in place.
func (s *Store) Login(ctx context.Context, username, password string) bool {
	logger := s.logger.WithField("username", username)

	var resp loginResponse
	if err := s.api.PostJSON(ctx, loginPath, credentials{Username: username, Password: password}, &resp); err != nil {
		logger.WithError(err).Error("login failed")
		return false
	}
	if resp.Code != successCode {
		logger.WithField("code", resp.Code).Warnf("login rejected: %s", resp.Msg)
		return false
	}

	user, err := normalize(resp.Data.User)
	if err != nil {
		logger.WithError(err).Error("login response carried a malformed user record")
		return false
	}
	if user == nil {
		logger.Error("login response carried no user record")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(ctx, StorageKey, string(user)); err != nil {
		logger.WithError(err).Error("persist session")
		return false
	}
	s.user = user

	logger.Info("logged in")
	return true
}

// Logout tells the backend to end the session and clears the local copy.
// When the call fails the local session is kept unless
// WithClearOnLogoutFailure was set; the result is false either way.
func (s *Store) Logout(ctx context.Context) bool {
	if err := s.api.PostJSON(ctx, logoutPath, nil, nil); err != nil {
		s.logger.WithError(err).Error("logout failed")
		if s.clearOnLogoutFailure {
			if err := s.clear(ctx); err != nil {
				s.logger.WithError(err).Error("clear session after failed logout")
			}
		}
		return false
	}

	if err := s.clear(ctx); err != nil {
		s.logger.WithError(err).Error("remove persisted session")
		return false
	}
	s.logger.Info("logged out")
	return true
}

// clear always drops the in-memory record; the returned error only concerns
// the persisted copy.
func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return s.storage.Remove(ctx, StorageKey)
}

func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the current user record, or nil.
func (s *Store) User() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	return append(json.RawMessage(nil), s.user...)
}

// DecodeUser unmarshals the current user record into v.
func (s *Store) DecodeUser(v any) error {
	user := s.User()
	if user == nil {
		return ErrNoUser
	}
	return json.Unmarshal(user, v)
}

// normalize compacts a JSON record. Empty input and JSON null both mean no
// record and yield (nil, nil).
func normalize(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("invalid user record: %w", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
