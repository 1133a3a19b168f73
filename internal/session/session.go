// Package session creates and validates the anonymous session that
// authorizes all backend calls, falling back to a locally synthesized
// offline session when the backend is unreachable.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cvdeck/cvdeck/internal/backend"
	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/store"
)

// offlineTTL is the lifetime of a synthesized offline session.
const offlineTTL = 24 * time.Hour

// Manager owns the session record. It is the only component that mutates it.
type Manager struct {
	store        *store.Store
	client       *backend.Client
	logger       *slog.Logger
	deviceSecret []byte
	forceOffline bool
	now          func() time.Time

	session          *model.Session
	backendAvailable bool

	// onOnline runs after a successful online initialization; the app wires
	// the provider status refresh here.
	onOnline func(context.Context)
}

// NewManager creates a session manager. deviceSecret signs offline tokens.
func NewManager(st *store.Store, client *backend.Client, deviceSecret string, forceOffline bool, logger *slog.Logger) *Manager {
	return &Manager{
		store:        st,
		client:       client,
		logger:       logger,
		deviceSecret: []byte(deviceSecret),
		forceOffline: forceOffline,
		now:          time.Now,
	}
}

// SetOnOnline registers the hook run after successful online initialization.
func (m *Manager) SetOnOnline(fn func(context.Context)) {
	m.onOnline = fn
}

// Initialize establishes a session. Online: ask the backend for one. Backend
// unreachable: synthesize an offline session so local-only storage keeps
// working. It returns false only when even the offline fallback cannot be
// built, which blocks nothing but signals a broken installation.
func (m *Manager) Initialize(ctx context.Context) bool {
	if m.forceOffline {
		return m.initOffline()
	}

	sess, err := m.client.CreateSession(ctx)
	if err != nil {
		if !errors.Is(err, model.ErrBackendUnreachable) {
			m.logger.Warn("session creation failed, entering offline mode",
				slog.String("error", err.Error()))
		} else {
			m.logger.Info("backend unreachable, entering offline mode")
		}
		return m.initOffline()
	}

	if sess.ExpiresAt.IsZero() {
		// Some deployments omit expires_at; the token itself carries exp.
		if exp, ok := expiryFromToken(sess.Token); ok {
			sess.ExpiresAt = exp
		} else {
			sess.ExpiresAt = m.now().Add(offlineTTL)
		}
	}

	m.session = sess
	m.backendAvailable = true
	m.persistSnapshot()

	if m.onOnline != nil {
		m.onOnline(ctx)
	}
	return true
}

// initOffline synthesizes a local session: generated id, self-signed token,
// 24 hour expiry.
func (m *Manager) initOffline() bool {
	id := "offline-" + uuid.New().String()
	expires := m.now().Add(offlineTTL)

	claims := jwt.MapClaims{
		"sub":     id,
		"offline": true,
		"exp":     expires.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.deviceSecret)
	if err != nil {
		m.logger.Error("failed to sign offline session token", slog.String("error", err.Error()))
		return false
	}

	m.session = &model.Session{
		ID:        id,
		Token:     token,
		ExpiresAt: expires,
		Active:    true,
		Offline:   true,
	}
	m.backendAvailable = false
	m.persistSnapshot()
	return true
}

// Validate reports whether the current session is usable. An expired session
// is cleared, never reused.
func (m *Manager) Validate() bool {
	if m.session == nil || !m.session.Active {
		return false
	}
	if m.session.Expired(m.now()) {
		m.Clear()
		return false
	}
	return true
}

// Token implements the backend client's token source. It short-circuits with
// ErrSessionExpired so an expired token never reaches the wire.
func (m *Manager) Token() (string, error) {
	if !m.Validate() {
		return "", model.ErrSessionExpired
	}
	if m.session.Offline {
		// Offline tokens authorize nothing remotely; cloud calls must not
		// carry them.
		return "", model.ErrProviderNotConnected
	}
	return m.session.Token, nil
}

// Current returns a copy of the session, or nil when none exists.
func (m *Manager) Current() *model.Session {
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// BackendAvailable reports whether online initialization succeeded.
func (m *Manager) BackendAvailable() bool {
	return m.backendAvailable
}

// Offline reports whether the current session is a synthesized offline one.
func (m *Manager) Offline() bool {
	return m.session != nil && m.session.Offline
}

// Clear destroys the session and its persisted snapshot (expiry or logout).
func (m *Manager) Clear() {
	m.session = nil
	m.backendAvailable = false
	if err := m.store.ClearSessionSnapshot(); err != nil {
		m.logger.Warn("failed to clear session snapshot", slog.String("error", err.Error()))
	}
}

// persistSnapshot stores id and expiry only; the raw token never crosses runs.
func (m *Manager) persistSnapshot() {
	err := m.store.SaveSessionSnapshot(store.SessionSnapshot{
		ID:        m.session.ID,
		Offline:   m.session.Offline,
		ExpiresAt: m.session.ExpiresAt,
	})
	if err != nil {
		m.logger.Warn("failed to persist session snapshot", slog.String("error", err.Error()))
	}
}

// RecordProviders writes the currently connected provider set into the
// session snapshot so the next launch can show connection state before the
// first status refresh completes.
func (m *Manager) RecordProviders(ids []model.ProviderID) {
	if m.session == nil {
		return
	}
	err := m.store.SaveSessionSnapshot(store.SessionSnapshot{
		ID:        m.session.ID,
		Offline:   m.session.Offline,
		ExpiresAt: m.session.ExpiresAt,
		Providers: ids,
	})
	if err != nil {
		m.logger.Warn("failed to record providers in snapshot", slog.String("error", err.Error()))
	}
}

// expiryFromToken extracts the exp claim without verifying the signature.
// The backend signed the token; the client only needs its expiry.
func expiryFromToken(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
