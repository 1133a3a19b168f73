// Package provider manages the OAuth connect/disconnect/status lifecycle for
// every supported cloud storage backend and routes provider-specific document
// operations through the backend REST surface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/cvdeck/cvdeck/internal/backend"
	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/registry"
	"github.com/cvdeck/cvdeck/internal/store"
)

const (
	// pendingAuthTTL bounds how long an issued authorization request stays valid.
	pendingAuthTTL = 10 * time.Minute
	// simulatedConnectDelay is the fixed delay the offline/dev connect path
	// waits before reporting a connection.
	simulatedConnectDelay = 500 * time.Millisecond
)

// Manager tracks which providers are authorized. Connection state is mutated
// only here.
type Manager struct {
	store  *store.Store
	client *backend.Client
	logger *slog.Logger
	// offline reports whether the app runs without a reachable backend; the
	// session manager owns that fact.
	offline func() bool
	// simulateDelay overrides simulatedConnectDelay in tests.
	simulateDelay time.Duration
	now           func() time.Time

	mu    sync.RWMutex
	conns map[model.ProviderID]*model.Connection
}

// NewManager creates a connection manager.
func NewManager(st *store.Store, client *backend.Client, offline func() bool, logger *slog.Logger) *Manager {
	return &Manager{
		store:         st,
		client:        client,
		logger:        logger,
		offline:       offline,
		simulateDelay: simulatedConnectDelay,
		now:           time.Now,
		conns:         make(map[model.ProviderID]*model.Connection),
	}
}

// Connect starts the OAuth flow for a provider and returns the authorization
// URL the user agent must be sent to. In offline/dev mode no backend exists,
// so the connection is simulated after a fixed delay and the returned URL is
// informational only.
func (m *Manager) Connect(ctx context.Context, id model.ProviderID) (string, error) {
	desc, err := registry.Describe(id)
	if err != nil {
		return "", err
	}

	if m.offline() {
		return m.connectSimulated(ctx, desc)
	}

	m.setStatus(id, model.StatusConnecting)

	resp, err := m.client.ProviderConnect(ctx, id, desc.RoutePrefix)
	if err != nil {
		m.setStatus(id, model.StatusError)
		return "", err
	}

	pa := model.PendingAuth{Provider: id, State: resp.State, IssuedAt: m.now()}
	if err := m.store.PutPendingAuth(pa); err != nil {
		m.setStatus(id, model.StatusError)
		return "", fmt.Errorf("persist pending authorization: %w", err)
	}
	return resp.AuthURL, nil
}

// connectSimulated marks the provider connected after the fixed delay. The
// auth URL is built locally from the registry's OAuth endpoint so dev
// tooling can still show where the user would have been sent.
func (m *Manager) connectSimulated(ctx context.Context, desc registry.Descriptor) (string, error) {
	cfg := &oauth2.Config{
		ClientID:    "cvdeck-dev",
		RedirectURL: "http://127.0.0.1/callback/" + string(desc.ID),
		Scopes:      desc.Scopes,
		Endpoint:    desc.OAuth,
	}
	authURL := cfg.AuthCodeURL(uuid.New().String())

	m.setStatus(desc.ID, model.StatusConnecting)
	select {
	case <-ctx.Done():
		m.setStatus(desc.ID, model.StatusDisconnected)
		return "", ctx.Err()
	case <-time.After(m.simulateDelay):
	}
	m.setStatus(desc.ID, model.StatusConnected)
	m.logger.Info("simulated provider connection",
		slog.String("provider", string(desc.ID)))
	return authURL, nil
}

// HandleCallback completes the OAuth flow: it consumes the pending
// authorization record exactly once, validates the correlation state, and
// exchanges the code through the backend.
func (m *Manager) HandleCallback(ctx context.Context, id model.ProviderID, code, state string) error {
	desc, err := registry.Describe(id)
	if err != nil {
		return err
	}

	pa, err := m.store.TakePendingAuth(id)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("no pending authorization for %s", id)
	}
	if err != nil {
		return err
	}
	if pa.State != state {
		m.setStatus(id, model.StatusError)
		return fmt.Errorf("authorization state mismatch for %s", id)
	}
	if m.now().Sub(pa.IssuedAt) > pendingAuthTTL {
		m.setStatus(id, model.StatusError)
		return fmt.Errorf("authorization request for %s expired", id)
	}

	if err := m.client.ProviderCallback(ctx, id, desc.RoutePrefix, backend.CallbackRequest{
		Code:  code,
		State: state,
	}); err != nil {
		m.setStatus(id, model.StatusError)
		return err
	}

	m.setStatus(id, model.StatusConnected)
	return nil
}

// Disconnect revokes the provider connection. The local state transitions to
// Disconnected regardless of the network outcome so the UI stays consistent;
// a backend failure is still surfaced. Disconnecting a provider that was
// never connected is a no-op.
func (m *Manager) Disconnect(ctx context.Context, id model.ProviderID) error {
	desc, err := registry.Describe(id)
	if err != nil {
		return err
	}

	if m.status(id) != model.StatusConnected {
		m.setStatus(id, model.StatusDisconnected)
		return nil
	}

	var callErr error
	if !m.offline() {
		callErr = m.client.ProviderDisconnect(ctx, id, desc.RoutePrefix)
	}
	m.setStatus(id, model.StatusDisconnected)
	return callErr
}

// Status queries the backend for one provider's connection state and caches
// the result. A 401 or 404 is authoritative: the provider is Disconnected. A
// network failure keeps the previously known state and only marks the check
// as failed.
func (m *Manager) Status(ctx context.Context, id model.ProviderID) (*model.Connection, error) {
	desc, err := registry.Describe(id)
	if err != nil {
		return nil, err
	}

	if m.offline() {
		conn := m.connection(id)
		return &conn, nil
	}

	resp, err := m.client.ProviderStatus(ctx, id, desc.RoutePrefix)
	if err != nil {
		var pce *model.ProviderCallError
		if errors.As(err, &pce) && (pce.Status == http.StatusUnauthorized || pce.Status == http.StatusNotFound) {
			m.setStatus(id, model.StatusDisconnected)
			conn := m.connection(id)
			return &conn, nil
		}
		// Non-authoritative failure: keep what we knew.
		m.mu.Lock()
		conn := m.ensureLocked(id)
		conn.LastCheckFailed = true
		out := *conn
		m.mu.Unlock()
		m.logger.Warn("provider status check failed",
			slog.String("provider", string(id)),
			slog.String("error", err.Error()))
		return &out, err
	}

	m.mu.Lock()
	conn := m.ensureLocked(id)
	if resp.Connected {
		conn.Status = model.StatusConnected
	} else {
		conn.Status = model.StatusDisconnected
	}
	conn.Email = resp.Email
	conn.StorageQuota = resp.StorageQuota
	conn.LastCheckFailed = false
	out := *conn
	m.mu.Unlock()
	return &out, nil
}

// StatusAll refreshes every supported provider, tolerating individual
// failures, and returns the connection set in registry order.
func (m *Manager) StatusAll(ctx context.Context) []model.Connection {
	out := make([]model.Connection, 0, len(registry.Supported()))
	for _, desc := range registry.Supported() {
		conn, err := m.Status(ctx, desc.ID)
		if err != nil {
			// Status already degraded gracefully; conn reflects last known state.
			out = append(out, *conn)
			continue
		}
		out = append(out, *conn)
	}
	return out
}

// Connected reports whether the provider is currently authorized.
func (m *Manager) Connected(id model.ProviderID) bool {
	return m.status(id) == model.StatusConnected
}

// ConnectedIDs returns the connected providers in registry order.
func (m *Manager) ConnectedIDs() []model.ProviderID {
	var out []model.ProviderID
	for _, desc := range registry.Supported() {
		if m.Connected(desc.ID) {
			out = append(out, desc.ID)
		}
	}
	return out
}

// ListDocuments fetches a connected provider's document listing.
func (m *Manager) ListDocuments(ctx context.Context, id model.ProviderID) ([]model.Document, error) {
	desc, err := registry.Describe(id)
	if err != nil {
		return nil, err
	}
	if !m.Connected(id) {
		return nil, model.ErrProviderNotConnected
	}
	return m.client.ProviderList(ctx, id, desc.RoutePrefix)
}

// SaveDocument writes a document to a connected provider, creating a new
// provider file or updating the one it already maps to. It returns the
// provider file id.
func (m *Manager) SaveDocument(ctx context.Context, id model.ProviderID, doc model.Document) (string, error) {
	desc, err := registry.Describe(id)
	if err != nil {
		return "", err
	}
	if !m.Connected(id) {
		return "", model.ErrProviderNotConnected
	}
	if !desc.Has(registry.CapWrite) {
		return "", &model.ProviderCallError{Provider: id, Op: "save", Err: errors.New("provider is read-only")}
	}
	if doc.ProviderFile != "" {
		if err := m.client.ProviderUpdateFile(ctx, id, desc.RoutePrefix, doc.ProviderFile, doc); err != nil {
			return "", err
		}
		return doc.ProviderFile, nil
	}
	return m.client.ProviderSave(ctx, id, desc.RoutePrefix, doc)
}

// LoadDocument fetches one document from a connected provider.
func (m *Manager) LoadDocument(ctx context.Context, id model.ProviderID, fileID string) (*model.Document, error) {
	desc, err := registry.Describe(id)
	if err != nil {
		return nil, err
	}
	if !m.Connected(id) {
		return nil, model.ErrProviderNotConnected
	}
	return m.client.ProviderLoad(ctx, id, desc.RoutePrefix, fileID)
}

// DeleteDocument removes a provider file.
func (m *Manager) DeleteDocument(ctx context.Context, id model.ProviderID, fileID string) error {
	desc, err := registry.Describe(id)
	if err != nil {
		return err
	}
	if !m.Connected(id) {
		return model.ErrProviderNotConnected
	}
	if !desc.Has(registry.CapDelete) {
		return &model.ProviderCallError{Provider: id, Op: "delete", Err: errors.New("provider does not support delete")}
	}
	return m.client.ProviderDelete(ctx, id, desc.RoutePrefix, fileID)
}

func (m *Manager) status(id model.ProviderID) model.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conn, ok := m.conns[id]; ok {
		return conn.Status
	}
	return model.StatusDisconnected
}

func (m *Manager) setStatus(id model.ProviderID, st model.ConnectionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := m.ensureLocked(id)
	conn.Status = st
	conn.LastCheckFailed = false
}

func (m *Manager) connection(id model.ProviderID) model.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conn, ok := m.conns[id]; ok {
		return *conn
	}
	return model.Connection{Provider: id, Status: model.StatusDisconnected}
}

// ensureLocked returns the connection record, creating it if absent.
// Callers must hold m.mu.
func (m *Manager) ensureLocked(id model.ProviderID) *model.Connection {
	conn, ok := m.conns[id]
	if !ok {
		conn = &model.Connection{Provider: id, Status: model.StatusDisconnected}
		m.conns[id] = conn
	}
	return conn
}
