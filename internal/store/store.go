// Package store is the on-device persistent store: local document
// collections, the single current draft, favorites, consent flags, the
// session snapshot, and pending OAuth authorization records.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cvdeck/cvdeck/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	title            TEXT NOT NULL,
	content          TEXT NOT NULL,
	company          TEXT NOT NULL DEFAULT '',
	job_title        TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'local',
	provider         TEXT NOT NULL DEFAULT '',
	provider_file    TEXT NOT NULL DEFAULT '',
	synced           INTEGER NOT NULL DEFAULT 0,
	original_cloud_id TEXT NOT NULL DEFAULT '',
	original_local_id TEXT NOT NULL DEFAULT '',
	last_modified    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS draft (
	key     TEXT PRIMARY KEY CHECK (key = 'current'),
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS favorites (
	document_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_snapshot (
	key        TEXT PRIMARY KEY CHECK (key = 'current'),
	id         TEXT NOT NULL,
	offline    INTEGER NOT NULL,
	expires_at TEXT NOT NULL,
	providers  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_auth (
	provider  TEXT PRIMARY KEY,
	state     TEXT NOT NULL,
	issued_at TEXT NOT NULL
);
`

// draftKey is the well-known key the single draft lives under.
const draftKey = "current"

// Store wraps the sqlite database. All operations on the logical document
// collection are serialized through one mutex so a read-modify-write never
// interleaves within the process.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the sqlite store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLocal upserts a document into the local collection. An empty id gets a
// fresh uuid and LastModified is stamped. The stored source tag is always
// local, regardless of what the caller left in the struct.
func (s *Store) SaveLocal(doc model.Document) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Source = model.LocalSource
	doc.LastModified = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO documents
			(id, kind, title, content, company, job_title, source, provider,
			 provider_file, synced, original_cloud_id, original_local_id, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			content = excluded.content,
			company = excluded.company,
			job_title = excluded.job_title,
			source = excluded.source,
			provider = excluded.provider,
			provider_file = excluded.provider_file,
			synced = excluded.synced,
			original_cloud_id = excluded.original_cloud_id,
			original_local_id = excluded.original_local_id,
			last_modified = excluded.last_modified`,
		doc.ID, string(doc.Kind), doc.Title, doc.Content, doc.Company, doc.JobTitle,
		string(doc.Source.Kind), string(doc.Source.Provider), doc.ProviderFile,
		boolToInt(doc.SyncedToCloud), doc.OriginalCloudID, doc.OriginalLocalID,
		doc.LastModified.Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// LoadLocal fetches one document by id.
func (s *Store) LoadLocal(id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, kind, title, content, company, job_title, source, provider,
		       provider_file, synced, original_cloud_id, original_local_id, last_modified
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListLocal returns the whole local collection, newest first.
func (s *Store) ListLocal() ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, kind, title, content, company, job_title, source, provider,
		       provider_file, synced, original_cloud_id, original_local_id, last_modified
		FROM documents ORDER BY last_modified DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// DeleteLocal removes a document and any favorite entry pointing at it.
func (s *Store) DeleteLocal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	_, err = s.db.Exec(`DELETE FROM favorites WHERE document_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// SaveDraft stores the single current draft as a JSON payload under the
// well-known key, forcing the draft source tag.
func (s *Store) SaveDraft(doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Source = model.DraftSource
	if doc.LastModified.IsZero() {
		doc.LastModified = time.Now().UTC()
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO draft (key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`,
		draftKey, string(payload))
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the current draft or ErrNoDraft.
func (s *Store) LoadDraft() (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(`SELECT payload FROM draft WHERE key = ?`, draftKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoDraft
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, &model.ParseError{Source: "store", Key: "draft", Err: err}
	}
	return &doc, nil
}

// ClearDraft removes the current draft. Clearing an absent draft is a no-op.
func (s *Store) ClearDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM draft WHERE key = ?`, draftKey)
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// SetFavorite toggles membership of a document id in the favorites set.
// Favorites are a separate id set, so toggling never rewrites the document.
func (s *Store) SetFavorite(id string, fav bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if fav {
		_, err = s.db.Exec(`INSERT OR IGNORE INTO favorites (document_id) VALUES (?)`, id)
	} else {
		_, err = s.db.Exec(`DELETE FROM favorites WHERE document_id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

// Favorites returns the favorite id set.
func (s *Store) Favorites() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT document_id FROM favorites`)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	favs := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favs[id] = true
	}
	return favs, rows.Err()
}

// SetSetting stores an arbitrary key/value setting.
func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Setting reads a setting; absent keys return "".
func (s *Store) Setting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return val, nil
}

// SetConsent stores a consent/cookie flag.
func (s *Store) SetConsent(key string, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := "false"
	if granted {
		val = "true"
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, "consent:"+key, val)
	if err != nil {
		return fmt.Errorf("set consent: %w", err)
	}
	return nil
}

// Consent reads a consent flag; absent flags are false.
func (s *Store) Consent(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, "consent:"+key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get consent: %w", err)
	}
	return val == "true", nil
}

// SessionSnapshot is what survives across runs: id, expiry, and connected
// providers. The raw token is deliberately not persisted.
type SessionSnapshot struct {
	ID        string
	Offline   bool
	ExpiresAt time.Time
	Providers []model.ProviderID
}

// SaveSessionSnapshot persists the snapshot under the single snapshot key.
func (s *Store) SaveSessionSnapshot(snap SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	providers, err := json.Marshal(snap.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO session_snapshot (key, id, offline, expires_at, providers)
		VALUES ('current', ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			id = excluded.id,
			offline = excluded.offline,
			expires_at = excluded.expires_at,
			providers = excluded.providers`,
		snap.ID, boolToInt(snap.Offline), snap.ExpiresAt.Format(time.RFC3339Nano), string(providers))
	if err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

// LoadSessionSnapshot returns the stored snapshot or ErrNotFound.
func (s *Store) LoadSessionSnapshot() (*SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		snap      SessionSnapshot
		offline   int
		expiresAt string
		providers string
	)
	err := s.db.QueryRow(`
		SELECT id, offline, expires_at, providers FROM session_snapshot WHERE key = 'current'`).
		Scan(&snap.ID, &offline, &expiresAt, &providers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	snap.Offline = offline != 0
	snap.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return nil, &model.ParseError{Source: "store", Key: "session_snapshot", Err: err}
	}
	if err := json.Unmarshal([]byte(providers), &snap.Providers); err != nil {
		return nil, &model.ParseError{Source: "store", Key: "session_snapshot", Err: err}
	}
	return &snap, nil
}

// ClearSessionSnapshot removes the persisted snapshot.
func (s *Store) ClearSessionSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM session_snapshot WHERE key = 'current'`)
	return err
}

// PutPendingAuth stores the OAuth correlation record for one provider,
// replacing any stale record from an abandoned attempt.
func (s *Store) PutPendingAuth(pa model.PendingAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pending_auth (provider, state, issued_at) VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			state = excluded.state,
			issued_at = excluded.issued_at`,
		string(pa.Provider), pa.State, pa.IssuedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put pending auth: %w", err)
	}
	return nil
}

// TakePendingAuth returns and deletes the pending record for the provider.
// The record is consumed exactly once; a second take returns ErrNotFound.
func (s *Store) TakePendingAuth(p model.ProviderID) (*model.PendingAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		pa       model.PendingAuth
		issuedAt string
	)
	err := s.db.QueryRow(`SELECT provider, state, issued_at FROM pending_auth WHERE provider = ?`,
		string(p)).Scan(&pa.Provider, &pa.State, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending auth: %w", err)
	}
	pa.IssuedAt, err = time.Parse(time.RFC3339Nano, issuedAt)
	if err != nil {
		return nil, &model.ParseError{Source: "store", Key: "pending_auth", Err: err}
	}
	if _, err := s.db.Exec(`DELETE FROM pending_auth WHERE provider = ?`, string(p)); err != nil {
		return nil, fmt.Errorf("consume pending auth: %w", err)
	}
	return &pa, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.Document, error) {
	var (
		doc          model.Document
		kind         string
		source       string
		provider     string
		synced       int
		lastModified string
	)
	err := row.Scan(&doc.ID, &kind, &doc.Title, &doc.Content, &doc.Company, &doc.JobTitle,
		&source, &provider, &doc.ProviderFile, &synced, &doc.OriginalCloudID,
		&doc.OriginalLocalID, &lastModified)
	if err != nil {
		return model.Document{}, err
	}
	doc.Kind = model.DocumentKind(kind)
	// Legacy rows may carry an empty source; the reconciler infers those.
	if source != "" {
		doc.Source = model.Source{Kind: model.SourceKind(source), Provider: model.ProviderID(provider)}
	}
	doc.SyncedToCloud = synced != 0
	doc.LastModified, err = time.Parse(time.RFC3339Nano, lastModified)
	if err != nil {
		return model.Document{}, &model.ParseError{Source: "store", Key: doc.ID, Err: err}
	}
	return doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
