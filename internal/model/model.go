package model

import "time"

// ProviderID identifies a supported cloud storage backend.
type ProviderID string

const (
	ProviderGoogleDrive ProviderID = "google_drive"
	ProviderOneDrive    ProviderID = "onedrive"
	ProviderDropbox     ProviderID = "dropbox"
	ProviderBox         ProviderID = "box"
)

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Connection is the observed state of one provider for the current user.
type Connection struct {
	Provider     ProviderID       `json:"provider"`
	Status       ConnectionStatus `json:"status"`
	Email        string           `json:"email,omitempty"`
	StorageQuota string           `json:"storage_quota,omitempty"`
	// LastCheckFailed marks a status probe that failed for non-authoritative
	// reasons (network). The previous Status is kept.
	LastCheckFailed bool `json:"last_check_failed,omitempty"`
}

// Session authorizes backend calls for the current run.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	// Offline is set when the session was synthesized locally because the
	// backend was unreachable. Cloud features are disabled for its lifetime.
	Offline bool `json:"offline"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// DocumentKind distinguishes the two document collections.
type DocumentKind string

const (
	KindCV          DocumentKind = "cv"
	KindCoverLetter DocumentKind = "cover_letter"
)

// SourceKind tags where a document record lives.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceCloud SourceKind = "cloud"
	SourceDraft SourceKind = "draft"
)

// Source is a tagged union: Provider is set only when Kind is SourceCloud.
type Source struct {
	Kind     SourceKind `json:"kind"`
	Provider ProviderID `json:"provider,omitempty"`
}

// LocalSource and DraftSource are the two fixed source values.
var (
	LocalSource = Source{Kind: SourceLocal}
	DraftSource = Source{Kind: SourceDraft}
)

// CloudSource returns the source value for a provider-held record.
func CloudSource(p ProviderID) Source {
	return Source{Kind: SourceCloud, Provider: p}
}

// Document is a CV or a cover letter. Identity is source-scoped: a cloud copy
// and a local copy of the same logical document are distinct records unless
// linked through OriginalCloudID / OriginalLocalID.
type Document struct {
	ID      string       `json:"id"`
	Kind    DocumentKind `json:"kind"`
	Title   string       `json:"title"`
	Content string       `json:"content"`

	// Cover-letter secondary identity fields, part of the content key.
	Company  string `json:"company,omitempty"`
	JobTitle string `json:"job_title,omitempty"`

	Source        Source    `json:"source"`
	ProviderFile  string    `json:"provider_file_id,omitempty"`
	LastModified  time.Time `json:"last_modified"`
	SyncedToCloud bool      `json:"synced_to_cloud"`

	// Back-references linking a draft or local edit to the record it edits.
	OriginalCloudID string `json:"original_cloud_id,omitempty"`
	OriginalLocalID string `json:"original_local_id,omitempty"`
}

// TaskStatus is the state of an asynchronous generation task.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task tracks a long-running generation job on the backend.
type Task struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
	Result string     `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// PendingAuth is the short-lived correlation record persisted between issuing
// an OAuth authorization request and handling its callback. It is consumed
// exactly once.
type PendingAuth struct {
	Provider ProviderID `json:"provider"`
	State    string     `json:"state"`
	IssuedAt time.Time  `json:"issued_at"`
}
