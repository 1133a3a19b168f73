// Package backend is the HTTP client for the vendor API: session creation,
// provider routes, and cover letter generation. It is the only package that
// talks to the network.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cvdeck/cvdeck/internal/model"
)

// TokenSource supplies the current bearer token. It must fail with
// model.ErrSessionExpired when the session is past its expiry so that no
// expired token ever reaches the wire.
type TokenSource func() (string, error)

// Client calls the backend REST surface. All authenticated requests carry
// "Authorization: Bearer <token>" and pass through a client-side rate limiter.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates a backend client. tokens may be nil until SetTokenSource
// is called (the session manager needs the client to create the session that
// feeds the token source).
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		tokens:  tokens,
		logger:  logger,
	}
}

// SetTokenSource installs the bearer token supplier.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// sessionResponse is the wire shape of POST /api/session.
type sessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// CreateSession requests a new anonymous session. It is the one call that
// never carries a bearer token.
func (c *Client) CreateSession(ctx context.Context) (*model.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/session", nil, &resp, false); err != nil {
		return nil, err
	}
	expires, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		return nil, &model.ParseError{Source: "backend", Key: "expires_at", Err: err}
	}
	return &model.Session{
		ID:        resp.SessionID,
		Token:     resp.Token,
		ExpiresAt: expires,
		Active:    true,
	}, nil
}

// ConnectResponse is the wire shape of POST /api/{provider}/connect.
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// ProviderConnect asks the backend for an OAuth authorization URL.
func (c *Client) ProviderConnect(ctx context.Context, p model.ProviderID, prefix string) (*ConnectResponse, error) {
	var resp ConnectResponse
	err := c.do(ctx, http.MethodPost, "/api/"+prefix+"/connect", nil, &resp, true)
	if err != nil {
		return nil, c.providerErr(p, "connect", err)
	}
	return &resp, nil
}

// CallbackRequest carries the OAuth redirect parameters back to the backend.
type CallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// ProviderCallback exchanges the authorization code; the backend finishes the
// token exchange and stores provider credentials server-side.
func (c *Client) ProviderCallback(ctx context.Context, p model.ProviderID, prefix string, req CallbackRequest) error {
	if err := c.do(ctx, http.MethodPost, "/api/"+prefix+"/callback", req, nil, true); err != nil {
		return c.providerErr(p, "callback", err)
	}
	return nil
}

// StatusResponse is the wire shape of GET /api/{provider}/status.
type StatusResponse struct {
	Connected    bool   `json:"connected"`
	Provider     string `json:"provider"`
	Email        string `json:"email,omitempty"`
	StorageQuota string `json:"storage_quota,omitempty"`
}

// ProviderStatus queries the connection state for one provider.
func (c *Client) ProviderStatus(ctx context.Context, p model.ProviderID, prefix string) (*StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/"+prefix+"/status", nil, &resp, true)
	if err != nil {
		return nil, c.providerErr(p, "status", err)
	}
	return &resp, nil
}

// remoteDocument is the wire shape of a provider-held document.
type remoteDocument struct {
	FileID     string `json:"file_id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	Company    string `json:"company,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	ModifiedAt string `json:"modified_at"`
}

// normalize converts a wire document into a cloud-tagged model.Document.
// This is the single place where a remote record acquires its source tag.
func (r remoteDocument) normalize(p model.ProviderID) model.Document {
	modified, err := time.Parse(time.RFC3339, r.ModifiedAt)
	if err != nil {
		modified = time.Time{}
	}
	kind := model.DocumentKind(r.Kind)
	if kind != model.KindCV && kind != model.KindCoverLetter {
		kind = model.KindCV
	}
	return model.Document{
		ID:            "cloud:" + string(p) + ":" + r.FileID,
		Kind:          kind,
		Title:         r.Title,
		Content:       r.Content,
		Company:       r.Company,
		JobTitle:      r.JobTitle,
		Source:        model.CloudSource(p),
		ProviderFile:  r.FileID,
		LastModified:  modified,
		SyncedToCloud: true,
	}
}

// saveRequest is the wire shape for save and update-file.
type saveRequest struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Company  string `json:"company,omitempty"`
	JobTitle string `json:"job_title,omitempty"`
}

type saveResponse struct {
	FileID string `json:"file_id"`
}

// ProviderSave creates a new file on the provider and returns its file id.
func (c *Client) ProviderSave(ctx context.Context, p model.ProviderID, prefix string, doc model.Document) (string, error) {
	req := saveRequest{
		Kind:     string(doc.Kind),
		Title:    doc.Title,
		Content:  doc.Content,
		Company:  doc.Company,
		JobTitle: doc.JobTitle,
	}
	var resp saveResponse
	if err := c.do(ctx, http.MethodPost, "/api/"+prefix+"/save", req, &resp, true); err != nil {
		return "", c.providerErr(p, "save", err)
	}
	return resp.FileID, nil
}

// ProviderUpdateFile overwrites an existing provider file.
func (c *Client) ProviderUpdateFile(ctx context.Context, p model.ProviderID, prefix, fileID string, doc model.Document) error {
	req := saveRequest{
		Kind:     string(doc.Kind),
		Title:    doc.Title,
		Content:  doc.Content,
		Company:  doc.Company,
		JobTitle: doc.JobTitle,
	}
	if err := c.do(ctx, http.MethodPut, "/api/"+prefix+"/update-file/"+fileID, req, nil, true); err != nil {
		return c.providerErr(p, "update-file", err)
	}
	return nil
}

// ProviderList fetches the provider's document listing, normalized to
// cloud-tagged documents.
func (c *Client) ProviderList(ctx context.Context, p model.ProviderID, prefix string) ([]model.Document, error) {
	var resp struct {
		Files []remoteDocument `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/"+prefix+"/list", nil, &resp, true); err != nil {
		return nil, c.providerErr(p, "list", err)
	}
	docs := make([]model.Document, 0, len(resp.Files))
	for _, f := range resp.Files {
		docs = append(docs, f.normalize(p))
	}
	return docs, nil
}

// ProviderLoad fetches one provider file with content.
func (c *Client) ProviderLoad(ctx context.Context, p model.ProviderID, prefix, fileID string) (*model.Document, error) {
	var resp remoteDocument
	if err := c.do(ctx, http.MethodGet, "/api/"+prefix+"/load/"+fileID, nil, &resp, true); err != nil {
		return nil, c.providerErr(p, "load", err)
	}
	doc := resp.normalize(p)
	return &doc, nil
}

// ProviderDelete removes a provider file.
func (c *Client) ProviderDelete(ctx context.Context, p model.ProviderID, prefix, fileID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/"+prefix+"/delete/"+fileID, nil, nil, true); err != nil {
		return c.providerErr(p, "delete", err)
	}
	return nil
}

// ProviderDisconnect revokes the provider connection server-side.
func (c *Client) ProviderDisconnect(ctx context.Context, p model.ProviderID, prefix string) error {
	if err := c.do(ctx, http.MethodPost, "/api/"+prefix+"/disconnect", nil, nil, true); err != nil {
		return c.providerErr(p, "disconnect", err)
	}
	return nil
}

// GenerateRequest is the multi-field cover letter submission.
type GenerateRequest struct {
	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	JobPosting  string `json:"job_posting,omitempty"`
	Tone        string `json:"tone,omitempty"`
	CVID        string `json:"cv_id,omitempty"`
	Extra       string `json:"extra,omitempty"`
	Language    string `json:"language,omitempty"`
	LetterDraft string `json:"letter_draft,omitempty"`
}

// GenerateResponse is either an immediate result or a pending task id.
type GenerateResponse struct {
	Result string `json:"result,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// Pending reports whether generation continues asynchronously.
func (r *GenerateResponse) Pending() bool {
	return r.TaskID != "" && r.Status == string(model.TaskProcessing)
}

// GenerateCoverLetter submits a generation request.
func (c *Client) GenerateCoverLetter(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/api/cover-letter/generate", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskStatus polls one generation task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*model.Task, error) {
	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
		Result string `json:"result,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/cover-letter/task-status/"+taskID, nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		resp.TaskID = taskID
	}
	return &model.Task{
		ID:     resp.TaskID,
		Status: model.TaskStatus(resp.Status),
		Result: resp.Result,
		Error:  resp.Error,
	}, nil
}

// httpError carries a non-2xx response status for classification upstream.
type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// do performs one request: rate limit, optional bearer token, JSON in/out.
// Transport failures are wrapped in ErrBackendUnreachable; non-2xx statuses
// become *httpError for the caller to classify.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.tokens == nil {
			return model.ErrSessionExpired
		}
		token, err := c.tokens()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", model.ErrBackendUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("backend call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return &httpError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &model.ParseError{Source: "backend", Key: path, Err: err}
		}
	}
	return nil
}

// providerErr attributes a call failure to one provider. Status codes are
// preserved so the connection manager can treat 401/404 as authoritative.
func (c *Client) providerErr(p model.ProviderID, op string, err error) error {
	if err == nil {
		return nil
	}
	var he *httpError
	if errors.As(err, &he) {
		return &model.ProviderCallError{Provider: p, Op: op, Status: he.Status, Err: err}
	}
	return &model.ProviderCallError{Provider: p, Op: op, Err: err}
}
