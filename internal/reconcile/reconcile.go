// Package reconcile merges the local, cloud, and draft views of the user's
// documents into one deduplicated, source-tagged collection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/cvdeck/cvdeck/internal/model"
)

// LocalStore is the slice of the storage repository the reconciler reads.
type LocalStore interface {
	ListLocal() ([]model.Document, error)
	LoadDraft() (*model.Document, error)
}

// ProviderSource is the slice of the connection manager the reconciler reads.
type ProviderSource interface {
	ConnectedIDs() []model.ProviderID
	ListDocuments(ctx context.Context, id model.ProviderID) ([]model.Document, error)
}

// SoftError records a provider listing that failed without aborting the merge.
type SoftError struct {
	Provider model.ProviderID
	Err      error
}

// Reconciler builds the unified document listing.
type Reconciler struct {
	local     LocalStore
	providers ProviderSource
	logger    *slog.Logger

	mu         sync.Mutex
	softErrors []SoftError
}

// New creates a reconciler.
func New(local LocalStore, providers ProviderSource, logger *slog.Logger) *Reconciler {
	return &Reconciler{local: local, providers: providers, logger: logger}
}

// ListAll returns one entry per logical document across all sources, sorted
// by last modification, newest first. A failing provider contributes nothing
// and records a soft error; only a local store failure aborts.
func (r *Reconciler) ListAll(ctx context.Context) ([]model.Document, error) {
	// Local documents are fetched before any cloud merge so deduplication is
	// deterministic regardless of provider latency.
	local, err := r.local.ListLocal()
	if err != nil {
		return nil, fmt.Errorf("list local documents: %w", err)
	}
	for i := range local {
		local[i].Source = InferSource(local[i])
	}

	cloud := r.fetchCloud(ctx)

	docs := make([]model.Document, 0, len(local)+len(cloud)+1)
	docs = append(docs, local...)
	docs = append(docs, cloud...)

	if draft := r.currentDraft(); draft != nil {
		docs = append(docs, *draft)
	}

	merged := dedupe(docs)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LastModified.After(merged[j].LastModified)
	})
	return merged, nil
}

// SoftErrors returns the per-provider failures recorded by the last ListAll.
func (r *Reconciler) SoftErrors() []SoftError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SoftError, len(r.softErrors))
	copy(out, r.softErrors)
	return out
}

// fetchCloud lists every connected provider concurrently. Each listing is an
// independent pending operation; a slow provider cannot block the others and
// the merge continues only once all have settled.
func (r *Reconciler) fetchCloud(ctx context.Context) []model.Document {
	ids := r.providers.ConnectedIDs()

	r.mu.Lock()
	r.softErrors = nil
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		cmu  sync.Mutex
		docs []model.Document
	)
	for _, id := range ids {
		wg.Add(1)
		go func(p model.ProviderID) {
			defer wg.Done()
			listed, err := r.providers.ListDocuments(ctx, p)
			if err != nil {
				r.logger.Warn("provider listing failed, contributing zero documents",
					slog.String("provider", string(p)),
					slog.String("error", err.Error()))
				r.mu.Lock()
				r.softErrors = append(r.softErrors, SoftError{Provider: p, Err: err})
				r.mu.Unlock()
				return
			}
			cmu.Lock()
			docs = append(docs, listed...)
			cmu.Unlock()
		}(id)
	}
	wg.Wait()
	return docs
}

// currentDraft returns the draft unless it is a known edit of an existing
// document; a back-referenced draft would otherwise show up as a phantom
// duplicate next to the document it edits.
func (r *Reconciler) currentDraft() *model.Document {
	draft, err := r.local.LoadDraft()
	if errors.Is(err, model.ErrNoDraft) {
		return nil
	}
	if err != nil {
		r.logger.Warn("failed to load draft", slog.String("error", err.Error()))
		return nil
	}
	if draft.OriginalCloudID != "" || draft.OriginalLocalID != "" {
		return nil
	}
	draft.Source = model.DraftSource
	return draft
}

// ContentKey derives the logical identity of a document: lower-cased title
// plus the cover letter's secondary identifying fields. Two records sharing a
// key are copies of the same logical document.
func ContentKey(doc model.Document) string {
	parts := []string{
		string(doc.Kind),
		strings.ToLower(strings.TrimSpace(doc.Title)),
		strings.ToLower(strings.TrimSpace(doc.Company)),
		strings.ToLower(strings.TrimSpace(doc.JobTitle)),
	}
	return strings.Join(parts, "\x1f")
}

// sourceRank orders sources for deduplication: Cloud wins over Local wins
// over Draft.
func sourceRank(s model.Source) int {
	switch s.Kind {
	case model.SourceCloud:
		return 2
	case model.SourceLocal:
		return 1
	default:
		return 0
	}
}

// dedupe keeps one document per content key, preferring the higher-ranked
// source; within the same rank the most recently modified copy wins.
func dedupe(docs []model.Document) []model.Document {
	kept := make(map[string]model.Document)
	var order []string
	for _, doc := range docs {
		key := ContentKey(doc)
		existing, ok := kept[key]
		if !ok {
			kept[key] = doc
			order = append(order, key)
			continue
		}
		er, dr := sourceRank(existing.Source), sourceRank(doc.Source)
		if dr > er || (dr == er && doc.LastModified.After(existing.LastModified)) {
			kept[key] = doc
		}
	}
	out := make([]model.Document, 0, len(order))
	for _, key := range order {
		out = append(out, kept[key])
	}
	return out
}

// InferSource resolves the source of a record that arrived without an
// explicit tag. It exists for legacy, pre-tag records only: new writes are
// tagged at the storage boundary and skip every heuristic here.
func InferSource(doc model.Document) model.Source {
	if doc.Source.Kind != "" {
		return doc.Source
	}
	if doc.ProviderFile != "" {
		if p := providerFromID(doc.ID); p != "" {
			return model.CloudSource(p)
		}
		return model.CloudSource(doc.Source.Provider)
	}
	if p := providerFromID(doc.ID); p != "" {
		return model.CloudSource(p)
	}
	return model.LocalSource
}

// providerFromID recognizes legacy provider-specific id shapes: the explicit
// "cloud:<provider>:" prefix, OneDrive ids containing "!", and Dropbox
// path-style ids with a leading "/".
func providerFromID(id string) model.ProviderID {
	if rest, ok := strings.CutPrefix(id, "cloud:"); ok {
		if p, _, ok := strings.Cut(rest, ":"); ok {
			return model.ProviderID(p)
		}
	}
	if strings.Contains(id, "!") {
		return model.ProviderOneDrive
	}
	if strings.HasPrefix(id, "/") {
		return model.ProviderDropbox
	}
	return ""
}
