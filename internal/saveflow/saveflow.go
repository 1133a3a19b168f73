// Package saveflow presents the local-vs-cloud save choice and executes the
// chosen path. The local write is the durability floor: a cloud save is never
// attempted without it.
package saveflow

import (
	"context"
	"log/slog"

	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/registry"
	"github.com/cvdeck/cvdeck/internal/store"
)

// CloudSaver is the slice of the connection manager the flow uses.
type CloudSaver interface {
	Connected(id model.ProviderID) bool
	ConnectedIDs() []model.ProviderID
	SaveDocument(ctx context.Context, id model.ProviderID, doc model.Document) (string, error)
}

// TargetKind is where a save lands.
type TargetKind string

const (
	TargetLocal TargetKind = "local"
	TargetCloud TargetKind = "cloud"
)

// Target is one save destination.
type Target struct {
	Kind     TargetKind
	Provider model.ProviderID // set only for TargetCloud
}

// Options is what the UI presents: the viable targets and, when exactly one
// is viable, the forced preselection.
type Options struct {
	Targets     []Target
	Preselected *Target
	Forced      bool
}

// Flow executes save decisions.
type Flow struct {
	store  *store.Store
	cloud  CloudSaver
	logger *slog.Logger
}

// New creates a save flow.
func New(st *store.Store, cloud CloudSaver, logger *slog.Logger) *Flow {
	return &Flow{store: st, cloud: cloud, logger: logger}
}

// Decide lists the viable save targets for a document. Local storage is
// always viable; each connected provider with write capability adds a cloud
// target. The choice belongs to the user unless only one option exists.
func (f *Flow) Decide(doc model.Document) Options {
	opts := Options{Targets: []Target{{Kind: TargetLocal}}}

	for _, id := range f.cloud.ConnectedIDs() {
		desc, err := registry.Describe(id)
		if err != nil || !desc.Has(registry.CapWrite) {
			continue
		}
		opts.Targets = append(opts.Targets, Target{Kind: TargetCloud, Provider: id})
	}

	if len(opts.Targets) == 1 {
		opts.Preselected = &opts.Targets[0]
		opts.Forced = true
	}
	return opts
}

// Execute saves the document to the chosen target. The local write happens
// first in every case; a failed cloud leg surfaces as a SaveError while the
// already-written local copy stays authoritative, untouched.
func (f *Flow) Execute(ctx context.Context, doc model.Document, target Target) (model.Document, error) {
	wasDraft := doc.Source.Kind == model.SourceDraft

	saved, err := f.store.SaveLocal(doc)
	if err != nil {
		return model.Document{}, &model.SaveError{Leg: model.SaveLegLocal, Err: err}
	}

	if target.Kind == TargetCloud {
		fileID, err := f.cloud.SaveDocument(ctx, target.Provider, saved)
		if err != nil {
			f.logger.Warn("cloud save failed, local copy remains authoritative",
				slog.String("provider", string(target.Provider)),
				slog.String("document", saved.ID),
				slog.String("error", err.Error()))
			return saved, &model.SaveError{Leg: model.SaveLegCloud, Err: err}
		}
		saved.SyncedToCloud = true
		saved.ProviderFile = fileID
		saved, err = f.store.SaveLocal(saved)
		if err != nil {
			return saved, &model.SaveError{Leg: model.SaveLegLocal, Err: err}
		}
	}

	// A promoted draft stops being a draft.
	if wasDraft {
		if err := f.store.ClearDraft(); err != nil {
			f.logger.Warn("failed to clear promoted draft", slog.String("error", err.Error()))
		}
	}
	return saved, nil
}
