package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cvdeck/cvdeck/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLocal struct {
	docs  []model.Document
	draft *model.Document
	err   error
}

func (f *fakeLocal) ListLocal() ([]model.Document, error) {
	return f.docs, f.err
}

func (f *fakeLocal) LoadDraft() (*model.Document, error) {
	if f.draft == nil {
		return nil, model.ErrNoDraft
	}
	d := *f.draft
	return &d, nil
}

type fakeProviders struct {
	listings map[model.ProviderID][]model.Document
	failures map[model.ProviderID]error
}

func (f *fakeProviders) ConnectedIDs() []model.ProviderID {
	var ids []model.ProviderID
	for _, id := range []model.ProviderID{
		model.ProviderGoogleDrive, model.ProviderOneDrive, model.ProviderDropbox, model.ProviderBox,
	} {
		if _, ok := f.listings[id]; ok {
			ids = append(ids, id)
		}
		if _, ok := f.failures[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeProviders) ListDocuments(_ context.Context, id model.ProviderID) ([]model.Document, error) {
	if err, ok := f.failures[id]; ok {
		return nil, err
	}
	return f.listings[id], nil
}

func at(min int) time.Time {
	return time.Date(2026, 8, 1, 12, min, 0, 0, time.UTC)
}

func localDoc(id, title string, min int) model.Document {
	return model.Document{
		ID: id, Kind: model.KindCV, Title: title,
		Source: model.LocalSource, LastModified: at(min),
	}
}

func cloudDoc(p model.ProviderID, fileID, title string, min int) model.Document {
	return model.Document{
		ID: "cloud:" + string(p) + ":" + fileID, Kind: model.KindCV, Title: title,
		Source: model.CloudSource(p), ProviderFile: fileID,
		LastModified: at(min), SyncedToCloud: true,
	}
}

func TestListAll_CloudWinsDuplicate(t *testing.T) {
	local := &fakeLocal{docs: []model.Document{localDoc("l1", "My CV", 10)}}
	providers := &fakeProviders{listings: map[model.ProviderID][]model.Document{
		model.ProviderGoogleDrive: {cloudDoc(model.ProviderGoogleDrive, "f1", "My CV", 5)},
	}}

	r := New(local, providers, testLogger())
	docs, err := r.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 deduplicated entry, got %d", len(docs))
	}
	if docs[0].Source.Kind != model.SourceCloud {
		t.Errorf("Expected the cloud copy to win, got %+v", docs[0].Source)
	}
}

func TestListAll_ProviderFailureDegradesToEmpty(t *testing.T) {
	local := &fakeLocal{docs: []model.Document{localDoc("l1", "Local Only", 1)}}
	providers := &fakeProviders{
		listings: map[model.ProviderID][]model.Document{
			model.ProviderOneDrive: {
				cloudDoc(model.ProviderOneDrive, "a", "Remote A", 2),
				cloudDoc(model.ProviderOneDrive, "b", "Remote B", 3),
			},
		},
		failures: map[model.ProviderID]error{
			model.ProviderGoogleDrive: errors.New("boom"),
		},
	}

	r := New(local, providers, testLogger())
	docs, err := r.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll must not fail on one provider: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 entries (1 local + 2 from healthy provider), got %d", len(docs))
	}

	soft := r.SoftErrors()
	if len(soft) != 1 || soft[0].Provider != model.ProviderGoogleDrive {
		t.Errorf("Expected one soft error for google_drive, got %+v", soft)
	}
}

func TestListAll_SortedNewestFirst(t *testing.T) {
	local := &fakeLocal{docs: []model.Document{
		localDoc("l1", "Old", 1),
		localDoc("l2", "New", 30),
	}}
	providers := &fakeProviders{listings: map[model.ProviderID][]model.Document{
		model.ProviderDropbox: {cloudDoc(model.ProviderDropbox, "m", "Middle", 15)},
	}}

	r := New(local, providers, testLogger())
	docs, _ := r.ListAll(context.Background())
	if len(docs) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].LastModified.After(docs[i-1].LastModified) {
			t.Errorf("Listing not sorted newest first at index %d", i)
		}
	}
}

func TestListAll_DraftIncludedWhenStandalone(t *testing.T) {
	draft := model.Document{
		Kind: model.KindCoverLetter, Title: "Fresh Letter",
		Company: "Acme", JobTitle: "Engineer",
		Source: model.DraftSource, LastModified: at(20),
	}
	local := &fakeLocal{draft: &draft}
	r := New(local, &fakeProviders{}, testLogger())

	docs, _ := r.ListAll(context.Background())
	if len(docs) != 1 || docs[0].Source.Kind != model.SourceDraft {
		t.Fatalf("Expected the standalone draft to appear, got %+v", docs)
	}
}

func TestListAll_BackReferencedDraftSuppressed(t *testing.T) {
	draft := model.Document{
		Kind: model.KindCV, Title: "Edited Title",
		Source: model.DraftSource, OriginalLocalID: "l1", LastModified: at(25),
	}
	local := &fakeLocal{
		docs:  []model.Document{localDoc("l1", "My CV", 10)},
		draft: &draft,
	}
	r := New(local, &fakeProviders{}, testLogger())

	docs, _ := r.ListAll(context.Background())
	if len(docs) != 1 {
		t.Fatalf("Expected 1 entry (draft suppressed), got %d", len(docs))
	}
	if docs[0].ID != "l1" {
		t.Errorf("Expected the edited document, got %+v", docs[0])
	}
}

func TestListAll_DraftLosesToLocalCopy(t *testing.T) {
	draft := model.Document{
		Kind: model.KindCV, Title: "My CV",
		Source: model.DraftSource, LastModified: at(50),
	}
	local := &fakeLocal{
		docs:  []model.Document{localDoc("l1", "My CV", 10)},
		draft: &draft,
	}
	r := New(local, &fakeProviders{}, testLogger())

	docs, _ := r.ListAll(context.Background())
	if len(docs) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(docs))
	}
	if docs[0].Source.Kind != model.SourceLocal {
		t.Errorf("Local must win over draft even when the draft is newer, got %+v", docs[0].Source)
	}
}

func TestListAll_CoverLetterKeyUsesSecondaryFields(t *testing.T) {
	a := model.Document{
		ID: "a", Kind: model.KindCoverLetter, Title: "Cover Letter",
		Company: "Acme", JobTitle: "Engineer",
		Source: model.LocalSource, LastModified: at(1),
	}
	b := model.Document{
		ID: "b", Kind: model.KindCoverLetter, Title: "Cover Letter",
		Company: "Globex", JobTitle: "Engineer",
		Source: model.LocalSource, LastModified: at(2),
	}
	local := &fakeLocal{docs: []model.Document{a, b}}
	r := New(local, &fakeProviders{}, testLogger())

	docs, _ := r.ListAll(context.Background())
	if len(docs) != 2 {
		t.Fatalf("Same title, different companies must stay distinct; got %d entries", len(docs))
	}
}

func TestContentKey_CaseInsensitiveTitle(t *testing.T) {
	a := model.Document{Kind: model.KindCV, Title: "My CV"}
	b := model.Document{Kind: model.KindCV, Title: "  my cv "}
	if ContentKey(a) != ContentKey(b) {
		t.Error("Content key must ignore case and surrounding whitespace")
	}
}

func TestInferSource(t *testing.T) {
	cases := []struct {
		name string
		doc  model.Document
		want model.Source
	}{
		{
			name: "explicit tag untouched",
			doc:  model.Document{ID: "!x", Source: model.LocalSource},
			want: model.LocalSource,
		},
		{
			name: "cloud id prefix",
			doc:  model.Document{ID: "cloud:google_drive:f1"},
			want: model.CloudSource(model.ProviderGoogleDrive),
		},
		{
			name: "bang id shape",
			doc:  model.Document{ID: "ABC123!456"},
			want: model.CloudSource(model.ProviderOneDrive),
		},
		{
			name: "path id shape",
			doc:  model.Document{ID: "/resumes/cv.json"},
			want: model.CloudSource(model.ProviderDropbox),
		},
		{
			name: "no hint defaults to local",
			doc:  model.Document{ID: "8e9c2a"},
			want: model.LocalSource,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InferSource(tc.doc)
			if got != tc.want {
				t.Errorf("InferSource(%q) = %+v, want %+v", tc.doc.ID, got, tc.want)
			}
		})
	}
}
