package saveflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cvdeck/cvdeck/internal/model"
	"github.com/cvdeck/cvdeck/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cvdeck.db"))
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeCloud struct {
	connected map[model.ProviderID]bool
	saveErr   error
	saved     []model.Document
	nextFile  string
}

func (f *fakeCloud) Connected(id model.ProviderID) bool {
	return f.connected[id]
}

func (f *fakeCloud) ConnectedIDs() []model.ProviderID {
	var ids []model.ProviderID
	for _, id := range []model.ProviderID{
		model.ProviderGoogleDrive, model.ProviderOneDrive, model.ProviderDropbox, model.ProviderBox,
	} {
		if f.connected[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeCloud) SaveDocument(_ context.Context, id model.ProviderID, doc model.Document) (string, error) {
	if !f.connected[id] {
		return "", model.ErrProviderNotConnected
	}
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, doc)
	if f.nextFile == "" {
		f.nextFile = "file-1"
	}
	return f.nextFile, nil
}

func TestDecide_LocalOnlyIsForced(t *testing.T) {
	f := New(testStore(t), &fakeCloud{connected: map[model.ProviderID]bool{}}, testLogger())
	opts := f.Decide(model.Document{Kind: model.KindCV, Title: "x"})

	if len(opts.Targets) != 1 || opts.Targets[0].Kind != TargetLocal {
		t.Fatalf("Expected only the local target, got %+v", opts.Targets)
	}
	if !opts.Forced || opts.Preselected == nil {
		t.Error("Single viable target must be preselected and forced")
	}
}

func TestDecide_ConnectedProvidersAddCloudTargets(t *testing.T) {
	cloud := &fakeCloud{connected: map[model.ProviderID]bool{
		model.ProviderGoogleDrive: true,
		model.ProviderDropbox:     true,
	}}
	f := New(testStore(t), cloud, testLogger())
	opts := f.Decide(model.Document{Kind: model.KindCV, Title: "x"})

	if len(opts.Targets) != 3 {
		t.Fatalf("Expected local + 2 cloud targets, got %+v", opts.Targets)
	}
	if opts.Forced {
		t.Error("Multiple viable targets must leave the choice to the user")
	}
}

func TestExecute_LocalTarget(t *testing.T) {
	st := testStore(t)
	f := New(st, &fakeCloud{connected: map[model.ProviderID]bool{}}, testLogger())

	saved, err := f.Execute(context.Background(), model.Document{
		Kind: model.KindCV, Title: "My CV", Content: "{}",
	}, Target{Kind: TargetLocal})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("Expected an assigned id")
	}

	loaded, err := st.LoadLocal(saved.ID)
	if err != nil {
		t.Fatalf("LoadLocal after save failed: %v", err)
	}
	if loaded.Title != "My CV" {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}
}

func TestExecute_CloudTargetWritesLocalFirst(t *testing.T) {
	st := testStore(t)
	cloud := &fakeCloud{
		connected: map[model.ProviderID]bool{model.ProviderGoogleDrive: true},
		nextFile:  "gd-1",
	}
	f := New(st, cloud, testLogger())

	saved, err := f.Execute(context.Background(), model.Document{
		Kind: model.KindCV, Title: "My CV", Content: "{}",
	}, Target{Kind: TargetCloud, Provider: model.ProviderGoogleDrive})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !saved.SyncedToCloud || saved.ProviderFile != "gd-1" {
		t.Errorf("Expected synced document with provider file id, got %+v", saved)
	}
	if len(cloud.saved) != 1 {
		t.Fatalf("Expected 1 cloud save, got %d", len(cloud.saved))
	}
	// The cloud leg must have received the already locally saved copy.
	if cloud.saved[0].ID == "" {
		t.Error("Cloud save must run after the local write assigned an id")
	}
	if _, err := st.LoadLocal(saved.ID); err != nil {
		t.Errorf("Local durability floor missing: %v", err)
	}
}

func TestExecute_CloudFailureKeepsLocalCopy(t *testing.T) {
	st := testStore(t)
	cloud := &fakeCloud{
		connected: map[model.ProviderID]bool{model.ProviderGoogleDrive: true},
		saveErr:   errors.New("quota exceeded"),
	}
	f := New(st, cloud, testLogger())

	saved, err := f.Execute(context.Background(), model.Document{
		Kind: model.KindCV, Title: "My CV", Content: "{}",
	}, Target{Kind: TargetCloud, Provider: model.ProviderGoogleDrive})

	var saveErr *model.SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("Expected SaveError, got %v", err)
	}
	if saveErr.Leg != model.SaveLegCloud {
		t.Errorf("Expected the cloud leg to be reported, got %s", saveErr.Leg)
	}

	loaded, loadErr := st.LoadLocal(saved.ID)
	if loadErr != nil {
		t.Fatalf("Local copy must survive the cloud failure: %v", loadErr)
	}
	if loaded.SyncedToCloud {
		t.Error("Failed cloud save must not mark the document synced")
	}
}

func TestExecute_OfflineCloudSaveReturnsNotConnected(t *testing.T) {
	st := testStore(t)
	f := New(st, &fakeCloud{connected: map[model.ProviderID]bool{}}, testLogger())

	_, err := f.Execute(context.Background(), model.Document{
		Kind: model.KindCV, Title: "My CV",
	}, Target{Kind: TargetCloud, Provider: model.ProviderGoogleDrive})

	if !errors.Is(err, model.ErrProviderNotConnected) {
		t.Fatalf("Expected ErrProviderNotConnected, got %v", err)
	}
}

func TestExecute_PromotesDraft(t *testing.T) {
	st := testStore(t)
	draft := model.Document{Kind: model.KindCV, Title: "Draft CV", Source: model.DraftSource}
	if err := st.SaveDraft(draft); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	loaded, _ := st.LoadDraft()

	f := New(st, &fakeCloud{connected: map[model.ProviderID]bool{}}, testLogger())
	if _, err := f.Execute(context.Background(), *loaded, Target{Kind: TargetLocal}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if _, err := st.LoadDraft(); !errors.Is(err, model.ErrNoDraft) {
		t.Errorf("Expected draft cleared after promotion, got %v", err)
	}
}
