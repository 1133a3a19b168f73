package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cvdeck/cvdeck/internal/backend"
	"github.com/cvdeck/cvdeck/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedFetcher returns a fixed sequence of statuses per task id, repeating
// the last one forever.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]model.Task
	calls   map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		scripts: make(map[string][]model.Task),
		calls:   make(map[string]int),
	}
}

func (f *scriptedFetcher) script(taskID string, states ...model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[taskID] = states
}

func (f *scriptedFetcher) TaskStatus(_ context.Context, taskID string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := f.scripts[taskID]
	if len(states) == 0 {
		return nil, errors.New("unknown task")
	}
	i := f.calls[taskID]
	f.calls[taskID]++
	if i >= len(states) {
		i = len(states) - 1
	}
	t := states[i]
	return &t, nil
}

func processing(id string) model.Task {
	return model.Task{ID: id, Status: model.TaskProcessing}
}

func newTestPoller(fetch StatusFetcher) *Poller {
	p := NewPoller(fetch, testLogger())
	p.interval = 5 * time.Millisecond
	return p
}

func TestPoller_CompletionFiresExactlyOnce(t *testing.T) {
	f := newScriptedFetcher()
	f.script("t1",
		processing("t1"),
		processing("t1"),
		model.Task{ID: "t1", Status: model.TaskCompleted, Result: "Dear hiring manager"},
	)

	p := newTestPoller(f)
	var completions atomic.Int32
	var failures atomic.Int32

	h := p.Start(context.Background(), "t1",
		func(result string) {
			if result != "Dear hiring manager" {
				t.Errorf("Unexpected result %q", result)
			}
			completions.Add(1)
		},
		func(error) { failures.Add(1) },
	)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Poll did not finish")
	}
	// Give any stray extra tick a chance to misfire.
	time.Sleep(20 * time.Millisecond)

	if completions.Load() != 1 {
		t.Errorf("Expected exactly 1 completion callback, got %d", completions.Load())
	}
	if failures.Load() != 0 {
		t.Errorf("Expected no failure callback, got %d", failures.Load())
	}
	if p.Active() {
		t.Error("Poller must be inactive after a terminal state")
	}
}

func TestPoller_FailureInvokesErrorCallback(t *testing.T) {
	f := newScriptedFetcher()
	f.script("t2",
		processing("t2"),
		model.Task{ID: "t2", Status: model.TaskFailed, Error: "model overloaded"},
	)

	p := newTestPoller(f)
	var gotErr error
	done := make(chan struct{})

	p.Start(context.Background(), "t2",
		func(string) { t.Error("Completion callback must not fire on failure") },
		func(err error) {
			gotErr = err
			close(done)
		},
	)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Failure callback never fired")
	}

	var taskErr *model.TaskError
	if !errors.As(gotErr, &taskErr) {
		t.Fatalf("Expected TaskError, got %v", gotErr)
	}
	if taskErr.TaskID != "t2" || taskErr.Message != "model overloaded" {
		t.Errorf("Unexpected task error: %+v", taskErr)
	}
}

func TestPoller_SecondStartStopsFirst(t *testing.T) {
	f := newScriptedFetcher()
	f.script("t1", processing("t1"))
	f.script("t2", processing("t2"))

	p := newTestPoller(f)
	h1 := p.Start(context.Background(), "t1", func(string) {}, func(error) {})
	h2 := p.Start(context.Background(), "t2", func(string) {}, func(error) {})

	select {
	case <-h1.Done():
	case <-time.After(time.Second):
		t.Fatal("First poll was not stopped by the second start")
	}
	if !p.Active() {
		t.Error("Second poll should be the single active loop")
	}

	h2.Cancel()
	<-h2.Done()
	if p.Active() {
		t.Error("Poller must be inactive after cancel")
	}
}

func TestPoller_ExternalStop(t *testing.T) {
	f := newScriptedFetcher()
	f.script("t1", processing("t1"))

	p := newTestPoller(f)
	var fired atomic.Int32
	p.Start(context.Background(), "t1",
		func(string) { fired.Add(1) },
		func(error) { fired.Add(1) },
	)

	p.Stop()
	if p.Active() {
		t.Error("Expected no active poll after Stop")
	}
	if fired.Load() != 0 {
		t.Error("Cancellation must not fire callbacks")
	}
	// Stop with nothing active is a no-op.
	p.Stop()
}

func TestPoller_TransientProbeFailureContinues(t *testing.T) {
	calls := atomic.Int32{}
	fetch := fetcherFunc(func(ctx context.Context, taskID string) (*model.Task, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("connection reset")
		default:
			return &model.Task{ID: taskID, Status: model.TaskCompleted, Result: "ok"}, nil
		}
	})

	p := newTestPoller(fetch)
	done := make(chan string, 1)
	p.Start(context.Background(), "t3",
		func(result string) { done <- result },
		func(err error) { t.Errorf("Unexpected failure: %v", err) },
	)

	select {
	case result := <-done:
		if result != "ok" {
			t.Errorf("Unexpected result %q", result)
		}
	case <-time.After(time.Second):
		t.Fatal("Poll gave up after a transient probe failure")
	}
}

type fetcherFunc func(ctx context.Context, taskID string) (*model.Task, error)

func (f fetcherFunc) TaskStatus(ctx context.Context, taskID string) (*model.Task, error) {
	return f(ctx, taskID)
}

func TestGenerator_ImmediateResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"result": "Dear team,"})
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, func() (string, error) { return "tok", nil }, testLogger())
	g := NewGenerator(client, newTestPoller(newScriptedFetcher()), testLogger())

	var got string
	h, err := g.Generate(context.Background(), backend.GenerateRequest{Company: "Acme"},
		func(result string) { got = result },
		func(err error) { t.Errorf("Unexpected failure: %v", err) },
	)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if h != nil {
		t.Error("Immediate result must not start a poll")
	}
	if got != "Dear team," {
		t.Errorf("Expected immediate result, got %q", got)
	}
}

func TestGenerator_PendingTaskPollsToCompletion(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/cover-letter/generate":
			json.NewEncoder(w).Encode(map[string]string{"task_id": "t9", "status": "processing"})
		case "/api/cover-letter/task-status/t9":
			if polls.Add(1) < 2 {
				json.NewEncoder(w).Encode(map[string]string{"task_id": "t9", "status": "processing"})
			} else {
				json.NewEncoder(w).Encode(map[string]string{"task_id": "t9", "status": "completed", "result": "done"})
			}
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := backend.NewClient(srv.URL, func() (string, error) { return "tok", nil }, testLogger())
	p := newTestPoller(client)
	g := NewGenerator(client, p, testLogger())

	done := make(chan string, 1)
	h, err := g.Generate(context.Background(), backend.GenerateRequest{Company: "Acme"},
		func(result string) { done <- result },
		func(err error) { t.Errorf("Unexpected failure: %v", err) },
	)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if h == nil {
		t.Fatal("Pending task must return a handle")
	}

	select {
	case result := <-done:
		if result != "done" {
			t.Errorf("Expected 'done', got %q", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generation never completed")
	}
}
