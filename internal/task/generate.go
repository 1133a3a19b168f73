package task

import (
	"context"
	"log/slog"

	"github.com/cvdeck/cvdeck/internal/backend"
)

// Generator submits cover letter generation requests and, when the backend
// answers with a pending task, drives them through the poller.
type Generator struct {
	client *backend.Client
	poller *Poller
	logger *slog.Logger
}

// NewGenerator creates a generator sharing the app's poller.
func NewGenerator(client *backend.Client, poller *Poller, logger *slog.Logger) *Generator {
	return &Generator{client: client, poller: poller, logger: logger}
}

// Generate submits the request. An immediate backend result is delivered to
// onDone before Generate returns; a pending task starts a background poll and
// the returned handle is non-nil.
func (g *Generator) Generate(ctx context.Context, req backend.GenerateRequest, onDone func(result string), onFail func(err error)) (*Handle, error) {
	resp, err := g.client.GenerateCoverLetter(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.Pending() {
		onDone(resp.Result)
		return nil, nil
	}

	g.logger.Info("generation task pending, starting poll",
		slog.String("task", resp.TaskID))
	return g.poller.Start(ctx, resp.TaskID, onDone, onFail), nil
}
