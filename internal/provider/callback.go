package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cvdeck/cvdeck/internal/model"
)

// CallbackServer is the loopback HTTP server the OAuth redirect lands on.
// It hands code and state to the connection manager and renders a minimal
// close-this-tab page.
type CallbackServer struct {
	mgr    *Manager
	logger *slog.Logger
	srv    *http.Server
	addr   string

	// Done receives the provider id after each handled callback, successful
	// or not, so a CLI can stop waiting.
	Done chan model.ProviderID
}

// NewCallbackServer creates the server bound to addr (loopback only).
func NewCallbackServer(addr string, mgr *Manager, logger *slog.Logger) *CallbackServer {
	cs := &CallbackServer{
		mgr:    mgr,
		logger: logger,
		Done:   make(chan model.ProviderID, 1),
	}

	r := chi.NewRouter()
	r.Get("/callback/{provider}", cs.handleCallback)

	cs.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return cs
}

// Start begins serving in the background. It returns once the listener is
// bound so the caller can safely open the browser.
func (cs *CallbackServer) Start() error {
	ln, err := net.Listen("tcp", cs.srv.Addr)
	if err != nil {
		return err
	}
	cs.addr = ln.Addr().String()
	go func() {
		if err := cs.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cs.logger.Error("callback server failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Addr returns the bound listener address, valid after Start.
func (cs *CallbackServer) Addr() string {
	return cs.addr
}

// Shutdown stops the server.
func (cs *CallbackServer) Shutdown(ctx context.Context) error {
	return cs.srv.Shutdown(ctx)
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	id := model.ProviderID(chi.URLParam(r, "provider"))
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		cs.notify(id)
		return
	}

	if err := cs.mgr.HandleCallback(r.Context(), id, code, state); err != nil {
		cs.logger.Warn("oauth callback failed",
			slog.String("provider", string(id)),
			slog.String("error", err.Error()))
		http.Error(w, "connection failed: "+err.Error(), http.StatusBadGateway)
		cs.notify(id)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><p>Connected. You can close this tab.</p></body></html>"))
	cs.notify(id)
}

func (cs *CallbackServer) notify(id model.ProviderID) {
	select {
	case cs.Done <- id:
	default:
	}
}
