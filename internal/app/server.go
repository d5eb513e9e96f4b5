package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vk/rolebinder/internal/ctxlog"
	"github.com/vk/rolebinder/internal/registry"
	"github.com/vk/rolebinder/internal/resolver"
)

// ResolutionView is the printable form of a resolution.
type ResolutionView struct {
	Role     string            `json:"role"`
	Adaptee  string            `json:"adaptee"`
	State    string            `json:"state"`
	Adapter  string            `json:"adapter,omitempty"`
	Module   string            `json:"module,omitempty"`
	Via      string            `json:"via,omitempty"`
	Strategy string            `json:"strategy,omitempty"`
	Fallback bool              `json:"fallback,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Failures []string          `json:"failures,omitempty"`
}

// NewResolutionView converts res for display.
func NewResolutionView(res resolver.Resolution) ResolutionView {
	v := ResolutionView{
		Role:     string(res.Role),
		Adaptee:  string(res.Adaptee),
		State:    res.State.String(),
		Fallback: res.Fallback,
	}
	if res.Found() {
		v.Adapter = string(res.Definition.Adapter)
		v.Module = res.Definition.Module.Name()
		v.Options = res.Definition.Options
	}
	if res.Via != nil {
		v.Via = string(res.Via.Concrete)
		v.Strategy = string(res.Via.Strategy)
	}
	for _, f := range res.Failures {
		v.Failures = append(v.Failures, f.Error())
	}
	return v
}

// Handler returns the HTTP handler serving /health and /resolve.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /resolve", a.resolveHandler)
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) resolveHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fallback := false
	if raw := q.Get("fallback"); raw != "" {
		var err error
		if fallback, err = strconv.ParseBool(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fallback must be a boolean"})
			return
		}
	}

	ctx := ctxlog.WithLogger(r.Context(), a.logger)
	res, err := a.Resolve(ctx, q.Get("role"), q.Get("type"), fallback)
	switch {
	case errors.Is(err, registry.ErrConfiguration):
		a.logger.Error("Resolve request failed.", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if !res.Found() {
		status = http.StatusNotFound
	}
	writeJSON(w, status, NewResolutionView(res))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve runs the HTTP server until ctx is done. ready, when set, receives the
// bound address once the listener is open.
func (a *App) Serve(ctx context.Context, ready func(addr string)) error {
	addr := fmt.Sprintf(":%d", a.config.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.httpServer = srv
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Resolve server starting.", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case <-ctx.Done():
		return a.closeServer()
	case err, ok := <-errCh:
		if ok {
			a.logger.Error("Resolve server failed unexpectedly.", "error", err)
			return err
		}
		return nil
	}
}

func (a *App) closeServer() error {
	a.logger.Debug("Closing resolve server...")
	if a.httpServer == nil {
		a.logger.Debug("Resolve server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	srv := a.httpServer
	a.httpServer = nil
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Resolve server shutdown failed.", "error", err)
		return err
	}
	a.logger.Debug("Resolve server shut down gracefully.")
	return nil
}
