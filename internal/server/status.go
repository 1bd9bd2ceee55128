package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// StatusHandler exposes the catalog and the live connection table over HTTP.
func (s *Server) StatusHandler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}).Methods("GET")

	router.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.catalog.Entries())
	}).Methods("GET")

	router.HandleFunc("/catalog/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		size, ok := s.catalog.Lookup(name)
		if !ok {
			http.Error(w, "unknown file", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"name": name, "size": size})
	}).Methods("GET")

	router.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.ActiveConnections())
	}).Methods("GET")
	return router
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ServeStatus runs the status endpoint on addr until ctx is cancelled.
func (s *Server) ServeStatus(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Status endpoint listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
