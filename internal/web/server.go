// Package web serves the knob's status page and its JSON form.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/volume-knob/internal/status"
)

// Server exposes a status.Tracker over HTTP:
//
//	GET /             HTML status page
//	GET /index.html   same page
//	GET /index.json   status.FormatJSON of the current snapshot
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New creates a Server for addr. Nothing listens until ListenAndServe or
// Serve is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.HandleFunc("GET /index.json", s.json)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           noStore(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops the server, waiting for active requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) json(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// noStore keeps browsers and proxies from caching the live state.
func noStore(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}
