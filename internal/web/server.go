// Package web provides an HTTP status server for the greenhouse controller.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/greenhouse-controller/internal/status"
)

const wsWriteTimeout = 5 * time.Second

// Server serves the status page, JSON, live updates and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	upgrader   websocket.Upgrader

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Server that reads state from the given tracker. A nil
// metrics handler leaves /metrics unrouted.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done: make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes live websocket streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Warnf("web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	data := status.FormatJSON(s.tracker.Snapshot())
	if data == nil {
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleWS streams a JSON snapshot on connect and after every change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("web: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	log.Debugf("web: websocket client %v connected", conn.RemoteAddr())

	updates, cancel := s.tracker.Subscribe()
	defer cancel()

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap status.Snapshot) bool {
		data := status.FormatJSON(snap)
		if data == nil {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	if !send(s.tracker.Snapshot()) {
		return
	}
	for {
		select {
		case snap := <-updates:
			if !send(snap) {
				return
			}
		case <-gone:
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			return
		}
	}
}
