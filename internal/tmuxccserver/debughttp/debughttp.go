// Package debughttp exposes a read-only introspection surface over the
// server's host state: a JSON snapshot endpoint and a WebSocket stream of
// host events, intended for local debugging rather than as a protocol
// surface clients depend on.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
	"github.com/wezterm-compat/tmuxcc/internal/wsbase"
)

// Server serves the debug HTTP/WebSocket introspection endpoint over a
// single shared Host.
type Server struct {
	host           tmuxcc.Host
	authToken      string
	originPatterns []string
}

// New returns a debug Server over host, requiring authToken (if non-empty)
// on every request.
func New(host tmuxcc.Host, authToken string) *Server {
	return &Server{host: host, authToken: authToken, originPatterns: []string{"localhost:*", "127.0.0.1:*"}}
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/snapshot", s.handleSnapshot)
	mux.HandleFunc("/debug/events", s.handleEvents)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// workspaceSnapshot is the JSON shape returned by /debug/snapshot.
type workspaceSnapshot struct {
	Workspace string        `json:"workspace"`
	Tabs      []tabSnapshot `json:"tabs"`
}

type tabSnapshot struct {
	Tab   tmuxcc.TabID   `json:"tab"`
	Info  tmuxcc.TabInfo `json:"info"`
	Panes []paneSnapshot `json:"panes"`
}

type paneSnapshot struct {
	Pane tmuxcc.PaneID   `json:"pane"`
	Info tmuxcc.PaneInfo `json:"info"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !wsbase.IsAuthorizedRequest(s.authToken, r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var out []workspaceSnapshot
	for _, ws := range s.host.Workspaces() {
		snap := workspaceSnapshot{Workspace: ws}
		for _, tab := range s.host.Tabs(ws) {
			info, err := s.host.TabInfo(tab)
			if err != nil {
				continue
			}
			ts := tabSnapshot{Tab: tab, Info: info}
			for _, pane := range s.host.Panes(tab) {
				pinfo, err := s.host.PaneInfo(pane)
				if err != nil {
					continue
				}
				ts.Panes = append(ts.Panes, paneSnapshot{Pane: pane, Info: pinfo})
			}
			snap.Tabs = append(snap.Tabs, ts)
		}
		out = append(out, snap)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("debughttp: encode snapshot: %v", err)
	}
}

// handleEvents upgrades to a WebSocket and streams the host's shared event
// stream as JSON text frames until the client disconnects. Like the
// snapshot endpoint, this is many-reader/one-writer-safe: it never sends
// commands to the host, only observes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !wsbase.IsAuthorizedRequest(s.authToken, r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	include, exclude, err := wsbase.CompileSessionFilters(
		r.URL.Query().Get("workspace-include"), r.URL.Query().Get("workspace-exclude"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, acceptErr := wsbase.AcceptWebSocket(w, r, s.originPatterns)
	if acceptErr != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	events := s.host.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Workspace != "" && !wsbase.PassesFilter(ev.Workspace, include, exclude) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
