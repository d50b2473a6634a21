// Package tmuxccserver wires the tmuxcc protocol engine to a real listener:
// it accepts connections, drives the per-connection control-mode loop, and
// serializes command handlers' host calls onto a single host-control
// goroutine so a slow handler never blocks another connection's pane output.
// The handshake, output-tap registration, host-event handling and
// subscription polling call the Host directly from each connection's
// goroutine.
package tmuxccserver

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
)

// hostRequest is one unit of host-touching work handed to the host-control
// goroutine; fn must not block on anything but the host itself.
type hostRequest struct {
	fn   func() (string, error)
	resp chan hostResult
}

type hostResult struct {
	out string
	err error
}

// Server owns one workspace's host-control goroutine and accepts
// connections for it. Each connection keeps its own IdMap loaded from (and
// saved back to) the shared cache file; a cache-directory fsnotify watch
// lets a connection pick up mappings written by a sibling process (e.g.
// another tmuxcc-server instance) between commands.
type Server struct {
	Host       tmuxcc.Host
	Workspace  string
	CacheDir   string
	PauseAgeMs int64

	reqs chan hostRequest

	invalidateMu sync.Mutex
	invalidated  bool
}

// New returns a Server ready to Run connections for workspace.
func New(host tmuxcc.Host, workspace, cacheDir string, pauseAgeMs int64) *Server {
	return &Server{
		Host:       host,
		Workspace:  workspace,
		CacheDir:   cacheDir,
		PauseAgeMs: pauseAgeMs,
		reqs:       make(chan hostRequest),
	}
}

// Run starts the host-control goroutine and the cache-dir watch, and
// blocks accepting connections on ln until ctx is canceled.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	go s.runHostControl(ctx)
	go s.watchCacheDir(ctx)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) runHostControl(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.reqs:
			out, err := req.fn()
			req.resp <- hostResult{out: out, err: err}
		}
	}
}

// dispatchDrainTick is how often dispatch interleaves a tap-drain callback
// while awaiting the host-control goroutine's reply, so a slow handler
// (e.g. capture-pane on a large scrollback) never stalls pane output
// delivery behind it.
const dispatchDrainTick = 10 * time.Millisecond

// dispatch runs fn on the host-control goroutine and returns its result,
// calling drain on a ~10ms cadence while waiting so output taps keep
// flowing.
func (s *Server) dispatch(ctx context.Context, fn func() (string, error), drain func()) (string, error) {
	resp := make(chan hostResult, 1)
	select {
	case s.reqs <- hostRequest{fn: fn, resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ticker := time.NewTicker(dispatchDrainTick)
	defer ticker.Stop()
	for {
		select {
		case r := <-resp:
			return r.out, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if drain != nil {
				drain()
			}
		}
	}
}

// watchCacheDir flags invalidated when the cache directory changes, so a
// connection knows to reload its IdMap from disk before acting on its next
// command rather than racing a sibling process's write.
func (s *Server) watchCacheDir(ctx context.Context) {
	if s.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		log.Printf("tmuxccserver: cache dir: %v", err)
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("tmuxccserver: fsnotify: %v", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(s.CacheDir); err != nil {
		log.Printf("tmuxccserver: watch %s: %v", s.CacheDir, err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				s.invalidateMu.Lock()
				s.invalidated = true
				s.invalidateMu.Unlock()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Server) takeInvalidated() bool {
	s.invalidateMu.Lock()
	defer s.invalidateMu.Unlock()
	v := s.invalidated
	s.invalidated = false
	return v
}

const (
	subscribeTick = time.Second
	readTimeout   = 200 * time.Millisecond
)

// connTaps tracks one connection's per-pane output taps; distinct from any
// other connection's taps on the same pane, since RegisterOutputTap hands
// out an independent channel per call.
type connTaps struct {
	mu      sync.Mutex
	chans   map[tmuxcc.PaneID]<-chan tmuxcc.PaneOutput
	cancels map[tmuxcc.PaneID]func()
}

func newConnTaps() *connTaps {
	return &connTaps{chans: make(map[tmuxcc.PaneID]<-chan tmuxcc.PaneOutput), cancels: make(map[tmuxcc.PaneID]func())}
}

func (t *connTaps) add(host tmuxcc.Host, pane tmuxcc.PaneID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.chans[pane]; ok {
		return
	}
	ch, cancel := host.RegisterOutputTap(pane)
	t.chans[pane] = ch
	t.cancels[pane] = cancel
}

func (t *connTaps) snapshot() map[tmuxcc.PaneID]<-chan tmuxcc.PaneOutput {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[tmuxcc.PaneID]<-chan tmuxcc.PaneOutput, len(t.chans))
	for p, c := range t.chans {
		out[p] = c
	}
	return out
}

func (t *connTaps) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.cancels {
		cancel()
	}
}

// handleConn runs one connection's full lifecycle: handshake, main loop,
// teardown. It owns its IdMap for the connection's lifetime and persists
// it back to the cache directory on close.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	idMap := tmuxcc.LoadIdMap(s.CacheDir, s.Workspace)
	defer idMap.Save(s.CacheDir, s.Workspace)

	state := tmuxcc.NewConnState(idMap, s.Host, s.Workspace, s.PauseAgeMs)

	w := bufio.NewWriter(conn)

	if err := s.handshake(w, state); err != nil {
		log.Printf("tmuxccserver: handshake: %v", err)
		return
	}

	taps := newConnTaps()
	for _, tab := range s.Host.Tabs(s.Workspace) {
		for _, pane := range s.Host.Panes(tab) {
			taps.add(s.Host, pane)
		}
	}
	defer taps.closeAll()

	hostEvents := s.Host.Events()

	subscribeTimer := time.NewTicker(subscribeTick)
	defer subscribeTimer.Stop()

	lineCh, readErrCh := readLines(connCtx, conn)

	for {
		if s.drainTapsOnce(state, w, taps) {
			if w.Flush() != nil {
				return
			}
		}

		select {
		case <-connCtx.Done():
			return

		case ev, ok := <-hostEvents:
			if !ok {
				return
			}
			s.applyHostEvent(state, taps, ev)
			if s.flushPending(state, w) != nil {
				return
			}

		case <-subscribeTimer.C:
			for _, line := range state.Handlers.CheckSubscriptions(state.Subs, state.Buffers) {
				state.EnqueueNotification(line)
			}
			if s.flushPending(state, w) != nil {
				return
			}

		case line, ok := <-lineCh:
			if !ok {
				return
			}
			if s.takeInvalidated() {
				*idMap = *tmuxcc.LoadIdMap(s.CacheDir, s.Workspace)
			}
			if s.handleLine(connCtx, line, state, w, taps) != nil {
				return
			}
			if state.DetachRequested {
				w.WriteString(tmuxcc.ExitNotification(state.ExitReason))
				w.Flush()
				return
			}

		case _, ok := <-readErrCh:
			if !ok {
				return
			}
			return
		}
	}
}

func (s *Server) handshake(w *bufio.Writer, state *tmuxcc.ConnState) error {
	w.WriteString(state.Response.EmptySuccess())

	sessionID := state.Handlers.IDMap.GetOrCreateTmuxSessionID(s.Workspace)
	w.WriteString(tmuxcc.SessionChangedNotification(sessionID, s.Workspace))

	for _, tab := range s.Host.Tabs(s.Workspace) {
		tmuxWin := state.Handlers.IDMap.GetOrCreateTmuxWindowID(tab)
		w.WriteString(tmuxcc.WindowAddNotification(tmuxWin))
		for _, pane := range s.Host.Panes(tab) {
			state.Handlers.IDMap.GetOrCreateTmuxPaneID(pane)
		}
	}
	return w.Flush()
}

// drainTapsOnce performs one non-blocking sweep over every registered tap,
// framing and writing whatever output is immediately available. Reports
// whether anything was written (so the caller knows to flush).
func (s *Server) drainTapsOnce(state *tmuxcc.ConnState, w *bufio.Writer, taps *connTaps) bool {
	wrote := false
	for pane, ch := range taps.snapshot() {
	drain:
		for {
			select {
			case out, ok := <-ch:
				if !ok {
					break drain
				}
				line, _ := state.FrameOutput(pane, out.Data, out.TimestampMs)
				if line != "" {
					w.WriteString(line)
					wrote = true
				}
			default:
				break drain
			}
		}
	}
	return wrote
}

func (s *Server) handleLine(ctx context.Context, line string, state *tmuxcc.ConnState, w *bufio.Writer, taps *connTaps) error {
	cmd, parseErr := tmuxcc.ParseCommand(line)
	var body string
	var err error
	if parseErr != nil {
		err = parseErr
	} else {
		drain := func() {
			if s.drainTapsOnce(state, w, taps) {
				w.Flush()
			}
		}
		body, err = s.dispatch(ctx, func() (string, error) {
			return state.Handlers.Dispatch(ctx, cmd, state.Buffers, func() string { return bufferSample(state.Buffers) })
		}, drain)
	}

	var frame string
	if err != nil {
		frame = state.Response.Error(err.Error())
	} else {
		frame = state.Response.Success(body)
	}
	w.WriteString(frame)
	if err := s.flushPending(state, w); err != nil {
		return err
	}
	return w.Flush()
}

func bufferSample(bufs *tmuxcc.PasteBufferStore) string {
	mr, ok := bufs.MostRecent()
	if !ok {
		return ""
	}
	return tmuxcc.BufferSample(mr.Data)
}

func (s *Server) flushPending(state *tmuxcc.ConnState, w *bufio.Writer) error {
	for _, line := range state.DrainPending() {
		w.WriteString(line)
	}
	return w.Flush()
}

// applyHostEvent translates one host event into zero or more pending
// notifications, special-casing tab-resize (whose layout body the
// translator can't build on its own) and newly added tabs (whose panes
// need a fresh output tap on this connection). Panes created by splitting
// an existing tab get no tap here.
func (s *Server) applyHostEvent(state *tmuxcc.ConnState, taps *connTaps, ev tmuxcc.HostEvent) {
	if ev.Kind == tmuxcc.EventTabResized {
		tmuxWin, ok := state.Handlers.IDMap.TmuxWindowID(ev.Tab)
		if ok {
			if layout, err := BuildLayoutString(s.Host, state.Handlers.IDMap, ev.Tab); err == nil {
				state.EnqueueNotification(tmuxcc.LayoutChangeNotification(tmuxWin, layout))
			}
		}
		return
	}

	if line, ok := tmuxcc.TranslateNotification(ev, state.Handlers.IDMap, state.Notify, state.Buffers, s.Workspace); ok {
		state.EnqueueNotification(line)
	}

	if ev.Kind == tmuxcc.EventTabAddedToWindow {
		for _, pane := range s.Host.Panes(ev.Tab) {
			taps.add(s.Host, pane)
		}
	}
}

// readLines tails conn for newline-delimited command lines, handing each
// complete line (sans trailing newline) to the returned channel. The
// delimiter is always '\n'; a trailing '\r' is stripped but never
// required.
func readLines(ctx context.Context, conn net.Conn) (<-chan string, <-chan error) {
	lineCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lineCh)
		defer close(errCh)
		r := bufio.NewReader(conn)
		for {
			raw, err := r.ReadString('\n')
			if err != nil && raw == "" {
				select {
				case errCh <- err:
				case <-ctx.Done():
				}
				return
			}
			line := strings.TrimRight(raw, "\r\n")
			select {
			case lineCh <- line:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lineCh, errCh
}

// --- socket address resolution ---

// Listen opens the server's listener: a Unix-domain socket under socketDir
// by default, falling back to loopback TCP where AF_UNIX isn't available.
// Returns the listener and the address string to publish via
// WEZTERM_TMUX_CC.
func Listen(socketDir, workspace string) (net.Listener, string, error) {
	if socketDir != "" {
		if err := os.MkdirAll(socketDir, 0o700); err == nil {
			path := filepath.Join(socketDir, fmt.Sprintf("tmuxcc-%s.sock", sanitize(workspace)))
			os.Remove(path)
			if ln, err := net.Listen("unix", path); err == nil {
				return ln, path, nil
			}
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	return ln, "tcp:" + ln.Addr().String(), nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
