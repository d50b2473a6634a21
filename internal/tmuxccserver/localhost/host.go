// Package localhost is a reference implementation of tmuxcc.Host backed by
// real PTYs (github.com/creack/pty). It is not a terminal multiplexer in
// its own right — no rendering, no copy mode, no nested window tree beyond
// one mux window per workspace — but it is enough of a real backend to
// exercise the protocol engine end to end in tests and in the demo binary
// without requiring an actual tmux or GUI host process.
package localhost

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
)

const (
	defaultScrollbackLines = 2000
	outputTapCapacity      = 1024
)

type localPane struct {
	id                       tmuxcc.PaneID
	tab                      tmuxcc.TabID
	ptmx                     *os.File
	cmd                      *exec.Cmd
	width, height, left, top uint64
	active                   bool
	dead                     bool

	mu        sync.Mutex
	lines     []string
	pending   []byte
	cursorX   uint64
	cursorY   uint64

	tapsMu sync.Mutex
	taps   []chan tmuxcc.PaneOutput
}

type localTab struct {
	id            tmuxcc.TabID
	workspace     string
	name          string
	width, height uint64
	index         uint64
	panes         []tmuxcc.PaneID
	activePane    tmuxcc.PaneID
}

type localWorkspace struct {
	name      string
	muxWindow tmuxcc.MuxWindowID
	tabs      []tmuxcc.TabID
	activeTab tmuxcc.TabID
}

// Host is the in-process PTY-backed tmuxcc.Host implementation. All
// mutating operations are serialized through mu; each pane's output is
// fanned out to its registered taps by a dedicated reader goroutine.
type Host struct {
	mu sync.Mutex

	workspaces map[string]*localWorkspace
	wsOrder    []string
	tabs       map[tmuxcc.TabID]*localTab
	panes      map[tmuxcc.PaneID]*localPane

	nextPane      tmuxcc.PaneID
	nextTab       tmuxcc.TabID
	nextMuxWindow tmuxcc.MuxWindowID

	shell string

	eventsMu  sync.Mutex
	eventSubs []chan tmuxcc.HostEvent
}

// New returns an empty Host. shell is the command spawned for every new
// pane; an empty string falls back to $SHELL, then /bin/bash.
func New(shell string) *Host {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	return &Host{
		workspaces: make(map[string]*localWorkspace),
		tabs:       make(map[tmuxcc.TabID]*localTab),
		panes:      make(map[tmuxcc.PaneID]*localPane),
		nextPane:   1,
		nextTab:    1,
		shell:      shell,
	}
}

// EnsureWorkspace creates a workspace (and its single mux window) if it
// doesn't already exist, with one initial tab and pane. Returns that new
// tab's id, or the active tab's id when the workspace already exists.
func (h *Host) EnsureWorkspace(ctx context.Context, name string) (tmuxcc.TabID, error) {
	h.mu.Lock()
	if ws, ok := h.workspaces[name]; ok {
		tab := ws.activeTab
		h.mu.Unlock()
		return tab, nil
	}
	muxWindow := h.nextMuxWindow
	h.nextMuxWindow++
	ws := &localWorkspace{name: name, muxWindow: muxWindow}
	h.workspaces[name] = ws
	h.wsOrder = append(h.wsOrder, name)
	h.mu.Unlock()

	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventWindowCreated, MuxWindow: muxWindow, Workspace: name})

	tab, _, err := h.SpawnTab(ctx, name, "")
	return tab, err
}

// --- tmuxcc.Host ---

func (h *Host) Workspaces() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.wsOrder))
	copy(out, h.wsOrder)
	return out
}

func (h *Host) Tabs(workspace string) []tmuxcc.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[workspace]
	if !ok {
		return nil
	}
	out := make([]tmuxcc.TabID, len(ws.tabs))
	copy(out, ws.tabs)
	return out
}

func (h *Host) Panes(tab tmuxcc.TabID) []tmuxcc.PaneID {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[tab]
	if !ok {
		return nil
	}
	out := make([]tmuxcc.PaneID, len(t.panes))
	copy(out, t.panes)
	return out
}

func (h *Host) PaneInfo(id tmuxcc.PaneID) (tmuxcc.PaneInfo, error) {
	h.mu.Lock()
	p, ok := h.panes[id]
	h.mu.Unlock()
	if !ok {
		return tmuxcc.PaneInfo{}, fmt.Errorf("no such pane %d", id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	total := int64(len(p.lines))
	viewport := int64(p.height)
	physicalTop := total - viewport
	if physicalTop < 0 {
		physicalTop = 0
	}

	var index uint64
	h.mu.Lock()
	if t, ok := h.tabs[p.tab]; ok {
		for i, pid := range t.panes {
			if pid == id {
				index = uint64(i)
				break
			}
		}
	}
	h.mu.Unlock()

	return tmuxcc.PaneInfo{
		Index:        index,
		Width:        p.width,
		Height:       p.height,
		Left:         p.left,
		Top:          p.top,
		Active:       p.active,
		Dead:         p.dead,
		CursorX:      p.cursorX,
		CursorY:      p.cursorY,
		HistoryLimit: defaultScrollbackLines,
		HistorySize:  uint64(total),
		PhysicalTop:  physicalTop,
		ViewportRows: viewport,
	}, nil
}

func (h *Host) TabInfo(id tmuxcc.TabID) (tmuxcc.TabInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return tmuxcc.TabInfo{}, fmt.Errorf("no such tab %d", id)
	}
	ws := h.workspaces[t.workspace]
	active := ws != nil && ws.activeTab == id
	return tmuxcc.TabInfo{Index: t.index, Width: t.width, Height: t.height, Name: t.name, Active: active}, nil
}

func (h *Host) WorkspaceOfTab(id tmuxcc.TabID) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return "", fmt.Errorf("no such tab %d", id)
	}
	return t.workspace, nil
}

func (h *Host) ActiveTab(workspace string) (tmuxcc.TabID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws, ok := h.workspaces[workspace]
	if !ok || ws.activeTab == 0 {
		return 0, fmt.Errorf("no active tab for workspace %q", workspace)
	}
	return ws.activeTab, nil
}

func (h *Host) ActivePane(tab tmuxcc.TabID) (tmuxcc.PaneID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[tab]
	if !ok || t.activePane == 0 {
		return 0, fmt.Errorf("no active pane for tab %d", tab)
	}
	return t.activePane, nil
}

func (h *Host) ReadLines(id tmuxcc.PaneID, startLine, endLine int64) ([]string, error) {
	h.mu.Lock()
	p, ok := h.panes[id]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such pane %d", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if startLine < 0 {
		startLine = 0
	}
	if endLine > int64(len(p.lines)) {
		endLine = int64(len(p.lines))
	}
	if endLine <= startLine {
		return nil, nil
	}
	out := make([]string, endLine-startLine)
	copy(out, p.lines[startLine:endLine])
	return out, nil
}

func (h *Host) WriteBytes(id tmuxcc.PaneID, data []byte) error {
	h.mu.Lock()
	p, ok := h.panes[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such pane %d", id)
	}
	_, err := p.ptmx.Write(data)
	return err
}

func (h *Host) ResizeTab(id tmuxcc.TabID, cols, rows *int64) error {
	h.mu.Lock()
	t, ok := h.tabs[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("no such tab %d", id)
	}
	if cols != nil {
		t.width = uint64(*cols)
	}
	if rows != nil {
		t.height = uint64(*rows)
	}
	panes := make([]tmuxcc.PaneID, len(t.panes))
	copy(panes, t.panes)
	single := len(panes) == 1
	w, hh := t.width, t.height
	workspace := t.workspace
	h.mu.Unlock()

	if single {
		h.mu.Lock()
		p := h.panes[panes[0]]
		h.mu.Unlock()
		if p != nil {
			p.width, p.height, p.left, p.top = w, hh, 0, 0
			_ = pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(w), Rows: uint16(hh)})
		}
	}

	h.emitTabResized(id, workspace)
	return nil
}

func (h *Host) FocusPane(id tmuxcc.PaneID) error {
	h.mu.Lock()
	p, ok := h.panes[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("no such pane %d", id)
	}
	t, ok := h.tabs[p.tab]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("dangling pane, no tab %d", p.tab)
	}
	for _, sibling := range t.panes {
		if sp := h.panes[sibling]; sp != nil {
			sp.active = sibling == id
		}
	}
	t.activePane = id
	ws := h.workspaces[t.workspace]
	tabChanged := ws != nil && ws.activeTab != t.id
	if ws != nil {
		ws.activeTab = t.id
	}
	muxWindow := tmuxcc.MuxWindowID(0)
	if ws != nil {
		muxWindow = ws.muxWindow
	}
	h.mu.Unlock()

	if tabChanged {
		h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventWindowInvalidated, MuxWindow: muxWindow, Tab: t.id})
	}
	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventPaneFocused, Tab: t.id, Pane: id})
	return nil
}

func (h *Host) RemovePane(id tmuxcc.PaneID) error {
	h.mu.Lock()
	p, ok := h.panes[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("no such pane %d", id)
	}
	if t, ok := h.tabs[p.tab]; ok {
		filtered := t.panes[:0]
		for _, pid := range t.panes {
			if pid != id {
				filtered = append(filtered, pid)
			}
		}
		t.panes = filtered
		if t.activePane == id && len(t.panes) > 0 {
			t.activePane = t.panes[0]
		}
	}
	delete(h.panes, id)
	h.mu.Unlock()

	p.mu.Lock()
	p.dead = true
	p.mu.Unlock()
	_ = p.ptmx.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGHUP)
	}
	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventPaneRemoved, Pane: id})
	return nil
}

func (h *Host) SplitPane(ctx context.Context, id tmuxcc.PaneID, horizontal bool, size tmuxcc.SplitSize, spawnCommand string) (tmuxcc.PaneID, error) {
	h.mu.Lock()
	src, ok := h.panes[id]
	if !ok {
		h.mu.Unlock()
		return 0, fmt.Errorf("no such pane %d", id)
	}
	tab := src.tab
	h.mu.Unlock()

	srcRect, newRect := splitRect(src, horizontal, size)

	newPane, err := h.spawnPane(tab, newRect.width, newRect.height, newRect.left, newRect.top, spawnCommand)
	if err != nil {
		return 0, err
	}

	src.width, src.height, src.left, src.top = srcRect.width, srcRect.height, srcRect.left, srcRect.top
	_ = pty.Setsize(src.ptmx, &pty.Winsize{Cols: uint16(src.width), Rows: uint16(src.height)})

	h.mu.Lock()
	if t, ok := h.tabs[tab]; ok {
		t.panes = append(t.panes, newPane.id)
	}
	h.mu.Unlock()

	if err := h.FocusPane(newPane.id); err != nil {
		return 0, err
	}

	if ws, err := h.WorkspaceOfTab(tab); err == nil {
		h.emitTabResized(tab, ws)
	}
	return newPane.id, nil
}

func (h *Host) SpawnTab(ctx context.Context, workspace, title string) (tmuxcc.TabID, tmuxcc.PaneID, error) {
	h.mu.Lock()
	ws, ok := h.workspaces[workspace]
	if !ok {
		muxWindow := h.nextMuxWindow
		h.nextMuxWindow++
		ws = &localWorkspace{name: workspace, muxWindow: muxWindow}
		h.workspaces[workspace] = ws
		h.wsOrder = append(h.wsOrder, workspace)
		h.mu.Unlock()
		h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventWindowCreated, MuxWindow: muxWindow, Workspace: workspace})
		h.mu.Lock()
	}
	tabID := h.nextTab
	h.nextTab++
	index := uint64(len(ws.tabs))
	h.mu.Unlock()

	if title == "" {
		title = fmt.Sprintf("tab-%d", tabID)
	}

	tab := &localTab{id: tabID, workspace: workspace, name: title, width: 80, height: 24, index: index}

	h.mu.Lock()
	h.tabs[tabID] = tab
	ws.tabs = append(ws.tabs, tabID)
	ws.activeTab = tabID
	muxWindow := ws.muxWindow
	h.mu.Unlock()

	pane, err := h.spawnPane(tabID, 80, 24, 0, 0, "")
	if err != nil {
		return 0, 0, err
	}
	h.mu.Lock()
	tab.panes = append(tab.panes, pane.id)
	tab.activePane = pane.id
	pane.active = true
	h.mu.Unlock()

	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventTabAddedToWindow, MuxWindow: muxWindow, Tab: tabID, Workspace: workspace})
	return tabID, pane.id, nil
}

// Events returns a fresh subscriber channel fanned out from every emitted
// event, so that the protocol server (one subscriber per connection) and
// the debug introspection endpoint can observe the same event stream
// concurrently without stealing events from one another.
func (h *Host) Events() <-chan tmuxcc.HostEvent {
	ch := make(chan tmuxcc.HostEvent, 256)
	h.eventsMu.Lock()
	h.eventSubs = append(h.eventSubs, ch)
	h.eventsMu.Unlock()
	return ch
}

func (h *Host) RegisterOutputTap(id tmuxcc.PaneID) (<-chan tmuxcc.PaneOutput, func()) {
	h.mu.Lock()
	p, ok := h.panes[id]
	h.mu.Unlock()
	if !ok {
		closed := make(chan tmuxcc.PaneOutput)
		close(closed)
		return closed, func() {}
	}

	ch := make(chan tmuxcc.PaneOutput, outputTapCapacity)
	p.tapsMu.Lock()
	p.taps = append(p.taps, ch)
	p.tapsMu.Unlock()

	cancel := func() {
		p.tapsMu.Lock()
		defer p.tapsMu.Unlock()
		for i, t := range p.taps {
			if t == ch {
				p.taps = append(p.taps[:i], p.taps[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// RenameWorkspace renames a workspace, preserving its tab/pane contents,
// and emits the workspace-renamed event the notification translator
// expects.
func (h *Host) RenameWorkspace(oldName, newName string) error {
	h.mu.Lock()
	ws, ok := h.workspaces[oldName]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("no such workspace %q", oldName)
	}
	delete(h.workspaces, oldName)
	ws.name = newName
	h.workspaces[newName] = ws
	for i, n := range h.wsOrder {
		if n == oldName {
			h.wsOrder[i] = newName
		}
	}
	for _, tid := range ws.tabs {
		if t, ok := h.tabs[tid]; ok {
			t.workspace = newName
		}
	}
	h.mu.Unlock()

	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventWorkspaceRenamed, OldWorkspace: oldName, Workspace: newName})
	return nil
}

// --- internals ---

type rect struct{ width, height, left, top uint64 }

func splitRect(src *localPane, horizontal bool, size tmuxcc.SplitSize) (srcRect, newRect rect) {
	width, height, left, top := src.width, src.height, src.left, src.top

	if horizontal {
		newWidth := halfOf(width, size)
		srcWidth := width - newWidth - 1
		return rect{srcWidth, height, left, top}, rect{newWidth, height, left + srcWidth + 1, top}
	}
	newHeight := halfOf(height, size)
	srcHeight := height - newHeight - 1
	return rect{width, srcHeight, left, top}, rect{width, newHeight, left, top + srcHeight + 1}
}

func halfOf(total uint64, size tmuxcc.SplitSize) uint64 {
	switch size.Kind {
	case tmuxcc.SplitSizeCells:
		if uint64(size.Cells) < total {
			return uint64(size.Cells)
		}
		return total / 2
	case tmuxcc.SplitSizePercent:
		n := total * uint64(size.Percent) / 100
		if n == 0 {
			n = 1
		}
		return n
	default:
		return total / 2
	}
}

func (h *Host) spawnPane(tab tmuxcc.TabID, width, height, left, top uint64, spawnCommand string) (*localPane, error) {
	var cmd *exec.Cmd
	if spawnCommand != "" {
		cmd = exec.Command(h.shell, "-c", spawnCommand)
	} else {
		cmd = exec.Command(h.shell)
	}
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(width), Rows: uint16(height)})
	if err != nil {
		return nil, fmt.Errorf("spawn pane: %w", err)
	}

	h.mu.Lock()
	id := h.nextPane
	h.nextPane++
	h.mu.Unlock()

	p := &localPane{
		id: id, tab: tab, ptmx: ptmx, cmd: cmd,
		width: width, height: height, left: left, top: top,
	}
	h.mu.Lock()
	h.panes[id] = p
	h.mu.Unlock()

	go h.pumpOutput(p)
	return p, nil
}

// pumpOutput copies pty output into the pane's scrollback and fans it out
// to every registered tap, blocking briefly on a full tap rather than
// dropping bytes.
func (h *Host) pumpOutput(p *localPane) {
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			h.appendScrollback(p, chunk)

			out := tmuxcc.PaneOutput{Pane: p.id, Data: chunk, TimestampMs: time.Now().UnixMilli()}
			p.tapsMu.Lock()
			taps := append([]chan tmuxcc.PaneOutput(nil), p.taps...)
			p.tapsMu.Unlock()
			for _, tap := range taps {
				tap <- out
			}
		}
		if err != nil {
			p.mu.Lock()
			p.dead = true
			p.mu.Unlock()
			h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventPaneRemoved, Pane: p.id})
			return
		}
	}
}

func (h *Host) appendScrollback(p *localPane, chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, chunk...)
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(p.pending[:idx], "\r")
		p.lines = append(p.lines, string(line))
		p.pending = p.pending[idx+1:]
		if len(p.lines) > defaultScrollbackLines {
			p.lines = p.lines[len(p.lines)-defaultScrollbackLines:]
		}
	}
	p.cursorY = uint64(len(p.lines))
	p.cursorX = uint64(len(p.pending))
}

func (h *Host) emitTabResized(tab tmuxcc.TabID, workspace string) {
	h.emit(tmuxcc.HostEvent{Kind: tmuxcc.EventTabResized, Tab: tab, Workspace: workspace})
}

func (h *Host) emit(ev tmuxcc.HostEvent) {
	h.eventsMu.Lock()
	subs := append([]chan tmuxcc.HostEvent(nil), h.eventSubs...)
	h.eventsMu.Unlock()
	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
			// Each subscriber channel is deep enough (256) that a full
			// buffer means a stuck or absent consumer; drop for that one
			// subscriber rather than block the host's control path or
			// let one slow reader stall every other subscriber.
		}
	}
}
