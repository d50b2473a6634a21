package tmuxcc

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PaneID, TabID and MuxWindowID are the host's own identifiers for panes,
// tabs, and windows, as distinct from the tmux-side %N/@N/$N ids this
// package hands out.
type PaneID = uint64
type TabID = uint64
type MuxWindowID = uint64

// IdMap is the bidirectional mapping between host ids and tmux ids. tmux
// ids are assigned on first sight, monotonically increasing and never
// reused even after the underlying pane/tab/session dies — a client that
// cached %5 before a restart must never see %5 mean something else.
type IdMap struct {
	mu sync.Mutex

	hostToTmuxPane map[PaneID]uint64
	tmuxToHostPane map[uint64]PaneID
	nextPaneID     uint64

	hostToTmuxWindow map[TabID]uint64
	tmuxToHostWindow map[uint64]TabID
	nextWindowID     uint64

	workspaceToTmuxSession map[string]uint64
	tmuxToWorkspace        map[uint64]string
	nextSessionID          uint64

	muxWindowTabs      map[MuxWindowID]map[TabID]struct{}
	muxWindowWorkspace map[MuxWindowID]string
}

// NewIdMap returns an empty IdMap.
func NewIdMap() *IdMap {
	return &IdMap{
		hostToTmuxPane:         make(map[PaneID]uint64),
		tmuxToHostPane:         make(map[uint64]PaneID),
		hostToTmuxWindow:       make(map[TabID]uint64),
		tmuxToHostWindow:       make(map[uint64]TabID),
		workspaceToTmuxSession: make(map[string]uint64),
		tmuxToWorkspace:        make(map[uint64]string),
		muxWindowTabs:          make(map[MuxWindowID]map[TabID]struct{}),
		muxWindowWorkspace:     make(map[MuxWindowID]string),
	}
}

// --- Pane ID mappings ---

// GetOrCreateTmuxPaneID returns the tmux pane id for a host pane,
// allocating one on first use.
func (m *IdMap) GetOrCreateTmuxPaneID(hostID PaneID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.hostToTmuxPane[hostID]; ok {
		return id
	}
	id := m.nextPaneID
	m.nextPaneID++
	m.hostToTmuxPane[hostID] = id
	m.tmuxToHostPane[id] = hostID
	return id
}

// HostPaneID looks up the host pane id for a tmux pane id.
func (m *IdMap) HostPaneID(tmuxID uint64) (PaneID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tmuxToHostPane[tmuxID]
	return id, ok
}

// TmuxPaneID looks up the tmux pane id for a host pane id, without
// allocating one.
func (m *IdMap) TmuxPaneID(hostID PaneID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.hostToTmuxPane[hostID]
	return id, ok
}

// RemovePane deletes a pane mapping by host pane id.
func (m *IdMap) RemovePane(hostID PaneID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tmuxID, ok := m.hostToTmuxPane[hostID]; ok {
		delete(m.hostToTmuxPane, hostID)
		delete(m.tmuxToHostPane, tmuxID)
	}
}

// --- Tab/window ID mappings ---

// GetOrCreateTmuxWindowID returns the tmux window id for a host tab,
// allocating one on first use.
func (m *IdMap) GetOrCreateTmuxWindowID(hostID TabID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.hostToTmuxWindow[hostID]; ok {
		return id
	}
	id := m.nextWindowID
	m.nextWindowID++
	m.hostToTmuxWindow[hostID] = id
	m.tmuxToHostWindow[id] = hostID
	return id
}

// HostTabID looks up the host tab id for a tmux window id.
func (m *IdMap) HostTabID(tmuxID uint64) (TabID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tmuxToHostWindow[tmuxID]
	return id, ok
}

// TmuxWindowID looks up the tmux window id for a host tab id, without
// allocating one.
func (m *IdMap) TmuxWindowID(hostID TabID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.hostToTmuxWindow[hostID]
	return id, ok
}

// RemoveWindow deletes a window mapping by host tab id.
func (m *IdMap) RemoveWindow(hostID TabID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tmuxID, ok := m.hostToTmuxWindow[hostID]; ok {
		delete(m.hostToTmuxWindow, hostID)
		delete(m.tmuxToHostWindow, tmuxID)
	}
}

// --- Workspace/session mappings ---

// GetOrCreateTmuxSessionID returns the tmux session id for a workspace
// name, allocating one on first use.
func (m *IdMap) GetOrCreateTmuxSessionID(workspace string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.workspaceToTmuxSession[workspace]; ok {
		return id
	}
	id := m.nextSessionID
	m.nextSessionID++
	m.workspaceToTmuxSession[workspace] = id
	m.tmuxToWorkspace[id] = workspace
	return id
}

// WorkspaceName looks up a workspace name for a tmux session id.
func (m *IdMap) WorkspaceName(tmuxID uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.tmuxToWorkspace[tmuxID]
	return name, ok
}

// TmuxSessionID looks up the tmux session id for a workspace name,
// without allocating one.
func (m *IdMap) TmuxSessionID(workspace string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.workspaceToTmuxSession[workspace]
	return id, ok
}

// RemoveSession deletes a session mapping by workspace name.
func (m *IdMap) RemoveSession(workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tmuxID, ok := m.workspaceToTmuxSession[workspace]; ok {
		delete(m.workspaceToTmuxSession, workspace)
		delete(m.tmuxToWorkspace, tmuxID)
	}
}

// RenameSession re-keys the workspace mapping, preserving the tmux
// session id, and rewrites any mux-window-workspace entries that
// referenced the old name. Reports whether oldWorkspace was known.
func (m *IdMap) RenameSession(oldWorkspace, newWorkspace string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tmuxID, ok := m.workspaceToTmuxSession[oldWorkspace]
	if !ok {
		return 0, false
	}
	delete(m.workspaceToTmuxSession, oldWorkspace)
	m.workspaceToTmuxSession[newWorkspace] = tmuxID
	m.tmuxToWorkspace[tmuxID] = newWorkspace
	for id, ws := range m.muxWindowWorkspace {
		if ws == oldWorkspace {
			m.muxWindowWorkspace[id] = newWorkspace
		}
	}
	return tmuxID, true
}

// --- Mux window tracking (for %window-close and %sessions-changed) ---

// TrackTabInWindow records that a tab belongs to a mux window in a given
// workspace.
func (m *IdMap) TrackTabInWindow(muxWindowID MuxWindowID, tabID TabID, workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs, ok := m.muxWindowTabs[muxWindowID]
	if !ok {
		tabs = make(map[TabID]struct{})
		m.muxWindowTabs[muxWindowID] = tabs
	}
	tabs[tabID] = struct{}{}
	if _, ok := m.muxWindowWorkspace[muxWindowID]; !ok {
		m.muxWindowWorkspace[muxWindowID] = workspace
	}
}

// TrackMuxWindowWorkspace records a mux window's workspace, called when
// the window is first created.
func (m *IdMap) TrackMuxWindowWorkspace(muxWindowID MuxWindowID, workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muxWindowWorkspace[muxWindowID] = workspace
}

// MuxWindowWorkspace returns the workspace name tracked for a mux window.
func (m *IdMap) MuxWindowWorkspace(muxWindowID MuxWindowID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.muxWindowWorkspace[muxWindowID]
	return ws, ok
}

// TabsInMuxWindow returns the tab ids tracked for a mux window.
func (m *IdMap) TabsInMuxWindow(muxWindowID MuxWindowID) ([]TabID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs, ok := m.muxWindowTabs[muxWindowID]
	if !ok {
		return nil, false
	}
	out := make([]TabID, 0, len(tabs))
	for id := range tabs {
		out = append(out, id)
	}
	return out, true
}

// RemoveMuxWindow clears all tracking for a mux window, returning the
// tab ids that were in it.
func (m *IdMap) RemoveMuxWindow(muxWindowID MuxWindowID) []TabID {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.muxWindowWorkspace, muxWindowID)
	tabs, ok := m.muxWindowTabs[muxWindowID]
	delete(m.muxWindowTabs, muxWindowID)
	if !ok {
		return nil
	}
	out := make([]TabID, 0, len(tabs))
	for id := range tabs {
		out = append(out, id)
	}
	return out
}

// WorkspaceHasMuxWindows reports whether any mux window is still tracked
// for the given workspace, used to decide whether a window removal also
// empties out the session.
func (m *IdMap) WorkspaceHasMuxWindows(workspace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.muxWindowWorkspace {
		if ws == workspace {
			return true
		}
	}
	return false
}

// --- Pruning ---

// PruneStale removes mappings that reference host pane/tab ids no longer
// present in the host, without resetting the allocation counters — a
// pruned id must never be handed out again.
func (m *IdMap) PruneStale(livePanes, liveTabs map[PaneID]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hostID, tmuxID := range m.hostToTmuxPane {
		if _, ok := livePanes[hostID]; !ok {
			delete(m.hostToTmuxPane, hostID)
			delete(m.tmuxToHostPane, tmuxID)
		}
	}
	for hostID, tmuxID := range m.hostToTmuxWindow {
		if _, ok := liveTabs[hostID]; !ok {
			delete(m.hostToTmuxWindow, hostID)
			delete(m.tmuxToHostWindow, tmuxID)
		}
	}
}

// --- Persistence ---

type idMapSnapshot struct {
	PaneMappings    [][2]uint64         `json:"pane_mappings"`
	WindowMappings  [][2]uint64         `json:"window_mappings"`
	SessionMappings []sessionMappingRow `json:"session_mappings"`
	NextPaneID      uint64              `json:"next_pane_id"`
	NextWindowID    uint64              `json:"next_window_id"`
	NextSessionID   uint64              `json:"next_session_id"`
}

// sessionMappingRow persists as a ["workspace", tmux_id] ordered pair, the
// same shape pane_mappings/window_mappings use, rather than a keyed object.
type sessionMappingRow struct {
	Workspace string
	TmuxID    uint64
}

func (r sessionMappingRow) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{r.Workspace, r.TmuxID})
}

func (r *sessionMappingRow) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &r.Workspace); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &r.TmuxID)
}

// Save writes the current mappings to disk for the given workspace under
// cacheDir. Errors are logged but not propagated — persistence is
// best-effort, matching the teacher's own cache-write sites.
func (m *IdMap) Save(cacheDir, workspace string) {
	m.mu.Lock()
	snap := idMapSnapshot{
		NextPaneID:    m.nextPaneID,
		NextWindowID:  m.nextWindowID,
		NextSessionID: m.nextSessionID,
	}
	for wez, tmux := range m.hostToTmuxPane {
		snap.PaneMappings = append(snap.PaneMappings, [2]uint64{wez, tmux})
	}
	for wez, tmux := range m.hostToTmuxWindow {
		snap.WindowMappings = append(snap.WindowMappings, [2]uint64{wez, tmux})
	}
	for ws, tmux := range m.workspaceToTmuxSession {
		snap.SessionMappings = append(snap.SessionMappings, sessionMappingRow{Workspace: ws, TmuxID: tmux})
	}
	m.mu.Unlock()

	path := idMapPath(cacheDir, workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("tmuxcc: id-map: failed to create cache dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("tmuxcc: id-map: failed to serialize: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("tmuxcc: id-map: failed to write %s: %v", path, err)
	}
}

// LoadIdMap loads previously saved mappings for the given workspace, or
// returns a fresh IdMap if the file doesn't exist or can't be parsed.
func LoadIdMap(cacheDir, workspace string) *IdMap {
	path := idMapPath(cacheDir, workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		return NewIdMap()
	}
	var snap idMapSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("tmuxcc: id-map: failed to parse %s: %v", path, err)
		return NewIdMap()
	}

	m := NewIdMap()
	for _, row := range snap.PaneMappings {
		m.hostToTmuxPane[row[0]] = row[1]
		m.tmuxToHostPane[row[1]] = row[0]
	}
	for _, row := range snap.WindowMappings {
		m.hostToTmuxWindow[row[0]] = row[1]
		m.tmuxToHostWindow[row[1]] = row[0]
	}
	for _, row := range snap.SessionMappings {
		m.tmuxToWorkspace[row.TmuxID] = row.Workspace
		m.workspaceToTmuxSession[row.Workspace] = row.TmuxID
	}
	m.nextPaneID = snap.NextPaneID
	m.nextWindowID = snap.NextWindowID
	m.nextSessionID = snap.NextSessionID
	return m
}

// idMapPath computes the persistence path for a workspace's id map,
// sanitizing the workspace name for use as a filename.
func idMapPath(cacheDir, workspace string) string {
	var safe strings.Builder
	for _, r := range workspace {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			safe.WriteRune(r)
		} else {
			safe.WriteByte('_')
		}
	}
	return filepath.Join(cacheDir, "tmux-id-map-"+safe.String()+".json")
}
