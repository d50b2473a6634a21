package tmuxcc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIdMapPaneCreateIdempotent(t *testing.T) {
	m := NewIdMap()
	if id := m.GetOrCreateTmuxPaneID(42); id != 0 {
		t.Fatalf("got %d want 0", id)
	}
	if id := m.GetOrCreateTmuxPaneID(42); id != 0 {
		t.Fatalf("idempotent call got %d want 0", id)
	}
	if id := m.GetOrCreateTmuxPaneID(99); id != 1 {
		t.Fatalf("got %d want 1", id)
	}
}

func TestIdMapPaneReverseAndForwardLookup(t *testing.T) {
	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(42)
	if id, ok := m.HostPaneID(0); !ok || id != 42 {
		t.Fatalf("got %d,%v want 42,true", id, ok)
	}
	if _, ok := m.HostPaneID(999); ok {
		t.Fatalf("expected not found")
	}
	if id, ok := m.TmuxPaneID(42); !ok || id != 0 {
		t.Fatalf("got %d,%v want 0,true", id, ok)
	}
}

func TestIdMapRemovePane(t *testing.T) {
	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(42)
	m.RemovePane(42)
	if _, ok := m.TmuxPaneID(42); ok {
		t.Fatalf("expected removed")
	}
	if _, ok := m.HostPaneID(0); ok {
		t.Fatalf("expected removed")
	}
	m.RemovePane(999) // must not panic
}

func TestIdMapIndependentIDSpaces(t *testing.T) {
	m := NewIdMap()
	if id := m.GetOrCreateTmuxPaneID(1); id != 0 {
		t.Fatalf("pane: got %d", id)
	}
	if id := m.GetOrCreateTmuxWindowID(1); id != 0 {
		t.Fatalf("window: got %d", id)
	}
	if id := m.GetOrCreateTmuxSessionID("s"); id != 0 {
		t.Fatalf("session: got %d", id)
	}
	if id := m.GetOrCreateTmuxPaneID(2); id != 1 {
		t.Fatalf("pane: got %d", id)
	}
	if id := m.GetOrCreateTmuxWindowID(2); id != 1 {
		t.Fatalf("window: got %d", id)
	}
	if id := m.GetOrCreateTmuxSessionID("t"); id != 1 {
		t.Fatalf("session: got %d", id)
	}
}

func TestIdMapRenameSession(t *testing.T) {
	m := NewIdMap()
	sid := m.GetOrCreateTmuxSessionID("old")
	if sid != 0 {
		t.Fatalf("got %d", sid)
	}
	got, ok := m.RenameSession("old", "new")
	if !ok || got != 0 {
		t.Fatalf("rename: got %d,%v", got, ok)
	}
	if _, ok := m.TmuxSessionID("old"); ok {
		t.Fatalf("old name should be gone")
	}
	if id, ok := m.TmuxSessionID("new"); !ok || id != 0 {
		t.Fatalf("new name: got %d,%v", id, ok)
	}
	if name, ok := m.WorkspaceName(0); !ok || name != "new" {
		t.Fatalf("got %q,%v", name, ok)
	}
}

func TestIdMapRenameSessionUnknown(t *testing.T) {
	m := NewIdMap()
	if _, ok := m.RenameSession("nonexistent", "new"); ok {
		t.Fatalf("expected not found")
	}
}

func TestIdMapRenameSessionUpdatesMuxWindowWorkspace(t *testing.T) {
	m := NewIdMap()
	m.GetOrCreateTmuxSessionID("old")
	m.TrackMuxWindowWorkspace(1, "old")
	m.TrackMuxWindowWorkspace(2, "old")
	m.RenameSession("old", "new")
	if ws, _ := m.MuxWindowWorkspace(1); ws != "new" {
		t.Fatalf("got %q", ws)
	}
	if ws, _ := m.MuxWindowWorkspace(2); ws != "new" {
		t.Fatalf("got %q", ws)
	}
}

func TestIdMapTrackAndRemoveMuxWindow(t *testing.T) {
	m := NewIdMap()
	m.TrackTabInWindow(1, 10, "default")
	m.TrackTabInWindow(1, 20, "default")
	tabs, ok := m.TabsInMuxWindow(1)
	if !ok || len(tabs) != 2 {
		t.Fatalf("got %v,%v", tabs, ok)
	}
	if ws, _ := m.MuxWindowWorkspace(1); ws != "default" {
		t.Fatalf("got %q", ws)
	}

	removed := m.RemoveMuxWindow(1)
	if len(removed) != 2 {
		t.Fatalf("got %v", removed)
	}
	if _, ok := m.TabsInMuxWindow(1); ok {
		t.Fatalf("expected removed")
	}
	if _, ok := m.MuxWindowWorkspace(1); ok {
		t.Fatalf("expected removed")
	}
}

func TestIdMapRemoveMuxWindowUnknown(t *testing.T) {
	m := NewIdMap()
	if removed := m.RemoveMuxWindow(999); len(removed) != 0 {
		t.Fatalf("got %v", removed)
	}
}

func TestIdMapPruneStalePreservesCounters(t *testing.T) {
	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(10) // %0
	m.GetOrCreateTmuxPaneID(20) // %1

	m.PruneStale(map[PaneID]struct{}{}, map[PaneID]struct{}{})

	if _, ok := m.TmuxPaneID(10); ok {
		t.Fatalf("expected pruned")
	}
	if _, ok := m.TmuxPaneID(20); ok {
		t.Fatalf("expected pruned")
	}

	// Counter must not reset: the next pane gets %2, not %0.
	if id := m.GetOrCreateTmuxPaneID(30); id != 2 {
		t.Fatalf("got %d want 2", id)
	}
}

func TestIdMapPruneStaleKeepsLive(t *testing.T) {
	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(10)
	m.GetOrCreateTmuxPaneID(20)
	m.GetOrCreateTmuxPaneID(30)

	m.PruneStale(map[PaneID]struct{}{20: {}}, map[PaneID]struct{}{})

	if _, ok := m.TmuxPaneID(10); ok {
		t.Fatalf("expected pruned")
	}
	if id, ok := m.TmuxPaneID(20); !ok || id != 1 {
		t.Fatalf("got %d,%v want 1,true", id, ok)
	}
	if _, ok := m.TmuxPaneID(30); ok {
		t.Fatalf("expected pruned")
	}
}

func TestIdMapSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	workspace := "myworkspace"

	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(42)
	m.GetOrCreateTmuxPaneID(99)
	m.GetOrCreateTmuxWindowID(7)
	m.GetOrCreateTmuxSessionID("myworkspace")

	m.Save(dir, workspace)

	loaded := LoadIdMap(dir, workspace)
	if id, ok := loaded.TmuxPaneID(42); !ok || id != 0 {
		t.Fatalf("got %d,%v", id, ok)
	}
	if id, ok := loaded.TmuxPaneID(99); !ok || id != 1 {
		t.Fatalf("got %d,%v", id, ok)
	}
	if id, ok := loaded.HostPaneID(0); !ok || id != 42 {
		t.Fatalf("got %d,%v", id, ok)
	}
	if id, ok := loaded.TmuxWindowID(7); !ok || id != 0 {
		t.Fatalf("got %d,%v", id, ok)
	}
	if id, ok := loaded.TmuxSessionID("myworkspace"); !ok || id != 0 {
		t.Fatalf("got %d,%v", id, ok)
	}

	// Counters preserved across round trip.
	if id := loaded.GetOrCreateTmuxPaneID(123); id != 2 {
		t.Fatalf("got %d want 2", id)
	}
}

func TestLoadIdMapNonexistentReturnsFresh(t *testing.T) {
	dir := t.TempDir()
	loaded := LoadIdMap(dir, "_nonexistent_workspace_")
	if _, ok := loaded.TmuxPaneID(0); ok {
		t.Fatalf("expected fresh map")
	}
}

func TestIdMapPathSanitizesWorkspaceName(t *testing.T) {
	dir := t.TempDir()
	path := idMapPath(dir, "my workspace/special:chars")
	filename := filepath.Base(path)
	if want := "tmux-id-map-my_workspace_special_chars.json"; filename != want {
		t.Fatalf("got %q want %q", filename, want)
	}
}

func TestIdMapSaveCreatesCacheDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	m := NewIdMap()
	m.GetOrCreateTmuxPaneID(1)
	m.Save(dir, "ws")
	if _, err := os.Stat(idMapPath(dir, "ws")); err != nil {
		t.Fatalf("expected saved file: %v", err)
	}
}
