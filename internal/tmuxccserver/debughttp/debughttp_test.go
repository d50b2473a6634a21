package debughttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
)

type stubHost struct {
	tabs     map[tmuxcc.TabID][]tmuxcc.PaneID
	paneInfo map[tmuxcc.PaneID]tmuxcc.PaneInfo
	events   chan tmuxcc.HostEvent
}

func newStubHost() *stubHost {
	return &stubHost{
		tabs:     map[tmuxcc.TabID][]tmuxcc.PaneID{10: {100}},
		paneInfo: map[tmuxcc.PaneID]tmuxcc.PaneInfo{100: {Width: 80, Height: 24, Active: true}},
		events:   make(chan tmuxcc.HostEvent, 4),
	}
}

func (h *stubHost) Workspaces() []string                      { return []string{"default"} }
func (h *stubHost) Tabs(ws string) []tmuxcc.TabID              { return []tmuxcc.TabID{10} }
func (h *stubHost) Panes(tab tmuxcc.TabID) []tmuxcc.PaneID     { return h.tabs[tab] }
func (h *stubHost) PaneInfo(p tmuxcc.PaneID) (tmuxcc.PaneInfo, error) {
	return h.paneInfo[p], nil
}
func (h *stubHost) TabInfo(t tmuxcc.TabID) (tmuxcc.TabInfo, error) {
	return tmuxcc.TabInfo{Width: 80, Height: 24, Active: true}, nil
}
func (h *stubHost) WorkspaceOfTab(t tmuxcc.TabID) (string, error)    { return "default", nil }
func (h *stubHost) ActiveTab(ws string) (tmuxcc.TabID, error)        { return 10, nil }
func (h *stubHost) ActivePane(t tmuxcc.TabID) (tmuxcc.PaneID, error) { return 100, nil }
func (h *stubHost) ReadLines(p tmuxcc.PaneID, start, end int64) ([]string, error) {
	return nil, nil
}
func (h *stubHost) WriteBytes(p tmuxcc.PaneID, data []byte) error { return nil }
func (h *stubHost) ResizeTab(t tmuxcc.TabID, cols, rows *int64) error { return nil }
func (h *stubHost) FocusPane(p tmuxcc.PaneID) error                   { return nil }
func (h *stubHost) RemovePane(p tmuxcc.PaneID) error                  { return nil }
func (h *stubHost) SplitPane(ctx context.Context, p tmuxcc.PaneID, horizontal bool, size tmuxcc.SplitSize, cmd string) (tmuxcc.PaneID, error) {
	return 0, nil
}
func (h *stubHost) SpawnTab(ctx context.Context, ws, title string) (tmuxcc.TabID, tmuxcc.PaneID, error) {
	return 0, 0, nil
}
func (h *stubHost) Events() <-chan tmuxcc.HostEvent { return h.events }
func (h *stubHost) RegisterOutputTap(p tmuxcc.PaneID) (<-chan tmuxcc.PaneOutput, func()) {
	ch := make(chan tmuxcc.PaneOutput)
	return ch, func() {}
}

func TestHandleSnapshotRequiresAuthWhenTokenSet(t *testing.T) {
	s := New(newStubHost(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/debug/snapshot", nil)
	rec := httptest.NewRecorder()
	s.handleSnapshot(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/debug/snapshot", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.handleSnapshot(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("authenticated request: got %d, want %d", rec2.Code, http.StatusOK)
	}

	var out []workspaceSnapshot
	if err := json.Unmarshal(rec2.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(out) != 1 || out[0].Workspace != "default" {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
	if len(out[0].Tabs) != 1 || len(out[0].Tabs[0].Panes) != 1 {
		t.Fatalf("expected one tab with one pane, got %+v", out[0].Tabs)
	}
}

func TestHandleSnapshotAllowsAnyRequestWhenNoTokenConfigured(t *testing.T) {
	s := New(newStubHost(), "")

	req := httptest.NewRequest(http.MethodGet, "/debug/snapshot", nil)
	rec := httptest.NewRecorder()
	s.handleSnapshot(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want %d when no token is configured", rec.Code, http.StatusOK)
	}
}

func TestHandleEventsRejectsInvalidFilterRegex(t *testing.T) {
	s := New(newStubHost(), "")

	req := httptest.NewRequest(http.MethodGet, "/debug/events?workspace-include=(", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d for invalid regex", rec.Code, http.StatusBadRequest)
	}
}
