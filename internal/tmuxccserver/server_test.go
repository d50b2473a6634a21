package tmuxccserver

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxcc"
)

// stubHost is a minimal in-memory tmuxcc.Host used to exercise the
// connection loop without a real terminal multiplexer.
type stubHost struct {
	tabs     map[tmuxcc.TabID][]tmuxcc.PaneID
	paneInfo map[tmuxcc.PaneID]tmuxcc.PaneInfo
	events   chan tmuxcc.HostEvent
	written  map[tmuxcc.PaneID][]byte
}

func newStubHost() *stubHost {
	return &stubHost{
		tabs:     map[tmuxcc.TabID][]tmuxcc.PaneID{10: {100}},
		paneInfo: map[tmuxcc.PaneID]tmuxcc.PaneInfo{100: {Width: 80, Height: 24, ViewportRows: 24, Active: true}},
		events:   make(chan tmuxcc.HostEvent, 16),
		written:  make(map[tmuxcc.PaneID][]byte),
	}
}

func (h *stubHost) Workspaces() []string     { return []string{"default"} }
func (h *stubHost) Tabs(ws string) []tmuxcc.TabID {
	if ws != "default" {
		return nil
	}
	return []tmuxcc.TabID{10}
}
func (h *stubHost) Panes(tab tmuxcc.TabID) []tmuxcc.PaneID { return h.tabs[tab] }

func (h *stubHost) PaneInfo(p tmuxcc.PaneID) (tmuxcc.PaneInfo, error) { return h.paneInfo[p], nil }
func (h *stubHost) TabInfo(t tmuxcc.TabID) (tmuxcc.TabInfo, error) {
	return tmuxcc.TabInfo{Width: 80, Height: 24, Active: true}, nil
}
func (h *stubHost) WorkspaceOfTab(t tmuxcc.TabID) (string, error) { return "default", nil }
func (h *stubHost) ActiveTab(ws string) (tmuxcc.TabID, error)     { return 10, nil }
func (h *stubHost) ActivePane(t tmuxcc.TabID) (tmuxcc.PaneID, error) { return 100, nil }

func (h *stubHost) ReadLines(p tmuxcc.PaneID, start, end int64) ([]string, error) { return nil, nil }

func (h *stubHost) WriteBytes(p tmuxcc.PaneID, data []byte) error {
	h.written[p] = append(h.written[p], data...)
	return nil
}

func (h *stubHost) ResizeTab(t tmuxcc.TabID, cols, rows *int64) error { return nil }
func (h *stubHost) FocusPane(p tmuxcc.PaneID) error                   { return nil }
func (h *stubHost) RemovePane(p tmuxcc.PaneID) error                  { return nil }

func (h *stubHost) SplitPane(ctx context.Context, p tmuxcc.PaneID, horizontal bool, size tmuxcc.SplitSize, cmd string) (tmuxcc.PaneID, error) {
	return 101, nil
}

func (h *stubHost) SpawnTab(ctx context.Context, ws, title string) (tmuxcc.TabID, tmuxcc.PaneID, error) {
	return 11, 102, nil
}

func (h *stubHost) Events() <-chan tmuxcc.HostEvent { return h.events }

func (h *stubHost) RegisterOutputTap(p tmuxcc.PaneID) (<-chan tmuxcc.PaneOutput, func()) {
	ch := make(chan tmuxcc.PaneOutput, 8)
	return ch, func() {}
}

func TestHandshakeEmitsGuardBlockAndWindowAdd(t *testing.T) {
	host := newStubHost()
	s := New(host, "default", t.TempDir(), 0)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.handleConn(ctx, serverConn)

	r := bufio.NewReader(clientConn)
	want := []string{
		"%begin ",
		"%end ",
		"%session-changed $0 default",
		"%window-add @0",
	}
	for _, w := range want {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read handshake line: %v", err)
		}
		if !strings.HasPrefix(line, w) {
			t.Fatalf("got %q, want prefix %q", line, w)
		}
	}
}

func TestHandleLineRoundTripsListSessions(t *testing.T) {
	host := newStubHost()
	s := New(host, "default", t.TempDir(), 0)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.handleConn(ctx, serverConn)

	r := bufio.NewReader(clientConn)
	// Drain the four handshake lines.
	for i := 0; i < 4; i++ {
		if _, err := r.ReadString('\n'); err != nil {
			t.Fatalf("drain handshake: %v", err)
		}
	}

	clientConn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := clientConn.Write([]byte("list-sessions\n")); err != nil {
		t.Fatalf("write command: %v", err)
	}

	begin, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read %%begin: %v", err)
	}
	if !strings.HasPrefix(begin, "%begin ") {
		t.Fatalf("got %q, want %%begin prefix", begin)
	}
	body, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(body, "default") {
		t.Fatalf("expected session name in body, got %q", body)
	}
	end, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read %%end: %v", err)
	}
	if !strings.HasPrefix(end, "%end ") {
		t.Fatalf("got %q, want %%end prefix", end)
	}
}

func TestListenUnixSocketThenFallbackToTCP(t *testing.T) {
	dir := t.TempDir()
	ln, addr, err := Listen(dir, "my workspace")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	if !strings.Contains(addr, "my_workspace") {
		t.Fatalf("expected sanitized workspace name in address, got %q", addr)
	}

	ln2, addr2, err := Listen("", "default")
	if err != nil {
		t.Fatalf("Listen (tcp fallback): %v", err)
	}
	defer ln2.Close()
	if !strings.HasPrefix(addr2, "tcp:127.0.0.1:") {
		t.Fatalf("got %q, want tcp:127.0.0.1:<port>", addr2)
	}
}
