package tmuxcc

import "context"

// Host is the narrow contract the protocol engine consumes from whatever
// real terminal-multiplexer backs a connection. Implementations must
// serialize all mutating calls onto a single goroutine (or provide
// equivalent serialization) — command handlers call Host from one
// host-control goroutine, but each connection's goroutine also calls it
// directly (handshake, output taps, host-event handling, subscription
// polling), so calls can arrive concurrently.
type Host interface {
	// Workspaces lists known workspace names in a stable order.
	Workspaces() []string
	// Tabs lists the tab ids belonging to a workspace, in stable order.
	Tabs(workspace string) []TabID
	// Panes lists the pane ids belonging to a tab, in stable order.
	Panes(tab TabID) []PaneID

	// PaneInfo reports a pane's current geometry, liveness, and cursor.
	PaneInfo(pane PaneID) (PaneInfo, error)
	// TabInfo reports a tab's index, current geometry, name, and whether it
	// is the active tab.
	TabInfo(tab TabID) (TabInfo, error)
	// WorkspaceOfTab returns the workspace a tab belongs to.
	WorkspaceOfTab(tab TabID) (string, error)
	// ActiveTab returns the active tab id within a workspace.
	ActiveTab(workspace string) (TabID, error)
	// ActivePane returns the active pane id within a tab.
	ActivePane(tab TabID) (PaneID, error)

	// ReadLines returns the pane's scrollback+viewport lines in
	// [startLine, endLine), addressed relative to the top of scrollback
	// (line 0 is the oldest retained line).
	ReadLines(pane PaneID, startLine, endLine int64) ([]string, error)

	// WriteBytes writes raw bytes to a pane, as if typed.
	WriteBytes(pane PaneID, data []byte) error

	// ResizeTab resizes a tab; either dimension may be
	// left unspecified (nil) to leave that axis unchanged.
	ResizeTab(tab TabID, cols, rows *int64) error

	// FocusPane makes pane (and its tab) active within its workspace.
	FocusPane(pane PaneID) error

	// RemovePane kills a pane.
	RemovePane(pane PaneID) error

	// SplitPane splits pane, returning the new pane's id. size is a
	// best-effort hint; horizontal selects a left/right split, vertical a
	// top/bottom split (tmux's -h/-v naming, which is the opposite sense
	// of most GUI split terminology).
	SplitPane(ctx context.Context, pane PaneID, horizontal bool, size SplitSize, spawnCommand string) (PaneID, error)

	// SpawnTab creates a new tab in workspace, optionally titled, and
	// returns its id and its single initial pane's id.
	SpawnTab(ctx context.Context, workspace, title string) (TabID, PaneID, error)

	// Events returns a channel that receives every host event emitted
	// after the call. Each call gets its own channel, so all connections
	// to the same host observe the same stream; each connection's notify
	// translator filters and reshapes it for that connection's
	// subscriptions.
	Events() <-chan HostEvent

	// RegisterOutputTap subscribes to a pane's output, delivered on a
	// bounded channel (capacity ~1024) the host blocks on briefly rather
	// than drops when full. Cancel via the returned function.
	RegisterOutputTap(pane PaneID) (<-chan PaneOutput, func())
}

// PaneInfo is a snapshot of a pane's geometry and cursor.
type PaneInfo struct {
	Index                  uint64
	Width, Height          uint64
	Left, Top              uint64
	Active                 bool
	Dead                   bool
	CursorX, CursorY       uint64
	HistoryLimit           uint64
	HistorySize            uint64
	PhysicalTop            int64
	ViewportRows           int64
}

// TabInfo is a snapshot of a tab's geometry and name.
type TabInfo struct {
	Index         uint64
	Width, Height uint64
	Name          string
	Active        bool
}

// PaneOutput is one chunk of raw output from a pane, timestamped at
// production time (unix milliseconds) for pause-age accounting.
type PaneOutput struct {
	Pane      PaneID
	Data      []byte
	TimestampMs int64
}

// HostEventKind enumerates the host notification types the notify
// translator understands.
type HostEventKind int

const (
	EventTabResized HostEventKind = iota
	EventTabAddedToWindow
	EventWindowCreated
	EventWindowRemoved
	EventPaneFocused
	EventTabTitleChanged
	EventPaneRemoved
	EventWorkspaceRenamed
	EventWindowInvalidated
	EventClipboardAssigned
)

// HostEvent is one event from a Host's Events stream. Only the fields
// relevant to Kind are populated.
type HostEvent struct {
	Kind HostEventKind

	Pane        PaneID
	Tab         TabID
	MuxWindow   MuxWindowID
	Workspace   string
	OldWorkspace string
	Title       string
	ClipboardText string
}
