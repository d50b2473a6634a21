package tmuxcc

import "strings"

// NotifyState is the per-connection bookkeeping the notification
// translator needs beyond the identity map: window-changed suppression,
// and the last-seen active tab per window (used to decide whether
// %session-window-changed actually represents a change).
type NotifyState struct {
	SuppressWindowChanged int
	LastActiveTab         map[MuxWindowID]TabID
}

// NewNotifyState returns a zeroed NotifyState.
func NewNotifyState() *NotifyState {
	return &NotifyState{LastActiveTab: make(map[MuxWindowID]TabID)}
}

// TranslateNotification converts one HostEvent into zero or more wire
// notification lines for this connection (several lines come back
// concatenated in one string), updating idMap/state/bufs as a side effect
// where the event implies a mapping change. Returns ("", false) when the
// event produces no wire notification.
func TranslateNotification(ev HostEvent, idMap *IdMap, state *NotifyState, bufs *PasteBufferStore, workspace string) (string, bool) {
	switch ev.Kind {
	case EventTabResized:
		tmuxWin, ok := idMap.TmuxWindowID(ev.Tab)
		if !ok {
			return "", false
		}
		// Layout regeneration is the caller's responsibility (it needs the
		// full pane tree); this only identifies which window changed.
		return LayoutChangeNotification(tmuxWin, ""), true

	case EventTabAddedToWindow:
		idMap.TrackTabInWindow(ev.MuxWindow, ev.Tab, ev.Workspace)
		tmuxWin := idMap.GetOrCreateTmuxWindowID(ev.Tab)
		return WindowAddNotification(tmuxWin), true

	case EventWindowCreated:
		_, hadSession := idMap.TmuxSessionID(ev.Workspace)
		idMap.TrackMuxWindowWorkspace(ev.MuxWindow, ev.Workspace)
		if hadSession {
			return "", false
		}
		return SessionsChangedNotification(), true

	case EventWindowRemoved:
		tabs := idMap.RemoveMuxWindow(ev.MuxWindow)
		var out strings.Builder
		for _, tab := range tabs {
			if tmuxWin, ok := idMap.TmuxWindowID(tab); ok {
				out.WriteString(WindowCloseNotification(tmuxWin))
			}
			idMap.RemoveWindow(tab)
		}
		if out.Len() == 0 {
			return "", false
		}
		if !idMap.WorkspaceHasMuxWindows(ev.Workspace) {
			out.WriteString(SessionsChangedNotification())
		}
		return out.String(), true

	case EventPaneFocused:
		tmuxWin, ok := idMap.TmuxWindowID(ev.Tab)
		if !ok {
			return "", false
		}
		tmuxPane := idMap.GetOrCreateTmuxPaneID(ev.Pane)
		return WindowPaneChangedNotification(tmuxWin, tmuxPane), true

	case EventTabTitleChanged:
		tmuxWin, ok := idMap.TmuxWindowID(ev.Tab)
		if !ok {
			return "", false
		}
		return WindowRenamedNotification(tmuxWin, ev.Title), true

	case EventPaneRemoved:
		idMap.RemovePane(ev.Pane)
		return "", false

	case EventWorkspaceRenamed:
		tmuxID, ok := idMap.RenameSession(ev.OldWorkspace, ev.Workspace)
		if !ok {
			return "", false
		}
		return SessionRenamedNotification(tmuxID, ev.Workspace), true

	case EventWindowInvalidated:
		if state.SuppressWindowChanged > 0 {
			state.SuppressWindowChanged--
			return "", false
		}
		prev, hadPrev := state.LastActiveTab[ev.MuxWindow]
		state.LastActiveTab[ev.MuxWindow] = ev.Tab
		if !hadPrev || prev == ev.Tab {
			return "", false
		}
		tmuxWin, ok := idMap.TmuxWindowID(ev.Tab)
		if !ok {
			return "", false
		}
		sessionID := idMap.GetOrCreateTmuxSessionID(workspace)
		return SessionWindowChangedNotification(sessionID, tmuxWin), true

	case EventClipboardAssigned:
		name := bufs.Set("", ev.ClipboardText)
		return PasteBufferChangedNotification(name), true

	default:
		return "", false
	}
}
