package tmuxcc

import "testing"

func TestTranslateWindowInvalidatedNeverSeenDoesNotFire(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxWindowID(5)
	state := NewNotifyState()
	ev := HostEvent{Kind: EventWindowInvalidated, MuxWindow: 1, Tab: 5}

	_, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if fired {
		t.Fatalf("expected no notification for a never-before-seen window")
	}
	if got := state.LastActiveTab[1]; got != 5 {
		t.Fatalf("expected last-active-tab recorded, got %v", got)
	}
}

func TestTranslateWindowInvalidatedFiresOnActualChange(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxWindowID(5)
	idMap.GetOrCreateTmuxWindowID(6)
	idMap.GetOrCreateTmuxSessionID("default")
	state := NewNotifyState()
	state.LastActiveTab[1] = 5

	ev := HostEvent{Kind: EventWindowInvalidated, MuxWindow: 1, Tab: 6}
	line, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if !fired {
		t.Fatalf("expected notification on tab change")
	}
	if want := "%session-window-changed $0 @1\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestTranslateWindowInvalidatedSameTabNoFire(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxWindowID(5)
	state := NewNotifyState()
	state.LastActiveTab[1] = 5

	ev := HostEvent{Kind: EventWindowInvalidated, MuxWindow: 1, Tab: 5}
	_, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if fired {
		t.Fatalf("expected no notification when the active tab did not change")
	}
}

func TestTranslateWindowInvalidatedSuppressed(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxWindowID(5)
	idMap.GetOrCreateTmuxWindowID(6)
	state := NewNotifyState()
	state.LastActiveTab[1] = 5
	state.SuppressWindowChanged = 1

	ev := HostEvent{Kind: EventWindowInvalidated, MuxWindow: 1, Tab: 6}
	_, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if fired {
		t.Fatalf("expected suppressed notification")
	}
	if state.SuppressWindowChanged != 0 {
		t.Fatalf("expected suppression counter decremented to 0, got %d", state.SuppressWindowChanged)
	}
}

func TestTranslatePaneFocused(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxWindowID(5)
	state := NewNotifyState()

	ev := HostEvent{Kind: EventPaneFocused, Tab: 5, Pane: 10}
	line, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if !fired {
		t.Fatalf("expected notification")
	}
	if want := "%window-pane-changed @0 %0\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestTranslateWorkspaceRenamed(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxSessionID("old")
	state := NewNotifyState()

	ev := HostEvent{Kind: EventWorkspaceRenamed, OldWorkspace: "old", Workspace: "new"}
	line, fired := TranslateNotification(ev, idMap, state, nil, "old")
	if !fired {
		t.Fatalf("expected notification")
	}
	if want := "%session-renamed $0 new\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestTranslateClipboardAssignedSetsBuffer(t *testing.T) {
	idMap := NewIdMap()
	state := NewNotifyState()
	bufs := NewPasteBufferStore()

	ev := HostEvent{Kind: EventClipboardAssigned, ClipboardText: "copied text"}
	line, fired := TranslateNotification(ev, idMap, state, bufs, "default")
	if !fired {
		t.Fatalf("expected notification")
	}
	if want := "%paste-buffer-changed buffer0\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
	buf, ok := bufs.Get("buffer0")
	if !ok || buf.Data != "copied text" {
		t.Fatalf("got %+v,%v", buf, ok)
	}
}

func TestTranslatePaneRemovedIsSilent(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxPaneID(10)
	state := NewNotifyState()

	ev := HostEvent{Kind: EventPaneRemoved, Pane: 10}
	_, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if fired {
		t.Fatalf("expected no wire notification")
	}
	if _, ok := idMap.TmuxPaneID(10); ok {
		t.Fatalf("expected mapping removed")
	}
}

func TestTranslateWindowCreatedNewWorkspace(t *testing.T) {
	idMap := NewIdMap()
	state := NewNotifyState()

	ev := HostEvent{Kind: EventWindowCreated, MuxWindow: 1, Workspace: "fresh"}
	line, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if !fired {
		t.Fatalf("expected notification for a new workspace")
	}
	if want := "%sessions-changed\n"; line != want {
		t.Fatalf("got %q want %q", line, want)
	}
}

func TestTranslateWindowCreatedExistingWorkspaceSilent(t *testing.T) {
	idMap := NewIdMap()
	idMap.GetOrCreateTmuxSessionID("default")
	state := NewNotifyState()

	ev := HostEvent{Kind: EventWindowCreated, MuxWindow: 1, Workspace: "default"}
	_, fired := TranslateNotification(ev, idMap, state, nil, "default")
	if fired {
		t.Fatalf("expected no notification for an already-known workspace")
	}
}
