package tmuxcc

import "testing"

func mustParseTarget(t *testing.T, s string) Target {
	t.Helper()
	tgt, err := ParseTarget(s)
	if err != nil {
		t.Fatalf("ParseTarget(%q) failed: %v", s, err)
	}
	return tgt
}

func TestParseTargetEmpty(t *testing.T) {
	tgt := mustParseTarget(t, "")
	if tgt.Session != nil || tgt.Window != nil || tgt.Pane != nil {
		t.Errorf("expected all-nil target, got %+v", tgt)
	}
}

func TestParseTargetBareSigils(t *testing.T) {
	tgt := mustParseTarget(t, "%5")
	if tgt.Pane == nil || tgt.Pane.Kind != PaneRefID || tgt.Pane.ID != 5 {
		t.Errorf("bare pane id: got %+v", tgt)
	}

	tgt = mustParseTarget(t, "@3")
	if tgt.Window == nil || tgt.Window.Kind != WindowRefID || tgt.Window.ID != 3 {
		t.Errorf("bare window id: got %+v", tgt)
	}

	tgt = mustParseTarget(t, "$2")
	if tgt.Session == nil || !tgt.Session.HasID || tgt.Session.ID != 2 {
		t.Errorf("bare session id: got %+v", tgt)
	}
}

func TestParseTargetFullWithIDs(t *testing.T) {
	tgt := mustParseTarget(t, "$0:@1.%2")
	if !tgt.Session.HasID || tgt.Session.ID != 0 {
		t.Errorf("session: got %+v", tgt.Session)
	}
	if tgt.Window.Kind != WindowRefID || tgt.Window.ID != 1 {
		t.Errorf("window: got %+v", tgt.Window)
	}
	if tgt.Pane.Kind != PaneRefID || tgt.Pane.ID != 2 {
		t.Errorf("pane: got %+v", tgt.Pane)
	}
}

func TestParseTargetSessionNameWithIndices(t *testing.T) {
	tgt := mustParseTarget(t, "mysession:0.1")
	if tgt.Session.HasID || tgt.Session.Name != "mysession" {
		t.Errorf("session: got %+v", tgt.Session)
	}
	if tgt.Window.Kind != WindowRefIndex || tgt.Window.Index != 0 {
		t.Errorf("window: got %+v", tgt.Window)
	}
	if tgt.Pane.Kind != PaneRefIndex || tgt.Pane.Index != 1 {
		t.Errorf("pane: got %+v", tgt.Pane)
	}
}

func TestParseTargetNoColonWindowDotPane(t *testing.T) {
	// Crucial edge case: no colon anywhere means the ENTIRE string is the
	// window.pane portion, even though it looks like it could be a bare
	// numeric session name.
	tgt := mustParseTarget(t, "0.0")
	if tgt.Session != nil {
		t.Errorf("expected no session, got %+v", tgt.Session)
	}
	if tgt.Window.Kind != WindowRefIndex || tgt.Window.Index != 0 {
		t.Errorf("window: got %+v", tgt.Window)
	}
	if tgt.Pane.Kind != PaneRefIndex || tgt.Pane.Index != 0 {
		t.Errorf("pane: got %+v", tgt.Pane)
	}
}

func TestParseTargetColonOnly(t *testing.T) {
	tgt := mustParseTarget(t, ":")
	if tgt.Session != nil || tgt.Window != nil || tgt.Pane != nil {
		t.Errorf("expected all-nil, got %+v", tgt)
	}
}

func TestParseTargetSessionNameOnlyWithColon(t *testing.T) {
	tgt := mustParseTarget(t, "mysession:")
	if tgt.Session.Name != "mysession" || tgt.Window != nil || tgt.Pane != nil {
		t.Errorf("got %+v", tgt)
	}
}

func TestParseTargetWindowIndexOnlyAfterColon(t *testing.T) {
	tgt := mustParseTarget(t, ":3")
	if tgt.Session != nil {
		t.Errorf("expected no session, got %+v", tgt.Session)
	}
	if tgt.Window.Kind != WindowRefIndex || tgt.Window.Index != 3 {
		t.Errorf("window: got %+v", tgt.Window)
	}
}

func TestParseTargetWindowNameWithPaneID(t *testing.T) {
	tgt := mustParseTarget(t, "mywin.%3")
	if tgt.Window.Kind != WindowRefName || tgt.Window.Name != "mywin" {
		t.Errorf("window: got %+v", tgt.Window)
	}
	if tgt.Pane.Kind != PaneRefID || tgt.Pane.ID != 3 {
		t.Errorf("pane: got %+v", tgt.Pane)
	}
}

func TestParseTargetInvalidCases(t *testing.T) {
	for _, s := range []string{":0.abc", "$abc", ":@abc", "%xyz"} {
		if _, err := ParseTarget(s); err == nil {
			t.Errorf("ParseTarget(%q) expected error, got none", s)
		}
	}
}

func TestParseTargetBarePaneZero(t *testing.T) {
	tgt := mustParseTarget(t, "%0")
	if tgt.Pane.Kind != PaneRefID || tgt.Pane.ID != 0 {
		t.Errorf("got %+v", tgt.Pane)
	}
}
