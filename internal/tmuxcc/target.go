package tmuxcc

import (
	"strconv"
	"strings"
)

// SessionRef identifies a session by numeric tmux id or by workspace name.
type SessionRef struct {
	HasID bool
	ID    uint64
	Name  string
}

// WindowRef identifies a window by numeric tmux id, positional index, or
// title/name.
type WindowRef struct {
	Kind  WindowRefKind
	ID    uint64
	Index uint64
	Name  string
}

// WindowRefKind distinguishes the three WindowRef forms.
type WindowRefKind int

const (
	WindowRefID WindowRefKind = iota
	WindowRefIndex
	WindowRefName
)

// PaneRef identifies a pane by numeric tmux id or positional index.
type PaneRef struct {
	Kind  PaneRefKind
	ID    uint64
	Index uint64
}

// PaneRefKind distinguishes the two PaneRef forms.
type PaneRefKind int

const (
	PaneRefID PaneRefKind = iota
	PaneRefIndex
)

// Target is a parsed tmux -t string; each component is nil when absent,
// meaning "use the connection's current context" for that level.
type Target struct {
	Session *SessionRef
	Window  *WindowRef
	Pane    *PaneRef
}

// ParseTarget parses a tmux "[SESSION][:WINDOW][.PANE]" target string.
func ParseTarget(target string) (Target, error) {
	if target == "" {
		return Target{}, nil
	}

	if target[0] == '%' && !strings.ContainsAny(target, ":.") {
		id, err := parseIDNumber(target[1:])
		if err != nil {
			return Target{}, err
		}
		return Target{Pane: &PaneRef{Kind: PaneRefID, ID: id}}, nil
	}
	if target[0] == '@' && !strings.ContainsAny(target, ":.") {
		id, err := parseIDNumber(target[1:])
		if err != nil {
			return Target{}, err
		}
		return Target{Window: &WindowRef{Kind: WindowRefID, ID: id}}, nil
	}
	if target[0] == '$' && !strings.ContainsAny(target, ":.") {
		id, err := parseIDNumber(target[1:])
		if err != nil {
			return Target{}, err
		}
		return Target{Session: &SessionRef{HasID: true, ID: id}}, nil
	}

	var sessionPart string
	var windowPanePart string
	var havePart bool
	if colon := strings.IndexByte(target, ':'); colon >= 0 {
		sessionPart = target[:colon]
		windowPanePart = target[colon+1:]
		havePart = true
	} else {
		sessionPart = ""
		windowPanePart = target
		havePart = true
	}

	session, err := parseSessionRef(sessionPart)
	if err != nil {
		return Target{}, err
	}

	var window *WindowRef
	var pane *PaneRef
	if havePart && windowPanePart != "" {
		window, pane, err = parseWindowPane(windowPanePart)
		if err != nil {
			return Target{}, err
		}
	}

	return Target{Session: session, Window: window, Pane: pane}, nil
}

func parseSessionRef(s string) (*SessionRef, error) {
	if s == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(s, "$"); ok {
		id, err := parseIDNumber(rest)
		if err != nil {
			return nil, err
		}
		return &SessionRef{HasID: true, ID: id}, nil
	}
	// A bare number in the pre-colon session slot is always a name — tmux
	// never parses it numerically here. See SPEC_FULL.md §I.
	return &SessionRef{Name: s}, nil
}

func parseWindowPane(s string) (*WindowRef, *PaneRef, error) {
	if s == "" {
		return nil, nil, nil
	}
	windowPart := s
	var panePart string
	havePane := false
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		windowPart = s[:dot]
		panePart = s[dot+1:]
		havePane = true
	}

	window, err := parseWindowRef(windowPart)
	if err != nil {
		return nil, nil, err
	}

	var pane *PaneRef
	if havePane && panePart != "" {
		pane, err = parsePaneRef(panePart)
		if err != nil {
			return nil, nil, err
		}
	}
	return window, pane, nil
}

func parseWindowRef(s string) (*WindowRef, error) {
	if s == "" {
		return nil, nil
	}
	if rest, ok := strings.CutPrefix(s, "@"); ok {
		id, err := parseIDNumber(rest)
		if err != nil {
			return nil, err
		}
		return &WindowRef{Kind: WindowRefID, ID: id}, nil
	}
	if idx, err := strconv.ParseUint(s, 10, 64); err == nil {
		return &WindowRef{Kind: WindowRefIndex, Index: idx}, nil
	}
	return &WindowRef{Kind: WindowRefName, Name: s}, nil
}

func parsePaneRef(s string) (*PaneRef, error) {
	if rest, ok := strings.CutPrefix(s, "%"); ok {
		id, err := parseIDNumber(rest)
		if err != nil {
			return nil, err
		}
		return &PaneRef{Kind: PaneRefID, ID: id}, nil
	}
	if idx, err := strconv.ParseUint(s, 10, 64); err == nil {
		return &PaneRef{Kind: PaneRefIndex, Index: idx}, nil
	}
	return nil, newError(InvalidTarget, "invalid pane reference: %q", s)
}

func parseIDNumber(s string) (uint64, error) {
	if s == "" {
		return 0, newError(InvalidTarget, "expected a number after sigil")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, newError(InvalidTarget, "invalid numeric id: %q", s)
	}
	return n, nil
}
