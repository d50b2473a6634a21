package tmuxcc

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HandlerContext is the resolved state a connection carries between
// commands: the identity map, the host it drives, and cursors onto the
// connection's current session/window/pane.
type HandlerContext struct {
	IDMap     *IdMap
	Host      Host
	Workspace string

	ActivePaneID   uint64
	HaveActivePane bool
	ActiveWindowID uint64
	HaveActiveWin  bool
	ActiveSessID   uint64
	HaveActiveSess bool
}

// NewHandlerContext returns a HandlerContext bound to a single workspace.
func NewHandlerContext(idMap *IdMap, host Host, workspace string) *HandlerContext {
	return &HandlerContext{IDMap: idMap, Host: host, Workspace: workspace}
}

// resolvedTarget is the host-space result of resolving a Target.
type resolvedTarget struct {
	pane      PaneID
	havePane  bool
	tab       TabID
	haveTab   bool
	workspace string
	haveWS    bool
}

// ResolveTarget implements the four-step session→workspace, window→tab,
// pane resolution algorithm: an absent component falls back to the
// connection's active cursor for that level; a present id ($N, @N, %N) is
// looked up through the identity map and must already be known, a session
// name must be one of the host's workspaces, and a window index or name
// and a pane index are looked up in the host's own lists.
func (c *HandlerContext) ResolveTarget(t Target) (resolvedTarget, error) {
	var r resolvedTarget

	// Step 1: session -> workspace.
	switch {
	case t.Session == nil:
		if c.HaveActiveSess {
			ws, ok := c.IDMap.WorkspaceName(c.ActiveSessID)
			if ok {
				r.workspace, r.haveWS = ws, true
			}
		} else {
			r.workspace, r.haveWS = c.Workspace, true
		}
	case t.Session.HasID:
		ws, ok := c.IDMap.WorkspaceName(t.Session.ID)
		if !ok {
			return r, newError(NotFound, "no such session: $%d", t.Session.ID)
		}
		r.workspace, r.haveWS = ws, true
	default:
		found := false
		for _, ws := range c.Host.Workspaces() {
			if ws == t.Session.Name {
				found = true
				break
			}
		}
		if !found {
			return r, newError(NotFound, "no such session: %s", t.Session.Name)
		}
		r.workspace, r.haveWS = t.Session.Name, true
	}

	// Step 2: window -> tab.
	switch {
	case t.Window == nil:
		if c.HaveActiveWin {
			tab, ok := c.IDMap.HostTabID(c.ActiveWindowID)
			if ok {
				r.tab, r.haveTab = tab, true
			}
		} else if r.haveWS {
			tab, err := c.Host.ActiveTab(r.workspace)
			if err == nil {
				r.tab, r.haveTab = tab, true
			}
		}
	case t.Window.Kind == WindowRefID:
		tab, ok := c.IDMap.HostTabID(t.Window.ID)
		if !ok {
			return r, newError(NotFound, "no such window: @%d", t.Window.ID)
		}
		r.tab, r.haveTab = tab, true
	case t.Window.Kind == WindowRefIndex:
		tab, err := c.findTabByIndex(r.workspace, t.Window.Index)
		if err != nil {
			return r, err
		}
		r.tab, r.haveTab = tab, true
	default: // WindowRefName
		tab, err := c.findTabByName(r.workspace, t.Window.Name)
		if err != nil {
			return r, err
		}
		r.tab, r.haveTab = tab, true
	}

	// Step 3: pane.
	switch {
	case t.Pane == nil:
		if c.HaveActivePane {
			pane, ok := c.IDMap.HostPaneID(c.ActivePaneID)
			if ok {
				r.pane, r.havePane = pane, true
			}
		} else if r.haveTab {
			pane, err := c.Host.ActivePane(r.tab)
			if err == nil {
				r.pane, r.havePane = pane, true
			}
		}
	case t.Pane.Kind == PaneRefID:
		pane, ok := c.IDMap.HostPaneID(t.Pane.ID)
		if !ok {
			return r, newError(NotFound, "no such pane: %%%d", t.Pane.ID)
		}
		r.pane, r.havePane = pane, true
	default: // PaneRefIndex
		if !r.haveTab {
			return r, newError(NotFound, "no window to resolve pane index against")
		}
		panes := c.Host.Panes(r.tab)
		if int(t.Pane.Index) >= len(panes) {
			return r, newError(NotFound, "no such pane index: %d", t.Pane.Index)
		}
		r.pane, r.havePane = panes[t.Pane.Index], true
	}

	return r, nil
}

func (c *HandlerContext) findTabByIndex(workspace string, index uint64) (TabID, error) {
	tabs := c.Host.Tabs(workspace)
	if int(index) >= len(tabs) {
		return 0, newError(NotFound, "no such window index: %d", index)
	}
	return tabs[index], nil
}

func (c *HandlerContext) findTabByName(workspace, name string) (TabID, error) {
	for _, tab := range c.Host.Tabs(workspace) {
		info, err := c.Host.TabInfo(tab)
		if err == nil && info.Name == name {
			return tab, nil
		}
	}
	return 0, newError(NotFound, "no such window: %s", name)
}

// ResolveNamedKey maps a tmux named key (Enter, Space, C-a, F1, ...) to
// its raw byte sequence.
func ResolveNamedKey(name string) ([]byte, bool) {
	switch name {
	case "Enter", "CR":
		return []byte{'\r'}, true
	case "Space":
		return []byte{' '}, true
	case "Tab":
		return []byte{'\t'}, true
	case "BTab":
		return []byte{'\t'}, true
	case "Escape":
		return []byte{0x1b}, true
	case "BSpace":
		return []byte{0x7f}, true
	case "Up":
		return []byte{0x1b, '[', 'A'}, true
	case "Down":
		return []byte{0x1b, '[', 'B'}, true
	case "Right":
		return []byte{0x1b, '[', 'C'}, true
	case "Left":
		return []byte{0x1b, '[', 'D'}, true
	case "Home":
		return []byte{0x1b, '[', 'H'}, true
	case "End":
		return []byte{0x1b, '[', 'F'}, true
	case "Insert", "IC":
		return []byte{0x1b, '[', '2', '~'}, true
	case "Delete", "DC":
		return []byte{0x1b, '[', '3', '~'}, true
	case "PageUp", "PgUp", "PPage":
		return []byte{0x1b, '[', '5', '~'}, true
	case "PageDown", "PgDn", "NPage":
		return []byte{0x1b, '[', '6', '~'}, true
	case "F1":
		return []byte{0x1b, 'O', 'P'}, true
	case "F2":
		return []byte{0x1b, 'O', 'Q'}, true
	case "F3":
		return []byte{0x1b, 'O', 'R'}, true
	case "F4":
		return []byte{0x1b, 'O', 'S'}, true
	case "F5":
		return []byte{0x1b, '[', '1', '5', '~'}, true
	case "F6":
		return []byte{0x1b, '[', '1', '7', '~'}, true
	case "F7":
		return []byte{0x1b, '[', '1', '8', '~'}, true
	case "F8":
		return []byte{0x1b, '[', '1', '9', '~'}, true
	case "F9":
		return []byte{0x1b, '[', '2', '0', '~'}, true
	case "F10":
		return []byte{0x1b, '[', '2', '1', '~'}, true
	case "F11":
		return []byte{0x1b, '[', '2', '3', '~'}, true
	case "F12":
		return []byte{0x1b, '[', '2', '4', '~'}, true
	}
	if len(name) == 3 && strings.HasPrefix(name, "C-") {
		c := name[2]
		if c >= 'a' && c <= 'z' {
			return []byte{c - 'a' + 1}, true
		}
	}
	return nil, false
}

// ResolveKey resolves one send-keys argument to raw bytes: hex mode
// parses a (possibly "0x"-prefixed) hex byte; literal mode passes UTF-8
// bytes through; otherwise a named-key lookup is tried first, falling
// back to literal bytes.
func ResolveKey(key string, literal, hex bool) ([]byte, error) {
	if hex {
		s := strings.TrimPrefix(key, "0x")
		n, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return nil, newError(InvalidNumber, "invalid hex key: %q", key)
		}
		return []byte{byte(n)}, nil
	}
	if literal {
		return []byte(key), nil
	}
	if bytes, ok := ResolveNamedKey(key); ok {
		return bytes, nil
	}
	return []byte(key), nil
}

// BuildFormatContext constructs a FormatContext describing pane at the
// given target resolution. The pane/tab/workspace tmux ids come from the
// identity map, allocating any not yet seen.
func (c *HandlerContext) BuildFormatContext(pane PaneID, tab TabID, workspace string) (FormatContext, error) {
	info, err := c.Host.PaneInfo(pane)
	if err != nil {
		return FormatContext{}, newError(HostOperationFailed, "pane info: %v", err)
	}
	tabInfo, err := c.Host.TabInfo(tab)
	if err != nil {
		return FormatContext{}, newError(HostOperationFailed, "tab info: %v", err)
	}

	ctx := FormatContext{
		PaneID:       c.IDMap.GetOrCreateTmuxPaneID(pane),
		PaneIndex:    info.Index,
		PaneWidth:    info.Width,
		PaneHeight:   info.Height,
		PaneLeft:     info.Left,
		PaneTop:      info.Top,
		PaneActive:   info.Active,
		PaneDead:     info.Dead,
		WindowID:     c.IDMap.GetOrCreateTmuxWindowID(tab),
		WindowIndex:  tabInfo.Index,
		WindowWidth:  tabInfo.Width,
		WindowHeight: tabInfo.Height,
		WindowName:   tabInfo.Name,
		WindowActive: tabInfo.Active,
		SessionID:    c.IDMap.GetOrCreateTmuxSessionID(workspace),
		SessionName:  workspace,
		CursorX:      info.CursorX,
		CursorY:      info.CursorY,
		HistoryLimit: info.HistoryLimit,
		HistorySize:  info.HistorySize,
	}
	return ctx, nil
}

// Dispatch executes a parsed command against the handler context and
// returns the text to place in the response's guard block body.
func (c *HandlerContext) Dispatch(ctx context.Context, cmd Command, bufs *PasteBufferStore, sampler BufferSampler) (string, error) {
	switch cmd.Verb {
	case VerbListCommands:
		return c.handleListCommands(), nil
	case VerbHasSession:
		return c.handleHasSession(cmd.HasSession)
	case VerbListPanes:
		return c.handleListPanes(cmd.ListPanes, sampler)
	case VerbListWindows:
		return c.handleListWindows(cmd.ListWindows, sampler)
	case VerbListSessions:
		return c.handleListSessions(cmd.ListSessions, sampler)
	case VerbDisplayMessage:
		return c.handleDisplayMessage(cmd.DisplayMsg, sampler)
	case VerbCapturePane:
		return c.handleCapturePane(cmd.CapturePane)
	case VerbSendKeys:
		return "", c.handleSendKeys(cmd.SendKeys)
	case VerbSelectPane:
		return "", c.handleSelectPane(cmd.SelectPane)
	case VerbSelectWindow:
		return "", c.handleSelectWindow(cmd.SelectWindow)
	case VerbKillPane:
		return "", c.handleKillPane(cmd.KillPane)
	case VerbResizePane:
		return "", c.handleResizePane(cmd.ResizePane)
	case VerbResizeWindow:
		return "", c.handleResizeWindow(cmd.ResizeWindow)
	case VerbRefreshClient:
		return "", c.handleRefreshClient(cmd.RefreshClient)
	case VerbSplitWindow:
		return c.handleSplitWindow(ctx, cmd.SplitWindow)
	case VerbNewWindow:
		return c.handleNewWindow(ctx, cmd.NewWindow)
	default:
		return "", newError(UnknownCommand, "unhandled verb")
	}
}

func (c *HandlerContext) handleListCommands() string {
	names := []string{
		"split-window", "send-keys", "capture-pane", "list-panes",
		"list-windows", "list-sessions", "new-window", "select-window",
		"select-pane", "kill-pane", "resize-pane", "resize-window",
		"refresh-client", "display-message", "has-session", "list-commands",
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (c *HandlerContext) handleHasSession(cmd *HasSessionCmd) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	if _, err := c.ResolveTarget(t); err != nil {
		return "", newError(NotFound, "can't find session: %s", cmd.Target)
	}
	return "", nil
}

func (c *HandlerContext) handleListPanes(cmd *ListPanesCmd, sampler BufferSampler) (string, error) {
	var lines []string
	collect := func(tab TabID, workspace string) error {
		for _, pane := range c.Host.Panes(tab) {
			ctx, err := c.BuildFormatContext(pane, tab, workspace)
			if err != nil {
				return err
			}
			lines = append(lines, ExpandFormat(cmd.Format, ctx, sampler))
		}
		return nil
	}

	if cmd.All {
		for _, ws := range c.Host.Workspaces() {
			for _, tab := range c.Host.Tabs(ws) {
				if err := collect(tab, ws); err != nil {
					return "", err
				}
			}
		}
		return strings.Join(lines, "\n"), nil
	}

	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return "", err
	}
	workspace := r.workspace
	if workspace == "" {
		workspace = c.Workspace
	}
	if cmd.Sessions {
		for _, tab := range c.Host.Tabs(workspace) {
			if err := collect(tab, workspace); err != nil {
				return "", err
			}
		}
		return strings.Join(lines, "\n"), nil
	}
	if !r.haveTab {
		return "", newError(NotFound, "no window to list panes for")
	}
	if err := collect(r.tab, workspace); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (c *HandlerContext) handleListWindows(cmd *ListWindowsCmd, sampler BufferSampler) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return "", err
	}
	workspace := r.workspace
	if workspace == "" {
		workspace = c.Workspace
	}

	var lines []string
	for _, tab := range c.Host.Tabs(workspace) {
		panes := c.Host.Panes(tab)
		if len(panes) == 0 {
			tabInfo, err := c.Host.TabInfo(tab)
			if err != nil {
				continue
			}
			ctx := FormatContext{
				WindowID:     c.IDMap.GetOrCreateTmuxWindowID(tab),
				WindowIndex:  tabInfo.Index,
				WindowName:   tabInfo.Name,
				WindowActive: tabInfo.Active,
				WindowWidth:  tabInfo.Width,
				WindowHeight: tabInfo.Height,
				SessionID:    c.IDMap.GetOrCreateTmuxSessionID(workspace),
				SessionName:  workspace,
			}
			lines = append(lines, ExpandFormat(cmd.Format, ctx, sampler))
			continue
		}
		ctx, err := c.BuildFormatContext(panes[0], tab, workspace)
		if err != nil {
			return "", err
		}
		lines = append(lines, ExpandFormat(cmd.Format, ctx, sampler))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *HandlerContext) handleListSessions(cmd *ListSessionsCmd, sampler BufferSampler) (string, error) {
	var lines []string
	for _, ws := range c.Host.Workspaces() {
		ctx := FormatContext{
			SessionID:   c.IDMap.GetOrCreateTmuxSessionID(ws),
			SessionName: ws,
		}
		lines = append(lines, ExpandFormat(cmd.Format, ctx, sampler))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *HandlerContext) handleDisplayMessage(cmd *DisplayMessageCmd, sampler BufferSampler) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, resolveErr := c.ResolveTarget(t)
	var ctx FormatContext
	if resolveErr == nil && r.havePane && r.haveTab {
		workspace := r.workspace
		if workspace == "" {
			workspace = c.Workspace
		}
		ctx, err = c.BuildFormatContext(r.pane, r.tab, workspace)
		if err != nil {
			return "", err
		}
	} else {
		ctx = FormatContext{SessionName: c.Workspace}
	}
	format := cmd.Format
	if format == "" {
		format = "#{session_name}:#{window_index}.#{pane_index}"
	}
	return ExpandFormat(format, ctx, sampler), nil
}

func (c *HandlerContext) handleCapturePane(cmd *CapturePaneCmd) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return "", err
	}
	if !r.havePane {
		return "", newError(NotFound, "no pane to capture")
	}
	info, err := c.Host.PaneInfo(r.pane)
	if err != nil {
		return "", newError(HostOperationFailed, "pane info: %v", err)
	}

	start := info.PhysicalTop
	if cmd.StartLine != nil {
		start += *cmd.StartLine
	}
	end := info.PhysicalTop + info.ViewportRows
	if cmd.EndLine != nil {
		end = info.PhysicalTop + *cmd.EndLine + 1
	}
	if end <= start {
		return "", nil
	}
	lines, err := c.Host.ReadLines(r.pane, start, end)
	if err != nil {
		return "", newError(HostOperationFailed, "read lines: %v", err)
	}
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\n")
	}
	return strings.Join(lines, "\n"), nil
}

func (c *HandlerContext) handleSendKeys(cmd *SendKeysCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.havePane {
		return newError(NotFound, "no pane to send keys to")
	}
	var out []byte
	for _, key := range cmd.Keys {
		bytes, err := ResolveKey(key, cmd.Literal, cmd.Hex)
		if err != nil {
			return err
		}
		out = append(out, bytes...)
	}
	if err := c.Host.WriteBytes(r.pane, out); err != nil {
		return newError(HostOperationFailed, "write: %v", err)
	}
	return nil
}

func (c *HandlerContext) handleSelectPane(cmd *SelectPaneCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.havePane {
		return newError(NotFound, "no such pane")
	}
	if err := c.Host.FocusPane(r.pane); err != nil {
		return newError(HostOperationFailed, "focus pane: %v", err)
	}
	c.ActivePaneID = c.IDMap.GetOrCreateTmuxPaneID(r.pane)
	c.HaveActivePane = true
	return nil
}

func (c *HandlerContext) handleSelectWindow(cmd *SelectWindowCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.haveTab {
		return newError(NotFound, "no such window")
	}
	c.ActiveWindowID = c.IDMap.GetOrCreateTmuxWindowID(r.tab)
	c.HaveActiveWin = true
	if active, err := c.Host.ActivePane(r.tab); err == nil {
		if err := c.Host.FocusPane(active); err != nil {
			return newError(HostOperationFailed, "focus window: %v", err)
		}
		c.ActivePaneID = c.IDMap.GetOrCreateTmuxPaneID(active)
		c.HaveActivePane = true
	}
	return nil
}

func (c *HandlerContext) handleKillPane(cmd *KillPaneCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.havePane {
		return newError(NotFound, "no such pane")
	}
	if err := c.Host.RemovePane(r.pane); err != nil {
		return newError(HostOperationFailed, "kill pane: %v", err)
	}
	c.IDMap.RemovePane(r.pane)
	return nil
}

func (c *HandlerContext) handleResizePane(cmd *ResizePaneCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.haveTab {
		return newError(NotFound, "no window to resize")
	}
	var x, y *int64
	if cmd.X != nil {
		x = cmd.X
	}
	if cmd.Y != nil {
		y = cmd.Y
	}
	if err := c.Host.ResizeTab(r.tab, x, y); err != nil {
		return newError(HostOperationFailed, "resize: %v", err)
	}
	return nil
}

func (c *HandlerContext) handleResizeWindow(cmd *ResizeWindowCmd) error {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return err
	}
	if !r.haveTab {
		return newError(NotFound, "no such window")
	}
	if err := c.Host.ResizeTab(r.tab, cmd.X, cmd.Y); err != nil {
		return newError(HostOperationFailed, "resize: %v", err)
	}
	return nil
}

func (c *HandlerContext) handleRefreshClient(cmd *RefreshClientCmd) error {
	cols, rows, err := parseWxH(cmd.Size)
	if err != nil {
		return err
	}
	for _, tab := range c.Host.Tabs(c.Workspace) {
		if err := c.Host.ResizeTab(tab, &cols, &rows); err != nil {
			return newError(HostOperationFailed, "resize: %v", err)
		}
	}
	return nil
}

func parseWxH(spec string) (int64, int64, error) {
	parts := strings.SplitN(spec, ",", 2)
	dims := strings.SplitN(parts[0], "x", 2)
	if len(dims) != 2 {
		return 0, 0, newError(InvalidNumber, "invalid size: %q", spec)
	}
	cols, err := strconv.ParseInt(dims[0], 10, 64)
	if err != nil {
		return 0, 0, newError(InvalidNumber, "invalid size: %q", spec)
	}
	rows, err := strconv.ParseInt(dims[1], 10, 64)
	if err != nil {
		return 0, 0, newError(InvalidNumber, "invalid size: %q", spec)
	}
	return cols, rows, nil
}

func (c *HandlerContext) handleSplitWindow(ctx context.Context, cmd *SplitWindowCmd) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, err := c.ResolveTarget(t)
	if err != nil {
		return "", err
	}
	if !r.havePane {
		return "", newError(NotFound, "no pane to split")
	}
	newPane, err := c.Host.SplitPane(ctx, r.pane, cmd.Horizontal, cmd.Size, cmd.Command)
	if err != nil {
		return "", newError(HostOperationFailed, "split: %v", err)
	}
	tmuxID := c.IDMap.GetOrCreateTmuxPaneID(newPane)
	c.ActivePaneID = tmuxID
	c.HaveActivePane = true
	return fmt.Sprintf("%%%d", tmuxID), nil
}

func (c *HandlerContext) handleNewWindow(ctx context.Context, cmd *NewWindowCmd) (string, error) {
	t, err := ParseTarget(cmd.Target)
	if err != nil {
		return "", err
	}
	r, resolveErr := c.ResolveTarget(t)
	workspace := c.Workspace
	if resolveErr == nil && r.haveWS {
		workspace = r.workspace
	}
	tab, pane, err := c.Host.SpawnTab(ctx, workspace, cmd.Name)
	if err != nil {
		return "", newError(HostOperationFailed, "spawn: %v", err)
	}
	tmuxWin := c.IDMap.GetOrCreateTmuxWindowID(tab)
	tmuxPane := c.IDMap.GetOrCreateTmuxPaneID(pane)
	c.ActiveWindowID = tmuxWin
	c.HaveActiveWin = true
	c.ActivePaneID = tmuxPane
	c.HaveActivePane = true
	return fmt.Sprintf("@%d", tmuxWin), nil
}
