package tmuxcc

import (
	"fmt"
	"strings"
)

// FormatContext carries every value a #{variable} template may reference.
// Unknown variable names expand to "".
type FormatContext struct {
	PaneID, PaneIndex, PaneWidth, PaneHeight, PaneLeft, PaneTop uint64
	PaneActive, PaneDead                                        bool

	WindowID, WindowIndex, WindowWidth, WindowHeight uint64
	WindowName                                       string
	WindowActive                                     bool

	SessionID   uint64
	SessionName string

	CursorX, CursorY               uint64
	HistoryLimit, HistorySize      uint64

	// BufferSample is resolved separately (see ExpandFormat's sampler
	// parameter); it is not stored directly on the context because the
	// original format context the server mirrors never carries one either
	// — see SPEC_FULL.md section D.3 / I.
}

// BufferSampler supplies the #{buffer_sample} value at expansion time,
// typically backed by a connection's most-recent paste buffer.
type BufferSampler func() string

func (c FormatContext) resolveVariable(name string, sample BufferSampler) (string, bool) {
	switch name {
	case "pane_id":
		return fmt.Sprintf("%%%d", c.PaneID), true
	case "window_id":
		return fmt.Sprintf("@%d", c.WindowID), true
	case "session_id":
		return fmt.Sprintf("$%d", c.SessionID), true
	case "pane_index":
		return fmt.Sprintf("%d", c.PaneIndex), true
	case "pane_width":
		return fmt.Sprintf("%d", c.PaneWidth), true
	case "pane_height":
		return fmt.Sprintf("%d", c.PaneHeight), true
	case "pane_left":
		return fmt.Sprintf("%d", c.PaneLeft), true
	case "pane_top":
		return fmt.Sprintf("%d", c.PaneTop), true
	case "pane_active":
		return boolDigit(c.PaneActive), true
	case "pane_dead":
		return boolDigit(c.PaneDead), true
	case "window_active":
		return boolDigit(c.WindowActive), true
	case "window_index":
		return fmt.Sprintf("%d", c.WindowIndex), true
	case "window_name":
		return c.WindowName, true
	case "window_width":
		return fmt.Sprintf("%d", c.WindowWidth), true
	case "window_height":
		return fmt.Sprintf("%d", c.WindowHeight), true
	case "session_name":
		return c.SessionName, true
	case "cursor_x":
		return fmt.Sprintf("%d", c.CursorX), true
	case "cursor_y":
		return fmt.Sprintf("%d", c.CursorY), true
	case "history_limit":
		return fmt.Sprintf("%d", c.HistoryLimit), true
	case "history_size":
		return fmt.Sprintf("%d", c.HistorySize), true
	case "buffer_sample":
		if sample != nil {
			return sample(), true
		}
		return "", true
	default:
		return "", false
	}
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ExpandFormat expands a tmux #{...} template string against ctx. sample
// may be nil, in which case #{buffer_sample} expands to "".
func ExpandFormat(tmpl string, ctx FormatContext, sample BufferSampler) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '#' && i+1 < len(tmpl) && tmpl[i+1] == '{' {
			end, ok := findMatchingBrace(tmpl, i+1)
			if !ok {
				// Unclosed "#{" — emit the rest literally, including the
				// "#{" itself.
				out.WriteString(tmpl[i:])
				return out.String()
			}
			expr := tmpl[i+2 : end]
			expandExpr(&out, expr, ctx, sample)
			i = end + 1
			continue
		}
		out.WriteByte(tmpl[i])
		i++
	}
	return out.String()
}

// findMatchingBrace returns the index of the '}' matching the '{' at
// openIdx, accounting for nested braces of any kind (not just "#{").
func findMatchingBrace(s string, openIdx int) (int, bool) {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func expandExpr(out *strings.Builder, expr string, ctx FormatContext, sample BufferSampler) {
	if strings.HasPrefix(expr, "?") {
		expandConditional(out, expr[1:], ctx, sample)
		return
	}
	val, _ := ctx.resolveVariable(expr, sample)
	out.WriteString(val)
}

func expandConditional(out *strings.Builder, rest string, ctx FormatContext, sample BufferSampler) {
	parts := splitConditionalParts(rest)
	if len(parts) != 2 && len(parts) != 3 {
		return
	}
	cond, _ := ctx.resolveVariable(parts[0], sample)
	truthy := cond != "" && cond != "0"
	var branch string
	if truthy {
		branch = parts[1]
	} else if len(parts) == 3 {
		branch = parts[2]
	} else {
		return
	}
	out.WriteString(ExpandFormat(branch, ctx, sample))
}

// splitConditionalParts splits on top-level commas only — commas nested
// inside any brace depth do not separate parts.
func splitConditionalParts(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
