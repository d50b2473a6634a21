// Package tmuxcc implements the tmux control-mode (CC) wire protocol:
// response framing, layout serialization, format expansion, target and
// command parsing, identity mapping, handler dispatch, notification
// translation, and the paste-buffer store.
package tmuxcc

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// visEncode applies tmux's vis(3)-style octal escaping: bytes below 0x20 or
// equal to a backslash are rendered as "\ddd"; everything else passes
// through unchanged.
func visEncode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c < 0x20 || c == '\\' {
			fmt.Fprintf(&b, "\\%03o", c)
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// VisEncode is the exported form of the tmux vis(3) octal byte encoding used
// for %output and %extended-output payloads.
func VisEncode(data []byte) string {
	return visEncode(data)
}

// nowUnix returns the current time as Unix seconds. Extracted so tests can
// observe the formatting without depending on wall-clock time for the
// guarded parts of the message.
var nowUnix = func() int64 { return time.Now().Unix() }

// ResponseWriter frames command results into CC guard blocks. It owns the
// per-connection response counter, which starts at 1 and increments once
// per emitted block.
type ResponseWriter struct {
	counter uint64
}

// NewResponseWriter returns a writer whose first block will use counter 1.
func NewResponseWriter() *ResponseWriter {
	return &ResponseWriter{}
}

func (w *ResponseWriter) nextCounter() uint64 {
	return atomic.AddUint64(&w.counter, 1)
}

// FormatGuardBlock renders a single %begin/%end or %begin/%error block for
// body at the given timestamp and counter. Exported so tests can pin the
// timestamp and verify the exact byte-for-byte framing independent of the
// wall clock.
func FormatGuardBlock(ts int64, counter uint64, body string, isError bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%%begin %d %d 1\n", ts, counter)
	if body != "" {
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteByte('\n')
		}
	}
	tag := "%end"
	if isError {
		tag = "%error"
	}
	fmt.Fprintf(&b, "%s %d %d 1\n", tag, ts, counter)
	return b.String()
}

// Success frames a successful command body.
func (w *ResponseWriter) Success(body string) string {
	return FormatGuardBlock(nowUnix(), w.nextCounter(), body, false)
}

// EmptySuccess frames a successful command with no body.
func (w *ResponseWriter) EmptySuccess() string {
	return w.Success("")
}

// Error frames a failed command; message becomes the body.
func (w *ResponseWriter) Error(message string) string {
	return FormatGuardBlock(nowUnix(), w.nextCounter(), message, true)
}

// ---------------------------------------------------------------------------
// Notification lines
// ---------------------------------------------------------------------------

// OutputNotification renders a %output line for pane paneID carrying data.
func OutputNotification(paneID uint64, data []byte) string {
	return fmt.Sprintf("%%output %%%d %s\n", paneID, visEncode(data))
}

// ExtendedOutputNotification renders a %extended-output line carrying an
// age (milliseconds since the pane's first observed output) alongside the
// vis-encoded payload.
func ExtendedOutputNotification(paneID uint64, ageMs uint64, data []byte) string {
	return fmt.Sprintf("%%extended-output %%%d %d %s\n", paneID, ageMs, visEncode(data))
}

// LayoutChangeNotification renders a %layout-change line.
func LayoutChangeNotification(windowID uint64, layout string) string {
	return fmt.Sprintf("%%layout-change @%d %s\n", windowID, layout)
}

// WindowAddNotification renders a %window-add line.
func WindowAddNotification(windowID uint64) string {
	return fmt.Sprintf("%%window-add @%d\n", windowID)
}

// WindowCloseNotification renders a %window-close line.
func WindowCloseNotification(windowID uint64) string {
	return fmt.Sprintf("%%window-close @%d\n", windowID)
}

// WindowRenamedNotification renders a %window-renamed line.
func WindowRenamedNotification(windowID uint64, name string) string {
	return fmt.Sprintf("%%window-renamed @%d %s\n", windowID, name)
}

// WindowPaneChangedNotification renders a %window-pane-changed line.
func WindowPaneChangedNotification(windowID, paneID uint64) string {
	return fmt.Sprintf("%%window-pane-changed @%d %%%d\n", windowID, paneID)
}

// SessionChangedNotification renders a %session-changed line.
func SessionChangedNotification(sessionID uint64, name string) string {
	return fmt.Sprintf("%%session-changed $%d %s\n", sessionID, name)
}

// SessionRenamedNotification renders a %session-renamed line.
func SessionRenamedNotification(sessionID uint64, name string) string {
	return fmt.Sprintf("%%session-renamed $%d %s\n", sessionID, name)
}

// SessionsChangedNotification renders a bare %sessions-changed line.
func SessionsChangedNotification() string {
	return "%sessions-changed\n"
}

// SessionWindowChangedNotification renders a %session-window-changed line.
func SessionWindowChangedNotification(sessionID, windowID uint64) string {
	return fmt.Sprintf("%%session-window-changed $%d @%d\n", sessionID, windowID)
}

// PasteBufferChangedNotification renders a %paste-buffer-changed line.
func PasteBufferChangedNotification(name string) string {
	return fmt.Sprintf("%%paste-buffer-changed %s\n", name)
}

// PasteBufferDeletedNotification renders a %paste-buffer-deleted line.
func PasteBufferDeletedNotification(name string) string {
	return fmt.Sprintf("%%paste-buffer-deleted %s\n", name)
}

// SubscriptionChangedNotification renders a %subscription-changed line
// carrying a subscription's name and its newly resolved value.
func SubscriptionChangedNotification(name, value string) string {
	return fmt.Sprintf("%%subscription-changed %s %s\n", name, value)
}

// PauseNotification renders a %pause line.
func PauseNotification(paneID uint64) string {
	return fmt.Sprintf("%%pause %%%d\n", paneID)
}

// ExitNotification renders a %exit line, optionally carrying a reason.
func ExitNotification(reason string) string {
	if reason == "" {
		return "%exit\n"
	}
	return fmt.Sprintf("%%exit %s\n", reason)
}
