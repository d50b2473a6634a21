package tmuxcc

// ConnState bundles everything a single connection's main loop owns
// between reads: the command-handling context, the paste-buffer store, the
// notification translator's bookkeeping, pending follow-up notifications a
// handler enqueued, the paused-pane set, and each pane's first-output
// timestamp (for age_ms accounting).
//
// Everything here is touched from one goroutine only; there is
// deliberately no mutex.
type ConnState struct {
	Handlers *HandlerContext
	Buffers  *PasteBufferStore
	Notify   *NotifyState
	Subs     *SubscriptionSet
	Response *ResponseWriter

	// PauseAgeMs is the configured pause-age threshold in milliseconds;
	// zero disables pause/extended-output entirely and every output
	// notification is plain %output.
	PauseAgeMs int64

	firstOutputMs map[PaneID]int64
	paused        map[PaneID]struct{}

	pending []string

	// DetachRequested is set by a handler (none currently implement
	// detach, but %exit-triggering verbs would set this) to request a
	// cooperative connection shutdown after the current response drains.
	DetachRequested bool
	ExitReason      string
}

// NewConnState constructs the state for one freshly accepted connection.
func NewConnState(idMap *IdMap, host Host, workspace string, pauseAgeMs int64) *ConnState {
	return &ConnState{
		Handlers:      NewHandlerContext(idMap, host, workspace),
		Buffers:       NewPasteBufferStore(),
		Notify:        NewNotifyState(),
		Subs:          NewSubscriptionSet(),
		Response:      NewResponseWriter(),
		PauseAgeMs:    pauseAgeMs,
		firstOutputMs: make(map[PaneID]int64),
		paused:        make(map[PaneID]struct{}),
	}
}

// EnqueueNotification appends a follow-up notification line (already
// newline-terminated) that a command handler wants emitted right after
// the response that triggered it.
func (s *ConnState) EnqueueNotification(line string) {
	s.pending = append(s.pending, line)
}

// DrainPending returns and clears the queued follow-up notifications.
func (s *ConnState) DrainPending() []string {
	out := s.pending
	s.pending = nil
	return out
}

// IsPaused reports whether a pane's output is currently suppressed.
func (s *ConnState) IsPaused(pane PaneID) bool {
	_, ok := s.paused[pane]
	return ok
}

// Pause marks a pane as paused.
func (s *ConnState) Pause(pane PaneID) {
	s.paused[pane] = struct{}{}
}

// FrameOutput renders the appropriate notification for one output chunk
// from a pane, applying pause-age accounting. The second return reports
// whether the pane crossed the pause threshold on this call (the caller
// must still emit the returned line — it is the one %pause line — then
// stop forwarding further output from that pane).
func (s *ConnState) FrameOutput(pane PaneID, data []byte, nowMs int64) (line string, justPaused bool) {
	tmuxID := s.Handlers.IDMap.GetOrCreateTmuxPaneID(pane)

	if s.PauseAgeMs <= 0 {
		return OutputNotification(tmuxID, data), false
	}

	first, ok := s.firstOutputMs[pane]
	if !ok {
		first = nowMs
		s.firstOutputMs[pane] = first
	}
	age := nowMs - first
	if age > s.PauseAgeMs {
		already := s.IsPaused(pane)
		s.Pause(pane)
		if !already {
			return PauseNotification(tmuxID), true
		}
		return "", false
	}
	return ExtendedOutputNotification(tmuxID, uint64(age), data), false
}
