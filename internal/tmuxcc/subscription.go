package tmuxcc

import "github.com/google/uuid"

// Subscription is a client-registered format template whose resolved
// value is re-checked on each poll; a change produces a notification
// line. The id is a stable, opaque identifier so a client can cancel a
// specific subscription without racing its own enumeration order.
type Subscription struct {
	ID       string
	Name     string
	Format   string
	Pane     PaneID
	Tab      TabID
	lastSeen string
	haveSeen bool
}

// SubscriptionSet owns a connection's active format subscriptions.
type SubscriptionSet struct {
	subs map[string]*Subscription
}

// NewSubscriptionSet returns an empty set.
func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{subs: make(map[string]*Subscription)}
}

// Add registers a new subscription, returning its generated id.
func (s *SubscriptionSet) Add(name, format string, pane PaneID, tab TabID) string {
	id := uuid.NewString()
	s.subs[id] = &Subscription{ID: id, Name: name, Format: format, Pane: pane, Tab: tab}
	return id
}

// Remove cancels a subscription by id, reporting whether it existed.
func (s *SubscriptionSet) Remove(id string) bool {
	if _, ok := s.subs[id]; !ok {
		return false
	}
	delete(s.subs, id)
	return true
}

// CheckSubscriptions re-expands every subscription's format against its
// pane/tab's current context and returns one %subscription-changed-style
// notification per subscription whose resolved value changed since the
// last poll. The first poll after registration always fires once, since
// there is no prior value to compare against.
func (c *HandlerContext) CheckSubscriptions(subs *SubscriptionSet, bufs *PasteBufferStore) []string {
	var out []string
	for _, sub := range subs.subs {
		fc, err := c.BuildFormatContext(sub.Pane, sub.Tab, c.Workspace)
		if err != nil {
			continue
		}
		sampler := func() string { return bufferSampleOf(bufs) }
		value := ExpandFormat(sub.Format, fc, sampler)
		if sub.haveSeen && value == sub.lastSeen {
			continue
		}
		sub.lastSeen = value
		sub.haveSeen = true
		out = append(out, SubscriptionChangedNotification(sub.Name, value))
	}
	return out
}

func bufferSampleOf(bufs *PasteBufferStore) string {
	if bufs == nil {
		return ""
	}
	mr, ok := bufs.MostRecent()
	if !ok {
		return ""
	}
	return BufferSample(mr.Data)
}
