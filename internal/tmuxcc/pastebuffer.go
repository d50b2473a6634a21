package tmuxcc

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// bufferLimit is the maximum number of auto-named buffers kept before the
// oldest is evicted. User-named buffers are never evicted.
const bufferLimit = 50

// PasteBuffer is a single named paste buffer entry.
type PasteBuffer struct {
	Name      string
	Data      string
	Automatic bool
	// Order is the monotonic insertion counter; higher means more recent.
	Order uint64
}

// PasteBufferStore is tmux's named paste-buffer stack, keyed by name.
type PasteBufferStore struct {
	buffers      []PasteBuffer
	nextOrder    uint64
	nextAutoName uint64
}

// NewPasteBufferStore returns an empty store.
func NewPasteBufferStore() *PasteBufferStore {
	return &PasteBufferStore{}
}

// Set inserts or replaces a buffer. If name is "", a name is auto-assigned
// (bufferN). Returns the name used.
func (s *PasteBufferStore) Set(name, data string) string {
	bufName := name
	automatic := false
	if bufName == "" {
		bufName = fmt.Sprintf("buffer%d", s.nextAutoName)
		s.nextAutoName++
		automatic = true
	}

	s.buffers = removeBufferNamed(s.buffers, bufName)

	order := s.nextOrder
	s.nextOrder++
	s.buffers = append(s.buffers, PasteBuffer{Name: bufName, Data: data, Automatic: automatic, Order: order})

	s.enforceLimit()
	return bufName
}

// Append appends data to an existing buffer. Errors if the buffer does
// not exist.
func (s *PasteBufferStore) Append(name, data string) error {
	for i := range s.buffers {
		if s.buffers[i].Name == name {
			s.buffers[i].Data += data
			return nil
		}
	}
	return newError(NotFound, "unknown buffer: %s", name)
}

// Get returns the buffer with the given name.
func (s *PasteBufferStore) Get(name string) (PasteBuffer, bool) {
	for _, b := range s.buffers {
		if b.Name == name {
			return b, true
		}
	}
	return PasteBuffer{}, false
}

// MostRecent returns the most recently inserted buffer.
func (s *PasteBufferStore) MostRecent() (PasteBuffer, bool) {
	if len(s.buffers) == 0 {
		return PasteBuffer{}, false
	}
	best := s.buffers[0]
	for _, b := range s.buffers[1:] {
		if b.Order > best.Order {
			best = b
		}
	}
	return best, true
}

// Delete removes a buffer by name. Reports whether it existed.
func (s *PasteBufferStore) Delete(name string) bool {
	before := len(s.buffers)
	s.buffers = removeBufferNamed(s.buffers, name)
	return len(s.buffers) < before
}

// DeleteMostRecent removes the most recently inserted buffer, returning
// its name.
func (s *PasteBufferStore) DeleteMostRecent() (string, bool) {
	mr, ok := s.MostRecent()
	if !ok {
		return "", false
	}
	s.Delete(mr.Name)
	return mr.Name, true
}

// List returns all buffers ordered newest-first.
func (s *PasteBufferStore) List() []PasteBuffer {
	sorted := make([]PasteBuffer, len(s.buffers))
	copy(sorted, s.buffers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order > sorted[j].Order })
	return sorted
}

// Len returns the number of buffers.
func (s *PasteBufferStore) Len() int { return len(s.buffers) }

// enforceLimit evicts the oldest automatic buffers once their count
// exceeds bufferLimit.
func (s *PasteBufferStore) enforceLimit() {
	autoCount := 0
	for _, b := range s.buffers {
		if b.Automatic {
			autoCount++
		}
	}
	if autoCount <= bufferLimit {
		return
	}

	type indexedOrder struct {
		idx   int
		order uint64
	}
	var autos []indexedOrder
	for i, b := range s.buffers {
		if b.Automatic {
			autos = append(autos, indexedOrder{i, b.Order})
		}
	}
	sort.Slice(autos, func(i, j int) bool { return autos[i].order < autos[j].order })

	toRemove := autoCount - bufferLimit
	remove := make(map[int]struct{}, toRemove)
	for _, a := range autos[:toRemove] {
		remove[a.idx] = struct{}{}
	}

	kept := s.buffers[:0]
	for i, b := range s.buffers {
		if _, drop := remove[i]; !drop {
			kept = append(kept, b)
		}
	}
	s.buffers = kept
}

func removeBufferNamed(buffers []PasteBuffer, name string) []PasteBuffer {
	kept := buffers[:0]
	for _, b := range buffers {
		if b.Name != name {
			kept = append(kept, b)
		}
	}
	return kept
}

// BufferSample generates a #{buffer_sample} preview: the first 50
// characters, with \n \r \t and other control characters escaped (the
// first three as \n \r \t, everything else as 3-digit octal), truncated
// with "..." if the data is longer.
func BufferSample(data string) string {
	const maxLen = 50
	var sample strings.Builder
	sample.Grow(maxLen + 4)
	count := 0
	for _, ch := range data {
		if count >= maxLen {
			sample.WriteString("...")
			break
		}
		switch ch {
		case '\n':
			sample.WriteString("\\n")
		case '\r':
			sample.WriteString("\\r")
		case '\t':
			sample.WriteString("\\t")
		default:
			if unicode.IsControl(ch) {
				fmt.Fprintf(&sample, "\\%03o", ch)
			} else {
				sample.WriteRune(ch)
			}
		}
		count++
	}
	return sample.String()
}
