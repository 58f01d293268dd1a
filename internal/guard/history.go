package guard

import "sync"

// History is an in-memory navigation stack.
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory starts a history at location start.
func NewHistory(start string) *History {
	return &History{entries: []string{start}}
}

// Navigate pushes to, or replaces the current entry when opts.Replace is set.
// Navigating to the current location does nothing.
func (h *History) Navigate(to string, opts NavigateOptions) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && h.entries[n-1] == to {
		return
	}
	if opts.Replace && len(h.entries) > 0 {
		h.entries[len(h.entries)-1] = to
		return
	}
	h.entries = append(h.entries, to)
}

// Back pops the current entry. It reports false at the first entry.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) < 2 {
		return h.location(), false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return h.location(), true
}

// Location returns the current entry.
func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.location()
}

// Entries returns a copy of the stack, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

func (h *History) location() string {
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}
