package dashboard

import "sync"

// Selection tracks which partition is on display. It starts empty.
type Selection struct {
	mu     sync.Mutex
	active int
	set    bool
}

// Select makes p the active partition. p need not have any data yet.
func (s *Selection) Select(p int) {
	s.mu.Lock()
	s.active, s.set = p, true
	s.mu.Unlock()
}

// Active returns the active partition, or false when nothing is selected.
func (s *Selection) Active() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.set
}

// selectIfNone selects p only when nothing is selected yet and reports
// whether it did.
func (s *Selection) selectIfNone(p int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.active, s.set = p, true
	return true
}

// Clear drops the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.active, s.set = 0, false
	s.mu.Unlock()
}
