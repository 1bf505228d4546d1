package voice

import (
	"sync"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

// Slots holds the latest detected command, the latest detected query and the
// user-facing error message. The command and query slots are one-shot: the
// consumer clears them after handling so a value is never delivered twice.
type Slots struct {
	mu       sync.Mutex
	command  utterance.CommandKind
	hasCmd   bool
	query    string
	hasQuery bool
	errMsg   string
}

// DetectedCommand returns the pending command, if any
func (s *Slots) DetectedCommand() (utterance.CommandKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command, s.hasCmd
}

// ClearDetectedCommand empties the command slot
func (s *Slots) ClearDetectedCommand() {
	s.mu.Lock()
	s.command, s.hasCmd = 0, false
	s.mu.Unlock()
}

// DetectedQuery returns the pending query, if any
func (s *Slots) DetectedQuery() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, s.hasQuery
}

// ClearDetectedQuery empties the query slot
func (s *Slots) ClearDetectedQuery() {
	s.mu.Lock()
	s.query, s.hasQuery = "", false
	s.mu.Unlock()
}

// ErrorMessage returns the last start or permission failure, or "" when cleared
func (s *Slots) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Slots) setCommand(kind utterance.CommandKind) {
	s.mu.Lock()
	s.command, s.hasCmd = kind, true
	s.mu.Unlock()
}

func (s *Slots) setQuery(text string) {
	s.mu.Lock()
	s.query, s.hasQuery = text, true
	s.mu.Unlock()
}

func (s *Slots) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}

// hub fans controller events out to subscribers. A subscriber that falls behind
// loses events rather than stalling the controller.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// publish delivers ev to every subscriber and returns how many were full
func (h *hub) publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
