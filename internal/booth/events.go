package booth

import (
	"time"

	"github.com/rs/zerolog/log"
)

// EventType names a session notification.
type EventType string

const (
	EventState         EventType = "state"
	EventCountdown     EventType = "countdown"
	EventCaptured      EventType = "captured"
	EventCaptureFailed EventType = "capture_failed"
	EventSlotCleared   EventType = "slot_cleared"
	EventCollage       EventType = "collage"
	EventLoading       EventType = "loading"
	EventError         EventType = "error"
)

// Event is one notification sent to subscribers. Only the fields relevant
// to Type are set.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state,omitempty"`
	Countdown int       `json:"countdown,omitempty"`
	Slot      *int      `json:"slot,omitempty"`
	Loading   bool      `json:"loading,omitempty"`
	Styled    bool      `json:"styled,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

func slotRef(i int) *int {
	return &i
}

const subscriberBuffer = 64

// Subscribe returns a channel of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) emit(ev Event) {
	if ev.SessionID == "" {
		ev.SessionID = s.ID()
	}
	ev.At = time.Now()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Int("subscriber", id).Str("event", string(ev.Type)).Msg("Subscriber is behind, dropping event")
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
