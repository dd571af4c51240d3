package booth

import (
	"time"

	"github.com/fpang/photo-booth/internal/style"
)

// SlotStatus describes one slot for the UI.
type SlotStatus struct {
	Index  int  `json:"index"`
	Filled bool `json:"filled"`
	Styled bool `json:"styled"`
}

// CollageStatus describes the collage on screen.
type CollageStatus struct {
	Styled     bool      `json:"styled"`
	Caption    string    `json:"caption"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Status is the session as the kiosk UI sees it.
type Status struct {
	ID        string          `json:"id"`
	State     string          `json:"state"`
	Cursor    int             `json:"cursor"`
	Countdown int             `json:"countdown"`
	Streaming bool            `json:"streaming"`
	Complete  bool            `json:"complete"`
	Slots     []SlotStatus    `json:"slots"`
	Selection style.Selection `json:"selection"`
	Caption   string          `json:"caption"`
	Loading   bool            `json:"loading"`
	Error     string          `json:"error,omitempty"`
	Collage   *CollageStatus  `json:"collage,omitempty"`
}

// Status returns a point-in-time view of the session.
func (s *Session) Status() Status {
	snap := s.ctrl.Snapshot()
	st := Status{
		State:     snap.State.String(),
		Cursor:    snap.Cursor,
		Countdown: snap.Countdown,
		Streaming: snap.Streaming,
		Complete:  snap.Complete(),
		Slots:     make([]SlotStatus, len(snap.Slots)),
	}
	for i, slot := range snap.Slots {
		st.Slots[i] = SlotStatus{Index: i, Filled: slot.Filled(), Styled: slot.Styled != nil}
	}
	if res := s.Current(); res != nil {
		st.Collage = &CollageStatus{Styled: res.Styled, Caption: res.Caption, RenderedAt: res.RenderedAt}
	}

	s.mu.Lock()
	st.ID = s.id
	st.Selection = s.selection
	st.Caption = s.caption
	st.Loading = s.loading
	st.Error = s.lastErr
	s.mu.Unlock()
	return st
}
