// Package capture drives the booth's four-shot capture flow: acquire the
// camera, count down, snapshot a frame into the current slot, advance, and
// retake.
package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

// NumSlots is the number of photos in a session.
const NumSlots = 4

// Defaults for Options.
const (
	DefaultCountdownSeconds   = 5
	DefaultTick               = time.Second
	DefaultStabilizationDelay = 800 * time.Millisecond
	DefaultRetakeDelay        = 500 * time.Millisecond
)

// ErrInvalidState is returned when an operation is not valid in the
// controller's current state.
var ErrInvalidState = errors.New("invalid capture state")

// State is the controller's position in the capture flow.
type State int

const (
	Idle State = iota
	Streaming
	Countdown
	Captured
	Finished
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Countdown:
		return "countdown"
	case Captured:
		return "captured"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Slot holds one photo. Raw is fixed at capture time; Styled, when set, was
// derived from the current Raw. Generation is bumped on every capture and
// clear, and identifies which Raw a styling request was issued against.
type Slot struct {
	Raw        image.Image
	Styled     image.Image
	Generation uint64
}

// Filled reports whether the slot holds a raw capture.
func (s Slot) Filled() bool {
	return s.Raw != nil
}

// Current returns the styled image when present, else the raw one.
func (s Slot) Current() image.Image {
	if s.Styled != nil {
		return s.Styled
	}
	return s.Raw
}

// Snapshot is a consistent copy of the session taken under the controller lock.
type Snapshot struct {
	State     State
	Cursor    int
	Countdown int
	Streaming bool
	Slots     [NumSlots]Slot
}

// Complete reports whether all slots hold a raw capture.
func (s Snapshot) Complete() bool {
	for _, slot := range s.Slots {
		if !slot.Filled() {
			return false
		}
	}
	return true
}

// Filled returns the indices of slots that hold a raw capture, in order.
func (s Snapshot) Filled() []int {
	var out []int
	for i, slot := range s.Slots {
		if slot.Filled() {
			out = append(out, i)
		}
	}
	return out
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tune the capture timing. Zero values take the defaults.
type Options struct {
	CountdownSeconds   int
	Tick               time.Duration
	StabilizationDelay time.Duration
	RetakeDelay        time.Duration
	// DisableAutoStart stops the controller from starting countdowns on its
	// own; StartCountdown must then be called explicitly.
	DisableAutoStart bool
	Sleep            Sleeper
}

func (o Options) withDefaults() Options {
	if o.CountdownSeconds <= 0 {
		o.CountdownSeconds = DefaultCountdownSeconds
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.StabilizationDelay < 0 {
		o.StabilizationDelay = 0
	} else if o.StabilizationDelay == 0 {
		o.StabilizationDelay = DefaultStabilizationDelay
	}
	if o.RetakeDelay < 0 {
		o.RetakeDelay = 0
	} else if o.RetakeDelay == 0 {
		o.RetakeDelay = DefaultRetakeDelay
	}
	if o.Sleep == nil {
		o.Sleep = SleepContext
	}
	return o
}

// Listener receives controller notifications. Callbacks run after the
// controller lock is released, in order, and must not call controller
// methods that change state.
type Listener interface {
	StateChanged(State)
	CountdownChanged(remaining int)
	Captured(slot int)
	CaptureFailed(slot int, err error)
	SlotCleared(slot int)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	OnState         func(State)
	OnCountdown     func(int)
	OnCapture       func(int)
	OnCaptureFailed func(int, error)
	OnCleared       func(int)
}

func (l ListenerFuncs) StateChanged(s State) {
	if l.OnState != nil {
		l.OnState(s)
	}
}

func (l ListenerFuncs) CountdownChanged(n int) {
	if l.OnCountdown != nil {
		l.OnCountdown(n)
	}
}

func (l ListenerFuncs) Captured(slot int) {
	if l.OnCapture != nil {
		l.OnCapture(slot)
	}
}

func (l ListenerFuncs) CaptureFailed(slot int, err error) {
	if l.OnCaptureFailed != nil {
		l.OnCaptureFailed(slot, err)
	}
}

func (l ListenerFuncs) SlotCleared(slot int) {
	if l.OnCleared != nil {
		l.OnCleared(slot)
	}
}
