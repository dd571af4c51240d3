// Package camera abstracts the booth's video source. A Device is opened into
// a single exclusive Stream; failures are classified into the three kinds the
// kiosk UI knows how to explain to a guest.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"strings"
	"sync"
	"syscall"
)

// Kind classifies a camera failure.
type Kind int

const (
	// PermissionDenied means the OS refused access to the device.
	PermissionDenied Kind = iota + 1
	// DeviceNotFound means no usable device exists.
	DeviceNotFound
	// DeviceBusy means the device is held by another stream or process.
	DeviceBusy
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceNotFound:
		return "device_not_found"
	case DeviceBusy:
		return "device_busy"
	default:
		return "unknown"
	}
}

// Error is a classified camera failure.
type Error struct {
	Kind   Kind
	Device string
	Err    error
}

// Sentinels for errors.Is; only the Kind is compared.
var (
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrDeviceNotFound   = &Error{Kind: DeviceNotFound}
	ErrDeviceBusy       = &Error{Kind: DeviceBusy}
)

func (e *Error) Error() string {
	msg := "camera " + e.Kind.String()
	if e.Device != "" {
		msg += " (" + e.Device + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// UserMessage returns the text shown to a guest at the kiosk.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case PermissionDenied:
		return "Camera access was denied. Please allow camera access and try again."
	case DeviceBusy:
		return "The camera is being used by another application."
	default:
		return "No camera was found. Please check the connection."
	}
}

// Classify maps a platform error onto the camera taxonomy. Errors that are
// already classified pass through unchanged; unrecognised errors are treated
// as DeviceNotFound, since the device cannot be used either way.
func Classify(device string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: classifyKind(err), Device: device, Err: err}
}

func classifyKind(err error) Kind {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return PermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return DeviceBusy
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENOENT):
		return DeviceNotFound
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not allowed"), strings.Contains(msg, "denied"):
		return PermissionDenied
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"), strings.Contains(msg, "already open"):
		return DeviceBusy
	default:
		return DeviceNotFound
	}
}

// Stream is an open, exclusively held video feed.
type Stream interface {
	// Frame returns the current frame at native resolution.
	Frame() (image.Image, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Device opens streams.
type Device interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// exclusive enforces the single-open rule shared by every device.
type exclusive struct {
	mu   sync.Mutex
	open bool
}

func (x *exclusive) acquire(device string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.open {
		return &Error{Kind: DeviceBusy, Device: device, Err: errors.New("device already open")}
	}
	x.open = true
	return nil
}

func (x *exclusive) release() {
	x.mu.Lock()
	x.open = false
	x.mu.Unlock()
}

// FromSpec builds a device from a config string: "screen" for live display
// capture or "replay:<dir>" for a directory of still images.
func FromSpec(spec string) (Device, error) {
	switch {
	case spec == "" || spec == "screen":
		return NewScreenDevice(image.Rectangle{}), nil
	case strings.HasPrefix(spec, "replay:"):
		dir := strings.TrimPrefix(spec, "replay:")
		if dir == "" {
			return nil, fmt.Errorf("replay camera needs a directory: %q", spec)
		}
		return NewReplayDevice(dir), nil
	default:
		return nil, fmt.Errorf("unknown camera %q (want screen or replay:<dir>)", spec)
	}
}
