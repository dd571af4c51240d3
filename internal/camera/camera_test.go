package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/fpang/photo-booth/internal/filehandler"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"fs permission", fmt.Errorf("open /dev/video0: %w", fs.ErrPermission), PermissionDenied},
		{"eacces", &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, PermissionDenied},
		{"ebusy", &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EBUSY}, DeviceBusy},
		{"not exist", &os.PathError{Op: "open", Path: "/dev/video9", Err: syscall.ENOENT}, DeviceNotFound},
		{"message busy", errors.New("device or resource busy"), DeviceBusy},
		{"message denied", errors.New("NotAllowedError: user denied"), PermissionDenied},
		{"unknown", errors.New("something odd"), DeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("test", tt.err)
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("Classify() = %T, want *Error", err)
			}
			if ce.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", ce.Kind, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error should unwrap to the original")
			}
		})
	}

	if Classify("test", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	already := &Error{Kind: DeviceBusy}
	if Classify("test", already) != error(already) {
		t.Error("already classified errors should pass through")
	}
}

func TestError_IsSentinel(t *testing.T) {
	err := fmt.Errorf("acquire: %w", &Error{Kind: PermissionDenied, Device: "screen"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("errors.Is should match on Kind")
	}
	if errors.Is(err, ErrDeviceBusy) {
		t.Error("errors.Is should not match a different Kind")
	}
}

func TestImageDevice_Exclusive(t *testing.T) {
	d := &ImageDevice{Images: []image.Image{image.NewRGBA(image.Rect(0, 0, 2, 2))}}
	ctx := context.Background()

	s, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := d.Open(ctx); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("second Open() error = %v, want DeviceBusy", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.Frame(); err == nil {
		t.Error("Frame() after Close should fail")
	}

	s2, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("Open() after Close error = %v", err)
	}
	s2.Close()
}

func TestImageDevice_OpenErr(t *testing.T) {
	d := &ImageDevice{OpenErr: &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}}
	if _, err := d.Open(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Open() error = %v, want PermissionDenied", err)
	}

	empty := &ImageDevice{}
	if _, err := empty.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open() with no images error = %v, want DeviceNotFound", err)
	}
}

func TestSequenceStream_AdvancesPerCall(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 2))
	d := &ImageDevice{Images: []image.Image{a, b}}

	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := []image.Image{a, b, a}
	for i, w := range want {
		got, err := s.Frame()
		if err != nil {
			t.Fatalf("Frame() #%d error = %v", i, err)
		}
		if got != w {
			t.Errorf("Frame() #%d returned the wrong image", i)
		}
	}
}

func TestSequenceStream_Hold(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 2))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := &ImageDevice{
		Images: []image.Image{a, b},
		Hold:   time.Second,
		Now:    func() time.Time { return now },
	}

	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got, _ := s.Frame(); got != image.Image(a) {
		t.Error("expected first image before the hold elapses")
	}
	if got, _ := s.Frame(); got != image.Image(a) {
		t.Error("expected the same image within the hold")
	}
	now = now.Add(1500 * time.Millisecond)
	if got, _ := s.Frame(); got != image.Image(b) {
		t.Error("expected second image after the hold")
	}
	now = now.Add(time.Second)
	if got, _ := s.Frame(); got != image.Image(a) {
		t.Error("expected the feed to loop")
	}
}

func TestReplayDevice(t *testing.T) {
	dir := t.TempDir()
	sizes := map[string]int{"b.png": 6, "a.png": 3}
	for name, size := range sizes {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		img.Set(0, 0, color.White)
		data, err := filehandler.EncodePNG(img)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	d := NewReplayDevice(dir)
	d.Hold = 0
	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	// No EXIF dates, so frames follow file names.
	for i, want := range []int{3, 6, 3} {
		frame, err := s.Frame()
		if err != nil {
			t.Fatalf("Frame() #%d error = %v", i, err)
		}
		if frame.Bounds().Dx() != want {
			t.Errorf("Frame() #%d width = %d, want %d", i, frame.Bounds().Dx(), want)
		}
	}
}

func TestOrderByCaptureTime(t *testing.T) {
	early := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	files := []*filehandler.ImageFile{
		{Path: "/x/a.jpg"},
		{Path: "/x/b.jpg", Metadata: &filehandler.ImageMetadata{DateTaken: late, HasDate: true}},
		{Path: "/x/c.jpg", Metadata: &filehandler.ImageMetadata{DateTaken: early, HasDate: true}},
	}
	OrderByCaptureTime(files)

	want := []string{"/x/c.jpg", "/x/b.jpg", "/x/a.jpg"}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, f.Path, want[i])
		}
	}
}

func TestReplayDevice_Empty(t *testing.T) {
	d := NewReplayDevice(t.TempDir())
	if _, err := d.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open() on an empty directory error = %v, want DeviceNotFound", err)
	}

	missing := NewReplayDevice(filepath.Join(t.TempDir(), "nope"))
	if _, err := missing.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open() on a missing directory error = %v, want DeviceNotFound", err)
	}
}

func TestFromSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{spec: "screen", want: "screen"},
		{spec: "", want: "screen"},
		{spec: "replay:/srv/demo", want: "replay:/srv/demo"},
		{spec: "replay:", wantErr: true},
		{spec: "usb0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			d, err := FromSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if err == nil && d.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", d.Name(), tt.want)
			}
		})
	}
}

func TestScreenDevice(t *testing.T) {
	screen := image.Rect(0, 0, 1920, 1080)
	var captured image.Rectangle
	d := NewScreenDevice(image.Rect(100, 100, 740, 580))
	d.screenRect = func() (image.Rectangle, error) { return screen, nil }
	d.captureRect = func(r image.Rectangle) (*image.RGBA, error) {
		captured = r
		return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
	}

	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	frame, err := s.Frame()
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if frame.Bounds().Dx() != 640 || frame.Bounds().Dy() != 480 {
		t.Errorf("frame = %v, want 640x480", frame.Bounds())
	}
	if captured != d.Rect {
		t.Errorf("captured %v, want %v", captured, d.Rect)
	}
	if _, err := d.Open(context.Background()); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("second Open() error = %v, want DeviceBusy", err)
	}
	s.Close()

	d.screenRect = func() (image.Rectangle, error) { return image.Rectangle{}, errors.New("no display") }
	if _, err := d.Open(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open() without a display error = %v, want DeviceNotFound", err)
	}
}
