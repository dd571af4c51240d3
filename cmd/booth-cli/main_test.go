package main

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/photo-booth/internal/collage"
	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/fpang/photo-booth/internal/generation"
	"github.com/fpang/photo-booth/internal/style"
)

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writePhotos(t *testing.T, dir string, n int) []string {
	t.Helper()
	var paths []string
	for i := 0; i < n; i++ {
		data, err := filehandler.EncodePNG(solid(color.RGBA{R: uint8(40 * i), A: 255}))
		if err != nil {
			t.Fatal(err)
		}
		p := filepath.Join(dir, string(rune('a'+i))+".png")
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestPhotosFromDir(t *testing.T) {
	dir := t.TempDir()
	writePhotos(t, dir, 6)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := photosFromDir(dir)
	if err != nil {
		t.Fatalf("photosFromDir() error = %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("got %d photos, want 4", len(paths))
	}
	if filepath.Base(paths[0]) != "a.png" || filepath.Base(paths[3]) != "d.png" {
		t.Errorf("undated photos should keep path order: %v", paths)
	}
}

func TestLoadPhotos(t *testing.T) {
	dir := t.TempDir()
	paths := writePhotos(t, dir, 4)

	imgs, err := loadPhotos(paths)
	if err != nil {
		t.Fatalf("loadPhotos() error = %v", err)
	}
	if len(imgs) != 4 || imgs[0].Bounds().Dx() != 32 {
		t.Errorf("unexpected images: %d", len(imgs))
	}

	if _, err := loadPhotos(paths[:3]); err == nil || !strings.Contains(err.Error(), "exactly 4") {
		t.Errorf("loadPhotos(3) error = %v", err)
	}
	if _, err := loadPhotos(append(paths[:3:3], filepath.Join(dir, "missing.png"))); err == nil {
		t.Error("expected an error for a missing file")
	}
}

type stubService struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubService) reply(op string) (*generation.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	s.mu.Unlock()
	data, err := filehandler.EncodePNG(solid(color.RGBA{G: 180, A: 255}))
	if err != nil {
		return nil, err
	}
	return &generation.Response{Images: []generation.GeneratedImage{{ImageBase64: base64.StdEncoding.EncodeToString(data)}}}, nil
}

func (s *stubService) Generate(ctx context.Context, req generation.GenerateRequest) (*generation.Response, error) {
	return s.reply("generate")
}

func (s *stubService) Stylize(ctx context.Context, req generation.StylizeRequest) (*generation.Response, error) {
	return s.reply("stylize")
}

func testPhotos() []image.Image {
	return []image.Image{
		solid(color.RGBA{R: 255, A: 255}),
		solid(color.RGBA{G: 255, A: 255}),
		solid(color.RGBA{B: 255, A: 255}),
		solid(color.RGBA{R: 255, G: 255, A: 255}),
	}
}

func newComposer(t *testing.T) *collage.Composer {
	t.Helper()
	c, err := collage.NewComposer(collage.Options{Width: 300, Height: 400})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRunJob_Preview(t *testing.T) {
	svc := &stubService{}
	res, err := runJob(context.Background(), job{Photos: testPhotos(), Caption: "Hi"}, svc, newComposer(t))
	if err != nil {
		t.Fatalf("runJob() error = %v", err)
	}
	if res.Collage.Styled || res.Collage.Caption != "Hi" {
		t.Errorf("collage = styled %v caption %q, want the preview", res.Collage.Styled, res.Collage.Caption)
	}
	if len(svc.calls) != 0 {
		t.Errorf("service called %v without a style", svc.calls)
	}
	if !res.Status.Complete {
		t.Error("session not complete")
	}

	// Slot order follows photo order.
	cell := res.Collage.Layout.CellRect(1)
	center := res.Collage.Image.RGBAAt((cell.Min.X+cell.Max.X)/2, (cell.Min.Y+cell.Max.Y)/2)
	if center.G < 200 || center.R > 50 {
		t.Errorf("slot 1 center = %+v, want the green photo", center)
	}
}

func TestRunJob_StylesInOnePass(t *testing.T) {
	svc := &stubService{}
	sel := style.Selection{SubjectID: "Q版公仔風格", BackgroundID: "夢幻星空"}
	res, err := runJob(context.Background(), job{Photos: testPhotos(), Selection: sel}, svc, newComposer(t))
	if err != nil {
		t.Fatalf("runJob() error = %v", err)
	}
	if !res.Collage.Styled {
		t.Error("collage not styled")
	}
	want := "stylize,stylize,stylize,stylize,generate"
	if got := strings.Join(svc.calls, ","); got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
	for _, s := range res.Status.Slots {
		if !s.Styled {
			t.Errorf("slot %d not styled", s.Index)
		}
	}
}
