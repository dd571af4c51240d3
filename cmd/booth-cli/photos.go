package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/fpang/photo-booth/internal/camera"
	"github.com/fpang/photo-booth/internal/capture"
	"github.com/fpang/photo-booth/internal/filehandler"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

var errPickCanceled = errors.New("photo selection canceled")

// pickPhotos opens the desktop file picker.
func pickPhotos() ([]string, error) {
	selected, err := zenity.SelectFileMultiple(
		zenity.Title(fmt.Sprintf("Select %d photos", capture.NumSlots)),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp"},
				CaseFold: true,
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, errPickCanceled
		}
		return nil, fmt.Errorf("file picker failed: %w", err)
	}
	return selected, nil
}

// photosFromDir returns the first four images in dir, oldest capture first.
func photosFromDir(dir string) ([]string, error) {
	files, err := filehandler.ScanImages(dir, filehandler.ScanOptions{MaxDepth: 1})
	if err != nil {
		return nil, err
	}
	camera.OrderByCaptureTime(files)
	var paths []string
	for _, f := range files {
		if len(paths) == capture.NumSlots {
			break
		}
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// loadPhotos decodes exactly four photos.
func loadPhotos(paths []string) ([]image.Image, error) {
	if len(paths) != capture.NumSlots {
		return nil, fmt.Errorf("need exactly %d photos, got %d", capture.NumSlots, len(paths))
	}
	images := make([]image.Image, len(paths))
	for i, p := range paths {
		img, err := filehandler.DecodeImageFile(p)
		if err != nil {
			return nil, err
		}
		log.Debug().Int("slot", i).Str("path", p).Msg("Photo loaded")
		images[i] = img
	}
	return images, nil
}
