// Package filehandler provides the booth's image file handling: format
// sniffing, decoding and encoding of captured and generated frames, EXIF
// metadata extraction, and directory scanning for replay feeds.
//
// Formats are detected from content, not extensions, because generated
// payloads arrive as bare base64 without a file name:
//   - Sniffing: github.com/h2non/filetype
//   - Decoding: image/jpeg, image/png, image/gif and golang.org/x/image/webp
//   - Metadata: github.com/evanoberholster/imagemeta
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
)

// SupportedImageExtensions defines the file extensions the booth can decode.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageFile represents an image on disk that can feed a replay camera or
// the offline CLI.
type ImageFile struct {
	Path     string
	MIMEType string
	Size     int64
	Metadata *ImageMetadata
}

// LoadImageFile stats an image file and extracts its metadata.
// Metadata failures are logged and leave Metadata nil.
func LoadImageFile(filePath string) (*ImageFile, error) {
	log.Debug().Str("path", filePath).Msg("Loading image file")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	mimeType, err := GetMIMEType(ext)
	if err != nil {
		return nil, err
	}

	imageFile := &ImageFile{
		Path:     filePath,
		MIMEType: mimeType,
		Size:     info.Size(),
	}

	meta, err := ExtractImageMetadata(filePath)
	if err != nil {
		log.Debug().Err(err).Str("path", filePath).Msg("No image metadata, continuing without it")
	} else {
		imageFile.Metadata = meta
	}

	return imageFile, nil
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// IsImage checks if the extension is a supported image format.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// DetectMIME sniffs the MIME type of raw image bytes.
// It returns an error if the bytes are not a recognised image type.
func DetectMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("failed to sniff image type: %w", err)
	}
	if kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", fmt.Errorf("payload is not a recognised image")
	}
	return kind.MIME.Value, nil
}
