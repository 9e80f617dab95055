// Package capture turns incoming media (uploaded files, inline base64) into
// normalized JPEG frames for analysis. A Stream owns its underlying handle
// and must be closed by the caller regardless of capture outcome.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strings"

	_ "image/gif"
	_ "image/png"
)

var (
	// ErrCameraUnavailable means no frame source could be acquired.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrUnsupportedImage means the payload did not decode as an image.
	ErrUnsupportedImage = errors.New("unsupported image data")
)

const jpegQuality = 85

// Stream produces a single still frame from an acquired source.
type Stream interface {
	CaptureFrame() ([]byte, error)
	Close() error
}

// FileStream reads one frame from an uploaded file.
type FileStream struct {
	src    io.ReadCloser
	closed bool
}

// NewFileStream wraps an open file handle. The stream takes ownership of src.
func NewFileStream(src io.ReadCloser) (*FileStream, error) {
	if src == nil {
		return nil, ErrCameraUnavailable
	}
	return &FileStream{src: src}, nil
}

// CaptureFrame reads the file, decodes it, and re-encodes it as JPEG.
func (s *FileStream) CaptureFrame() ([]byte, error) {
	raw, err := io.ReadAll(s.src)
	if err != nil {
		return nil, fmt.Errorf("read frame source: %w", err)
	}
	return NormalizeFrame(raw)
}

// Close releases the underlying handle. Safe to call more than once.
func (s *FileStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

// NormalizeFrame decodes raw image bytes (jpeg, png, or gif) and re-encodes
// them as JPEG so every stored frame shares one format.
func NormalizeFrame(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrUnsupportedImage
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBase64Frame accepts a base64 payload (optionally a data: URL) and
// returns a normalized JPEG frame.
func DecodeBase64Frame(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrUnsupportedImage)
	}
	return NormalizeFrame(raw)
}
