// Package imagestore keeps uploaded screenshots on disk for the lifetime of
// a single request.
package imagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// DefaultMaxEdge bounds the longest image side sent to the model.
	DefaultMaxEdge = 1568
	// MediaTypePNG is the media type of every stored image.
	MediaTypePNG = "image/png"
)

// ErrInvalidImage indicates the upload could not be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Store writes normalized PNG copies of uploads under a directory.
type Store struct {
	dir     string
	maxEdge int
}

// New prepares dir (the system temp dir when empty) for temporary images.
func New(dir string, maxEdge int) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "wagtailgen")
	}
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxEdge: maxEdge}, nil
}

// Save decodes r, shrinks it to fit the max edge, and writes it as PNG under
// a random name. The caller owns the returned Image and must Release it.
func (s *Store) Save(r io.Reader) (*Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > s.maxEdge || bounds.Dy() > s.maxEdge {
		img = imaging.Fit(img, s.maxEdge, s.maxEdge, imaging.Lanczos)
		bounds = img.Bounds()
	}

	path := filepath.Join(s.dir, uuid.NewString()+".png")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temporary image: %w", err)
	}
	if err := imaging.Encode(file, img, imaging.PNG); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("encode temporary image: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temporary image: %w", err)
	}

	return &Image{
		Path:      path,
		MediaType: MediaTypePNG,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// Image is a temporary image file exclusively owned by one request.
type Image struct {
	Path      string
	MediaType string
	Width     int
	Height    int

	once       sync.Once
	releaseErr error
}

// Bytes reads the encoded image.
func (i *Image) Bytes() ([]byte, error) {
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, fmt.Errorf("read temporary image: %w", err)
	}
	return data, nil
}

// Release removes the file. Later calls return the first call's result.
func (i *Image) Release() error {
	i.once.Do(func() {
		err := os.Remove(i.Path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			i.releaseErr = fmt.Errorf("remove temporary image: %w", err)
		}
	})
	return i.releaseErr
}
