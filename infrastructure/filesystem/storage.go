package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/memevault/memevault/domain/meme"
)

// Image is a validated upload payload.
type Image struct {
	data        []byte
	contentType string
	extension   string
}

// DetectImage sniffs data and accepts PNG, JPEG, GIF and WebP. The original
// file name supplies the extension when it agrees with the content.
func DetectImage(originalName string, data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty file", meme.ErrInvalidImage)
	}

	contentType := http.DetectContentType(data)
	var allowed []string
	switch contentType {
	case "image/jpeg":
		allowed = []string{".jpg", ".jpeg"}
	case "image/png":
		allowed = []string{".png"}
	case "image/gif":
		allowed = []string{".gif"}
	case "image/webp":
		allowed = []string{".webp"}
	default:
		return Image{}, fmt.Errorf("%w: unsupported content type %s", meme.ErrInvalidImage, contentType)
	}

	ext := allowed[0]
	if given := strings.ToLower(filepath.Ext(originalName)); given != "" {
		for _, a := range allowed {
			if given == a {
				ext = a
			}
		}
	}
	return Image{data: data, contentType: contentType, extension: ext}, nil
}

// Data returns the image bytes.
func (i Image) Data() []byte { return i.data }

// ContentType returns the sniffed MIME type.
func (i Image) ContentType() string { return i.contentType }

// Extension returns the file extension including the dot.
func (i Image) Extension() string { return i.extension }

// Size returns the payload size in bytes.
func (i Image) Size() int64 { return int64(len(i.data)) }

// SHA256 returns the hex digest of the payload.
func (i Image) SHA256() string {
	sum := sha256.Sum256(i.data)
	return hex.EncodeToString(sum[:])
}

// Storage keeps uploaded images in a flat directory under generated names.
type Storage struct {
	dir string
}

// NewStorage creates the storage directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage directory: %w", meme.ErrStorage, err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string { return s.dir }

// Path resolves a stored filename. Names containing path separators are rejected.
func (s *Storage) Path(filename string) (string, error) {
	name, err := meme.StorageName(filename)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Save writes img under a new random name and returns that name.
func (s *Storage) Save(img Image) (string, error) {
	for range 3 {
		name := uuid.NewString() + img.Extension()
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: create %s: %w", meme.ErrStorage, name, err)
		}
		_, werr := f.Write(img.Data())
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("%w: write %s: %w", meme.ErrStorage, name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: could not allocate a unique filename", meme.ErrStorage)
}

// Read returns the contents of a stored file.
func (s *Storage) Read(filename string) ([]byte, error) {
	path, err := s.Path(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", meme.ErrStorage, filename, err)
	}
	return data, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Storage) Remove(filename string) error {
	path, err := s.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", meme.ErrStorage, filename, err)
	}
	return nil
}
