// Package intake keeps uploaded resume documents.
package intake

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/spigell/placement-engine/internal/placement"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Storage writes documents under {owner}/{unix-nano}.{ext} on fs and
// returns a reference under baseURL.
type Storage struct {
	fs      afero.Fs
	baseURL string
	now     func() time.Time
}

// New roots storage at dir on the OS filesystem.
func New(dir, baseURL string) (*Storage, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("intake directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create intake directory: %w", err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// NewWithFs uses fs as-is. An empty baseURL yields bare relative references.
func NewWithFs(fs afero.Fs, baseURL string) *Storage {
	return &Storage{
		fs:      fs,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     time.Now,
	}
}

// Save stores data for ownerID and returns its reference.
func (s *Storage) Save(ctx context.Context, ownerID, filename string, data []byte) (string, error) {
	const op = "intake.save"

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validSegment(ownerID) {
		return "", placement.Errorf(placement.KindValidation, op, "invalid owner id %q", ownerID)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !validSegment(ext) {
		ext = "pdf"
	}

	if err := s.fs.MkdirAll(ownerID, dirPerm); err != nil {
		return "", fmt.Errorf("%s: create owner directory: %w", op, err)
	}

	name := path.Join(ownerID, fmt.Sprintf("%d.%s", s.now().UnixNano(), ext))
	if err := afero.WriteFile(s.fs, name, data, filePerm); err != nil {
		return "", fmt.Errorf("%s: write %s: %w", op, name, err)
	}

	return s.reference(name), nil
}

// Open reads a document previously returned by Save.
func (s *Storage) Open(ctx context.Context, reference string) ([]byte, error) {
	const op = "intake.open"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, ok := s.resolve(reference)
	if !ok {
		return nil, placement.Errorf(placement.KindValidation, op, "reference %q is not managed by this storage", reference)
	}

	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, placement.Errorf(placement.KindNotFound, op, "document %s not found", reference)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

// Remove deletes a document previously returned by Save. Removing a missing
// document is not an error.
func (s *Storage) Remove(ctx context.Context, reference string) error {
	const op = "intake.remove"

	if err := ctx.Err(); err != nil {
		return err
	}

	name, ok := s.resolve(reference)
	if !ok {
		return placement.Errorf(placement.KindValidation, op, "reference %q is not managed by this storage", reference)
	}

	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) reference(name string) string {
	if s.baseURL == "" {
		return name
	}
	return s.baseURL + "/" + (&url.URL{Path: name}).EscapedPath()
}

func (s *Storage) resolve(reference string) (string, bool) {
	rel := reference
	if s.baseURL != "" {
		var ok bool
		if rel, ok = strings.CutPrefix(reference, s.baseURL+"/"); !ok {
			return "", false
		}
		unescaped, err := url.PathUnescape(rel)
		if err != nil {
			return "", false
		}
		rel = unescaped
	}

	clean := path.Clean(rel)
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
