package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"plancheck-backend/internal/shared/storage/object"
	"plancheck-backend/internal/shared/util"
)

// Store implements ObjectStore using the local filesystem.
// Files are served back under baseURL (see the /files static route).
type Store struct {
	baseDir string
	baseURL string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir, baseURL string) *Store {
	return &Store{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Dir returns the filesystem root.
func (s *Store) Dir() string {
	return s.baseDir
}

// Save writes the reader to disk under the user's namespace with a random prefix.
func (s *Store) Save(ctx context.Context, userID string, fileName string, r io.Reader) (object.Object, error) {
	sanitizedName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("sanitize file name: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	userDir := util.HashUserKey(userID)
	finalName := fmt.Sprintf("%s_%s", util.RandomID(), sanitizedName)

	dirPath := filepath.Join(s.baseDir, userDir)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return object.Object{}, fmt.Errorf("mkdir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dirPath, finalName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return object.Object{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.Object{}, fmt.Errorf("read sniff: %w", readErr)
	}
	if _, err := f.Write(sniff[:n]); err != nil {
		return object.Object{}, fmt.Errorf("write sniff: %w", err)
	}
	written, err := io.Copy(f, r)
	if err != nil {
		return object.Object{}, fmt.Errorf("write body: %w", err)
	}

	return object.Object{
		Key:       path.Join(userDir, finalName),
		SizeBytes: int64(n) + written,
		MimeType:  http.DetectContentType(sniff[:n]),
	}, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage key")
	}
	return os.Open(filepath.Join(s.baseDir, clean))
}

// URL returns the public address of a stored object.
func (s *Store) URL(storageKey string) string {
	parts := strings.Split(strings.TrimLeft(storageKey, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

var _ object.ObjectStore = (*Store)(nil)
