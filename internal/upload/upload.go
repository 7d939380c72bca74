// Package upload stores the binary assets (photos, songs, avatars) that
// records point to.
//
// Blobs live flat in one directory. The filename is generated here and is
// unique per call:
//
//	<epoch-ms>-<hex disambiguator>-<sanitized original name>
//	1717171717171-0a1b2c3d4e5f60718293a4b5-beach_day.png
//
// The document store only keeps the resulting model.Asset. Writing a blob
// and referencing it are two separate steps, so callers save the blob first
// and remove it again if the record could not be committed.
package upload

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/rs/xid"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/model"
)

// FilePayload is an upload as sent by the browser: base64 content plus the
// client's file name and MIME type.
type FilePayload struct {
	Data string `json:"data"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Store writes and removes blobs in a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates the upload directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating %s: %w", abs, err)
	}
	return &Store{dir: abs, logger: logger, now: time.Now}, nil
}

// WithClock replaces the clock used for the filename timestamp.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save validates and decodes p, then writes it atomically. Nothing is
// written when validation fails.
func (s *Store) Save(p FilePayload) (model.Asset, error) {
	switch {
	case p.Data == "":
		return model.Asset{}, apperror.InvalidAsset("data", "upload is missing its content")
	case p.Name == "":
		return model.Asset{}, apperror.InvalidAsset("name", "upload is missing its file name")
	case p.Type == "":
		return model.Asset{}, apperror.InvalidAsset("type", "upload is missing its type")
	}

	content, err := decodeBase64(p.Data)
	if err != nil {
		return model.Asset{}, apperror.InvalidAsset("data", "upload content is not valid base64")
	}

	asset := model.Asset{
		Filename:     s.newFilename(p.Name),
		OriginalName: p.Name,
		MIME:         p.Type,
	}
	if err := s.write(asset.Filename, content); err != nil {
		return model.Asset{}, err
	}

	s.logger.Debug("upload stored",
		slog.String("filename", asset.Filename),
		slog.String("mime", asset.MIME),
		slog.Int("bytes", len(content)),
	)
	return asset, nil
}

// SaveImage is Save restricted to image/* payloads.
func (s *Store) SaveImage(p FilePayload) (model.Asset, error) {
	if !strings.HasPrefix(p.Type, "image/") {
		return model.Asset{}, apperror.InvalidAsset("type", "upload must be an image")
	}
	return s.Save(p)
}

// Remove deletes the blob of asset. A nil asset or an already missing
// blob is not an error.
func (s *Store) Remove(asset *model.Asset) error {
	if asset == nil || asset.Filename == "" {
		return nil
	}
	path, err := s.pathOf(asset.Filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload: removing %s: %w", asset.Filename, err)
	}
	return nil
}

// RemoveAll removes every given blob, logging failures instead of stopping.
// It runs after the owning record is already gone, so a leftover blob is
// only wasted space.
func (s *Store) RemoveAll(assets ...*model.Asset) {
	for _, a := range assets {
		if err := s.Remove(a); err != nil {
			s.logger.Warn("could not remove upload",
				slog.String("filename", a.Filename),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Resolve maps a requested name (the part of the URL after /uploads/) to a
// file inside the upload directory. Names escaping the directory are
// rejected with ErrValidation; names that do not exist give ErrNotFound.
func (s *Store) Resolve(requested string) (string, error) {
	path, err := s.pathOf(requested)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("upload %q: %w", requested, apperror.ErrNotFound)
	}
	return path, nil
}

// DataURL returns the blob of asset as a data: URL. It reports false when
// there is no asset or its blob is gone.
func (s *Store) DataURL(asset *model.Asset) (string, bool) {
	if asset == nil || asset.Filename == "" {
		return "", false
	}
	path, err := s.pathOf(asset.Filename)
	if err != nil {
		return "", false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	mime := asset.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content), true
}

// pathOf joins name onto the upload directory and refuses anything that
// lands outside of it ("../store.json", "/etc/passwd", ...).
func (s *Store) pathOf(name string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.dir, filepath.FromSlash(name)))
	rel, err := filepath.Rel(s.dir, cleaned)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperror.ValidationFailed("path", "invalid upload path")
	}
	return cleaned, nil
}

func (s *Store) write(filename string, content []byte) error {
	path := filepath.Join(s.dir, filename)

	t, err := renameio.TempFile(s.dir, path)
	if err != nil {
		return fmt.Errorf("upload: creating temp file: %w", err)
	}
	defer t.Cleanup()

	if _, err := t.Write(content); err != nil {
		return fmt.Errorf("upload: writing %s: %w", filename, err)
	}
	if err := t.Chmod(0o644); err != nil {
		return fmt.Errorf("upload: chmod %s: %w", filename, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("upload: storing %s: %w", filename, err)
	}
	return nil
}

func (s *Store) newFilename(original string) string {
	id := xid.New()
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), hex.EncodeToString(id.Bytes()), Sanitize(original))
}

// Sanitize replaces every character outside [A-Za-z0-9._-] with '_'.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}

// decodeBase64 accepts plain base64 (padded or not) as well as a full
// data: URL, which is what FileReader.readAsDataURL produces.
func decodeBase64(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ";base64,"); i >= 0 {
			data = data[i+len(";base64,"):]
		}
	}
	data = strings.TrimSpace(data)
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(data)
}
