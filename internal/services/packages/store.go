package packages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/mcoot/gamelobby/internal/model"
)

// Store manages installed game packages, one directory per game id
type Store struct {
	root   string
	logger *slog.Logger

	// Swaps and removals take the write lock; archiving and manifest reads the read lock
	mu sync.RWMutex
}

// New creates a store rooted at root, creating it if needed
func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create games dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{
		root:   abs,
		logger: logger.With(slog.String("component", "packages")),
	}, nil
}

// Root returns the directory holding all installed games
func (s *Store) Root() string {
	return s.root
}

// Dir returns the install directory for a game
func (s *Store) Dir(id model.GameID) string {
	return filepath.Join(s.root, string(id))
}

// Exists reports whether a game is installed
func (s *Store) Exists(id model.GameID) bool {
	if !id.Valid() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := os.Stat(s.Dir(id))
	return err == nil && info.IsDir()
}

// Install expands a zip archive as the new contents of the game's directory.
// Extraction happens in a staging directory that is swapped in only when the
// archive and its manifest are valid; on any failure prior contents are kept.
func (s *Store) Install(id model.GameID, archive []byte) (model.Manifest, error) {
	if !id.Valid() {
		return model.Manifest{}, fmt.Errorf("%w: %q", model.ErrInvalidGameID, id)
	}

	staging, err := os.MkdirTemp(s.root, "."+string(id)+".staging-")
	if err != nil {
		return model.Manifest{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := extract(archive, staging); err != nil {
		return model.Manifest{}, err
	}
	manifest, err := readManifest(staging)
	if err != nil {
		return model.Manifest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.swap(id, staging); err != nil {
		return model.Manifest{}, err
	}
	committed = true

	s.logger.Info("package installed",
		slog.String("game_id", string(id)),
		slog.String("version", manifest.Version),
		slog.Int("archive_bytes", len(archive)),
	)
	return manifest, nil
}

// swap moves staging into place, keeping the old tree until the move succeeds
func (s *Store) swap(id model.GameID, staging string) error {
	target := s.Dir(id)

	var backup string
	if _, err := os.Stat(target); err == nil {
		backup = filepath.Join(s.root, "."+string(id)+".old")
		_ = os.RemoveAll(backup)
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("move old package aside: %w", err)
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return fmt.Errorf("install package: %w", err)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			s.logger.Warn("failed to remove old package", slog.String("path", backup), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Archive zips the installed tree in memory with paths relative to the game root
func (s *Store) Archive(id model.GameID) ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidGameID, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.Dir(id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, model.ErrPackageNotInstalled
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", id, err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Remove deletes an installed game; removing a missing game is not an error
func (s *Store) Remove(id model.GameID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidGameID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.Dir(id)); err != nil {
		return err
	}
	s.logger.Info("package removed", slog.String("game_id", string(id)))
	return nil
}

// Manifest reads the installed game's manifest
func (s *Store) Manifest(id model.GameID) (model.Manifest, error) {
	if !id.Valid() {
		return model.Manifest{}, fmt.Errorf("%w: %q", model.ErrInvalidGameID, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := readManifest(s.Dir(id))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Manifest{}, model.ErrPackageNotInstalled
	}
	return m, err
}

func readManifest(dir string) (model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, model.ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(dir); statErr != nil {
				return model.Manifest{}, statErr
			}
			return model.Manifest{}, fmt.Errorf("%w: %s missing", model.ErrInvalidManifest, model.ManifestFile)
		}
		return model.Manifest{}, err
	}

	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("%w: %v", model.ErrInvalidManifest, err)
	}
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return model.Manifest{}, err
	}
	return m, nil
}

// extract expands archive into dst, rejecting entries that would land outside it
func extract(archive []byte, dst string) error {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArchive, err)
	}

	for _, f := range zr.File {
		name, err := entryPath(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		target := filepath.Join(dst, filepath.FromSlash(name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

// entryPath normalizes a zip entry name to a clean relative slash path
func entryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: absolute path %q", model.ErrInvalidArchive, name)
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: path %q escapes the package", model.ErrInvalidArchive, name)
	}
	return clean, nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArchive, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: %v", model.ErrInvalidArchive, err)
	}
	return out.Close()
}
