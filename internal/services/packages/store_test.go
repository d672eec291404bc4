package packages

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamelobby/internal/model"
	"github.com/mcoot/gamelobby/internal/testutil"
)

type StoreSuite struct {
	suite.Suite
	root  string
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.root = filepath.Join(s.T().TempDir(), "games")
	store, err := New(s.root, testutil.NopLogger())
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreSuite) unzip(data []byte) map[string]string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	s.Require().NoError(err)
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		s.Require().NoError(err)
		b, err := io.ReadAll(rc)
		s.Require().NoError(err)
		_ = rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func (s *StoreSuite) TestInstallAndArchiveRoundTrip() {
	files := testutil.GameFiles(s.T(), "Pong", "1.0.0", "server.py", map[string]string{
		"assets/sprites/ball.txt": "o",
		"lib/util.py":             "def f(): pass\n",
	})

	manifest, err := s.store.Install("pong", testutil.ZipFiles(s.T(), files))
	s.Require().NoError(err)
	s.Equal("Pong", manifest.Name)
	s.Equal("server.py", manifest.EntryPoint)
	s.True(s.store.Exists("pong"))

	archive, err := s.store.Archive("pong")
	s.Require().NoError(err)
	s.Equal(files, s.unzip(archive))
}

func (s *StoreSuite) TestInstallReplacesPriorContents() {
	first := testutil.GameFiles(s.T(), "Pong", "1.0.0", "server.py", map[string]string{"old.txt": "old"})
	_, err := s.store.Install("pong", testutil.ZipFiles(s.T(), first))
	s.Require().NoError(err)

	second := testutil.GameFiles(s.T(), "Pong", "1.0.1", "server.py", nil)
	manifest, err := s.store.Install("pong", testutil.ZipFiles(s.T(), second))
	s.Require().NoError(err)
	s.Equal("1.0.1", manifest.Version)

	_, err = os.Stat(filepath.Join(s.store.Dir("pong"), "old.txt"))
	s.True(os.IsNotExist(err))
	s.noLeftovers()
}

func (s *StoreSuite) TestCorruptArchiveKeepsPriorContents() {
	_, err := s.store.Install("pong", testutil.GameArchive(s.T(), "Pong", "1.0.0", "server.py"))
	s.Require().NoError(err)

	_, err = s.store.Install("pong", []byte("definitely not a zip"))
	s.ErrorIs(err, model.ErrInvalidArchive)

	manifest, err := s.store.Manifest("pong")
	s.Require().NoError(err)
	s.Equal("1.0.0", manifest.Version)
	s.noLeftovers()
}

func (s *StoreSuite) TestMissingManifestRejected() {
	_, err := s.store.Install("pong", testutil.ZipFiles(s.T(), map[string]string{"server.py": "x"}))
	s.ErrorIs(err, model.ErrInvalidManifest)
	s.False(s.store.Exists("pong"))
	s.noLeftovers()
}

func (s *StoreSuite) TestInvalidManifestRejected() {
	files := map[string]string{"config.json": `{"name":"Pong"}`}
	_, err := s.store.Install("pong", testutil.ZipFiles(s.T(), files))
	s.ErrorIs(err, model.ErrInvalidManifest)
}

func (s *StoreSuite) TestManifestDefaultsEntryPoint() {
	files := map[string]string{"config.json": `{"name":"Pong","version":"1"}`, "server.py": "x"}
	manifest, err := s.store.Install("pong", testutil.ZipFiles(s.T(), files))
	s.Require().NoError(err)
	s.Equal(model.DefaultEntryPoint, manifest.EntryPoint)
}

func (s *StoreSuite) TestZipSlipRejected() {
	files := testutil.GameFiles(s.T(), "Pong", "1", "server.py", map[string]string{"../../escape.txt": "gotcha"})
	_, err := s.store.Install("pong", testutil.ZipFiles(s.T(), files))
	s.ErrorIs(err, model.ErrInvalidArchive)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(s.root), "escape.txt"))
	s.True(os.IsNotExist(statErr))
	s.False(s.store.Exists("pong"))
}

func (s *StoreSuite) TestInvalidGameID() {
	_, err := s.store.Install("../pong", testutil.GameArchive(s.T(), "Pong", "1", "server.py"))
	s.ErrorIs(err, model.ErrInvalidGameID)
}

func (s *StoreSuite) TestArchiveNotInstalled() {
	_, err := s.store.Archive("missing")
	s.ErrorIs(err, model.ErrPackageNotInstalled)

	_, err = s.store.Manifest("missing")
	s.ErrorIs(err, model.ErrPackageNotInstalled)
}

func (s *StoreSuite) TestRemove() {
	_, err := s.store.Install("pong", testutil.GameArchive(s.T(), "Pong", "1", "server.py"))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Remove("pong"))
	s.False(s.store.Exists("pong"))

	// Removing again is fine
	s.Require().NoError(s.store.Remove("pong"))
}

func (s *StoreSuite) TestEntryPathNormalization() {
	for name, want := range map[string]string{
		"a/b/../c.txt": "a/c.txt",
		`dir\file.txt`: "dir/file.txt",
		"./":           "",
	} {
		got, err := entryPath(name)
		s.Require().NoError(err, name)
		s.Equal(want, got, name)
	}
	for _, bad := range []string{"/etc/passwd", "../x", "a/../../x"} {
		_, err := entryPath(bad)
		s.ErrorIs(err, model.ErrInvalidArchive, bad)
	}
}

// noLeftovers checks that only installed game directories remain under the root
func (s *StoreSuite) noLeftovers() {
	entries, err := os.ReadDir(s.root)
	s.Require().NoError(err)
	for _, e := range entries {
		s.NotEqual('.', rune(e.Name()[0]), "leftover %s", e.Name())
	}
}
