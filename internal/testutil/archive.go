package testutil

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// ZipFiles builds an in-memory zip archive from relative path -> contents
func ZipFiles(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// GameFiles returns the files of a minimal game package with a config.json
// manifest; extra files are merged in
func GameFiles(t testing.TB, name, version, entryPoint string, extra map[string]string) map[string]string {
	t.Helper()

	manifest, err := json.Marshal(map[string]any{
		"name":               name,
		"version":            version,
		"description":        name + " test package",
		"type":               "CLI",
		"min_players":        1,
		"max_players":        2,
		"entry_point":        entryPoint,
		"client_entry_point": "client.py",
	})
	require.NoError(t, err)

	files := map[string]string{
		"config.json": string(manifest),
		entryPoint:    "#!/bin/sh\nexit 0\n",
		"client.py":   "print('client')\n",
	}
	for k, v := range extra {
		files[k] = v
	}
	return files
}

// GameArchive zips a minimal game package
func GameArchive(t testing.TB, name, version, entryPoint string) []byte {
	t.Helper()
	return ZipFiles(t, GameFiles(t, name, version, entryPoint, nil))
}
