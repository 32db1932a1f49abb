package explore

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFS(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for name, body := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func TestExplore_WalkOrderAndParts(t *testing.T) {
	fs := seedFS(t, map[string]string{
		"basin_2/readings.json":     "{}",
		"basin_1/readings.json":     "{}",
		"basin_1/meta/station.yaml": "a: 1",
		"notes.txt":                 "hello",
	})

	ex, err := Explore(fs, ".")
	require.NoError(t, err)
	require.Equal(t, 4, ex.Len())

	var parts [][]string
	for _, e := range ex.Entries() {
		parts = append(parts, e.Parts)
	}
	assert.Equal(t, [][]string{
		{"basin_1", "meta", "station.yaml"},
		{"basin_1", "readings.json"},
		{"basin_2", "readings.json"},
		{"notes.txt"},
	}, parts)

	first := ex.Entry(0)
	assert.Equal(t, []string{"basin_1", "meta"}, first.Dir())
	assert.Equal(t, "station.yaml", first.Name())
}

func TestExplore_ComponentIndex(t *testing.T) {
	fs := seedFS(t, map[string]string{
		"basin_2/readings.json":     "{}",
		"basin_1/readings.json":     "{}",
		"basin_1/meta/station.yaml": "a: 1",
	})

	ex, err := Explore(fs, ".")
	require.NoError(t, err)

	keys := ex.ComponentKeys(regexp.MustCompile(`^basin_`))
	assert.Equal(t, []string{"basin_1", "basin_2"}, keys)
	assert.Empty(t, ex.ComponentKeys(regexp.MustCompile(`^lake_`)))

	assert.Equal(t, []uint32{0, 1}, ex.FilesWith([]string{"basin_1"}).ToArray())
	assert.Equal(t, []uint32{0}, ex.FilesWith([]string{"basin_1", "meta"}).ToArray())
	assert.True(t, ex.FilesWith([]string{"lake_9"}).IsEmpty())
	assert.Equal(t, uint64(3), ex.All().GetCardinality())
}

func TestExplore_Open(t *testing.T) {
	fs := seedFS(t, map[string]string{"basin_1/readings.json": `{"temp": 21.5}`})

	ex, err := Explore(fs, ".")
	require.NoError(t, err)
	require.Equal(t, 1, ex.Len())

	r, err := ex.Open(ex.Entry(0))
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, `{"temp": 21.5}`, string(data))
}

func writeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDecompress_TarGz(t *testing.T) {
	data := writeTarGz(t, map[string]string{
		"basin_1/readings.json": `{"temp": 21.5}`,
		"notes.txt":             "hello",
	})

	fs := memfs.New()
	require.NoError(t, Decompress(bytes.NewReader(data), "data.tar.gz", fs, "."))

	got, err := util.ReadFile(fs, "basin_1/readings.json")
	require.NoError(t, err)
	assert.Equal(t, `{"temp": 21.5}`, string(got))
	got, err = util.ReadFile(fs, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDecompress_RejectsEscape(t *testing.T) {
	data := writeTarGz(t, map[string]string{"../evil.txt": "boom"})

	err := Decompress(bytes.NewReader(data), "data.tar.gz", memfs.New(), ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction root")
}

func TestDecompress_UnknownSuffix(t *testing.T) {
	err := Decompress(bytes.NewReader(nil), "data.zip", memfs.New(), ".")
	require.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestPrepareSource_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "basin_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "basin_1", "readings.json"), []byte("{}"), 0o644))

	fs, cleanup, err := PrepareSource(dir, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cleanup)

	ex, err := Explore(fs, ".")
	require.NoError(t, err)
	require.Equal(t, 1, ex.Len())
	assert.Equal(t, []string{"basin_1", "readings.json"}, ex.Entry(0).Parts)
}

func TestPrepareSource_Archive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "survey.tar.gz")
	require.NoError(t, os.WriteFile(archive, writeTarGz(t, map[string]string{
		"basin_1/readings.json": "{}",
	}), 0o644))

	extraction := t.TempDir()
	fs, cleanup, err := PrepareSource(archive, extraction)
	require.NoError(t, err)
	require.NotNil(t, cleanup)

	ex, err := Explore(fs, ".")
	require.NoError(t, err)
	require.Equal(t, 1, ex.Len())
	assert.Equal(t, []string{"basin_1", "readings.json"}, ex.Entry(0).Parts)

	require.NoError(t, cleanup())
	_, err = os.Stat(filepath.Join(extraction, "survey"))
	assert.True(t, os.IsNotExist(err))
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("a.tar"))
	assert.True(t, IsArchive("a.tar.gz"))
	assert.True(t, IsArchive("a.tgz"))
	assert.True(t, IsArchive("a.tar.bz2"))
	assert.False(t, IsArchive("a.zip"))
	assert.False(t, IsArchive("a.json"))
}
