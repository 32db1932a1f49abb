package parse

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tessera/api"
)

func asJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestMatchPath(t *testing.T) {
	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.json", "readings.json", true},
		{"*.json", "basin_1/deep/readings.json", true},
		{"*.json", "readings.yaml", false},
		{"meta/*.yaml", "basin_1/meta/station.yaml", true},
		{"meta/*.yaml", "basin_1/other/station.yaml", false},
		{"basin_*/readings.json", "basin_2/readings.json", true},
		{"a/b/c.json", "c.json", false},
	}
	for _, tc := range cases {
		got, err := MatchPath(tc.pattern, tc.name)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.want, got, "%s vs %s", tc.pattern, tc.name)
	}

	_, err := MatchPath("[", "x")
	require.Error(t, err)
}

func TestRegistry_MatchInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(JSON())
	reg.Register(YAML())
	reg.Register(New("readings", []string{"readings.*"}, ParseJSON))

	matched, err := reg.Match("basin_1/readings.json")
	require.NoError(t, err)
	var names []string
	for _, p := range matched {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"json", "readings"}, names)

	matched, err = reg.Match("basin_1/station.yml")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "yaml", matched[0].Name())
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	reg.Register(JSON())
	reg.Register(YAML())
	reg.Register(New("json", []string{"*.geojson"}, ParseJSON))

	assert.Equal(t, []string{"json", "yaml"}, reg.Names())
	p, err := reg.Get("json")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.geojson"}, p.Patterns())
}

func TestRegistry_GetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	require.ErrorIs(t, err, ErrUnknownParser)
}

func TestParseJSON_OrderPreserved(t *testing.T) {
	v, err := ParseJSON(strings.NewReader(`{"b": 1, "a": {"z": true, "y": null}}`), "x.json")
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":{"z":true,"y":null}}`, asJSON(t, v))
}

func TestParseYAML_OrderPreserved(t *testing.T) {
	src := `
b: 1
a: two
nested:
  x: true
list:
  - 1
  - s
`
	v, err := ParseYAML(strings.NewReader(src), "x.yaml")
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":"two","nested":{"x":true},"list":[1,"s"]}`, asJSON(t, v))
}

func TestParseHCL_Attributes(t *testing.T) {
	src := `
name  = "kiel"
depth = 17
tags  = ["a", "b"]
meta  = { a = 1 }
`
	v, err := ParseHCL(strings.NewReader(src), "x.hcl")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"kiel","depth":17,"tags":["a","b"],"meta":{"a":1}}`, asJSON(t, v))
}

func TestParseHCL_Invalid(t *testing.T) {
	_, err := ParseHCL(strings.NewReader(`name = `), "x.hcl")
	require.Error(t, err)
}

func TestFormatFunc(t *testing.T) {
	for _, format := range []string{"json", "yaml", "yml", "hcl"} {
		_, ok := FormatFunc(format)
		assert.True(t, ok, format)
	}
	_, ok := FormatFunc("toml")
	assert.False(t, ok)
}

func TestCache_InMemory(t *testing.T) {
	c := NewCache(nil)
	require.NoError(t, c.Add("station", 0, []string{"basin_1", "station.json"}, "s1"))
	require.NoError(t, c.Add("station", 2, []string{"basin_2", "station.json"}, "s2"))
	require.NoError(t, c.Add("series", 1, []string{"basin_1", "series.json"}, "t1"))

	assert.Equal(t, []string{"station", "series"}, c.Parsers())

	pc, ok := c.Parser("station")
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 2}, pc.Files().ToArray())

	entry, ok := pc.Entry(2)
	require.True(t, ok)
	assert.Equal(t, "basin_2/station.json", entry.Path)
	assert.Equal(t, []string{"basin_2"}, entry.Dir())
	v, err := entry.Value()
	require.NoError(t, err)
	assert.Equal(t, "s2", v)

	var paths []string
	for _, e := range c.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"basin_1/station.json", "basin_2/station.json", "basin_1/series.json"}, paths)
}

func TestCache_WriteThroughStore(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	value := api.NewObject()
	value.Set("temp", 21.5)
	value.Set("unit", "C")

	c := NewCache(store)
	require.NoError(t, c.Add("station", 0, []string{"basin_1", "station.json"}, value))

	pc, ok := c.Parser("station")
	require.True(t, ok)
	entry, ok := pc.Entry(0)
	require.True(t, ok)

	got, err := entry.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"temp":21.5,"unit":"C"}`, asJSON(t, got))

	again, err := entry.Value()
	require.NoError(t, err)
	assert.Same(t, got.(*api.Object), again.(*api.Object))
}

func TestStore_PutGetReplace(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("station", "basin_1/station.json", map[string]any{"v": float64(1)}))
	require.NoError(t, store.Put("station", "basin_1/station.json", map[string]any{"v": float64(2)}))

	got, err := store.Get("station", "basin_1/station.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, asJSON(t, got))

	_, err = store.Get("station", "missing.json")
	require.Error(t, err)
}
