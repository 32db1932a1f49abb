package archivist

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tessera/internal/interp"
	"github.com/agentic-research/tessera/internal/merge"
	"github.com/agentic-research/tessera/internal/parse"
)

func asJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func leafFor(name string, p *interp.ParsingDirective) *interp.ParserLeaf {
	return &interp.ParserLeaf{Def: &interp.Definition{Name: name}, Parsing: p}
}

func TestPathMatcher_ComponentKeys(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": "{}",
		"basin_2/station.json": "{}",
		"global/readme.json":   "{}",
	})
	m := newPathMatcher(ex)
	pc := &interp.PatternContext{Expr: `^basin_\d+$`, Pattern: regexp.MustCompile(`^basin_\d+$`)}

	keys, err := m.Matches(pc, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"basin_1", "basin_2"}, keys)
}

func TestPathMatcher_BoundKeysConstrain(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"run_1/case_a/r.json": "{}",
		"run_2/case_b/r.json": "{}",
	})
	m := newPathMatcher(ex)
	pc := &interp.PatternContext{Expr: `^case_`, Pattern: regexp.MustCompile(`^case_`)}

	var root *merge.Scope
	keys, err := m.Matches(pc, root.Bind("run_1", "run"))
	require.NoError(t, err)
	assert.Equal(t, []string{"case_a"}, keys)
}

func TestCacheResolver_BoundKeySelects(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": `{"temp": 1}`,
		"basin_2/station.json": `{"temp": 2}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	var root *merge.Scope
	scope := root.Enter("basins").Bind("basin_1", "basin").Enter("station")
	v, err := r.Resolve(leafFor("station", nil), scope)
	require.NoError(t, err)
	assert.Equal(t, `{"temp":1}`, asJSON(t, v))
	assert.Empty(t, r.DrainWarnings())
}

func TestCacheResolver_UnknownParserAbsent(t *testing.T) {
	ex := exploreSeed(t, map[string]string{"a.json": "{}"})
	r := newCacheResolver(ex, parse.NewCache(nil), newRegexCache())

	_, err := r.Resolve(leafFor("station", nil), nil)
	require.ErrorIs(t, err, merge.ErrAbsent)
}

func TestCacheResolver_PathFilter(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": `{"temp": 1}`,
		"global/station.json":  `{"temp": 9}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Path: "basin_1/station.json"}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"temp":1}`, asJSON(t, v))

	v, err = r.Resolve(leafFor("station", &interp.ParsingDirective{Path: "global/*"}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"temp":9}`, asJSON(t, v))
}

func TestCacheResolver_PathFilterWithBinding(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": `{"temp": 1}`,
		"basin_1/backup.json":  `{"temp": 0}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	var root *merge.Scope
	scope := root.Bind("basin_1", "basin")
	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Path: "{basin}/station.json"}), scope)
	require.NoError(t, err)
	assert.Equal(t, `{"temp":1}`, asJSON(t, v))
}

func TestCacheResolver_AccumulateByDirectory(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": `{"temp": 1}`,
		"basin_2/station.json": `{"temp": 2}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"basin_1":{"temp":1},"basin_2":{"temp":2}}`, asJSON(t, v))
}

func TestCacheResolver_AccumulateFlatList(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"a.json": `{"n": 1}`,
		"b.json": `{"n": 2}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "notes"), newRegexCache())

	v, err := r.Resolve(leafFor("notes", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, `[{"n":1},{"n":2}]`, asJSON(t, v))
}

func TestCacheResolver_KeysFilter(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"station": {"name": "Kiel", "temp": 21.5}, "extra": 1}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Keys: []string{"station/name"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"station":{"name":"Kiel"}}`, asJSON(t, v))
}

func TestCacheResolver_KeysFilterRegex(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"station": {"name": "Kiel", "temp": 21.5}}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Keys: []string{"station/na.e"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"station":{"name":"Kiel"}}`, asJSON(t, v))
}

func TestCacheResolver_KeysFilterJSONPath(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"station": {"name": "Kiel", "temp": 21.5}}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Keys: []string{"$.station.temp"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"$.station.temp":21.5}`, asJSON(t, v))
}

func TestCacheResolver_KeysFilterSelectsNothing(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"temp": 21.5}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	_, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Keys: []string{"salinity"}}), nil)
	require.ErrorIs(t, err, merge.ErrAbsent)

	warnings := r.DrainWarnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "selected nothing")
}

func TestCacheResolver_Unpack(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"wrapper": {"x": 1, "y": 2}}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Unpack: 1}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, asJSON(t, v))
}

func TestCacheResolver_UnpackAll(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"station.json": `{"a": {"b": {"c": 3}}}`,
	})
	r := newCacheResolver(ex, cacheAllJSON(t, ex, "station"), newRegexCache())

	v, err := r.Resolve(leafFor("station", &interp.ParsingDirective{Unpack: interp.UnpackAll}), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"c":3}`, asJSON(t, v))
}

func TestMirror_NestedShape(t *testing.T) {
	ex := exploreSeed(t, map[string]string{
		"basin_1/station.json": `{"temp": 21.5}`,
		"readme.json":          `{"note": "hi"}`,
	})
	res := Mirror(cacheAllJSON(t, ex, "json"))

	require.Empty(t, res.Warnings)
	assert.Equal(t, `{"basin_1":{"station.json":{"temp":21.5}},"readme.json":{"note":"hi"}}`, asJSON(t, res.Tree))
}

func TestMirror_CollisionLaterWins(t *testing.T) {
	cache := parse.NewCache(nil)
	require.NoError(t, cache.Add("a", 0, []string{"x.json"}, "first"))
	require.NoError(t, cache.Add("b", 0, []string{"x.json"}, "second"))

	res := Mirror(cache)
	assert.Equal(t, `{"x.json":"second"}`, asJSON(t, res.Tree))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Reason, "replaced")
}

func TestSegMatch_Variants(t *testing.T) {
	rc := newRegexCache()

	ok, err := rc.segMatch("*", "anything", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.segMatch("station.json", "station.json", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.segMatch(`basin_\d+`, "basin_7", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.segMatch(`basin_\d+`, "lake_7", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = rc.segMatch("[", "x", nil)
	require.Error(t, err)

	ok, err = rc.segMatch("{basin}", "basin_1", nil)
	require.NoError(t, err)
	assert.False(t, ok, "unbound reference never matches")
}

func TestExpandBindings(t *testing.T) {
	var root *merge.Scope
	scope := root.Bind("run_1", "id")

	out, ok := expandBindings("{id}/out", scope)
	require.True(t, ok)
	assert.Equal(t, "run_1/out", out)

	_, ok = expandBindings("{missing}/out", scope)
	assert.False(t, ok)
}
