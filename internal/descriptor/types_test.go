package descriptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dummyJSON = `{
  "name": "_it._tcp",
  "description": null,
  "meta": {"owner": "qa"},
  "apis": {"Test API": "http://test:666"},
  "docs": [{
    "description": "it's a test!",
    "type": "application/json",
    "url": "http://test:666/docu",
    "apis": ["Test API"]
  }]
}`

func TestDecodeKeepsNulls(t *testing.T) {
	s, err := Decode(strings.NewReader(dummyJSON))
	require.NoError(t, err)

	assert.Equal(t, "_it._tcp", s.NameValue())
	assert.Nil(t, s.Description)
	assert.Empty(t, s.ID)
	assert.Equal(t, "http://test:666", s.APIs["Test API"])
	require.Len(t, s.Docs, 1)
	assert.Equal(t, []string{"Test API"}, s.Docs[0].APIs)
	assert.Equal(t, "application/json", Deref(s.Docs[0].Type))
}

func TestEncodeOmitsEmptyID(t *testing.T) {
	s := &Service{Name: Str("x")}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"id"`)
	assert.Contains(t, string(b), `"description":null`)

	s.ID = "abc"
	b, err = json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"abc"`)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dummy.json")
	require.NoError(t, os.WriteFile(path, []byte(dummyJSON), 0644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "_it._tcp", s.NameValue())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "filename")
	assert.Contains(t, err.Error(), "nope.json")
}

func TestLoadFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestFindByName(t *testing.T) {
	idx := &Index{
		Total: 3,
		Services: []Service{
			{ID: "1"},
			{ID: "2", Name: Str("a")},
			{ID: "3", Name: Str("a")},
		},
	}

	got, ok := idx.FindByName("a")
	require.True(t, ok)
	assert.Equal(t, "2", got.ID)

	_, ok = idx.FindByName("b")
	assert.False(t, ok)

	var nilIdx *Index
	_, ok = nilIdx.FindByName("a")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	orig, err := Decode(strings.NewReader(dummyJSON))
	require.NoError(t, err)

	c := orig.Clone()
	*c.Name = "changed"
	c.APIs["Other"] = "http://other"
	c.Meta["owner"] = "dev"
	c.Docs[0].APIs[0] = "Other"

	assert.Equal(t, "_it._tcp", orig.NameValue())
	assert.NotContains(t, orig.APIs, "Other")
	assert.Equal(t, "qa", orig.Meta["owner"])
	assert.Equal(t, "Test API", orig.Docs[0].APIs[0])

	var nilSvc *Service
	assert.Nil(t, nilSvc.Clone())
	assert.Equal(t, "", nilSvc.NameValue())
}

func TestCloneCopiesNestedMeta(t *testing.T) {
	orig := &Service{
		Name: Str("nested"),
		Meta: map[string]any{
			"labels": map[string]any{"tier": "backend"},
			"tags":   []any{"a", map[string]any{"k": "v"}},
		},
	}

	c := orig.Clone()
	c.Meta["labels"].(map[string]any)["tier"] = "frontend"
	c.Meta["tags"].([]any)[0] = "changed"
	c.Meta["tags"].([]any)[1].(map[string]any)["k"] = "changed"

	assert.Equal(t, "backend", orig.Meta["labels"].(map[string]any)["tier"])
	assert.Equal(t, "a", orig.Meta["tags"].([]any)[0])
	assert.Equal(t, "v", orig.Meta["tags"].([]any)[1].(map[string]any)["k"])
}

func TestNormalize(t *testing.T) {
	orig := &Service{
		Name: Str("numbers"),
		Meta: map[string]any{
			"version": 1,
			"nested":  map[string]any{"replicas": int64(3), "zones": []string{"a"}},
		},
	}

	n, err := Normalize(orig)
	require.NoError(t, err)
	assert.Equal(t, float64(1), n.Meta["version"])
	assert.Equal(t, map[string]any{"replicas": float64(3), "zones": []any{"a"}}, n.Meta["nested"])
	assert.Equal(t, 1, orig.Meta["version"], "input must not change")

	empty, err := Normalize(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}
