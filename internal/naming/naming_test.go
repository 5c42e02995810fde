package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		version int64
		want    string
	}{
		{"leading slash", "/docs/readme", 1, "docs/readme/v1/content"},
		{"surrounding slashes", "/docs/readme/", 2, "docs/readme/v2/content"},
		{"no slash", "a/b.txt", 10, "a/b.txt/v10/content"},
		{"percent decoded", "/my%20docs/a%2Fb", 3, "my docs/a/b/v3/content"},
		{"decoded once only", "/x%2541", 1, "x%41/v1/content"},
		{"malformed escape kept", "/bad%zz", 1, "bad%zz/v1/content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(CanonicalPath(tt.path), tt.version))
		})
	}
}

func TestObjectKey_EncodedAliasesShareOnePath(t *testing.T) {
	pairs := [][2]string{
		{"/a b", "/a%20b"},
		{"/a/b", "/a%2Fb"},
		{"/docs/readme", "%2Fdocs%2Freadme%2F"},
	}
	for _, p := range pairs {
		assert.Equal(t, CanonicalPath(p[0]), CanonicalPath(p[1]), "%s vs %s", p[0], p[1])
		assert.Equal(t, ObjectKey(CanonicalPath(p[0]), 1), ObjectKey(CanonicalPath(p[1]), 1))
	}
}

func TestObjectKey_DistinctCanonicalPathsDistinctKeys(t *testing.T) {
	paths := []string{"/x%2541", "/x%41", "/xA", "/a b", "/a%2520b", "/a/b", "/a//b"}
	keys := map[string]string{}
	for _, raw := range paths {
		p := CanonicalPath(raw)
		k := ObjectKey(p, 1)
		if prev, ok := keys[k]; ok {
			assert.Equal(t, prev, p, "key %s shared by %s and %s", k, prev, p)
		}
		keys[k] = p
	}
	assert.Equal(t, "/x%41", CanonicalPath("/x%2541"))
	assert.Equal(t, "x%41/v1/content", ObjectKey(CanonicalPath("/x%2541"), 1))
	assert.Equal(t, "xA/v1/content", ObjectKey(CanonicalPath("/x%41"), 1))
}

func TestObjectKey_Deterministic(t *testing.T) {
	a := ObjectKey("/docs/readme", 7)
	b := ObjectKey("/docs/readme", 7)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ObjectKey("/docs/readme", 8))
}

func TestListPrefix(t *testing.T) {
	assert.Equal(t, "docs/readme/", ListPrefix("/docs/readme"))
	assert.Equal(t, "docs/readme/", ListPrefix(CanonicalPath("docs/readme/")))

	key := ObjectKey("/docs/readme", 4)
	assert.Contains(t, key, ListPrefix("/docs/readme"))
}

func TestIsContentKey(t *testing.T) {
	assert.True(t, IsContentKey(ObjectKey("/a", 1)))
	assert.False(t, IsContentKey("a/v1/meta.json"))
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/docs/readme", CanonicalPath("docs/readme"))
	assert.Equal(t, "/docs/readme", CanonicalPath(" /docs/readme/ "))
	assert.Equal(t, "/a b", CanonicalPath("/a%20b"))
	assert.Equal(t, "/a/b", CanonicalPath("/a%2Fb"))
	assert.Equal(t, "/bad%zz", CanonicalPath("/bad%zz"))
	assert.Equal(t, "", CanonicalPath("///"))
	assert.Equal(t, "", CanonicalPath(""))
}

func TestCanonicalPath_SlashOnlyEncodingsAreEmpty(t *testing.T) {
	for _, p := range []string{"%2F", "/%2F/", "%2F%2F", " %2f "} {
		assert.Equal(t, "", CanonicalPath(p), p)
	}
}

func TestVersionOf(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want int64
		ok   bool
	}{
		{"own version", "docs/v3/content", 3, true},
		{"deeper path", "docs/readme/v1/content", 0, false},
		{"other path", "doc/v1/content", 0, false},
		{"not content", "docs/v1/meta.json", 0, false},
		{"zero version", "docs/v0/content", 0, false},
		{"leading zero", "docs/v01/content", 0, false},
		{"not a number", "docs/vx/content", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := VersionOf("/docs", tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}
