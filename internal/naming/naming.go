// Package naming maps logical file paths to blob-store keys.
//
// Keys are a pure function of (path, version), so the blob of any metadata
// row can always be re-derived without storing the key itself.
package naming

import (
	"net/url"
	"strconv"
	"strings"
)

const contentSuffix = "/content"

// Normalize percent-decodes p exactly once and strips surrounding slashes.
// A malformed escape sequence leaves the path undecoded.
func Normalize(p string) string {
	decoded, err := url.PathUnescape(p)
	if err != nil {
		decoded = p
	}
	return strings.Trim(decoded, "/")
}

// CanonicalPath is the form a logical path is persisted in: surrounding
// whitespace dropped, decoded and trimmed by Normalize, a single leading
// slash added. A path that decodes to nothing yields "".
func CanonicalPath(p string) string {
	n := Normalize(strings.TrimSpace(p))
	if n == "" {
		return ""
	}
	return "/" + n
}

// ObjectKey returns the key holding the bytes of version of canonicalPath:
// <path without leading slash>/v<version>/content. canonicalPath must come
// from CanonicalPath; it is not decoded again, so distinct canonical paths
// never share a key.
func ObjectKey(canonicalPath string, version int64) string {
	return strings.TrimPrefix(canonicalPath, "/") + "/v" + strconv.FormatInt(version, 10) + contentSuffix
}

// ListPrefix returns the prefix under which every version of canonicalPath
// lives. Keys of deeper paths share it; see VersionOf.
func ListPrefix(canonicalPath string) string {
	return strings.TrimPrefix(canonicalPath, "/") + "/"
}

// IsContentKey reports whether key looks like one produced by ObjectKey.
func IsContentKey(key string) bool {
	return strings.HasSuffix(key, contentSuffix)
}

// VersionOf reports which version of canonicalPath key holds. ok is false
// for keys of other paths, including deeper ones under the same prefix.
func VersionOf(canonicalPath, key string) (version int64, ok bool) {
	rest, found := strings.CutPrefix(key, ListPrefix(canonicalPath))
	if !found {
		return 0, false
	}
	rest, found = strings.CutSuffix(rest, contentSuffix)
	if !found || !strings.HasPrefix(rest, "v") {
		return 0, false
	}
	v, err := strconv.ParseInt(rest[1:], 10, 64)
	if err != nil || v < 1 || strconv.FormatInt(v, 10) != rest[1:] {
		return 0, false
	}
	return v, true
}
