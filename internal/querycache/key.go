package querycache

import (
	"net/url"
	"strings"
)

// Key identifies one cached resource: a resource kind followed by its
// serialized parameters, e.g. {"user", "42"} or {"users", "limit=8&page=1"}.
type Key []string

// NewKey builds a key from a kind and optional parameters.
func NewKey(kind string, params ...string) Key {
	k := make(Key, 0, 1+len(params))
	k = append(k, kind)
	return append(k, params...)
}

// Kind returns the resource kind, or "" for an empty key.
func (k Key) Kind() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// String is the canonical, unambiguous form used as the storage key.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// HasPrefix reports whether pattern matches k part by part. An empty
// pattern matches every key.
func (k Key) HasPrefix(pattern Key) bool {
	if len(pattern) > len(k) {
		return false
	}
	for i := range pattern {
		if k[i] != pattern[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have identical parts.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
