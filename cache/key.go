package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// keySep separates key parts in the canonical encoding. It can never
// appear inside a JSON-encoded part, so prefix checks stay boundary-safe.
const keySep = "\x1f"

// Key is an ordered tuple identifying a cached result: a root resource
// name, optional sub-resource names, and optional parameter objects.
// Keys form a prefix hierarchy: Key{"groups"} is a prefix of
// Key{"groups", "list", params} and invalidating the former covers the
// latter.
type Key []any

// NewKey builds a key from a resource name and optional parts.
// Nil parts (including typed nil pointers) are omitted rather than
// encoded, so a missing filter object does not change the key shape.
func NewKey(resource string, parts ...any) Key {
	k := Key{resource}
	for _, p := range parts {
		if isNil(p) {
			continue
		}
		k = append(k, p)
	}
	return k
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Canonical returns an order-stable string encoding of the key. String
// parts are used verbatim; everything else is JSON-encoded (encoding/json
// sorts map keys, and struct fields encode in declaration order), so two
// deep-equal keys always canonicalize to the same bytes.
func (k Key) Canonical() string {
	parts := make([]string, len(k))
	for i, p := range k {
		switch v := p.(type) {
		case string:
			parts[i] = v
		default:
			b, err := json.Marshal(p)
			if err != nil {
				parts[i] = fmt.Sprintf("%v", p)
			} else {
				parts[i] = string(b)
			}
		}
	}
	return strings.Join(parts, keySep)
}

// Equal reports whether two keys canonicalize identically.
func (k Key) Equal(other Key) bool {
	return k.Canonical() == other.Canonical()
}

// HasPrefix reports whether prefix matches the leading parts of k.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) == 0 {
		return true
	}
	return canonicalHasPrefix(k.Canonical(), prefix.Canonical())
}

func canonicalHasPrefix(ck, cp string) bool {
	if ck == cp {
		return true
	}
	return strings.HasPrefix(ck, cp+keySep)
}

func (k Key) String() string {
	return strings.ReplaceAll(k.Canonical(), keySep, "/")
}
