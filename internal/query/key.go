package query

import (
	"encoding/json"
	"slices"
)

// Key is an ordered tuple identifying a cached read, e.g. ["boards", id].
type Key []string

// HasPrefix reports whether k begins with prefix. Every key has the empty
// prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return len(prefix) <= len(k) && slices.Equal(k[:len(prefix)], prefix)
}

func (k Key) String() string {
	return k.hash()
}

func (k Key) hash() string {
	b, _ := json.Marshal([]string(k))
	return string(b)
}
