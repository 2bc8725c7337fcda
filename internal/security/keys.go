package security

import (
	"crypto/subtle"
	"strings"
)

// KeySet holds the pre-shared keys that trusted server-to-server callers
// present to skip browser-oriented checks.
type KeySet struct {
	keys [][]byte
}

// NewKeySet builds a KeySet, ignoring blank entries.
func NewKeySet(keys []string) *KeySet {
	ks := &KeySet{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		ks.keys = append(ks.keys, []byte(k))
	}
	return ks
}

// Len returns the number of configured keys.
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// Contains reports whether candidate equals one of the configured keys.
// Every key is compared so the running time does not reveal which key, if
// any, matched.
func (ks *KeySet) Contains(candidate string) bool {
	if ks == nil || candidate == "" {
		return false
	}

	c := []byte(candidate)
	match := 0
	for _, k := range ks.keys {
		match |= subtle.ConstantTimeCompare(k, c)
	}
	return match == 1
}
