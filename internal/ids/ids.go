// Package ids generates deterministic, short, prefixed identifiers for
// Binnacle entities and edges.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefixes for each entity kind. Legacy prefixes are accepted on read and
// migrated to their modern equivalents (see Canonicalize).
const (
	PrefixWorkItem = "bn-"  // task, bug, idea, milestone, doc
	PrefixQueue    = "bnq-"
	PrefixEdge     = "bne-"
	PrefixTest     = "bnt-"
	PrefixAgent    = "bna-"

	legacyPrefixIdea      = "bni-"
	legacyPrefixDoc       = "bnd-"
)

// suffixLen is the number of hex characters appended after the prefix.
const suffixLen = 4

// Exists reports whether a candidate id is already present, across every
// entity kind. Callers supply a closure backed by the live cache.
type Exists func(id string) bool

// Generate produces a deterministic id for (prefix, seed) salted with salt.
// The same (prefix, seed, salt) triple always yields the same id; changing
// salt is how callers search for a free candidate.
func Generate(prefix, seed string, salt int) string {
	h := sha256.New()
	h.Write([]byte(seed))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", salt)
	sum := h.Sum(nil)
	return prefix + hex.EncodeToString(sum)[:suffixLen]
}

// GenerateUnique retries Generate with an increasing salt until the
// candidate is absent from exists. It never loops forever in practice: the
// suffix space is 16^4 = 65536 and salts are tried in order starting at 0.
func GenerateUnique(prefix, seed string, exists Exists) string {
	for salt := 0; ; salt++ {
		candidate := Generate(prefix, seed, salt)
		if !exists(candidate) {
			return candidate
		}
	}
}

// Prefix returns the prefix portion of an id (everything up to and
// including the first '-'). Identifiers are opaque beyond this: callers
// must never parse further into the suffix.
func Prefix(id string) string {
	idx := strings.Index(id, "-")
	if idx < 0 {
		return id
	}
	return id[:idx+1]
}

// Canonicalize rewrites a legacy-prefixed id to its modern prefix, preserving
// the suffix. IDs without a recognized legacy prefix are returned unchanged.
func Canonicalize(id string) string {
	switch {
	case strings.HasPrefix(id, legacyPrefixIdea):
		return PrefixWorkItem + strings.TrimPrefix(id, legacyPrefixIdea)
	case strings.HasPrefix(id, legacyPrefixDoc):
		return PrefixWorkItem + strings.TrimPrefix(id, legacyPrefixDoc)
	default:
		return id
	}
}

// IsLegacy reports whether id uses one of the pre-migration prefixes.
func IsLegacy(id string) bool {
	return strings.HasPrefix(id, legacyPrefixIdea) || strings.HasPrefix(id, legacyPrefixDoc)
}
