package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// PlanKey derives the cache key for a request text. The registry fingerprint
// is folded in so cached plans invalidate whenever the tool set changes, and
// the seed context keys are folded in so a plan computed against one seed is
// not replayed for a run seeded differently.
func PlanKey(text, registryFingerprint string, contextKeys []string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	keys := append([]string(nil), contextKeys...)
	sort.Strings(keys)
	sum := sha1.Sum([]byte(normalized + "|" + registryFingerprint + "|" + strings.Join(keys, ",")))
	return "plan:" + hex.EncodeToString(sum[:])
}
