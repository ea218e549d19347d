package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Keyer builds cache keys for pipeline artifacts.
//
// Stage keys embed the model name so switching models never serves output
// generated by another model.
type Keyer struct {
	prefix string
}

// NewKeyer creates a keyer with no scope prefix.
func NewKeyer() *Keyer {
	return &Keyer{}
}

// Scoped returns a keyer whose keys are additionally prefixed with scope.
// Used to separate private-repo results per authenticated user.
func (k *Keyer) Scoped(scope string) *Keyer {
	return &Keyer{prefix: k.prefix + scope}
}

// ContextKey identifies the fetched repository context (tree + README).
func (k *Keyer) ContextKey(owner, repo, branch string) string {
	return k.prefix + "context:" + strings.ToLower(owner+"/"+repo) + "@" + branch
}

// StageKey identifies the output of one LLM stage for the given inputs.
func (k *Keyer) StageKey(stage, model string, parts ...string) string {
	return k.prefix + hashKey("stage:"+stage, model, parts)
}

// HTTPKey identifies a cached HTTP response.
func (k *Keyer) HTTPKey(namespace, key string) string {
	return k.prefix + "http:" + namespace + ":" + key
}

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashString is Hash for strings.
func HashString(s string) string {
	return Hash([]byte(s))
}
