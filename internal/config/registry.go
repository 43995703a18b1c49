// Package config maintains the registry of configuration keys that castauth
// and its plugins understand. Plugins register their keys from init() so that
// typos in castauth.yaml or CA__ environment variables can be flagged with a
// suggestion instead of being silently ignored.
package config

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/knadh/koanf/v2"
)

// ConfigKeyInfo describes a single known configuration key.
type ConfigKeyInfo struct {
	Key         string      // Full key path, e.g. "farcaster.relayURL".
	Description string      // What the key controls.
	Type        string      // Type hint: "string", "int", "bool", "duration".
	Default     interface{} // Applied when no source provides the key.
	Deprecated  bool
	ReplacedBy  string // Replacement key when Deprecated is set.
}

var (
	registry   = make(map[string]ConfigKeyInfo)
	registryMu sync.RWMutex

	defaultsOnce sync.Once
)

// RegisterConfigKey records a known configuration key. Re-registering a key
// replaces the earlier entry.
func RegisterConfigKey(info ConfigKeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[info.Key] = info
}

// RegisterConfigKeys records several keys at once.
func RegisterConfigKeys(infos ...ConfigKeyInfo) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, info := range infos {
		registry[info.Key] = info
	}
}

// RegisterDeprecatedKey records a key that still loads but should be replaced.
// Validation will point users at newKey.
func RegisterDeprecatedKey(oldKey, newKey string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[oldKey] = ConfigKeyInfo{
		Key:        oldKey,
		Deprecated: true,
		ReplacedBy: newKey,
	}
}

// IsRegisteredKey reports whether key has been registered.
func IsRegisteredKey(key string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[key]
	return ok
}

// LookupConfigKey returns the metadata for a registered key.
func LookupConfigKey(key string) (ConfigKeyInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[key]
	return info, ok
}

// AllRegisteredKeys returns every registered key, sorted.
func AllRegisteredKeys() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnsureDefaultsLoaded applies registered defaults to k for any key no config
// source has set. Called once by the server builder after all init() functions
// have had a chance to register keys; later calls are no-ops.
func EnsureDefaultsLoaded(k *koanf.Koanf) {
	defaultsOnce.Do(func() {
		registryMu.RLock()
		defer registryMu.RUnlock()
		for key, info := range registry {
			if info.Default != nil && !k.Exists(key) {
				k.Set(key, info.Default)
			}
		}
	})
}

// maxSuggestionDistance bounds how different a registered key can be from an
// unknown key and still be offered as a suggestion.
const maxSuggestionDistance = 3

// FindSimilarKeys returns up to maxResults registered keys that look like
// plausible intended spellings of key, most similar first. Keys sharing the
// same namespace prefix (the part before the last dot) rank slightly higher,
// so "farcaster.relayUrl" suggests "farcaster.relayURL" ahead of unrelated
// short keys.
func FindSimilarKeys(key string, maxResults int) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	prefix := namespaceOf(key)

	type candidate struct {
		key      string
		distance int
	}
	var candidates []candidate
	for registered := range registry {
		d := levenshtein.ComputeDistance(key, registered)
		if d > 0 && prefix != "" && prefix == namespaceOf(registered) {
			d--
		}
		if d <= maxSuggestionDistance {
			candidates = append(candidates, candidate{registered, d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.key
	}
	return keys
}

// hasRegisteredPrefix reports whether some ancestor of key is itself a
// registered key. Registering "myapp" as a namespace lets applications carry
// arbitrary "myapp.*" keys without tripping validation.
func hasRegisteredPrefix(key string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if _, ok := registry[strings.Join(parts[:i], ".")]; ok {
			return true
		}
	}
	return false
}

// namespaceOf returns everything before the final dot of a key, or "" for
// top-level keys.
func namespaceOf(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[:i]
	}
	return ""
}
