// Package featureflags evaluates rollout flags for anonymous identities.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags read by the feed services.
const (
	// FeedCache routes feed reads through the Redis cache-aside layer.
	FeedCache = "feed_cache"
	// Realtime publishes feed invalidation events to websocket subscribers.
	Realtime = "realtime"
)

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "feed_cache=on,realtime=25%"
type Manager struct {
	flags map[string]string
}

// NewManager creates a feature-flag manager from a comma-separated config string.
// Later entries override earlier ones.
func NewManager(raw string) *Manager {
	out := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled reports whether a flag is on for the given key, usually an anonymous id.
// Values are on/true/1, off/false/0, or N% for a deterministic rollout by key.
// An empty key only passes a percentage rollout at 100%.
func (m *Manager) Enabled(name, key string) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil, pct <= 0:
		return false
	case pct >= 100:
		return true
	case key == "":
		return false
	}
	return rolloutBucket(name, key) < pct
}

// EnabledGlobally reports whether a flag is fully on, independent of any key.
func (m *Manager) EnabledGlobally(name string) bool {
	return m.Enabled(name, "")
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot returns evaluated flag status for one key.
func (m *Manager) Snapshot(key string) map[string]bool {
	raw := m.Raw()
	out := make(map[string]bool, len(raw))
	for name := range raw {
		out[name] = m.Enabled(name, key)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + key))
	return int(h.Sum32() % 100)
}
