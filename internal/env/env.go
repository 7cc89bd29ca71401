package env

import (
	"os"
	"strings"
)

// Table composes the environment handed to child processes: the launcher's
// own environment as the base, global overrides from the config, and
// per-service overrides on top. Inherited-plus-override, last writer wins.
type Table struct {
	global map[string]string
	base   map[string]string // cached OS environment
}

func New() *Table {
	return &Table{global: make(map[string]string)}
}

// FromOS caches the current process environment as the base layer.
func (t *Table) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := splitKV(kv); ok {
			base[k] = v
		}
	}
	t.base = base
}

// SetGlobal applies KEY=VALUE entries as global overrides. Malformed
// entries are skipped.
func (t *Table) SetGlobal(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := splitKV(kv); ok {
			t.global[k] = v
		}
	}
}

// Merge builds the final KEY=VALUE slice for one service. ${VAR} references
// are expanded against the composed map (single pass, no recursion).
func (t *Table) Merge(perService []string) []string {
	if t.base == nil {
		t.FromOS()
	}
	m := make(map[string]string, len(t.base)+len(t.global)+len(perService))
	for k, v := range t.base {
		m[k] = v
	}
	for k, v := range t.global {
		m[k] = v
	}
	for _, kv := range perService {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func splitKV(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return ""
	})
}
