// Package config implements the keyed configuration store consumed by the
// tree and forest packages. Values are loaded once at startup, either from
// a YAML file or programmatically, and read through typed getters for the
// remainder of the process lifetime.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kgregersen/reweighter/internal/errkind"
)

// Error reports a missing required key or a value of the wrong type.
type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Msg)
}

// Method identifies which ensemble algorithm a Map configures.
type Method string

const (
	MethodBDT Method = "BDT"
	MethodRF  Method = "RF"
	MethodET  Method = "ET"
)

// Map is a keyed store of configuration values, analogous to the original
// Config singleton but explicit and independently instantiable so tests can
// build isolated configurations.
type Map struct {
	values map[string]interface{}
}

// New returns an empty configuration map.
func New() *Map {
	return &Map{values: make(map[string]interface{})}
}

// Load reads a YAML document from path into a new Map. Recognized keys are
// listed in spec.md §6; unrecognized keys are kept but never read.
func Load(path string) (*Map, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Config, "config", fmt.Errorf("reading %s: %w", path, err))
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, errkind.Wrap(errkind.Config, "config", fmt.Errorf("parsing %s: %w", path, err))
	}

	return &Map{values: raw}, nil
}

// Set stores a value under key, overwriting any previous value.
func (m *Map) Set(key string, val interface{}) {
	m.values[key] = val
}

// GetString returns the string value at key, fatal if absent or the wrong type.
func (m *Map) GetString(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", &Error{Key: key, Msg: "missing required key"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Key: key, Msg: "expected string"}
	}
	return s, nil
}

// GetStringIf returns the string at key if present, leaving dflt unchanged
// otherwise. Mirrors Config::Instance().getif<std::string>.
func (m *Map) GetStringIf(key, dflt string) string {
	if v, ok := m.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return dflt
}

// GetInt returns the int value at key, fatal if absent or the wrong type.
func (m *Map) GetInt(key string) (int, error) {
	v, ok := m.values[key]
	if !ok {
		return 0, &Error{Key: key, Msg: "missing required key"}
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, &Error{Key: key, Msg: "expected int"}
	}
}

// GetFloat returns the float64 value at key, fatal if absent or the wrong type.
func (m *Map) GetFloat(key string) (float64, error) {
	v, ok := m.values[key]
	if !ok {
		return 0, &Error{Key: key, Msg: "missing required key"}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, &Error{Key: key, Msg: "expected float"}
	}
}

// GetBool returns the bool value at key, or false if absent.
// Bagging is optional and defaults to false, matching the original's
// Config::Instance().getif<bool>("Bagging", bagging).
func (m *Map) GetBool(key string) bool {
	if v, ok := m.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Method returns the configured ensemble method.
func (m *Map) Method() (Method, error) {
	s, err := m.GetString("Method")
	if err != nil {
		return "", err
	}
	switch Method(s) {
	case MethodBDT, MethodRF, MethodET:
		return Method(s), nil
	default:
		return "", &Error{Key: "Method", Msg: fmt.Sprintf("unrecognized method %q", s)}
	}
}

// Lines returns every key=value pair in the map, sorted for deterministic
// output, for echoing into the weights file's ConfigFile block.
func (m *Map) Lines() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	// simple insertion sort, map is small and this avoids importing sort
	// for a single call site elsewhere pulling in more than needed
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%v", k, m.values[k]))
	}
	return lines
}
