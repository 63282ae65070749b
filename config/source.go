package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Source resolves a setting by key. ok is false when the key is absent.
type Source interface {
	Lookup(key string) (value string, ok bool, err error)
}

// Map is a Source backed by an in-memory map.
type Map map[string]string

// Lookup implements Source.
func (m Map) Lookup(key string) (string, bool, error) {
	value, ok := m[key]
	return value, ok, nil
}

type fileSource struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// File returns a Source reading a flat YAML mapping of keys to scalar values:
//
//	ConnectionString: "relay:secret@tcp(127.0.0.1:3306)/relay"
//	NumThreads: 5
//
// The file is read on first lookup. A read or parse error is returned by every Lookup.
func File(path string) Source {
	return &fileSource{path: path}
}

func (f *fileSource) Lookup(key string) (string, bool, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false, f.err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fileSource) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("msgrelay config: read %s: %w", f.path, err)
		return
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		f.err = fmt.Errorf("msgrelay config: parse %s: %w", f.path, err)
		return
	}

	f.values = make(map[string]string, len(raw))
	for key, node := range raw {
		if node.Kind != yaml.ScalarNode {
			f.err = fmt.Errorf("msgrelay config: %s: key %s is not a scalar", f.path, key)
			return
		}
		f.values[key] = node.Value
	}
}

type envSource struct {
	prefix string
}

// Env returns a Source reading environment variables. A key maps to
// PREFIX_UPPER_SNAKE_KEY, so with prefix MSGRELAY, ConnectionString is read
// from MSGRELAY_CONNECTION_STRING.
func Env(prefix string) Source {
	return envSource{prefix: prefix}
}

func (e envSource) Lookup(key string) (string, bool, error) {
	value, ok := os.LookupEnv(EnvName(e.prefix, key))
	return value, ok, nil
}

// EnvName returns the environment variable consulted for key.
func EnvName(prefix, key string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.ToUpper(prefix))
		b.WriteByte('_')
	}
	runes := []rune(key)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

type chain []Source

// Chain returns a Source consulting sources in order; the first hit wins.
// Errors from skipped sources are returned alongside the value.
func Chain(sources ...Source) Source {
	return chain(sources)
}

func (c chain) Lookup(key string) (string, bool, error) {
	var errs []error
	for _, src := range c {
		value, ok, err := src.Lookup(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return value, true, errors.Join(errs...)
		}
	}
	return "", false, errors.Join(errs...)
}
