// Package registry is a file-backed registry hive: a tree of
// case-insensitive keys, each holding named string values.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"
)

// Well-known key roots.
const (
	ClassesRoot   = `HKCU\Software\Classes`
	UninstallRoot = `HKLM\Software\Microsoft\Windows\CurrentVersion\Uninstall`
)

// Key is one registry key. The empty value name is the key's default value.
type Key struct {
	Path   string            `yaml:"path"`
	Values map[string]string `yaml:"values,omitempty"`
}

type hiveFile struct {
	Keys []*Key `yaml:"keys"`
}

// Hive is an in-memory registry persisted to a YAML file by Save.
type Hive struct {
	file string
	keys map[string]*Key
}

// Open loads the hive stored at file. A missing file yields an empty hive.
func Open(file string) (*Hive, error) {
	h := &Hive{file: file, keys: make(map[string]*Key)}

	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return h, nil
		}
		return nil, fmt.Errorf("read registry %s: %w", file, err)
	}

	var hf hiveFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, errorx.IllegalFormat.Wrap(err, "failed to parse registry file %q", file)
	}
	for _, k := range hf.Keys {
		if k == nil {
			continue
		}
		p := cleanPath(k.Path)
		if p == "" {
			continue
		}
		k.Path = p
		h.keys[fold(p)] = k
	}
	return h, nil
}

// Join builds a key path from segments.
func Join(segments ...string) string {
	return cleanPath(strings.Join(segments, `\`))
}

// CreateKey creates path and any missing ancestors.
func (h *Hive) CreateKey(path string) error {
	p := cleanPath(path)
	if p == "" {
		return errorx.IllegalArgument.New("empty registry key path")
	}
	segs := strings.Split(p, `\`)
	for i := range segs {
		sub := strings.Join(segs[:i+1], `\`)
		if _, ok := h.keys[fold(sub)]; !ok {
			h.keys[fold(sub)] = &Key{Path: sub}
		}
	}
	return nil
}

// SetValue sets a value, creating the key when needed.
func (h *Hive) SetValue(path, name, value string) error {
	if err := h.CreateKey(path); err != nil {
		return err
	}
	k := h.keys[fold(cleanPath(path))]
	if k.Values == nil {
		k.Values = make(map[string]string)
	}
	for existing := range k.Values {
		if strings.EqualFold(existing, name) {
			delete(k.Values, existing)
		}
	}
	k.Values[name] = value
	return nil
}

// Value returns a value and whether it exists.
func (h *Hive) Value(path, name string) (string, bool) {
	k, ok := h.keys[fold(cleanPath(path))]
	if !ok {
		return "", false
	}
	for existing, v := range k.Values {
		if strings.EqualFold(existing, name) {
			return v, true
		}
	}
	return "", false
}

// ValueCount returns the number of values at path.
func (h *Hive) ValueCount(path string) int {
	k, ok := h.keys[fold(cleanPath(path))]
	if !ok {
		return 0
	}
	return len(k.Values)
}

// DeleteValue removes a value. Missing keys and values are ignored.
func (h *Hive) DeleteValue(path, name string) {
	k, ok := h.keys[fold(cleanPath(path))]
	if !ok {
		return
	}
	for existing := range k.Values {
		if strings.EqualFold(existing, name) {
			delete(k.Values, existing)
		}
	}
}

// KeyExists reports whether path exists.
func (h *Hive) KeyExists(path string) bool {
	_, ok := h.keys[fold(cleanPath(path))]
	return ok
}

// DeleteKey removes path and every key below it. It reports whether
// anything was removed.
func (h *Hive) DeleteKey(path string) bool {
	p := fold(cleanPath(path))
	if p == "" {
		return false
	}
	removed := false
	prefix := p + `\`
	for k := range h.keys {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(h.keys, k)
			removed = true
		}
	}
	return removed
}

// SubKeys returns the sorted names of the immediate children of path.
func (h *Hive) SubKeys(path string) []string {
	parent := cleanPath(path)
	prefix := fold(parent) + `\`
	depth := len(strings.Split(parent, `\`))
	var names []string
	for k, key := range h.keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		segs := strings.Split(key.Path, `\`)
		if len(segs) == depth+1 {
			names = append(names, segs[depth])
		}
	}
	sort.Strings(names)
	return names
}

// Save writes the hive atomically: a temporary file in the same directory
// is renamed over the previous one.
func (h *Hive) Save() error {
	paths := make([]string, 0, len(h.keys))
	for k := range h.keys {
		paths = append(paths, k)
	}
	sort.Strings(paths)

	hf := hiveFile{Keys: make([]*Key, 0, len(paths))}
	for _, k := range paths {
		hf.Keys = append(hf.Keys, h.keys[k])
	}
	data, err := yaml.Marshal(&hf)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(h.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.file); err != nil {
		return fmt.Errorf("replace registry %s: %w", h.file, err)
	}
	return nil
}

// Len returns the number of keys.
func (h *Hive) Len() int { return len(h.keys) }

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	parts := strings.Split(p, `\`)
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, `\`)
}

func fold(p string) string { return strings.ToLower(p) }
