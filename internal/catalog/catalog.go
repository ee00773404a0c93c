// Package catalog loads the list of scripts the runner may launch.
//
// A catalog is a flat list of entries, each naming a script path (its
// identity), a display label, whether it needs privilege elevation, free-form
// tags and a description. JSON, YAML and TOML files are accepted; the format
// is chosen from the file extension.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Script describes one launchable script. It is immutable once loaded.
type Script struct {
	Label       string   `json:"label" yaml:"label" toml:"label"`
	Path        string   `json:"path" yaml:"path" toml:"path"`
	NeedsSudo   bool     `json:"needs_sudo" yaml:"needs_sudo" toml:"needs_sudo"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	resolved string
}

// Identity returns the key used for run tracking and sink ownership. It is
// the resolved path once the script was added to a catalog or passed through
// Resolved, and the cleaned raw path otherwise.
func (s Script) Identity() string {
	if s.resolved != "" {
		return s.resolved
	}

	if s.Path == "" {
		return ""
	}

	return filepath.Clean(s.Path)
}

// Resolved returns a copy of s identified by its path resolved against
// baseDir. A script that is already resolved is returned unchanged.
func (s Script) Resolved(baseDir string) Script {
	if s.resolved == "" {
		s.resolved = ResolvePath(baseDir, s.Path)
	}

	return s
}

// DisplayLabel returns the label, falling back to the path's base name.
func (s Script) DisplayLabel() string {
	if strings.TrimSpace(s.Label) != "" {
		return s.Label
	}

	return filepath.Base(s.Path)
}

// HasTag reports whether the script carries tag (case-insensitive).
func (s Script) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}

	return false
}

// Format identifies a catalog file encoding.
type Format string

// Supported catalog formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	// ErrEmptyPath is returned when an entry has no path.
	ErrEmptyPath = errors.New("catalog entry has empty path")
	// ErrDuplicate is returned when two entries resolve to the same path.
	ErrDuplicate = errors.New("duplicate catalog entry")
	// ErrUnknownFormat is returned for unsupported file extensions.
	ErrUnknownFormat = errors.New("unknown catalog format")
)

// Catalog is a validated, ordered set of scripts plus the directory
// relative script paths are resolved against.
type Catalog struct {
	baseDir string
	scripts []Script
	byID    map[string]int
}

// New validates scripts and builds a catalog rooted at baseDir.
func New(baseDir string, scripts []Script) (*Catalog, error) {
	c := &Catalog{
		baseDir: baseDir,
		scripts: make([]Script, 0, len(scripts)),
		byID:    make(map[string]int, len(scripts)),
	}

	for i, s := range scripts {
		s.Path = strings.TrimSpace(s.Path)
		if s.Path == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyPath)
		}

		s = s.Resolved(baseDir)

		if _, dup := c.byID[s.Identity()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, s.Path)
		}

		c.byID[s.Identity()] = len(c.scripts)
		c.scripts = append(c.scripts, s)
	}

	return c, nil
}

// Load reads and parses a catalog file. Relative script paths resolve
// against the file's directory.
func Load(path string) (*Catalog, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	scripts, err := Parse(data, format)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	return New(filepath.Dir(abs), scripts)
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// document is the table form accepted by every format: {"scripts": [...]}.
// TOML has no top-level arrays, so it always uses this form.
type document struct {
	Scripts []Script `json:"scripts" yaml:"scripts" toml:"scripts"`
}

// Parse decodes catalog entries. JSON and YAML accept either a bare list or
// a document with a scripts key.
func Parse(data []byte, format Format) ([]Script, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch format {
	case FormatJSON:
		if trimmed[0] == '[' {
			var list []Script
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("parse json catalog: %w", err)
			}

			return list, nil
		}

		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parse json catalog: %w", err)
		}

		return doc.Scripts, nil
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}

		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var list []Script
			if err := node.Content[0].Decode(&list); err != nil {
				return nil, fmt.Errorf("parse yaml catalog: %w", err)
			}

			return list, nil
		}

		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse yaml catalog: %w", err)
		}

		return doc.Scripts, nil
	case FormatTOML:
		var doc document
		if err := toml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parse toml catalog: %w", err)
		}

		return doc.Scripts, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// BaseDir returns the directory relative paths resolve against.
func (c *Catalog) BaseDir() string {
	return c.baseDir
}

// Scripts returns the entries in catalog order.
func (c *Catalog) Scripts() []Script {
	out := make([]Script, len(c.scripts))
	copy(out, c.scripts)

	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.scripts)
}

// Get returns the entry with the given identity.
func (c *Catalog) Get(identity string) (Script, bool) {
	i, ok := c.byID[identity]
	if !ok {
		return Script{}, false
	}

	return c.scripts[i], true
}

// Lookup finds an entry by identity, then by path relative to the base
// directory, then by label (case-insensitive).
func (c *Catalog) Lookup(ref string) (Script, bool) {
	if s, ok := c.Get(ref); ok {
		return s, true
	}

	if s, ok := c.Get(ResolvePath(c.baseDir, ref)); ok {
		return s, true
	}

	for _, s := range c.scripts {
		if strings.EqualFold(s.DisplayLabel(), ref) {
			return s, true
		}
	}

	return Script{}, false
}

// Resolve returns the absolute execution path for s.
func (c *Catalog) Resolve(s Script) string {
	return ResolvePath(c.baseDir, s.Path)
}

// ResolvePath joins relative paths onto baseDir and cleans the result.
func ResolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(baseDir, path)
}

// Filter returns entries whose label contains term and that carry tag.
// Empty term or tag matches everything.
func (c *Catalog) Filter(term, tag string) []Script {
	term = strings.ToLower(strings.TrimSpace(term))
	tag = strings.TrimSpace(tag)

	var out []Script

	for _, s := range c.scripts {
		if term != "" && !strings.Contains(strings.ToLower(s.DisplayLabel()), term) {
			continue
		}

		if tag != "" && !s.HasTag(tag) {
			continue
		}

		out = append(out, s)
	}

	return out
}

// Tags returns the sorted set of tags across all entries.
func (c *Catalog) Tags() []string {
	seen := make(map[string]struct{})

	for _, s := range c.scripts {
		for _, t := range s.Tags {
			seen[t] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}

	sort.Strings(tags)

	return tags
}
