package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const jsonList = `[
  {"label": "Update", "path": "scripts/update.sh", "needs_sudo": true, "tags": ["system"], "description": "apt update"},
  {"label": "Disk", "path": "/usr/local/bin/disk.sh", "tags": ["system", "info"]}
]`

const yamlDoc = `scripts:
  - label: Update
    path: scripts/update.sh
    needs_sudo: true
    tags: [system]
    description: apt update
  - label: Disk
    path: /usr/local/bin/disk.sh
    tags: [system, info]
`

const yamlList = `- label: Update
  path: scripts/update.sh
  needs_sudo: true
  tags: [system]
  description: apt update
- label: Disk
  path: /usr/local/bin/disk.sh
  tags: [system, info]
`

const tomlDoc = `[[scripts]]
label = "Update"
path = "scripts/update.sh"
needs_sudo = true
tags = ["system"]
description = "apt update"

[[scripts]]
label = "Disk"
path = "/usr/local/bin/disk.sh"
tags = ["system", "info"]
`

func wantScripts() []Script {
	return []Script{
		{Label: "Update", Path: "scripts/update.sh", NeedsSudo: true, Tags: []string{"system"}, Description: "apt update"},
		{Label: "Disk", Path: "/usr/local/bin/disk.sh", Tags: []string{"system", "info"}},
	}
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"json list", jsonList, FormatJSON},
		{"json document", `{"scripts": ` + jsonList + `}`, FormatJSON},
		{"yaml document", yamlDoc, FormatYAML},
		{"yaml list", yamlList, FormatYAML},
		{"toml", tomlDoc, FormatTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			if !reflect.DeepEqual(got, wantScripts()) {
				t.Errorf("Parse() = %#v, want %#v", got, wantScripts())
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse([]byte("  \n"), FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(got) != 0 {
		t.Errorf("Parse() = %v, want empty", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte(`[{"path": }]`), FormatJSON); err == nil {
		t.Error("Parse() expected error for malformed json")
	}

	if _, err := Parse([]byte("x"), Format("ini")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Parse() error = %v, want ErrUnknownFormat", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("/", []Script{{Label: "x"}}); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("New() error = %v, want ErrEmptyPath", err)
	}

	for _, dups := range [][]Script{
		{{Path: "a.sh"}, {Path: "a.sh", Label: "again"}},
		{{Path: "./a.sh"}, {Path: "a.sh"}},
		{{Path: "jobs/../a.sh"}, {Path: "/srv/a.sh"}},
	} {
		if _, err := New("/srv", dups); !errors.Is(err, ErrDuplicate) {
			t.Errorf("New(%s, %s) error = %v, want ErrDuplicate", dups[0].Path, dups[1].Path, err)
		}
	}
}

func TestScript_IdentityIsResolvedPath(t *testing.T) {
	c, err := New("/srv/jobs", []Script{{Label: "Rotate", Path: "./rotate.sh"}})
	if err != nil {
		t.Fatal(err)
	}

	s := c.Scripts()[0]
	if got := s.Identity(); got != "/srv/jobs/rotate.sh" {
		t.Errorf("Identity() = %q, want /srv/jobs/rotate.sh", got)
	}

	if s.Path != "./rotate.sh" {
		t.Errorf("Path = %q, want the catalog spelling kept", s.Path)
	}

	if got := s.Resolved("/elsewhere").Identity(); got != "/srv/jobs/rotate.sh" {
		t.Errorf("Resolved() changed a resolved identity to %q", got)
	}

	for _, ref := range []string{"/srv/jobs/rotate.sh", "rotate.sh", "./rotate.sh", "rotate"} {
		if _, ok := c.Lookup(ref); !ok {
			t.Errorf("Lookup(%q) found nothing", ref)
		}
	}

	loose := Script{Path: "./x/../run.sh"}
	if got := loose.Identity(); got != "run.sh" {
		t.Errorf("unresolved Identity() = %q, want cleaned path", got)
	}
}

func TestLoad_ResolvesRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "scripts.yaml")

	if err := os.WriteFile(file, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(file)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.BaseDir() != dir {
		t.Errorf("BaseDir() = %q, want %q", c.BaseDir(), dir)
	}

	update, ok := c.Lookup("scripts/update.sh")
	if !ok {
		t.Fatal("Lookup(scripts/update.sh) not found")
	}

	if update.Identity() != filepath.Join(dir, "scripts", "update.sh") {
		t.Errorf("Identity() = %q, want resolved path", update.Identity())
	}

	if got, want := c.Resolve(update), filepath.Join(dir, "scripts", "update.sh"); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	disk, _ := c.Get("/usr/local/bin/disk.sh")
	if got := c.Resolve(disk); got != "/usr/local/bin/disk.sh" {
		t.Errorf("Resolve() = %q, want absolute path unchanged", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want not-exist", err)
	}
}

func TestLookupAndFilter(t *testing.T) {
	c, err := New("/opt", wantScripts())
	if err != nil {
		t.Fatal(err)
	}

	if s, ok := c.Lookup("disk"); !ok || s.Path != "/usr/local/bin/disk.sh" {
		t.Errorf("Lookup(disk) = %v, %v", s, ok)
	}

	if _, ok := c.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}

	tests := []struct {
		term, tag string
		want      int
	}{
		{"", "", 2},
		{"up", "", 1},
		{"", "INFO", 1},
		{"disk", "system", 1},
		{"update", "info", 0},
	}

	for _, tt := range tests {
		if got := len(c.Filter(tt.term, tt.tag)); got != tt.want {
			t.Errorf("Filter(%q, %q) = %d entries, want %d", tt.term, tt.tag, got, tt.want)
		}
	}

	if got, want := c.Tags(), []string{"info", "system"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}

func TestDisplayLabel_FallsBackToBase(t *testing.T) {
	s := Script{Path: "/srv/jobs/rotate.sh"}
	if got := s.DisplayLabel(); got != "rotate.sh" {
		t.Errorf("DisplayLabel() = %q, want %q", got, "rotate.sh")
	}
}
