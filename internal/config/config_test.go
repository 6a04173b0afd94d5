package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sort.Output != "result.txt" {
		t.Errorf("Sort.Output = %q, want result.txt", cfg.Sort.Output)
	}
	if cfg.Generate.Lines != 10000 || cfg.Generate.LineLength != 100 {
		t.Errorf("Generate defaults = %+v", cfg.Generate)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get user home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~", home},
		{"~/foo", filepath.Join(home, "foo")},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExpandHome(tt.input)
			if got != tt.expected {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("BIGSORT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != "/xdg/bigsort/config.toml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv("BIGSORT_CONFIG", "/etc/bigsort.toml")
	if got := DefaultPath(); got != "/etc/bigsort.toml" {
		t.Errorf("DefaultPath() with BIGSORT_CONFIG = %q", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sort.Output != "result.txt" {
		t.Errorf("Sort.Output = %q", cfg.Sort.Output)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[sort]
temp_dir = "/scratch"
chunk_size = "4MiB"
memory_limit = 268435456
keep_chunks = true

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sort.TempDir != "/scratch" {
		t.Errorf("TempDir = %q", cfg.Sort.TempDir)
	}
	if cfg.Sort.ChunkSize != 4*MiB {
		t.Errorf("ChunkSize = %d, want %d", cfg.Sort.ChunkSize, 4*MiB)
	}
	if cfg.Sort.MemoryLimit != 256*MiB {
		t.Errorf("MemoryLimit = %d, want %d", cfg.Sort.MemoryLimit, 256*MiB)
	}
	if !cfg.Sort.KeepChunks {
		t.Error("KeepChunks should be true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Sort.Output != "result.txt" || cfg.Watch.DebounceMs != 500 {
		t.Errorf("defaults lost: output=%q debounce=%d", cfg.Sort.Output, cfg.Watch.DebounceMs)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sort\nchunk_size ="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadInvalidByteSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sort]\nchunk_size = \"lots\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid byte size")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sort]\nchunk_size = \"1MiB\"\ntemp_dir = \"/file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BIGSORT_CHUNK_SIZE", "2MiB")
	t.Setenv("BIGSORT_TMPDIR", "/env")
	t.Setenv("BIGSORT_KEEP_CHUNKS", "true")
	t.Setenv("BIGSORT_MEMORY_LIMIT", "not a size")
	t.Setenv("BIGSORT_REPORT_DIR", "/reports")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sort.ChunkSize != 2*MiB {
		t.Errorf("ChunkSize = %d, want env value", cfg.Sort.ChunkSize)
	}
	if cfg.Sort.TempDir != "/env" {
		t.Errorf("TempDir = %q, want /env", cfg.Sort.TempDir)
	}
	if !cfg.Sort.KeepChunks {
		t.Error("KeepChunks should be set from env")
	}
	if cfg.Sort.MemoryLimit != 0 {
		t.Errorf("invalid env value applied: %d", cfg.Sort.MemoryLimit)
	}
	if !cfg.Report.Enabled || cfg.Report.Dir != "/reports" {
		t.Errorf("Report = %+v", cfg.Report)
	}
}

func TestPrintRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Sort.TempDir = "/scratch"
	cfg.Sort.ChunkSize = 64 * MiB
	cfg.Sort.MemoryLimit = 3 * GiB
	cfg.Watch.Outbox = "/out"

	var buf bytes.Buffer
	if err := Print(cfg, &buf); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if !strings.Contains(buf.String(), `chunk_size = "64MiB"`) {
		t.Errorf("output missing chunk_size:\n%s", buf.String())
	}

	var got Config
	if _, err := toml.Decode(buf.String(), &got); err != nil {
		t.Fatalf("printed config does not parse: %v\n%s", err, buf.String())
	}
	if got != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, *cfg)
	}
}

func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	written, err := CreateDefault(path)
	if err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	if written != path {
		t.Errorf("path = %q, want %q", written, path)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load created config: %v", err)
	}
	if cfg.Sort.Output != "result.txt" {
		t.Errorf("Sort.Output = %q", cfg.Sort.Output)
	}

	if _, err := CreateDefault(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty output", func(c *Config) { c.Sort.Output = "" }, "sort.output"},
		{"negative chunk size", func(c *Config) { c.Sort.ChunkSize = -1 }, "sort.chunk_size"},
		{"hard limit without memory", func(c *Config) { c.Sort.HardLimit = true }, "sort.hard_limit"},
		{"short random lines", func(c *Config) { c.Generate.RandomLength = true; c.Generate.LineLength = 2 }, "generate.line_length"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero debounce", func(c *Config) { c.Watch.DebounceMs = 0 }, "watch.debounce_ms"},
		{"bad pattern", func(c *Config) { c.Watch.Pattern = "[" }, "watch.pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := Validate(cfg)
			if len(errs) != 1 {
				t.Fatalf("got %d errors %v, want 1", len(errs), errs)
			}
			if !strings.HasPrefix(errs[0].Error(), tt.field) {
				t.Errorf("error %q does not name %s", errs[0], tt.field)
			}
		})
	}

	if errs := Validate(nil); len(errs) != 1 {
		t.Errorf("Validate(nil) = %v", errs)
	}
}
