package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/Dicklesworthstone/bigsort/internal/util"
)

// Config holds bigsort settings. Flags override environment variables,
// which override the config file, which overrides Default.
type Config struct {
	Sort     SortConfig     `toml:"sort"`
	Generate GenerateConfig `toml:"generate"`
	Log      LogConfig      `toml:"log"`
	Watch    WatchConfig    `toml:"watch"`
	Report   ReportConfig   `toml:"report"`
}

// SortConfig holds defaults for the sort command.
type SortConfig struct {
	TempDir     string   `toml:"temp_dir"`     // chunk directory; empty means <os temp>/bigsort
	Output      string   `toml:"output"`       // output file when --output is not given
	ChunkSize   ByteSize `toml:"chunk_size"`   // explicit chunk capacity; 0 derives it
	MemoryLimit ByteSize `toml:"memory_limit"` // memory budget used to derive chunk capacity
	HardLimit   bool     `toml:"hard_limit"`   // also cap the address space
	KeepChunks  bool     `toml:"keep_chunks"`
}

// GenerateConfig holds defaults for the generate command.
type GenerateConfig struct {
	Lines        int    `toml:"lines"`
	LineLength   int    `toml:"line_length"`
	RandomLength bool   `toml:"random_length"`
	Dir          string `toml:"dir"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// WatchConfig holds defaults for the watch command.
type WatchConfig struct {
	DebounceMs int    `toml:"debounce_ms"`
	Pattern    string `toml:"pattern"` // glob matched against file names
	Outbox     string `toml:"outbox"`
}

// Debounce returns the debounce interval as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// ReportConfig controls run reports.
type ReportConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"` // empty means next to the output file
}

// DefaultPath returns the config file location.
func DefaultPath() string {
	if env := os.Getenv("BIGSORT_CONFIG"); env != "" {
		return ExpandHome(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bigsort", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// Fallback to /tmp when home directory is unavailable (e.g., containers)
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "bigsort", "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sort: SortConfig{
			Output: "result.txt",
		},
		Generate: GenerateConfig{
			Lines:      10000,
			LineLength: 100,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Watch: WatchConfig{
			DebounceMs: 500,
			Pattern:    "*.txt",
		},
	}
}

// Load reads the config file at path (DefaultPath when empty) over the
// defaults and applies BIGSORT_* environment overrides. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies environment overrides. Values that do not parse are
// ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BIGSORT_TMPDIR"); v != "" {
		cfg.Sort.TempDir = v
	}
	if v := os.Getenv("BIGSORT_OUTPUT"); v != "" {
		cfg.Sort.Output = v
	}
	if v := os.Getenv("BIGSORT_CHUNK_SIZE"); v != "" {
		if n, err := ParseByteSize(v); err == nil {
			cfg.Sort.ChunkSize = n
		}
	}
	if v := os.Getenv("BIGSORT_MEMORY_LIMIT"); v != "" {
		if n, err := ParseByteSize(v); err == nil {
			cfg.Sort.MemoryLimit = n
		}
	}
	if v := os.Getenv("BIGSORT_HARD_LIMIT"); v != "" {
		cfg.Sort.HardLimit = envBool(v)
	}
	if v := os.Getenv("BIGSORT_KEEP_CHUNKS"); v != "" {
		cfg.Sort.KeepChunks = envBool(v)
	}
	if v := os.Getenv("BIGSORT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BIGSORT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BIGSORT_WATCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Watch.DebounceMs = n
		}
	}
	if v := os.Getenv("BIGSORT_REPORT_DIR"); v != "" {
		cfg.Report.Dir = v
		cfg.Report.Enabled = true
	}
}

func envBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// CreateDefault writes the default config to path (DefaultPath when empty)
// and returns the path written. An existing file is never overwritten.
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	var buffer strings.Builder
	if err := Print(Default(), &buffer); err != nil {
		return "", err
	}

	if err := util.AtomicWriteFile(afero.NewOsFs(), path, []byte(buffer.String()), 0o644); err != nil {
		return "", err
	}

	return path, nil
}

// Print writes cfg as a commented TOML file.
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# bigsort configuration")
	fmt.Fprintln(w, "# Byte sizes accept plain byte counts or units: 1048576, \"1MiB\", \"64MB\"")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[sort]")
	fmt.Fprintln(w, "# Directory for chunk files (default: <system temp>/bigsort)")
	if cfg.Sort.TempDir != "" {
		fmt.Fprintf(w, "temp_dir = %q\n", cfg.Sort.TempDir)
	} else {
		fmt.Fprintln(w, "# temp_dir = \"/var/tmp/bigsort\"")
	}
	fmt.Fprintf(w, "output = %q\n", cfg.Sort.Output)
	fmt.Fprintln(w, "# Chunk capacity. 0 derives it from memory_limit, or uses 1MiB")
	fmt.Fprintf(w, "chunk_size = %q\n", cfg.Sort.ChunkSize.String())
	fmt.Fprintln(w, "# Memory budget used to size chunks from the average line length")
	fmt.Fprintf(w, "memory_limit = %q\n", cfg.Sort.MemoryLimit.String())
	fmt.Fprintln(w, "# Enforce memory_limit as an address-space limit (unix only)")
	fmt.Fprintf(w, "hard_limit = %t\n", cfg.Sort.HardLimit)
	fmt.Fprintf(w, "keep_chunks = %t\n", cfg.Sort.KeepChunks)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[generate]")
	fmt.Fprintf(w, "lines = %d\n", cfg.Generate.Lines)
	fmt.Fprintln(w, "# Bytes per line including the newline")
	fmt.Fprintf(w, "line_length = %d\n", cfg.Generate.LineLength)
	fmt.Fprintf(w, "random_length = %t\n", cfg.Generate.RandomLength)
	if cfg.Generate.Dir != "" {
		fmt.Fprintf(w, "dir = %q\n", cfg.Generate.Dir)
	} else {
		fmt.Fprintln(w, "# dir = \".\"")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[log]")
	fmt.Fprintln(w, "# debug, info, warn, error")
	fmt.Fprintf(w, "level = %q\n", cfg.Log.Level)
	fmt.Fprintln(w, "# text or json")
	fmt.Fprintf(w, "format = %q\n", cfg.Log.Format)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[watch]")
	fmt.Fprintf(w, "debounce_ms = %d\n", cfg.Watch.DebounceMs)
	fmt.Fprintf(w, "pattern = %q\n", cfg.Watch.Pattern)
	if cfg.Watch.Outbox != "" {
		fmt.Fprintf(w, "outbox = %q\n", cfg.Watch.Outbox)
	} else {
		fmt.Fprintln(w, "# outbox = \"~/sorted\"")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[report]")
	fmt.Fprintf(w, "enabled = %t\n", cfg.Report.Enabled)
	if cfg.Report.Dir != "" {
		fmt.Fprintf(w, "dir = %q\n", cfg.Report.Dir)
	} else {
		fmt.Fprintln(w, "# dir = \"~/.local/state/bigsort/reports\"")
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}

// Validate returns every problem found in cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if cfg.Sort.Output == "" {
		errs = append(errs, fmt.Errorf("sort.output: must not be empty"))
	}
	if cfg.Sort.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("sort.chunk_size: must be non-negative, got %d", cfg.Sort.ChunkSize))
	}
	if cfg.Sort.MemoryLimit < 0 {
		errs = append(errs, fmt.Errorf("sort.memory_limit: must be non-negative, got %d", cfg.Sort.MemoryLimit))
	}
	if cfg.Sort.HardLimit && cfg.Sort.MemoryLimit == 0 {
		errs = append(errs, fmt.Errorf("sort.hard_limit: requires sort.memory_limit"))
	}

	if cfg.Generate.Lines < 0 {
		errs = append(errs, fmt.Errorf("generate.lines: must be non-negative, got %d", cfg.Generate.Lines))
	}
	minLen := 2
	if cfg.Generate.RandomLength {
		minLen = 3
	}
	if cfg.Generate.LineLength < minLen {
		errs = append(errs, fmt.Errorf("generate.line_length: must be at least %d, got %d", minLen, cfg.Generate.LineLength))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: must be debug, info, warn or error, got %q", cfg.Log.Level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be \"text\" or \"json\", got %q", cfg.Log.Format))
	}

	if cfg.Watch.DebounceMs <= 0 {
		errs = append(errs, fmt.Errorf("watch.debounce_ms: must be positive, got %d", cfg.Watch.DebounceMs))
	}
	if _, err := filepath.Match(cfg.Watch.Pattern, ""); err != nil {
		errs = append(errs, fmt.Errorf("watch.pattern: %w", err))
	}

	return errs
}
