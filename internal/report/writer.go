package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/bigsort/internal/util"
)

// writeMu protects concurrent writes to the same directory.
var writeMu sync.Mutex

// DefaultMaxPerDir is the default number of reports to keep before rotation.
const DefaultMaxPerDir = 50

// Writer stores reports in a directory with atomic writes and rotation.
type Writer struct {
	fs        afero.Fs
	dir       string
	maxPerDir int // max reports before older ones move to .archive
	logger    *slog.Logger
	now       func() time.Time
}

// NewWriter creates a Writer storing reports in dir.
func NewWriter(fs afero.Fs, dir string, maxPerDir int, logger *slog.Logger) *Writer {
	if maxPerDir <= 0 {
		maxPerDir = DefaultMaxPerDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		fs:        fs,
		dir:       dir,
		maxPerDir: maxPerDir,
		logger:    logger.With("component", "report.writer"),
		now:       time.Now,
	}
}

// Dir returns the directory reports are written to.
func (w *Writer) Dir() string { return w.dir }

// Write validates r and saves it. Returns the path of the written file.
func (w *Writer) Write(r *Report) (string, error) {
	writeMu.Lock()
	defer writeMu.Unlock()

	if errs := r.Validate(); len(errs) > 0 {
		w.logger.Error("report validation failed",
			"run_id", r.RunID,
			"error_count", len(errs),
			"first_error", errs[0].Error(),
		)
		return "", fmt.Errorf("validation failed: %v", errs[0])
	}

	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir failed: %w", err)
	}

	if err := w.checkRotation(); err != nil {
		w.logger.Warn("rotation check failed", "error", err)
	}

	// Generate filename: YYYYMMDD-HHMMSS.mmm_{runid prefix}.yaml
	filename := fmt.Sprintf("%s_%s.yaml",
		w.now().UTC().Format("20060102-150405.000"),
		shortID(r.RunID),
	)
	path := filepath.Join(w.dir, filename)

	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	if err := util.AtomicWriteFile(w.fs, path, data, 0o644); err != nil {
		w.logger.Error("failed to write report", "path", path, "error", err)
		return "", err
	}

	w.logger.Info("report written",
		"path", path,
		"run_id", r.RunID,
		"status", r.Status,
		"size_bytes", len(data),
	)
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Load reads a report written by Write.
func Load(fs afero.Fs, path string) (*Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &r, nil
}

// List returns the paths of stored reports, oldest first. Archived reports
// are not included.
func (w *Writer) List() ([]string, error) {
	files, err := w.reportFiles()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, name := range files {
		paths[i] = filepath.Join(w.dir, name)
	}
	return paths, nil
}

func (w *Writer) reportFiles() ([]string, error) {
	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// checkRotation moves the oldest reports to .archive so that, after the
// next write, at most maxPerDir remain.
func (w *Writer) checkRotation() error {
	names, err := w.reportFiles()
	if err != nil {
		return err
	}
	if len(names) < w.maxPerDir {
		return nil
	}

	archiveDir := filepath.Join(w.dir, ".archive")
	if err := w.fs.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	toMove := len(names) - w.maxPerDir + 1
	moved := 0
	for _, name := range names[:toMove] {
		oldPath := filepath.Join(w.dir, name)
		newPath := filepath.Join(archiveDir, name)
		if err := w.fs.Rename(oldPath, newPath); err != nil {
			w.logger.Warn("failed to archive report", "path", oldPath, "error", err)
			continue
		}
		moved++
	}
	if moved > 0 {
		w.logger.Debug("report rotation completed", "archived", moved)
	}
	return nil
}
