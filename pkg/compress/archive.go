package compress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/threatcanvas/sdk/pkg/report"
)

// Archiver writes report archives to a directory.
type Archiver struct {
	dir        string
	compressor *Compressor
}

// NewArchiver creates an archiver writing into dir with the given
// compressor. A nil compressor uses the default ZSTD one.
func NewArchiver(dir string, compressor *Compressor) *Archiver {
	if compressor == nil {
		compressor = DefaultZSTD
	}
	return &Archiver{dir: dir, compressor: compressor}
}

// Archive serializes the report as JSON, compresses it, and writes it to
// <dir>/<model>-<run id>.json<ext>. It returns the archive path and the
// compression stats.
func (a *Archiver) Archive(r *report.Report) (string, *Stats, error) {
	if r == nil {
		return "", nil, fmt.Errorf("archive: report is nil")
	}

	data, err := r.ToJSON()
	if err != nil {
		return "", nil, fmt.Errorf("serialize report: %w", err)
	}

	compressed, stats, err := a.compressor.CompressWithStats(data)
	if err != nil {
		return "", nil, fmt.Errorf("compress report: %w", err)
	}

	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", nil, fmt.Errorf("create archive directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json%s",
		slug(r.Model.Name), r.Metadata.ID, a.compressor.Extension())
	path := filepath.Join(a.dir, name)

	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return "", nil, fmt.Errorf("write archive: %w", err)
	}
	return path, stats, nil
}

// Load reads an archive written by Archive and parses the report.
func (a *Archiver) Load(path string) (*report.Report, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	data, err := a.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress archive: %w", err)
	}
	return report.FromJSON(data)
}

// slug turns a model name into a safe file name fragment.
func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteRune('-')
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if out == "" {
		out = "model"
	}
	return out
}
