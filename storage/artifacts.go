// Package storage persists run artifacts: JSON and CSV files on disk and
// normalized quotes in PostgreSQL.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charlerive/volsurface/quote"
)

// Artifact file names inside the output directory.
const (
	SurfaceFile    = "surface.json"
	DensityFile    = "density.json"
	ReportFile     = "report.json"
	NormalizedFile = "normalized.csv"
)

// WriteJSON writes v as indented JSON to path, replacing any existing file atomically.
func WriteJSON(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteNormalizedCSV writes normalized quotes in the long format.
func WriteNormalizedCSV(path string, rows []quote.Row) error {
	return writeAtomic(path, func(w io.Writer) error {
		return quote.WriteLong(w, rows)
	})
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
