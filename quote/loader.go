package quote

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Format selects the reader for an input block.
type Format string

const (
	FormatLong Format = "long"
	FormatCBOE Format = "cboe"
)

// Batch is the raw rows of every block that parsed, plus a diagnostic per skipped block.
type Batch struct {
	Rows        []Row
	Diagnostics []*ParseError
}

// Read parses a single block in the given format.
func Read(r io.Reader, name string, format Format) ([]Row, error) {
	switch format {
	case FormatLong, "":
		return ReadLong(r, name)
	case FormatCBOE:
		return ReadCBOE(r, name)
	}
	return nil, fmt.Errorf("unknown quote format %q", format)
}

// LoadFiles reads every path, skipping blocks that fail to open or parse.
// It returns ErrDataUnavailable when no block yields a row.
func LoadFiles(paths []string, format Format, logger *slog.Logger) (*Batch, error) {
	if logger == nil {
		logger = slog.Default()
	}

	batch := &Batch{}
	for _, path := range paths {
		rows, err := loadFile(path, format)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Block: filepath.Base(path), Reason: err.Error()}
			}
			logger.Warn("skipping quote block", "path", path, "error", pe)
			batch.Diagnostics = append(batch.Diagnostics, pe)
			continue
		}
		logger.Debug("loaded quote block", "path", path, "rows", len(rows))
		batch.Rows = append(batch.Rows, rows...)
	}

	if len(batch.Rows) == 0 {
		return batch, fmt.Errorf("%d blocks, no quote rows: %w", len(paths), ErrDataUnavailable)
	}
	return batch, nil
}

func loadFile(path string, format Format) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, filepath.Base(path), format)
}
