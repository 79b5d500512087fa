// Package csv appends records to a delimited text file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/thesis-crawler/internal/crawler"
)

// Config controls the output file layout.
type Config struct {
	Path      string
	Delimiter rune
	// Fields are written in this order; no header row is emitted.
	Fields        []string
	ClearNewlines bool
}

// Writer is a crawler.RecordSink that appends one line per record. Existing
// content is never truncated, so repeated runs accumulate.
type Writer struct {
	cfg    Config
	logger *zap.Logger
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// New validates cfg and returns a Writer.
func New(cfg Config, logger *zap.Logger) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ';'
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = crawler.DefaultFields
	}
	if err := crawler.ValidateFields(cfg.Fields); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{cfg: cfg, logger: logger}, nil
}

// Save appends records to the file, creating it when missing.
func (w *Writer) Save(_ context.Context, records []crawler.Record) (err error) {
	f, err := os.OpenFile(w.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output %s: %w", w.cfg.Path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output %s: %w", w.cfg.Path, cerr)
		}
	}()

	cw := csv.NewWriter(f)
	cw.Comma = w.cfg.Delimiter
	row := make([]string, len(w.cfg.Fields))
	for _, rec := range records {
		for i, field := range w.cfg.Fields {
			value, verr := rec.Value(field)
			if verr != nil {
				return verr
			}
			if w.cfg.ClearNewlines {
				value = newlineReplacer.Replace(value)
			}
			row[i] = value
		}
		if werr := cw.Write(row); werr != nil {
			return fmt.Errorf("write record %s: %w", rec.URL, werr)
		}
	}
	cw.Flush()
	if ferr := cw.Error(); ferr != nil {
		return fmt.Errorf("flush output %s: %w", w.cfg.Path, ferr)
	}
	w.logger.Info("records written", zap.String("path", w.cfg.Path), zap.Int("records", len(records)))
	return nil
}
