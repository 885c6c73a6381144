package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// Output formats understood by ResultWriter.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ResultWriter writes results to various outputs
type ResultWriter struct {
	Config *config.IOConfig
	now    func() time.Time
}

// NewResultWriter creates a new result writer
func NewResultWriter(config *config.IOConfig) *ResultWriter {
	return &ResultWriter{
		Config: config,
		now:    time.Now,
	}
}

func (w *ResultWriter) format() string {
	if w.Config == nil || w.Config.OutputFormat == "" {
		return FormatJSON
	}
	return w.Config.OutputFormat
}

// Path returns the file Save writes to: the configured output file, or
// scraped_data_<timestamp> under the output directory.
func (w *ResultWriter) Path() string {
	if w.Config != nil && w.Config.OutputFile != "" {
		return w.Config.OutputFile
	}
	dir := config.XDGDataDir()
	if w.Config != nil && w.Config.OutputDir != "" {
		dir = w.Config.OutputDir
	}
	ext := ".json"
	if w.format() == FormatMarkdown {
		ext = ".md"
	}
	return filepath.Join(dir, "scraped_data_"+w.now().Format("20060102_150405")+ext)
}

// Save writes out to Path and returns the path written.
func (w *ResultWriter) Save(out *models.Output) (string, error) {
	path := w.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	if err := w.Write(f, out); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close output file: %w", err)
	}
	return path, nil
}

// Write renders out in the configured format.
func (w *ResultWriter) Write(dst io.Writer, out *models.Output) error {
	switch w.format() {
	case FormatJSON:
		return WriteJSON(dst, out.Payload())
	case FormatMarkdown:
		return WriteMarkdown(dst, out)
	default:
		return fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, w.format())
	}
}

// WriteJSON encodes v with two-space indentation. HTML characters and
// non-ASCII text are written as is.
func WriteJSON(dst io.Writer, v any) error {
	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
