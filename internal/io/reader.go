package io

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/williampepple1/site-scraper/internal/config"
)

// ErrNoInput is returned by GetURLs when no input file is configured.
var ErrNoInput = errors.New("no input file configured")

// URLReader reads URLs from various sources
type URLReader struct {
	Config *config.IOConfig
}

// NewURLReader creates a new URL reader
func NewURLReader(config *config.IOConfig) *URLReader {
	return &URLReader{
		Config: config,
	}
}

// ReadFromFile reads URLs from a file, one URL per line
func (r *URLReader) ReadFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer file.Close()
	return r.Read(file)
}

// Read reads one URL per line. Blank lines and lines starting with # are
// skipped.
func (r *URLReader) Read(in io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url != "" && !strings.HasPrefix(url, "#") {
			urls = append(urls, url)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return urls, nil
}

// GetURLs returns URLs from the configured input file
func (r *URLReader) GetURLs() ([]string, error) {
	if r.Config == nil || r.Config.InputFile == "" {
		return nil, ErrNoInput
	}
	return r.ReadFromFile(r.Config.InputFile)
}
