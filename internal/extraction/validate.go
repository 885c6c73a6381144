package extraction

import (
	"io"
	"log/slog"

	"github.com/williampepple1/site-scraper/internal/document"
)

// Validate compiles every expression in the configuration against an empty
// document, so batch runs can reject a bad selector before any fetch.
func (e *Extractor) Validate() error {
	doc, err := document.Parse("", "about:blank")
	if err != nil {
		return err
	}
	quiet := &Extractor{Config: e.Config, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err = quiet.Extract(doc)
	return err
}
