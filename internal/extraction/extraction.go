package extraction

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/document"
	"github.com/williampepple1/site-scraper/pkg/models"
)

// ErrNoSelectors is wrapped by the SelectorError returned for an empty spec.
var ErrNoSelectors = errors.New("no selectors given")

// SelectorSpec maps a field name to a CSS selector.
type SelectorSpec map[string]string

// SelectorError reports an empty spec or a selector the query engine
// rejected. Field and Selector are empty for ErrNoSelectors.
type SelectorError struct {
	Field    string
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	if e.Field == "" {
		return "extraction: " + e.Err.Error()
	}
	return fmt.Sprintf("extraction: field %q selector %q: %v", e.Field, e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}

// Extractor handles data extraction from HTML
type Extractor struct {
	Config *config.ExtractionConfig
	logger *slog.Logger
}

// NewExtractor creates a new data extractor
func NewExtractor(config *config.ExtractionConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		Config: config,
		logger: logger,
	}
}

// Extract applies spec's CSS selectors to doc.
func Extract(doc *document.Document, spec SelectorSpec, logger *slog.Logger) (models.ExtractionResult, error) {
	return NewExtractor(&config.ExtractionConfig{Selectors: spec}, logger).Extract(doc)
}

// Extract extracts data from HTML using CSS selectors, XPath, and regex.
// Fields of each kind are evaluated in name order; CSS first, then XPath,
// then regex, so a name reused across kinds keeps the last value. The first
// invalid expression aborts the call and no partial result is returned.
func (e *Extractor) Extract(doc *document.Document) (models.ExtractionResult, error) {
	if e.Config == nil || e.Config.Empty() {
		return nil, &SelectorError{Err: ErrNoSelectors}
	}

	extracted := make(models.ExtractionResult, len(e.Config.Selectors)+len(e.Config.XPath)+len(e.Config.Regex))

	// Extract data using CSS selectors
	for _, name := range sortedKeys(e.Config.Selectors) {
		selector := e.Config.Selectors[name]
		sel, err := doc.Select(selector)
		if err != nil {
			return nil, &SelectorError{Field: name, Selector: selector, Err: err}
		}
		values := make([]string, 0, sel.Length())
		sel.Each(func(_ int, s *goquery.Selection) {
			values = append(values, strings.TrimSpace(s.Text()))
		})
		extracted[name] = e.value(doc, name, selector, values)
	}

	// Extract data using XPath
	for _, name := range sortedKeys(e.Config.XPath) {
		expr := e.Config.XPath[name]
		nodes, err := doc.XPath(expr)
		if err != nil {
			return nil, &SelectorError{Field: name, Selector: expr, Err: err}
		}
		values := make([]string, 0, len(nodes))
		for _, n := range nodes {
			values = append(values, document.NodeText(n))
		}
		extracted[name] = e.value(doc, name, expr, values)
	}

	// Extract data using regex
	for _, name := range sortedKeys(e.Config.Regex) {
		pattern := e.Config.Regex[name]
		reg, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &SelectorError{Field: name, Selector: pattern, Err: fmt.Errorf("%w: %v", document.ErrInvalidSelector, err)}
		}
		extracted[name] = e.value(doc, name, pattern, reg.FindAllString(doc.HTML(), -1))
	}

	return extracted, nil
}

func (e *Extractor) value(doc *document.Document, field, selector string, values []string) any {
	switch len(values) {
	case 0:
		e.logger.Warn("selector matched nothing", "url", doc.URL(), "field", field, "selector", selector)
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
