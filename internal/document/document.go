// Package document wraps a parsed HTML page with the queries the extractor
// and crawler need: CSS selection, XPath, title and outbound links.
package document

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ErrInvalidSelector is wrapped by errors for CSS or XPath expressions the
// query engines reject.
var ErrInvalidSelector = errors.New("invalid selector")

// Link is an anchor found in a document.
type Link struct {
	// Href is the attribute value as written.
	Href string
	// URL is Href resolved against the document base, without fragment.
	URL string
}

// Document is a parsed page. It is not safe for concurrent use.
type Document struct {
	doc  *goquery.Document
	base *url.URL
	raw  string
}

// Parse builds a Document from raw markup. Malformed markup never fails;
// only an unparsable baseURL does. baseURL should be the final URL the page
// was served from.
func Parse(raw, baseURL string) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{doc: doc, base: base, raw: raw}

	// <base href> overrides the page URL for relative links.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			d.base = base.ResolveReference(ref)
		}
	}
	return d, nil
}

// URL returns the base URL links are resolved against.
func (d *Document) URL() string {
	return d.base.String()
}

// HTML returns the markup the document was parsed from.
func (d *Document) HTML() string {
	return d.raw
}

// Select returns the nodes matching css in document order.
func (d *Document) Select(css string) (*goquery.Selection, error) {
	if strings.TrimSpace(css) == "" {
		return nil, fmt.Errorf("%w: empty css selector", ErrInvalidSelector)
	}
	matcher, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, css, err)
	}
	return d.doc.FindMatcher(matcher), nil
}

// XPath returns the nodes matching expr in document order.
func (d *Document) XPath(expr string) ([]*html.Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty xpath expression", ErrInvalidSelector)
	}
	if len(d.doc.Nodes) == 0 {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(d.doc.Nodes[0], expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, expr, err)
	}
	return nodes, nil
}

// Title returns the trimmed <title> text, if the page has one.
func (d *Document) Title() (string, bool) {
	sel := d.doc.Find("title").First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

// Links returns every anchor with an href, resolved to an absolute URL.
// Anchors without href, and hrefs that do not parse, are skipped.
func (d *Document) Links() []Link {
	var links []Link
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := d.base.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawFragment = ""
		links = append(links, Link{Href: href, URL: abs.String()})
	})
	return links
}

// NodeText returns the trimmed text content of n.
func NodeText(n *html.Node) string {
	return strings.TrimSpace(htmlquery.InnerText(n))
}
