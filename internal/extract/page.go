package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is what page inspection yields for the loaded document
type Page struct {
	Title      string
	Hyperlinks []string
}

// PageInspector extracts the title and outbound links from HTML
type PageInspector struct {
	maxLinks int
}

// NewPageInspector creates a page inspector. maxLinks <= 0 means unlimited.
func NewPageInspector(maxLinks int) *PageInspector {
	return &PageInspector{maxLinks: maxLinks}
}

// Inspect parses htmlContent and returns the document title and the
// absolute http(s) URLs of every <a href>, in document order.
func (p *PageInspector) Inspect(htmlContent string, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	baseURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	// <base href> changes how relative links resolve
	if href, ok := doc.Find("head base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			baseURL = baseURL.ResolveReference(b)
		}
	}

	page := &Page{
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Hyperlinks: []string{},
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if resolved := resolveURL(baseURL, strings.TrimSpace(href)); resolved != "" {
			page.Hyperlinks = append(page.Hyperlinks, resolved)
		}
		return p.maxLinks <= 0 || len(page.Hyperlinks) < p.maxLinks
	})

	return page, nil
}

// resolveURL resolves href against base, keeping only http(s) targets
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}
