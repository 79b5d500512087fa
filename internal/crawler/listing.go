package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultEntrySelector matches the container wrapping each thesis name on a listing page.
const DefaultEntrySelector = "div.dadosDocNome"

// ListingScanner discovers record URLs on a search-results page.
type ListingScanner struct {
	selector string
}

// NewListingScanner returns a scanner that reads the first link directly under
// every element matched by selector. Links nested deeper are decoration. An empty selector uses DefaultEntrySelector.
func NewListingScanner(selector string) *ListingScanner {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultEntrySelector
	}
	return &ListingScanner{selector: selector}
}

// Scan returns the record URLs in document order. Relative links are resolved
// against baseURL when it is non-empty.
func (s *ListingScanner) Scan(pageText, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageText))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	var base *url.URL
	if baseURL != "" {
		if base, err = url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("parse listing url %q: %w", baseURL, err)
		}
	}

	urls := make([]string, 0, 16)
	doc.Find(s.selector).Each(func(_ int, entry *goquery.Selection) {
		href, ok := entry.ChildrenFiltered("a[href]").First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		urls = append(urls, resolveURL(base, href))
	})
	return urls, nil
}

func resolveURL(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
