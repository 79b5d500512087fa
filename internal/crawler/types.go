package crawler

import (
	"fmt"
	"strings"
	"sync"
)

// Record is one thesis or dissertation harvested from a record page.
// Optional fields are nil when the page did not declare them.
type Record struct {
	URL      string   `json:"url"`
	Query    string   `json:"query,omitempty"`
	Keywords []string `json:"keywords"`
	Title    *string  `json:"title,omitempty"`
	Date     *string  `json:"date,omitempty"`
	Author   *string  `json:"author,omitempty"`
	Advisor  *string  `json:"advisor,omitempty"`
	Abstract *string  `json:"abstract,omitempty"`
	PDFURL   *string  `json:"pdf_url,omitempty"`
	DOI      *string  `json:"doi,omitempty"`
}

// Field names accepted by Record.Value, in the default output order.
const (
	FieldURL      = "url"
	FieldQuery    = "query"
	FieldKeywords = "keywords"
	FieldTitle    = "title"
	FieldDate     = "date"
	FieldAuthor   = "author"
	FieldAdvisor  = "advisor"
	FieldAbstract = "abstract"
	FieldPDFURL   = "pdf_url"
	FieldDOI      = "doi"
)

// DefaultFields lists every Record field in declaration order.
var DefaultFields = []string{
	FieldURL,
	FieldQuery,
	FieldKeywords,
	FieldTitle,
	FieldDate,
	FieldAuthor,
	FieldAdvisor,
	FieldAbstract,
	FieldPDFURL,
	FieldDOI,
}

// HasKeyword reports whether keyword is one of the record's subject tags.
// The comparison is exact; tags are already normalized at extraction.
func (r Record) HasKeyword(keyword string) bool {
	for _, k := range r.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// Value returns the string form of a named field. Keywords are comma-joined
// and undeclared optional fields render as the empty string.
func (r Record) Value(field string) (string, error) {
	switch field {
	case FieldURL:
		return r.URL, nil
	case FieldQuery:
		return r.Query, nil
	case FieldKeywords:
		return strings.Join(r.Keywords, ","), nil
	case FieldTitle:
		return deref(r.Title), nil
	case FieldDate:
		return deref(r.Date), nil
	case FieldAuthor:
		return deref(r.Author), nil
	case FieldAdvisor:
		return deref(r.Advisor), nil
	case FieldAbstract:
		return deref(r.Abstract), nil
	case FieldPDFURL:
		return deref(r.PDFURL), nil
	case FieldDOI:
		return deref(r.DOI), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// ValidateFields checks that every name is a known Record field.
func ValidateFields(fields []string) error {
	var probe Record
	for _, f := range fields {
		if _, err := probe.Value(f); err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EntrySet accumulates records in discovery order. It never deduplicates and
// never removes entries.
type EntrySet struct {
	mu      sync.RWMutex
	records []Record
}

// Append adds records to the end of the set.
func (s *EntrySet) Append(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Records returns a copy of the accumulated records.
func (s *EntrySet) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of accumulated records.
func (s *EntrySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CrawlRequest describes one keyword's crawl goal.
type CrawlRequest struct {
	Keyword string
	Limit   int
}

// Page is the raw result of a single HTTP GET.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Text returns the body as a string.
func (p Page) Text() string {
	return string(p.Body)
}
