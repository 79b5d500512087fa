package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Meta declaration names read from record pages.
const (
	metaTitle    = "DC.title"
	metaIssued   = "DCTERMS.issued"
	metaCreator  = "DC.creator"
	metaAdvisor  = "DC.contributor"
	metaAbstract = "DCTERMS.abstract"
	metaSubject  = "DC.subject"
	metaPDFURL   = "citation_pdf_url"
	metaDOI      = "citation_doi"

	langAttr       = "xml:lang"
	langQualifier  = "pt-br"
	subjectDivider = ";"
)

// RecordExtractor turns a record page into a Record by reading its
// Dublin Core and citation meta declarations.
type RecordExtractor struct{}

// NewRecordExtractor returns a RecordExtractor.
func NewRecordExtractor() *RecordExtractor {
	return &RecordExtractor{}
}

// Extract parses pageText and returns the record declared by it. Attributes
// are looked up by name, so declarations missing the language qualifier or
// the content attribute are skipped rather than misread.
func (e *RecordExtractor) Extract(pageText, sourceURL, query string) (Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageText))
	if err != nil {
		return Record{}, fmt.Errorf("parse record page %s: %w", sourceURL, err)
	}

	rec := Record{
		URL:      sourceURL,
		Query:    query,
		Keywords: []string{},
	}
	// A Caser is stateful; one per call keeps Extract safe for concurrent use.
	lower := cases.Lower(language.BrazilianPortuguese)

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		attrs := attributeMap(s)
		name, ok := attrs["name"]
		if !ok {
			return
		}
		content, ok := attrs["content"]
		if !ok {
			return
		}
		qualified := attrs[langAttr] == langQualifier

		switch name {
		case metaPDFURL:
			rec.PDFURL = stringPtr(content)
		case metaDOI:
			rec.DOI = stringPtr(content)
		}
		if !qualified {
			return
		}
		switch name {
		case metaTitle:
			rec.Title = stringPtr(content)
		case metaIssued:
			rec.Date = stringPtr(content)
		case metaCreator:
			rec.Author = stringPtr(content)
		case metaAdvisor:
			rec.Advisor = stringPtr(content)
		case metaAbstract:
			rec.Abstract = stringPtr(content)
		case metaSubject:
			for _, tok := range strings.Split(content, subjectDivider) {
				rec.Keywords = append(rec.Keywords, lower.String(strings.TrimSpace(tok)))
			}
		}
	})

	return rec, nil
}

func attributeMap(s *goquery.Selection) map[string]string {
	if len(s.Nodes) == 0 {
		return nil
	}
	node := s.Nodes[0]
	attrs := make(map[string]string, len(node.Attr))
	for _, a := range node.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		attrs[key] = a.Val
	}
	return attrs
}

func stringPtr(s string) *string {
	return &s
}
