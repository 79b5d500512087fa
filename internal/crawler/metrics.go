package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// listingPages tracks search-result pages fetched and scanned.
	listingPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thesis_listing_pages_total",
		Help: "The total number of listing pages fetched and scanned.",
	})
	// recordPages tracks record pages fetched for extraction.
	recordPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thesis_record_pages_total",
		Help: "The total number of record pages fetched.",
	})
	// recordsMatched tracks records kept by the keyword filter.
	recordsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thesis_records_matched_total",
		Help: "The total number of records whose subjects matched the query keyword.",
	}, []string{"keyword"})
	// fetchRetries tracks failed attempts that were retried after a backoff.
	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thesis_fetch_retries_total",
		Help: "The total number of fetch attempts that failed and were retried.",
	})
	// extractErrors tracks record pages that could not be parsed.
	extractErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thesis_extract_errors_total",
		Help: "The total number of record pages that failed to parse.",
	})
)
