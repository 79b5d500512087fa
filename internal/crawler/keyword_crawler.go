package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultLimit is the number of matched records a keyword crawl aims for.
	DefaultLimit = 10
	// DefaultPageSize is the number of entries on a full listing page. A page
	// yielding fewer is taken as the last one. The site's real page size is
	// not verified; override it through configuration when it changes.
	DefaultPageSize = 10
)

// KeywordCrawlerConfig tunes pagination.
type KeywordCrawlerConfig struct {
	// PageSize is the discovery count below which pagination stops.
	PageSize int
	// MaxPages caps listing pages per keyword; zero means no cap.
	MaxPages int
}

// KeywordCrawler walks the paginated search results for one keyword and
// keeps the records whose subjects contain it.
type KeywordCrawler struct {
	fetcher   Fetcher
	queries   *QueryBuilder
	scanner   *ListingScanner
	extractor *RecordExtractor
	archive   *PageArchive
	cfg       KeywordCrawlerConfig
	logger    *zap.Logger
}

// NewKeywordCrawler wires the pipeline stages. archive and logger may be nil.
func NewKeywordCrawler(
	fetcher Fetcher,
	queries *QueryBuilder,
	scanner *ListingScanner,
	extractor *RecordExtractor,
	archive *PageArchive,
	cfg KeywordCrawlerConfig,
	logger *zap.Logger,
) *KeywordCrawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordCrawler{
		fetcher:   fetcher,
		queries:   queries,
		scanner:   scanner,
		extractor: extractor,
		archive:   archive,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl collects up to n records matching keyword. It stops once n records
// are held or a listing page yields fewer than PageSize entries, and returns
// whatever it gathered; falling short of n is not an error. The error is
// non-nil only when fetching is abandoned (context done or retries exhausted),
// in which case the records gathered so far are returned alongside it. A page
// that can never be fetched is logged and skipped.
func (c *KeywordCrawler) Crawl(ctx context.Context, keyword string, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}
	logger := c.logger.With(zap.String("keyword", keyword))
	results := make([]Record, 0, n)

	discovered := c.cfg.PageSize
	for page := 1; len(results) < n && discovered >= c.cfg.PageSize; page++ {
		if c.cfg.MaxPages > 0 && page > c.cfg.MaxPages {
			logger.Info("listing page cap reached", zap.Int("max_pages", c.cfg.MaxPages))
			break
		}

		urls, err := c.scanPage(ctx, keyword, page)
		if err != nil {
			return results, err
		}
		discovered = len(urls)

		for _, recordURL := range urls {
			rec, matched, err := c.visitRecord(ctx, recordURL, keyword)
			if err != nil {
				return results, err
			}
			if matched {
				results = append(results, rec)
				recordsMatched.WithLabelValues(keyword).Inc()
			}
			if len(results) >= n {
				break
			}
		}

		logger.Info("listing page scanned",
			zap.Int("page", page),
			zap.Int("discovered", discovered),
			zap.Int("added", len(results)),
			zap.Int("limit", n),
		)
	}
	return results, nil
}

func (c *KeywordCrawler) scanPage(ctx context.Context, keyword string, page int) ([]string, error) {
	listingURL := c.queries.ListingURL(keyword, page)
	listing, err := c.fetcher.Fetch(ctx, listingURL)
	if errors.Is(err, ErrPermanentFetch) {
		c.logger.Warn("listing page not fetchable; ending keyword",
			zap.String("url", listingURL),
			zap.Error(err),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch listing page %d for %q: %w", page, keyword, err)
	}
	listingPages.Inc()

	urls, err := c.scanner.Scan(listing.Text(), listingURL)
	if err != nil {
		c.logger.Warn("unreadable listing page",
			zap.String("url", listingURL),
			zap.Error(err),
		)
		return nil, nil
	}
	return urls, nil
}

func (c *KeywordCrawler) visitRecord(ctx context.Context, recordURL, keyword string) (Record, bool, error) {
	page, err := c.fetcher.Fetch(ctx, recordURL)
	if errors.Is(err, ErrPermanentFetch) {
		c.logger.Warn("skipping unfetchable record page",
			zap.String("url", recordURL),
			zap.Error(err),
		)
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("fetch record page %s: %w", recordURL, err)
	}
	recordPages.Inc()

	if c.archive != nil {
		c.archive.Store(ctx, page)
	}

	rec, err := c.extractor.Extract(page.Text(), recordURL, keyword)
	if err != nil {
		extractErrors.Inc()
		c.logger.Warn("skipping unreadable record page",
			zap.String("url", recordURL),
			zap.Error(err),
		)
		return Record{}, false, nil
	}
	return rec, rec.HasKeyword(keyword), nil
}
