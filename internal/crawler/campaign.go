package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultEntriesPerKeyword is the per-keyword target used by a campaign.
const DefaultEntriesPerKeyword = 20

// RecordCrawler crawls one keyword.
type RecordCrawler interface {
	Crawl(ctx context.Context, keyword string, n int) ([]Record, error)
}

// CampaignStatus is a point-in-time view of a running campaign.
type CampaignStatus struct {
	Keywords  int      `json:"keywords"`
	Completed int      `json:"completed"`
	InFlight  []string `json:"in_flight"`
	Records   int      `json:"records"`
	Done      bool     `json:"done"`
	Error     string   `json:"error,omitempty"`
}

// CampaignRunner crawls a list of keywords and accumulates every matched
// record into one EntrySet, grouped by keyword in input order.
type CampaignRunner struct {
	crawler     RecordCrawler
	parallelism int
	entries     EntrySet
	logger      *zap.Logger

	mu       sync.Mutex
	status   CampaignStatus
	inFlight map[string]int
}

// NewCampaignRunner returns a runner. A parallelism of 1 or less crawls
// keywords one after another.
func NewCampaignRunner(crawler RecordCrawler, parallelism int, logger *zap.Logger) *CampaignRunner {
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignRunner{
		crawler:     crawler,
		parallelism: parallelism,
		logger:      logger,
		inFlight:    make(map[string]int),
	}
}

// Run crawls every keyword for up to perKeyword records and appends the
// results. Keyword groups keep input order in both sequential and parallel
// mode. Records gathered before a failure are still appended.
func (r *CampaignRunner) Run(ctx context.Context, keywords []string, perKeyword int) error {
	r.begin(len(keywords))
	var err error
	if r.parallelism == 1 || len(keywords) < 2 {
		err = r.runSequential(ctx, keywords, perKeyword)
	} else {
		err = r.runParallel(ctx, keywords, perKeyword)
	}
	r.finish(err)
	return err
}

func (r *CampaignRunner) runSequential(ctx context.Context, keywords []string, perKeyword int) error {
	for _, kw := range keywords {
		recs, err := r.crawlKeyword(ctx, kw, perKeyword)
		r.entries.Append(recs...)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CampaignRunner) crawlKeyword(ctx context.Context, kw string, perKeyword int) ([]Record, error) {
	r.started(kw)
	r.logger.Info("crawling keyword", zap.String("keyword", kw), zap.Int("limit", perKeyword))
	recs, err := r.crawler.Crawl(ctx, kw, perKeyword)
	r.completed(kw, len(recs))
	if err != nil {
		return recs, fmt.Errorf("crawl keyword %q: %w", kw, err)
	}
	r.logger.Info("keyword done", zap.String("keyword", kw), zap.Int("records", len(recs)))
	return recs, nil
}

func (r *CampaignRunner) runParallel(ctx context.Context, keywords []string, perKeyword int) error {
	groups := make([][]Record, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, kw := range keywords {
		g.Go(func() error {
			recs, err := r.crawlKeyword(gctx, kw, perKeyword)
			groups[i] = recs
			return err
		})
	}
	err := g.Wait()
	for _, recs := range groups {
		r.entries.Append(recs...)
	}
	return err
}

func (r *CampaignRunner) begin(keywords int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Keywords += keywords
	r.status.Done = false
	r.status.Error = ""
}

func (r *CampaignRunner) started(kw string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[kw]++
}

func (r *CampaignRunner) completed(kw string, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[kw]--; r.inFlight[kw] <= 0 {
		delete(r.inFlight, kw)
	}
	r.status.Completed++
	r.status.Records += records
}

func (r *CampaignRunner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Done = true
	if err != nil {
		r.status.Error = err.Error()
	}
}

// Status reports campaign progress. Records counts every record returned by
// a keyword crawl, including partial results.
func (r *CampaignRunner) Status() CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	st.InFlight = make([]string, 0, len(r.inFlight))
	for kw := range r.inFlight {
		st.InFlight = append(st.InFlight, kw)
	}
	sort.Strings(st.InFlight)
	return st
}

// Entries returns the accumulated records.
func (r *CampaignRunner) Entries() []Record {
	return r.entries.Records()
}

// Flush hands the accumulated records to every sink. All sinks are attempted;
// their errors are joined.
func (r *CampaignRunner) Flush(ctx context.Context, sinks ...RecordSink) error {
	records := r.entries.Records()
	var errs []error
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Save(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("flush entries: %w", err)
	}
	r.logger.Info("entries flushed", zap.Int("records", len(records)), zap.Int("sinks", len(sinks)))
	return nil
}
