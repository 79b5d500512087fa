// Package app builds the long-lived services of one crawl campaign from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/thesis-crawler/internal/api"
	"github.com/JakeFAU/thesis-crawler/internal/clock/system"
	"github.com/JakeFAU/thesis-crawler/internal/config"
	"github.com/JakeFAU/thesis-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/thesis-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/thesis-crawler/internal/hash/sha256"
	"github.com/JakeFAU/thesis-crawler/internal/id/uuid"
	csvoutput "github.com/JakeFAU/thesis-crawler/internal/output/csv"
	"github.com/JakeFAU/thesis-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/thesis-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/thesis-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/thesis-crawler/internal/storage/gcs"
	"github.com/JakeFAU/thesis-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/thesis-crawler/internal/storage/memory"
	"github.com/JakeFAU/thesis-crawler/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App holds the services shared by one campaign.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	runner  *crawler.CampaignRunner
	sinks   []crawler.RecordSink
	server  *api.Server
	closers []func()
}

// New wires the crawl pipeline described by cfg. It fails fast when any
// configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))
	a = &App{cfg: cfg, logger: logger, runID: runID}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clock := system.New()
	base, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
	}, logger.Named("http"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RequestsPerSecond,
		DefaultBurst: cfg.Crawler.Burst,
	}, logger.Named("ratelimit"))
	fetcher := crawler.NewRetryingFetcher(base, cfg.BackoffPolicy(), clock, limiter, logger.Named("fetch"))

	archive, err := a.buildArchive(ctx)
	if err != nil {
		return nil, err
	}

	keywordCrawler := crawler.NewKeywordCrawler(
		fetcher,
		crawler.NewQueryBuilder(cfg.Site.SearchParams),
		crawler.NewListingScanner(cfg.Site.EntrySelector),
		crawler.NewRecordExtractor(),
		archive,
		crawler.KeywordCrawlerConfig{PageSize: cfg.Site.PageSize, MaxPages: cfg.Crawler.MaxPages},
		logger.Named("crawler"),
	)
	a.runner = crawler.NewCampaignRunner(keywordCrawler, cfg.Crawler.Parallelism, logger.Named("campaign"))

	if err := a.buildSinks(ctx, ids, clock); err != nil {
		return nil, err
	}
	if cfg.Metrics.Addr != "" {
		a.server = api.NewServer(a.runner, runID, logger.Named("api"))
	}
	return a, nil
}

func (a *App) buildArchive(ctx context.Context) (*crawler.PageArchive, error) {
	var store crawler.BlobStore
	switch a.cfg.Storage.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		store = memorystorage.NewBlobStore()
	case config.BackendLocal:
		s, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		store = s
	case config.BackendGCS:
		s, client, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close storage client", zap.Error(cerr))
			}
		})
		store = s
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	a.logger.Info("archiving record pages", zap.String("backend", a.cfg.Storage.Backend))
	return crawler.NewPageArchive(store, sha256.New(), a.cfg.Storage.Prefix, a.logger.Named("archive")), nil
}

func (a *App) buildSinks(ctx context.Context, ids crawler.IDGenerator, clock crawler.Clock) error {
	writer, err := csvoutput.New(csvoutput.Config{
		Path:          a.cfg.Output.Path,
		Delimiter:     a.cfg.Delimiter(),
		Fields:        a.cfg.Output.Fields,
		ClearNewlines: a.cfg.Output.ClearNewlines,
	}, a.logger.Named("csv"))
	if err != nil {
		return fmt.Errorf("init csv output: %w", err)
	}
	a.sinks = append(a.sinks, writer)

	if a.cfg.DB.DSN != "" {
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		}, a.runID, ids, clock)
		if err != nil {
			return fmt.Errorf("init record store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if a.cfg.DB.CreateTable {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		a.sinks = append(a.sinks, store)
	}

	var publisher crawler.Publisher
	switch a.cfg.PubSub.Backend {
	case config.BackendNone, "":
	case config.BackendMemory:
		publisher = memorypublisher.New()
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		p := pubsubpublisher.New(client)
		a.closers = append(a.closers, func() {
			p.Stop()
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close pubsub client", zap.Error(cerr))
			}
		})
		publisher = p
	default:
		return fmt.Errorf("unknown pubsub backend %q", a.cfg.PubSub.Backend)
	}
	if publisher != nil {
		a.sinks = append(a.sinks, crawler.NewPublishSink(
			publisher, a.cfg.PubSub.TopicName, a.runID, clock, a.logger.Named("publish")))
	}
	return nil
}

// RunID identifies this campaign in logs, rows and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Entries returns the records accumulated so far.
func (a *App) Entries() []crawler.Record {
	return a.runner.Entries()
}

// Run crawls keywords and flushes the accumulated records to every sink. The
// flush happens even when the crawl is interrupted, so partial results are
// never lost.
func (a *App) Run(ctx context.Context, keywords []string, perKeyword int) error {
	if a.server != nil {
		if _, err := a.server.Start(a.cfg.Metrics.Addr); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(sctx); err != nil {
				a.logger.Warn("api shutdown failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info("campaign started", zap.Strings("keywords", keywords), zap.Int("per_keyword", perKeyword))
	runErr := a.runner.Run(ctx, keywords, perKeyword)
	if runErr != nil {
		a.logger.Warn("campaign interrupted; flushing partial results", zap.Error(runErr))
	}

	flushErr := a.runner.Flush(context.WithoutCancel(ctx), a.sinks...)
	a.logger.Info("campaign finished", zap.Int("records", len(a.runner.Entries())))
	return errors.Join(runErr, flushErr)
}

// Close releases every backend opened by New, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
