package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/thesis-crawler/internal/app"
	"github.com/JakeFAU/thesis-crawler/internal/config"
)

// campaign is the slice of app.App the crawl command drives.
type campaign interface {
	RunID() string
	Run(ctx context.Context, keywords []string, perKeyword int) error
	Close()
}

// newApp is a variable so tests can swap in a fake campaign.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (campaign, error) {
	return app.New(ctx, cfg, logger)
}

type crawlFlags struct {
	keywords    []string
	perKeyword  int
	output      string
	fields      []string
	parallelism int
	maxPages    int
}

func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the repository for every keyword",
		Long: `Runs one campaign: each keyword is searched in turn, matching records are
accumulated, and the accumulated set is appended to the output file when the
campaign ends or is interrupted.`,
		Example: `  thesis-crawler crawl -k "redes" -k "sistemas distribuídos" -n 20 -o theses.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&flags.keywords, "keyword", "k", nil, "keyword to search (repeatable)")
	f.IntVarP(&flags.perKeyword, "per-keyword", "n", 0, "records to collect per keyword")
	f.StringVarP(&flags.output, "output", "o", "", "delimited output file (appended to)")
	f.StringSliceVar(&flags.fields, "field", nil, "output fields in order (comma separated)")
	f.IntVar(&flags.parallelism, "parallelism", 0, "keywords crawled at once")
	f.IntVar(&flags.maxPages, "max-pages", 0, "listing pages per keyword; 0 means no cap")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := applyCrawlFlags(cmd.Flags(), rt.cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Crawler.Keywords) == 0 {
		return errors.New("no keywords: pass --keyword or set crawler.keywords")
	}

	c, err := newApp(cmd.Context(), cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize campaign: %w", err)
	}
	defer c.Close()

	rt.logger.Info("crawl starting",
		zap.String("run_id", c.RunID()),
		zap.Int("keywords", len(cfg.Crawler.Keywords)),
		zap.String("output", cfg.Output.Path),
	)
	if err := c.Run(cmd.Context(), cfg.Crawler.Keywords, cfg.Crawler.PerKeyword); err != nil {
		return fmt.Errorf("run campaign: %w", err)
	}
	return nil
}

// applyCrawlFlags overrides configuration with the flags set on the command line.
func applyCrawlFlags(f *pflag.FlagSet, cfg config.Config, flags crawlFlags) config.Config {
	if f.Changed("keyword") {
		cfg.Crawler.Keywords = flags.keywords
	}
	if f.Changed("per-keyword") {
		cfg.Crawler.PerKeyword = flags.perKeyword
	}
	if f.Changed("output") {
		cfg.Output.Path = flags.output
	}
	if f.Changed("field") {
		cfg.Output.Fields = flags.fields
	}
	if f.Changed("parallelism") {
		cfg.Crawler.Parallelism = flags.parallelism
	}
	if f.Changed("max-pages") {
		cfg.Crawler.MaxPages = flags.maxPages
	}
	return cfg
}
