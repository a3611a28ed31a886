package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cgportillo/project-cpxrtillo/internal/crawler"
	"github.com/cgportillo/project-cpxrtillo/internal/events"
	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/indexer"
	"github.com/cgportillo/project-cpxrtillo/internal/output"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher"
	"github.com/cgportillo/project-cpxrtillo/internal/tokenizer"
	"github.com/cgportillo/project-cpxrtillo/internal/workqueue"
	"github.com/cgportillo/project-cpxrtillo/pkg/config"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/kafka"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
	"github.com/cgportillo/project-cpxrtillo/pkg/metrics"
	"github.com/cgportillo/project-cpxrtillo/pkg/tracing"
)

type options struct {
	configPath string
	path       string
	threads    int
	seed       string
	limit      int
	query      string
	exact      bool
	indexOut   string
	countsOut  string
	resultsOut string
	port       int
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "searchengine",
		Short: "Build, crawl, query and serve a word-location search index",
		Long: `searchengine indexes text files (--path) or a web subgraph (--url), evaluates
query files (--query) and writes JSON snapshots (--index, --counts, --results).

Without --threads or --url everything runs sequentially on one goroutine.
With either, indexing, crawling and querying run on a worker pool against a
concurrent index. --port serves the finished index over HTTP until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&o.path, "path", "", "text file or directory to index")
	f.IntVar(&o.threads, "threads", 0, "worker count; enables concurrent mode")
	f.Lookup("threads").NoOptDefVal = "0"
	f.StringVar(&o.seed, "url", "", "seed URL to crawl; enables concurrent mode")
	f.IntVar(&o.limit, "limit", 0, "maximum number of URLs to crawl, seed included")
	f.StringVar(&o.query, "query", "", "file of query lines to evaluate")
	f.BoolVar(&o.exact, "exact", false, "match query terms exactly instead of by prefix")
	f.StringVar(&o.indexOut, "index", "", "write the inverted index as JSON")
	f.Lookup("index").NoOptDefVal = "index.json"
	f.StringVar(&o.countsOut, "counts", "", "write per-location word counts as JSON")
	f.Lookup("counts").NoOptDefVal = "counts.json"
	f.StringVar(&o.resultsOut, "results", "", "write query results as JSON")
	f.Lookup("results").NoOptDefVal = "results.json"
	f.IntVar(&o.port, "port", 0, "serve the index over HTTP on this port")
	f.Lookup("port").NoOptDefVal = "0"
	return cmd
}

// snapshotter is satisfied by both index implementations.
type snapshotter interface {
	Postings() map[string]map[string][]int
	Counts() map[string]int
	Results() map[string][]index.Result
}

func run(ctx context.Context, cmd *cobra.Command, o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("driver")
	ctx, span := tracing.Start(ctx, "run")
	span.SetAttr("concurrent", false)
	defer span.Log(log)

	flags := cmd.Flags()
	concurrent := flags.Changed("threads") || o.seed != "" || flags.Changed("port")
	threads := cfg.Index.Workers
	if flags.Changed("threads") && o.threads > 0 {
		threads = o.threads
	}
	limit := cfg.Crawl.Limit
	if flags.Changed("limit") && o.limit > 0 {
		limit = o.limit
	}
	exact := cfg.Query.DefaultExact
	if flags.Changed("exact") {
		exact = o.exact
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	stats := events.NewAggregator()
	var tracker events.Tracker = stats
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector := events.NewCollector(producer, cfg.Kafka.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		tracker = events.Multi{stats, collector}
	}

	normalizer := tokenizer.New(tokenizer.NewCached(tokenizer.Snowball{}, cfg.Index.StemCacheSize))
	builder := indexer.NewBuilder(normalizer,
		indexer.WithExtensions(cfg.Index.Extensions),
		indexer.WithTracker(tracker),
		indexer.WithObserver(m),
	)
	engineOpts := []searcher.Option{searcher.WithTracker(tracker), searcher.WithObserver(m)}

	if concurrent {
		idx := index.NewConcurrent(index.WithObserver(m))
		pool := workqueue.New(threads, m)
		defer pool.Shutdown()
		span.SetAttr("concurrent", true)
		span.SetAttr("workers", threads)
		log.Info("running concurrently", "workers", threads)

		if o.path != "" {
			_, phase := tracing.StartChild(ctx, "index")
			if err := builder.BuildParallel(ctx, o.path, idx, pool); err != nil {
				logPhaseError(log, "indexing finished with errors", err, "path", o.path)
			}
			phase.SetAttr("locations", idx.LocationCount())
			phase.End()
		}
		if o.seed != "" {
			_, phase := tracing.StartChild(ctx, "crawl")
			c := crawler.New(idx, pool, normalizer, crawler.NewHTTPFetcher(cfg.Crawl), limit,
				crawler.WithTracker(tracker),
				crawler.WithObserver(m),
			)
			if err := c.Crawl(ctx, o.seed); err != nil {
				logPhaseError(log, "crawl failed", err, "url", o.seed)
			}
			phase.SetAttr("fetched", c.Stats().Fetched)
			phase.End()
		}
		engine := searcher.NewParallel(searcher.NewEngine(idx, normalizer, engineOpts...), pool, nil)
		if o.query != "" {
			_, phase := tracing.StartChild(ctx, "query")
			if err := engine.SearchFile(ctx, o.query, exact); err != nil {
				logPhaseError(log, "query evaluation failed", err, "query", o.query)
			}
			phase.End()
		}
		if err := writeOutputs(ctx, o, idx, log); err != nil {
			return err
		}
		log.Info("done", "elapsed", span.End())
		if flags.Changed("port") {
			port := o.port
			if port <= 0 {
				port = cfg.Server.Port
			}
			return serve(ctx, cfg, port, idx, engine.Engine, pool, m, stats)
		}
		return nil
	}

	idx := index.New()
	if o.path != "" {
		_, phase := tracing.StartChild(ctx, "index")
		if err := builder.Build(ctx, o.path, idx); err != nil {
			logPhaseError(log, "indexing finished with errors", err, "path", o.path)
		}
		phase.SetAttr("locations", idx.LocationCount())
		phase.End()
	}
	if o.query != "" {
		_, phase := tracing.StartChild(ctx, "query")
		engine := searcher.NewEngine(idx, normalizer, engineOpts...)
		if err := engine.SearchFile(ctx, o.query, exact); err != nil {
			logPhaseError(log, "query evaluation failed", err, "query", o.query)
		}
		phase.End()
	}
	if err := writeOutputs(ctx, o, idx, log); err != nil {
		return err
	}
	log.Info("done", "elapsed", span.End())
	return nil
}

// writeOutputs writes every requested snapshot, attempting all of them even
// if one fails.
func writeOutputs(ctx context.Context, o options, snap snapshotter, log *slog.Logger) error {
	_, phase := tracing.StartChild(ctx, "write")
	defer phase.End()
	var errs []error
	if o.indexOut != "" {
		if err := output.WriteIndex(o.indexOut, snap.Postings()); err != nil {
			errs = append(errs, err)
		}
	}
	if o.countsOut != "" {
		if err := output.WriteCounts(o.countsOut, snap.Counts()); err != nil {
			errs = append(errs, err)
		}
	}
	if o.resultsOut != "" {
		if err := output.WriteResults(o.resultsOut, snap.Results()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("writing output failed", "error", err)
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// logPhaseError reports a failed phase. An interrupted run is a warning, not
// a failure of the phase itself.
func logPhaseError(log *slog.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if apperrors.IsCancellation(err) {
		log.Warn("run interrupted", args...)
		return
	}
	log.Error(msg, args...)
}
