// Command gamelake runs the catalog pipeline: ingest raw games and genres
// into the bronze layer, transform them into the silver layer, or serve
// both on a schedule with health and metrics endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arvelid/gamelake/pkg/archive"
	"github.com/arvelid/gamelake/pkg/client"
	"github.com/arvelid/gamelake/pkg/config"
	"github.com/arvelid/gamelake/pkg/ingest"
	"github.com/arvelid/gamelake/pkg/logging"
	"github.com/arvelid/gamelake/pkg/store"
	"github.com/arvelid/gamelake/pkg/transform"
)

const dateLayout = "2006-01-02"

type options struct {
	mode      string
	resource  string
	from      string
	to        string
	lastDays  int
	maxPages  int
	doArchive bool
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if opts.maxPages > 0 {
		cfg.MaxPages = opts.maxPages
	}

	logger, err := logging.Setup(logging.Config{
		Level:      logging.LogLevel(cfg.LogLevel),
		Pretty:     cfg.LogPretty,
		RunLogFile: cfg.RunLogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts, cfg, logger); err != nil {
		logger.Error().Err(err).Str("mode", opts.mode).Msg("Pipeline failed")
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.mode, "mode", "run", "pipeline mode: ingest, transform, run or serve")
	flag.StringVar(&opts.resource, "resource", "all", "resource to ingest: genres, games or all")
	flag.StringVar(&opts.from, "from", "", "start of the release date range (YYYY-MM-DD)")
	flag.StringVar(&opts.to, "to", "", "end of the release date range (YYYY-MM-DD)")
	flag.IntVar(&opts.lastDays, "last-days", 0, "lookback window in days (overrides config)")
	flag.IntVar(&opts.maxPages, "max-pages", 0, "cap on pages per pull (0 = unbounded)")
	flag.BoolVar(&opts.doArchive, "archive", false, "archive bronze partitions after ingest")
	flag.Parse()
	return opts
}

func run(opts options, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	switch opts.mode {
	case "ingest":
		return runIngest(ctx, opts, cfg, st)
	case "transform":
		_, err := transform.New(st).Run(ctx)
		return err
	case "run":
		if err := runIngest(ctx, opts, cfg, st); err != nil {
			return err
		}
		_, err := transform.New(st).Run(ctx)
		return err
	case "serve":
		return serve(ctx, opts, cfg, st, logger)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
}

func newIngestor(cfg *config.Config, st *store.Store) (*ingest.Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig(cfg.BaseURL, cfg.APIKey)
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.Retry.MaxAttempts = cfg.MaxAttempts
	clientCfg.Retry.InitialBackoff = cfg.InitialBackoff
	clientCfg.Retry.MaxBackoff = cfg.MaxBackoff
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.CacheTTL = cfg.CacheTTL
	if cfg.RedisAddr != "" {
		clientCfg.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	catalog, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	return ingest.New(catalog, st, ingest.Config{
		GenrePageSize: cfg.GenrePageSize,
		GamePageSize:  cfg.GamePageSize,
		MaxPages:      cfg.MaxPages,
	}), nil
}

func runIngest(ctx context.Context, opts options, cfg *config.Config, st *store.Store) error {
	ing, err := newIngestor(cfg, st)
	if err != nil {
		return err
	}

	if opts.resource == "genres" || opts.resource == "all" {
		if _, err := ing.FullLoadGenres(ctx); err != nil {
			return err
		}
	}

	var result *ingest.RunResult
	if opts.resource == "games" || opts.resource == "all" {
		lastDays := cfg.LastDays
		if opts.lastDays > 0 {
			lastDays = opts.lastDays
		}
		from, to, err := resolveDateRange(time.Now().UTC(), opts.from, opts.to, lastDays)
		if err != nil {
			return err
		}
		if result, err = ing.IncrementalLoadGames(ctx, from, to); err != nil {
			return err
		}
	}

	if opts.doArchive && cfg.ArchiveBucket != "" && result != nil && result.Records > 0 {
		archiver, err := archive.NewWithS3(ctx, st, archive.Config{
			Bucket: cfg.ArchiveBucket,
			Region: cfg.ArchiveRegion,
		})
		if err != nil {
			return err
		}
		if _, err := archiver.ArchivePartition(ctx, result.ExtractionDate); err != nil {
			return err
		}
	}
	return nil
}

// resolveDateRange turns the from/to flags into a concrete range. With no
// explicit bounds the range is the last lastDays days ending today; a lone
// -from extends to today, a lone -to reaches back lastDays before it.
func resolveDateRange(now time.Time, fromStr, toStr string, lastDays int) (time.Time, time.Time, error) {
	today := now.Truncate(24 * time.Hour)

	var from, to time.Time
	var err error

	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return from, to, fmt.Errorf("parse -to %q: %w", toStr, err)
		}
	} else {
		to = today
	}

	if fromStr != "" {
		if from, err = time.Parse(dateLayout, fromStr); err != nil {
			return from, to, fmt.Errorf("parse -from %q: %w", fromStr, err)
		}
	} else {
		from = to.AddDate(0, 0, -lastDays)
	}

	if to.Before(from) {
		return from, to, fmt.Errorf("date range inverted: %s after %s",
			from.Format(dateLayout), to.Format(dateLayout))
	}
	return from, to, nil
}

// serve runs the pipeline on a fixed interval and exposes health and
// metrics endpoints until interrupted.
func serve(ctx context.Context, opts options, cfg *config.Config, st *store.Store, logger zerolog.Logger) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: router,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving health and metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(cfg.ScheduleInterval).Do(func() {
		logger.Info().Msg("Scheduled pipeline run starting")
		if err := runIngest(ctx, opts, cfg, st); err != nil {
			logger.Error().Err(err).Msg("Scheduled ingest failed")
			return
		}
		if _, err := transform.New(st).Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Scheduled transform failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule pipeline: %w", err)
	}
	scheduler.StartAsync()
	logger.Info().Dur("interval", cfg.ScheduleInterval).Msg("Scheduler started")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
