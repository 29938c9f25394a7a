package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"civicease/civicfeed/internal/config"
	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/feed"
	importfeeds "civicease/civicfeed/internal/import"
	"civicease/civicfeed/internal/notifier"
	"civicease/civicfeed/internal/process"
	"civicease/civicfeed/internal/reminders"
	"civicease/civicfeed/internal/scheduler"
	"civicease/civicfeed/internal/server"
	"civicease/civicfeed/internal/server/storage"
	"civicease/civicfeed/internal/snapshot"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

const usage = `Usage: civicfeed [command] [options]
Commands: scrape, load, start, server, migrate

For command-specific options, use: civicfeed [command] -h`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var configPath string
	newFlagSet := func(name string) *flag.FlagSet {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		fs.StringVar(&configPath, "config", config.GetEnvString("CIVICFEED_CONFIG", ""),
			"Path to a YAML configuration file (env: CIVICFEED_CONFIG)")
		return fs
	}

	scrapeCmd := newFlagSet("scrape")
	scrapeDir := scrapeCmd.String("dir", "", "Snapshot directory, overrides the configured one")

	loadCmd := newFlagSet("load")
	loadDir := loadCmd.String("dir", "", "Snapshot directory, overrides the configured one")

	startCmd := newFlagSet("start")
	once := startCmd.Bool("once", false, "Run one ingestion cycle and one reminder scan, then exit")
	withServer := startCmd.Bool("serve", false, "Also serve the query API")

	serverCmd := newFlagSet("server")

	migrateCmd := newFlagSet("migrate")
	down := migrateCmd.Int("down", 0, "Roll back this many migrations instead of applying pending ones")

	var err error
	switch os.Args[1] {
	case "scrape":
		scrapeCmd.Parse(os.Args[2:])
		err = withConfig(configPath, func(cfg *config.Config) error {
			if *scrapeDir != "" {
				cfg.SnapshotDir = *scrapeDir
			}
			return runScrape(cfg)
		})

	case "load":
		loadCmd.Parse(os.Args[2:])
		err = withConfig(configPath, func(cfg *config.Config) error {
			if *loadDir != "" {
				cfg.SnapshotDir = *loadDir
			}
			return runLoad(cfg)
		})

	case "start":
		startCmd.Parse(os.Args[2:])
		err = withConfig(configPath, func(cfg *config.Config) error {
			return runStart(cfg, *once, *withServer)
		})

	case "server":
		serverCmd.Parse(os.Args[2:])
		err = withConfig(configPath, runServer)

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		err = withConfig(configPath, func(cfg *config.Config) error {
			return runMigrate(cfg, *down)
		})

	case "-h", "--help", "help":
		fmt.Println(usage)
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func withConfig(path string, run func(*config.Config) error) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	return run(cfg)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(shutdown)
	}()

	return ctx, cancel
}

func openDB(cfg *config.Config, readOnly bool) (*database.DB, error) {
	dbCfg := database.NewConfig(cfg.DBDriver, cfg.DBDSN)
	dbCfg.ReadOnly = readOnly
	dbCfg.SkipMigrations = readOnly

	db, err := database.NewDB(dbCfg)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func newFetcher(cfg *config.Config) *feed.Fetcher {
	return feed.NewFetcher(feed.Config{
		URLTemplate: cfg.FeedURLTemplate,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.FetchTimeout,
	}, nil)
}

func logSummary(kind string, s *process.Summary) {
	ev := log.Info()
	if len(s.Failed()) > 0 {
		ev = log.Warn()
	}
	ev.Str("kind", kind).
		Int("sources", len(s.Categories)).
		Int("failed", len(s.Failed())).
		Int("inserted", s.Inserted).
		Int("skipped", s.Skipped).
		Dur("duration", s.Duration).
		Msg("Cycle finished")
	fmt.Println(s.String())
}

// runScrape fetches every category into the snapshot directory without touching the store.
func runScrape(cfg *config.Config) error {
	if cfg.SnapshotDir == "" {
		return errors.New("scrape needs a snapshot directory")
	}

	ctx, cancel := signalContext()
	defer cancel()

	processor, err := process.NewProcessor(newFetcher(cfg), nil, cfg.Categories(), snapshot.NewStore(cfg.SnapshotDir))
	if err != nil {
		return err
	}

	summary, err := processor.Scrape(ctx)
	if summary != nil {
		logSummary("scrape", summary)
	}
	return ignoreCanceled(err)
}

// runLoad imports every snapshot in the snapshot directory into the store.
func runLoad(cfg *config.Config) error {
	if cfg.SnapshotDir == "" {
		return errors.New("load needs a snapshot directory")
	}

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	processor, err := process.NewProcessor(nil, importfeeds.NewImporter(db), cfg.Categories(), snapshot.NewStore(cfg.SnapshotDir))
	if err != nil {
		return err
	}

	summary, err := processor.LoadSnapshots(ctx)
	if summary != nil {
		logSummary("load", summary)
	}
	return ignoreCanceled(err)
}

// runStart runs the ingestion loop and the reminder loop side by side until a shutdown
// signal arrives, or once each when once is set.
func runStart(cfg *config.Config, once, withServer bool) error {
	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var snapshots *snapshot.Store
	if cfg.SnapshotDir != "" {
		snapshots = snapshot.NewStore(cfg.SnapshotDir)
	}

	processor, err := process.NewProcessor(newFetcher(cfg), importfeeds.NewImporter(db), cfg.Categories(), snapshots)
	if err != nil {
		return fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	n := notifier.New(db, reminders.NewScanner(db), notifier.NewMailer(cfg.SMTP),
		notifier.Config{MaxFailures: cfg.ReminderMaxFailures}, scheduler.RealClock)

	ingest := scheduler.NewLoop(scheduler.Job{
		Name:     "ingest",
		Interval: cfg.IngestInterval,
		Run: func(ctx context.Context) error {
			var summary *process.Summary
			var err error
			if snapshots != nil {
				summary, err = processor.Refresh(ctx)
			} else {
				summary, err = processor.RunCycle(ctx)
			}
			if summary != nil {
				logSummary("ingest", summary)
			}
			inserted, skipped := processor.Stats()
			log.Debug().Int64("inserted_total", inserted).Int64("skipped_total", skipped).Msg("Ingestion totals")
			return err
		},
	})

	remind := scheduler.NewLoop(scheduler.Job{
		Name:     "reminders",
		Interval: cfg.ReminderInterval,
		Run: func(ctx context.Context) error {
			_, err := n.RunOnce(ctx)
			return err
		},
	})

	if once {
		ingest.MaxRuns = 1
		remind.MaxRuns = 1
	}

	if withServer && !once {
		router := server.NewRouter(storage.NewRepository(db), log.Logger, cfg.APIKey, time.Now)
		go func() {
			if err := server.RunServer(ctx, router, cfg.ListenAddr(), log.Logger); err != nil {
				log.Error().Err(err).Msg("API server stopped")
				cancel()
			}
		}()
	}

	log.Info().
		Dur("ingest_interval", cfg.IngestInterval).
		Dur("reminder_interval", cfg.ReminderInterval).
		Int("categories", len(cfg.Categories())).
		Bool("snapshots", snapshots != nil).
		Msg("Starting loops")

	scheduler.RunAll(ctx, ingest, remind)
	log.Info().Msg("Loops stopped")
	return nil
}

// runServer serves the query API against the store until a shutdown signal arrives.
func runServer(cfg *config.Config) error {
	log.Debug().Msg("Starting server with debug logging enabled")

	db, err := openDB(cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var handler http.Handler = server.NewRouter(storage.NewRepository(db), log.Logger, cfg.APIKey, time.Now)
	return server.RunServer(ctx, handler, cfg.ListenAddr(), log.Logger)
}

// runMigrate applies pending migrations, or rolls back the newest down of them.
func runMigrate(cfg *config.Config, down int) error {
	dbCfg := database.NewConfig(cfg.DBDriver, cfg.DBDSN)
	dbCfg.SkipMigrations = down > 0

	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if down > 0 {
		if err := db.Rollback(down); err != nil {
			return err
		}
		log.Info().Int("steps", down).Msg("Rolled back migrations")
		return nil
	}

	log.Info().Str("driver", cfg.DBDriver).Msg("Migrations up to date")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Run canceled by shutdown signal")
		return nil
	}
	return err
}
