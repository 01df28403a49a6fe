package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Vastxiao/mongocheckd/internal/checkpoint"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/config"
	"github.com/Vastxiao/mongocheckd/internal/localdb"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/reconciler"
	"github.com/Vastxiao/mongocheckd/internal/resultlog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"
)

const (
	srcURI                = "srcURI"
	dstURI                = "dstURI"
	checkCollections      = "checkCollections"
	checkDBs              = "checkDBs"
	concurrency           = "concurrency"
	collectionConcurrency = "collectionConcurrency"
	cancelPolicy          = "cancelPolicy"
	resultDir             = "resultDir"
	logLevel              = "logLevel"
	logPath               = "logPath"
	reconnectRetry        = "reconnectRetry"
	reconnectRetryDelay   = "reconnectRetryDelay"
	pageTimeout           = "pageTimeout"
	readPreference        = "readPreference"
	maxPoolSize           = "maxPoolSize"
	readsPerSecond        = "readsPerSecond"
	ignoreFieldOrder      = "ignoreFieldOrder"
	reportMissing         = "reportMissing"
	dedupDir              = "dedupDir"
	startClean            = "clean"
	serverPort            = "serverPort"
	configFileFlag        = "configFile"
)

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	loaded, err := config.LoadDotEnv(config.DotEnvFiles...)
	if err != nil {
		log.Fatal().Err(err).Stack().Msg("Failed to read .env file.")
	}

	defaults := config.Default()

	flags := []cli.Flag{
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  configFileFlag,
			Usage: "path to an optional YAML config file",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   srcURI,
			EnvVar: "MONGO_SRC_URI,mongo_src_uri",
			Usage:  "source cluster connection `URI` (required)",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   dstURI,
			EnvVar: "MONGO_DST_URI,mongo_dst_uri",
			Usage:  "destination cluster connection `URI` (required)",
		}),
		altsrc.NewStringSliceFlag(cli.StringSliceFlag{
			Name:   checkCollections,
			EnvVar: "CHECK_COLLECTIONS,check_collections",
			Usage:  "`namespaces` (db.collection) to check; overrides " + checkDBs,
		}),
		altsrc.NewStringSliceFlag(cli.StringSliceFlag{
			Name:   checkDBs,
			EnvVar: "CHECK_DBS,check_dbs",
			Usage:  "`databases` whose collections to check; default is every user database",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:   concurrency,
			EnvVar: "TASK_CONCURRENT,task_concurrent",
			Value:  defaults.Concurrency,
			Usage:  "`number` of documents compared at once per collection (also the batch size)",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:   collectionConcurrency,
			EnvVar: "COLLECTION_CONCURRENT",
			Value:  defaults.CollectionConcurrency,
			Usage:  "`number` of collections checked at once",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   cancelPolicy,
			EnvVar: "CANCEL_POLICY",
			Value:  string(defaults.CancelPolicy),
			Usage:  "what to do with other collections when one fails: 'failFast' or 'finishOthers'",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   resultDir,
			EnvVar: "RESULT_DIR",
			Value:  defaults.ResultDir,
			Usage:  "`directory` for checkpoints and result logs",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   logLevel,
			EnvVar: "LOG_LEVEL,log_level",
			Value:  defaults.LogLevel,
			Usage:  "log `level`: debug, info, warn, or error",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   logPath,
			EnvVar: "LOG_PATH",
			Value:  defaults.LogPath,
			Usage:  "'stdout', 'stderr', or a `directory` for rotating log files",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:   reconnectRetry,
			EnvVar: "RECONNECT_RETRY",
			Value:  defaults.ReconnectRetry,
			Usage:  "`attempts` per cluster operation before giving up on transient errors",
		}),
		altsrc.NewDurationFlag(cli.DurationFlag{
			Name:   reconnectRetryDelay,
			EnvVar: "RECONNECT_RETRY_DELAY",
			Value:  defaults.ReconnectRetryDelay,
			Usage:  "`delay` between attempts",
		}),
		altsrc.NewDurationFlag(cli.DurationFlag{
			Name:   pageTimeout,
			EnvVar: "PAGE_TIMEOUT",
			Value:  defaults.PageTimeout,
			Usage:  "server-side time `limit` for each query",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   readPreference,
			EnvVar: "READ_PREFERENCE",
			Value:  defaults.ReadPreference,
			Usage: "Read preference for reading data from clusters. " +
				"May be 'primary', 'secondary', 'primaryPreferred', 'secondaryPreferred', or 'nearest'",
		}),
		altsrc.NewUint64Flag(cli.Uint64Flag{
			Name:   maxPoolSize,
			EnvVar: "MAX_POOL_SIZE",
			Value:  defaults.MaxPoolSize,
			Usage:  "maximum `connections` per cluster",
		}),
		altsrc.NewFloat64Flag(cli.Float64Flag{
			Name:   readsPerSecond,
			EnvVar: "READS_PER_SECOND",
			Usage:  "cap on queries per second to each cluster; 0 means no cap",
		}),
		altsrc.NewBoolTFlag(cli.BoolTFlag{
			Name:   ignoreFieldOrder,
			EnvVar: "IGNORE_FIELD_ORDER",
			Usage:  "Whether or not field order is ignored in documents",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:   reportMissing,
			EnvVar: "REPORT_MISSING",
			Usage:  "record documents that exist on only one side as failures instead of skipping them",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:   dedupDir,
			EnvVar: "DEDUP_DIR",
			Usage:  "`directory` for a local store that keeps resumed runs from writing duplicate result lines",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:   startClean,
			EnvVar: "CHECK_CLEAN",
			Usage:  "If set, discard checkpoints and start every collection over",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:   serverPort,
			EnvVar: "SERVER_PORT",
			Usage:  "`port` for the read-only progress server; 0 disables it",
		}),
	}

	app := &cli.App{
		Name:  "mongocheckd",
		Usage: "compare every document between a source and a destination MongoDB cluster",
		Flags: flags,
		Before: func(cCtx *cli.Context) error {
			confFile := cCtx.String(configFileFlag)

			if len(confFile) > 0 {
				readConfFunc := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(configFileFlag))
				return readConfFunc(cCtx)
			}

			return nil
		},
		Action: func(cCtx *cli.Context) error {
			return run(handleArgs(cCtx), loaded)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Stack().Msg("Fatal Error")
	}
}

func handleArgs(cCtx *cli.Context) config.Config {
	return config.Config{
		SrcURI:                cCtx.String(srcURI),
		DstURI:                cCtx.String(dstURI),
		Collections:           config.ExpandList(cCtx.StringSlice(checkCollections)),
		DBs:                   config.ExpandList(cCtx.StringSlice(checkDBs)),
		Concurrency:           cCtx.Int(concurrency),
		CollectionConcurrency: cCtx.Int(collectionConcurrency),
		CancelPolicy:          reconciler.CancelPolicy(cCtx.String(cancelPolicy)),
		ResultDir:             cCtx.String(resultDir),
		LogLevel:              cCtx.String(logLevel),
		LogPath:               cCtx.String(logPath),
		ReconnectRetry:        cCtx.Int(reconnectRetry),
		ReconnectRetryDelay:   cCtx.Duration(reconnectRetryDelay),
		PageTimeout:           cCtx.Duration(pageTimeout),
		ReadPreference:        cCtx.String(readPreference),
		MaxPoolSize:           cCtx.Uint64(maxPoolSize),
		ReadsPerSecond:        cCtx.Float64(readsPerSecond),
		IgnoreFieldOrder:      cCtx.BoolT(ignoreFieldOrder),
		ReportMissing:         cCtx.Bool(reportMissing),
		DedupDir:              cCtx.String(dedupDir),
		Clean:                 cCtx.Bool(startClean),
		ServerPort:            cCtx.Int(serverPort),
	}
}

func run(cfg config.Config, dotEnvFiles []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	baseLogger, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer baseLogger.Close()

	runID := uuid.NewString()
	l := logger.NewSubLogger(baseLogger, "runID", runID)

	l.Info().
		Strs("dotEnvFiles", dotEnvFiles).
		Strs("collections", cfg.Collections).
		Strs("databases", cfg.DBs).
		Int("concurrency", cfg.Concurrency).
		Int("collectionConcurrency", cfg.CollectionConcurrency).
		Str("cancelPolicy", string(cfg.CancelPolicy)).
		Str("resultDir", cfg.ResultDir).
		Msg("Starting.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := cluster.Connect(ctx, l, cfg.SourceOptions())
	if err != nil {
		return errors.Wrap(err, "connecting to source")
	}
	defer closeCluster(l, src)

	dst, err := cluster.Connect(ctx, l, cfg.DestinationOptions())
	if err != nil {
		return errors.Wrap(err, "connecting to destination")
	}
	defer closeCluster(l, dst)

	var dedup resultlog.Dedup
	if cfg.DedupDir != "" {
		ldb, err := localdb.New(l, cfg.DedupDir)
		if err != nil {
			return err
		}
		defer ldb.Close()

		dedup = ldb
	}

	orchestrator := reconciler.NewOrchestrator(
		src,
		dst,
		checkpoint.NewFileStore(cfg.ResultDir, l),
		cfg.OrchestratorOptions(dedup),
		l,
	)

	if cfg.ServerPort > 0 {
		serverCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()

		server := reconciler.NewWebServer(cfg.ServerPort, runID, orchestrator.Tracker(), l)
		go func() {
			if err := server.Run(serverCtx); err != nil {
				l.Warn().Err(err).Msg("Status server stopped.")
			}
		}()
	}

	summary, err := orchestrator.Run(ctx)

	if summary != nil {
		if renderErr := summary.Render(os.Stdout); renderErr != nil {
			l.Warn().Err(renderErr).Msg("Failed to print summary.")
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			l.Warn().Msg("Interrupted. Result logs are flushed; rerun to resume.")
		}

		return err
	}

	l.Info().
		Int64("mismatched", summary.Mismatched()).
		Msg("All collections checked.")

	return nil
}

func closeCluster(l *logger.Logger, c cluster.Cluster) {
	if err := c.Close(context.Background()); err != nil {
		l.Warn().Err(err).Str("cluster", c.Name()).Msg("Failed to disconnect.")
	}
}
