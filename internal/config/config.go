// Package config holds the process settings, gathered once at startup and
// passed down explicitly.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/reconciler"
	"github.com/Vastxiao/mongocheckd/internal/resultlog"
	"github.com/Vastxiao/mongocheckd/internal/retry"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"
)

// DotEnvFiles are read, when present, before flags and the environment.
var DotEnvFiles = []string{".env", "etc/.env", "etc/config.env"}

// Config is every setting the checker takes.
type Config struct {
	SrcURI string
	DstURI string

	Collections []string
	DBs         []string

	Concurrency           int
	CollectionConcurrency int
	CancelPolicy          reconciler.CancelPolicy

	ResultDir string
	LogLevel  string
	LogPath   string

	ReconnectRetry      int
	ReconnectRetryDelay time.Duration
	PageTimeout         time.Duration
	ReadPreference      string
	MaxPoolSize         uint64
	ReadsPerSecond      float64

	IgnoreFieldOrder bool
	ReportMissing    bool
	DedupDir         string
	Clean            bool
	ServerPort       int
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Concurrency:           reconciler.DefaultBatchSize,
		CollectionConcurrency: 1,
		CancelPolicy:          reconciler.FailFast,
		ResultDir:             "result",
		LogLevel:              "info",
		LogPath:               "stderr",
		ReconnectRetry:        retry.DefaultMaxAttempts,
		ReconnectRetryDelay:   retry.DefaultDelay,
		PageTimeout:           cluster.DefaultPageTimeout,
		ReadPreference:        "primary",
		MaxPoolSize:           100,
		IgnoreFieldOrder:      true,
	}
}

// Validate reports every invalid setting. Each is a *util.ConfigError.
func (c Config) Validate() error {
	var errs error

	add := func(err error) {
		errs = multierr.Append(errs, err)
	}

	add(cluster.ValidateURI("srcURI", c.SrcURI))
	add(cluster.ValidateURI("dstURI", c.DstURI))

	for _, entry := range c.Collections {
		_, err := cluster.ParseNamespace(entry)
		add(err)
	}

	if c.Concurrency < 1 || c.Concurrency > cluster.MaxPageSize {
		add(util.NewConfigError("concurrency", "must be between 1 and %d (got %d)", cluster.MaxPageSize, c.Concurrency))
	}

	if c.CollectionConcurrency < 1 {
		add(util.NewConfigError("collectionConcurrency", "must be at least 1 (got %d)", c.CollectionConcurrency))
	}

	if !lo.Contains(reconciler.CancelPolicies, c.CancelPolicy) {
		add(util.NewConfigError("cancelPolicy", "must be one of %v (got %#q)", reconciler.CancelPolicies, c.CancelPolicy))
	}

	if strings.TrimSpace(c.ResultDir) == "" {
		add(util.NewConfigError("resultDir", "may not be empty"))
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		add(util.NewConfigError("logLevel", "%v", err))
	}

	if c.ReconnectRetry < 1 {
		add(util.NewConfigError("reconnectRetry", "must be at least 1 (got %d)", c.ReconnectRetry))
	}

	if c.ReconnectRetryDelay < 0 {
		add(util.NewConfigError("reconnectRetryDelay", "may not be negative (got %s)", c.ReconnectRetryDelay))
	}

	if c.PageTimeout <= 0 {
		add(util.NewConfigError("pageTimeout", "must be positive (got %s)", c.PageTimeout))
	}

	if _, err := readpref.ModeFromString(c.ReadPreference); err != nil {
		add(util.NewConfigError("readPreference", "%v", err))
	}

	if c.ReadsPerSecond < 0 {
		add(util.NewConfigError("readsPerSecond", "may not be negative (got %v)", c.ReadsPerSecond))
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		add(util.NewConfigError("serverPort", "must be between 0 and 65535 (got %d)", c.ServerPort))
	}

	return errs
}

// RetryPolicy is the reconnect policy for both clusters.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.ReconnectRetry,
		Delay:       c.ReconnectRetryDelay,
	}
}

// SourceOptions returns the source cluster's connection settings.
func (c Config) SourceOptions() cluster.MongoOptions {
	return c.mongoOptions("source", c.SrcURI, "srcURI")
}

// DestinationOptions returns the destination cluster's connection settings.
func (c Config) DestinationOptions() cluster.MongoOptions {
	return c.mongoOptions("destination", c.DstURI, "dstURI")
}

func (c Config) mongoOptions(name, uri, field string) cluster.MongoOptions {
	return cluster.MongoOptions{
		Name:           name,
		URI:            uri,
		URIField:       field,
		Retry:          c.RetryPolicy(),
		PageTimeout:    c.PageTimeout,
		ReadPreference: c.ReadPreference,
		MaxPoolSize:    c.MaxPoolSize,
		ReadsPerSecond: c.ReadsPerSecond,
	}
}

// OrchestratorOptions returns the scan settings. dedup may be nil.
func (c Config) OrchestratorOptions(dedup resultlog.Dedup) reconciler.Options {
	return reconciler.Options{
		Collections:           c.Collections,
		DBs:                   c.DBs,
		CollectionConcurrency: c.CollectionConcurrency,
		CancelPolicy:          c.CancelPolicy,
		Clean:                 c.Clean,
		Scan: reconciler.ScanOptions{
			ResultDir:        c.ResultDir,
			BatchSize:        c.Concurrency,
			IgnoreFieldOrder: c.IgnoreFieldOrder,
			ReportMissing:    c.ReportMissing,
			Dedup:            dedup,
		},
	}
}

// LoadDotEnv reads whichever of paths exist into the environment. Variables
// already set are left alone, and earlier files win over later ones. It
// returns the files it read.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string

	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return loaded, errors.Wrapf(err, "reading %#q", path)
		}

		loaded = append(loaded, path)
	}

	return loaded, nil
}

// ExpandList splits comma-separated entries and drops blanks.
func ExpandList(in []string) []string {
	ret := []string{}
	for _, entry := range in {
		for _, sub := range strings.Split(entry, ",") {
			if sub = strings.Trim(sub, " \t"); sub != "" {
				ret = append(ret, sub)
			}
		}
	}
	return ret
}
