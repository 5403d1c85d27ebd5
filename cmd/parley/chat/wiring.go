package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/papercomputeco/parley/cmd/parley/sqlitepath"
	"github.com/papercomputeco/parley/pkg/archive"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/eventstream/kafka"
	"github.com/papercomputeco/parley/pkg/eventstream/nop"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
	"github.com/papercomputeco/parley/pkg/storage/postgres"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
)

const logFileName = "parley.log"

// newLogger builds the chat logger. Records always go to a JSON file in the
// .parley directory. The terminal UI owns stdout and stderr, so only line mode
// also logs to stderr.
func newLogger(cfg *config.Config, configDir string, tui bool, stderr io.Writer) (*slog.Logger, func() error, error) {
	path, err := dotdir.NewManager().Path(configDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileLog := logger.New(
		logger.WithDebug(cfg.Log.Debug),
		logger.WithSource(cfg.Log.Debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	if tui {
		return fileLog, f.Close, nil
	}

	termLog := logger.New(
		logger.WithDebug(cfg.Log.Debug),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON),
		logger.WithWriters(stderr),
	)
	return logger.Multi(termLog, fileLog), f.Close, nil
}

// newDriver opens the transcript archive. Postgres wins over SQLite. With
// ephemeral set, exchanges only live for the process.
func newDriver(ctx context.Context, cfg *config.Config, configDir string, ephemeral bool, log *slog.Logger) (storage.Driver, error) {
	switch {
	case ephemeral:
		log.Debug("using in-memory transcript archive")
		return inmemory.NewDriver(), nil

	case cfg.Storage.PostgresDSN != "":
		log.Debug("using postgres transcript archive")
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres archive: %w", err)
		}
		return driver, nil

	default:
		path := cfg.Storage.SQLitePath
		if path == "" {
			var err error
			path, err = sqlitepath.DefaultSQLitePath(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite archive: %w", err)
			}
		}

		log.Debug("using sqlite transcript archive", "path", path)
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite archive: %w", err)
		}
		return driver, nil
	}
}

func newPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	if len(cfg.Events.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	log.Debug("publishing exchange events to kafka",
		"brokers", strings.Join(cfg.Events.KafkaBrokers, ","),
		"topic", cfg.Events.KafkaTopic,
	)
	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return pub, nil
}

// backend bundles the archive pool with the resources it owns.
type backend struct {
	pool      *archive.Pool
	driver    storage.Driver
	publisher eventstream.Publisher
}

func newBackend(ctx context.Context, cfg *config.Config, configDir string, ephemeral bool, log *slog.Logger) (*backend, error) {
	driver, err := newDriver(ctx, cfg, configDir, ephemeral, log)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		_ = driver.Close()
		return nil, err
	}

	host, _ := os.Hostname()
	pool, err := archive.NewPool(&archive.Config{
		Driver:    driver,
		Publisher: publisher,
		Source: eventstream.EventSource{
			Host:     host,
			Endpoint: cfg.Client.Endpoint,
		},
		Logger: log,
	})
	if err != nil {
		_ = publisher.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("creating archive pool: %w", err)
	}

	return &backend{pool: pool, driver: driver, publisher: publisher}, nil
}

// Close drains the pool before closing what it writes to.
func (b *backend) Close() error {
	b.pool.Close()
	return errors.Join(b.publisher.Close(), b.driver.Close())
}
