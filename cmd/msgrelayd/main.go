// Command msgrelayd runs the message relay server: it accepts messages on a local socket
// and forwards them to MySQL or SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/velmie/msgrelay"
	"github.com/velmie/msgrelay/config"
	"github.com/velmie/msgrelay/ipc"
	"github.com/velmie/msgrelay/mysql"
	"github.com/velmie/msgrelay/sqlite"
)

const defaultEnvPrefix = "MSGRELAY"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "msgrelayd: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	envPrefix    string
	printSchema  bool
	ensureSchema bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("msgrelayd", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML settings file; environment variables override it")
	flagSet.StringVar(&opts.envPrefix, "env-prefix", defaultEnvPrefix, "prefix for settings read from the environment")
	flagSet.BoolVar(&opts.printSchema, "print-schema", false, "print the destination table DDL and exit")
	flagSet.BoolVar(&opts.ensureSchema, "ensure-schema", true, "create the destination table on startup (mysql)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	bootstrap := slog.New(slog.NewJSONHandler(stderr, nil))
	settings := config.Load(settingsSource(opts), bootstrap)
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: settings.LogLevel}))

	if opts.printSchema {
		return printSchema(stdout, settings)
	}

	if err := settings.Validate(); err != nil {
		logger.Error("invalid configuration", "code", msgrelay.CodeStarting, "err", err)
		return err
	}

	store, closeStore, err := openStore(ctx, settings, opts, logger)
	if err != nil {
		logger.Error("store could not be opened", "code", msgrelay.CodeStarting, "driver", settings.Driver, "err", err)
		return err
	}
	defer closeStore()

	channel, err := ipc.Listen(settings.Endpoint, ipc.WithBacklog(settings.PoolSize))
	if err != nil {
		logger.Error("endpoint could not be bound", "code", msgrelay.CodeStarting, "endpoint", settings.Endpoint, "err", err)
		return err
	}

	server := msgrelay.NewServer(store, channel, append(settings.Options(), msgrelay.WithLogger(logger))...)
	logger.Info("msgrelayd listening",
		"endpoint", settings.Endpoint,
		"driver", settings.Driver,
		"pool_size", settings.PoolSize,
	)

	err = server.Run(ctx)
	if discarded := channel.Discarded(); discarded > 0 {
		logger.Warn("messages discarded from socket backlog", "code", msgrelay.CodeQueueLength, "discarded", discarded)
	}

	return err
}

func settingsSource(opts options) config.Source {
	sources := []config.Source{config.Env(opts.envPrefix)}
	if opts.configPath != "" {
		sources = append(sources, config.File(opts.configPath))
	}

	return config.Chain(sources...)
}

func printSchema(w io.Writer, settings config.Settings) error {
	var (
		ddl string
		err error
	)
	switch settings.Driver {
	case config.DriverSQLite:
		ddl, err = sqlite.Schema(settings.Table)
	default:
		table := settings.Table
		if table == "" {
			table = mysql.DefaultTable
		}
		ddl, err = mysql.Schema(table)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, ddl)

	return err
}

func openStore(ctx context.Context, settings config.Settings, opts options, logger *slog.Logger) (msgrelay.Store, func(), error) {
	switch settings.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(sqlite.Config{
			Path:   settings.ConnectionString,
			Table:  settings.Table,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}

		return store, func() { _ = store.Close() }, nil
	default:
		db, err := mysql.OpenDB(settings.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		store, err := mysql.NewStore(db, mysql.WithTable(settings.Table))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if opts.ensureSchema {
			// A store that is down at startup is retried by the forwarder.
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Warn("destination table not verified", "code", msgrelay.CodeStoreConnect, "table", store.Table(), "err", err)
			}
		}

		return store, func() { _ = db.Close() }, nil
	}
}
