package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"twittersphere/internal/config"
	"twittersphere/internal/ingest"
	"twittersphere/internal/list"
	"twittersphere/internal/logging"
	"twittersphere/internal/server"
	"twittersphere/internal/tui"
	"twittersphere/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "twittersphere",
		Usage:   "Build a SQLite store of Twitter API v2 data collected with twarc",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Config file (default: ~/.config/twittersphere/config.yaml)"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "prepare",
				Usage:     "Ingest twarc JSONL page files into a store",
				ArgsUsage: "<input.jsonl[.gz|.zst|.lz4]>... <output.db>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "workers", Usage: "Decode workers (default from config: 4)"},
					&cli.StringFlag{Name: "batch-size", Usage: "Bytes of raw pages per decode batch, e.g. 1MiB"},
					&cli.StringFlag{Name: "staging-size", Usage: "Staging generation size that triggers a flush, e.g. 2GiB"},
					&cli.StringFlag{Name: "on-error", Usage: "What to do with a bad page: abort or skip"},
					&cli.StringFlag{Name: "log-file", Usage: "Append logs to this file instead of stderr"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address while running, e.g. :9090"},
					&cli.BoolFlag{Name: "progress", Usage: "Show a progress bar"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runPrepare(ctx, c)
				},
			},
			{
				Name:      "list",
				Usage:     "Summarize a store",
				ArgsUsage: "[database]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "contexts", Usage: "Collection contexts to show (default: 10)", Value: 10},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ac, err := loaderFor(c)()
					if err != nil {
						return err
					}
					dbPath := ac.DatabasePath
					if c.Args().Len() > 0 {
						dbPath = config.ExpandPath(c.Args().First())
					}
					return list.Run(ctx, os.Stdout, dbPath, c.Int("contexts"))
				},
			},
			{
				Name:  "server",
				Usage: "Run MCP server on stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "db", Usage: "Store to serve (default from config)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ac, err := loaderFor(c)()
					if err != nil {
						return err
					}
					dbPath := ac.DatabasePath
					if v := strings.TrimSpace(c.String("db")); v != "" {
						dbPath = config.ExpandPath(v)
					}
					return server.Run(ctx, dbPath)
				},
			},
			{
				Name:  "config",
				Usage: "Manage the configuration file",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a default config file, backing up any existing one",
						Action: func(ctx context.Context, c *cli.Command) error {
							path, err := configPath(c)
							if err != nil {
								return err
							}
							if err := config.WriteConfig(path, config.Default()); err != nil {
								return err
							}
							fmt.Printf("Config written to %s\n", path)
							return nil
						},
					},
				},
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func configPath(c *cli.Command) (string, error) {
	if p := strings.TrimSpace(c.String("config")); p != "" {
		return config.ExpandPath(p), nil
	}
	return config.DefaultConfigPath()
}

func loaderFor(c *cli.Command) config.ConfigLoad {
	if p := strings.TrimSpace(c.String("config")); p != "" {
		return config.FileLoader(p)
	}
	return config.AppConfigLoader()
}

func runPrepare(ctx context.Context, c *cli.Command) error {
	args := c.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("prepare needs at least one input file and an output database, got %d arguments", len(args))
	}

	ac, err := loaderFor(c)()
	if err != nil {
		return err
	}
	applyFlags(c, &ac)

	logger, err := logging.New(logging.Options{File: ac.LogFile, Debug: c.Bool("debug")})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	opts, err := prepareOptions(ac, args[:len(args)-1], args[len(args)-1])
	if err != nil {
		return err
	}
	opts.Logger = logger

	if ac.MetricsAddr != "" {
		stop, err := serveMetrics(ac.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer stop()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sum ingest.Summary
	if c.Bool("progress") {
		sum, err = tui.RunPrepare(ctx, opts)
	} else {
		sum, err = ingest.Run(ctx, opts)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Prepared %s: %d pages, %d bundles, %d skipped, %d flushes in %s\n",
		opts.DatabasePath, sum.Pages, sum.Bundles, sum.Skipped, sum.Flushes, sum.Duration.Round(time.Millisecond))
	logger.Debug("summary", zap.String("run", sum.RunID), zap.Int("generations", sum.Generations))
	return nil
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(c *cli.Command, ac *config.AppConfig) {
	if c.IsSet("workers") {
		ac.Prepare.Workers = c.Int("workers")
	}
	if c.IsSet("batch-size") {
		ac.Prepare.BatchSize = c.String("batch-size")
	}
	if c.IsSet("staging-size") {
		ac.Prepare.StagingSize = c.String("staging-size")
	}
	if c.IsSet("on-error") {
		ac.Prepare.OnError = c.String("on-error")
	}
	if c.IsSet("log-file") {
		ac.LogFile = config.ExpandPath(c.String("log-file"))
	}
	if c.IsSet("metrics-addr") {
		ac.MetricsAddr = c.String("metrics-addr")
	}
}

func prepareOptions(ac config.AppConfig, inputs []string, output string) (ingest.Options, error) {
	batch, err := ac.Prepare.BatchBytes()
	if err != nil {
		return ingest.Options{}, fmt.Errorf("batch size: %w", err)
	}
	staging, err := ac.Prepare.StagingBytes()
	if err != nil {
		return ingest.Options{}, fmt.Errorf("staging size: %w", err)
	}
	policy, err := ingest.ParseErrorPolicy(ac.Prepare.OnError)
	if err != nil {
		return ingest.Options{}, err
	}
	if ac.Prepare.Workers <= 0 {
		return ingest.Options{}, fmt.Errorf("workers must be positive, got %d", ac.Prepare.Workers)
	}

	expanded := make([]string, len(inputs))
	for i, in := range inputs {
		expanded[i] = config.ExpandPath(in)
	}
	return ingest.Options{
		Inputs:       expanded,
		DatabasePath: config.ExpandPath(output),
		Workers:      ac.Prepare.Workers,
		BatchBytes:   batch,
		StagingBytes: staging,
		OnError:      policy,
	}, nil
}
