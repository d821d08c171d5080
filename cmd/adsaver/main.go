package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/use-agent/adsaver/config"
)

// version is set at build time via -ldflags.
var version = "0.1.0"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().Run(ctx, os.Args); err != nil {
		slog.Error("adsaver failed", "error", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "adsaver",
		Usage:   "Extract videos and metadata from Facebook Ad Library pages",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to an optional YAML configuration file",
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(configPath)
			if err != nil {
				return ctx, err
			}
			if cmd.Bool("debug") {
				cfg.Log.Level = "debug"
			}
			initLogger(cfg.Log)
			cmd.Metadata["config"] = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			parseCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, err := cmd.Root().Writer.Write([]byte(version + "\n"))
					return err
				},
			},
		},
		Metadata: map[string]any{},
	}
}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cli.Command) *config.Config {
	return cmd.Root().Metadata["config"].(*config.Config)
}

// initLogger configures slog based on the LogConfig. Logs go to stderr so
// the parse command can keep stdout for its JSON.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
