package main

import (
	"context"
	"fmt"
	"os"

	"github.com/noteduco342/courtside-chat/internal/config"
	"github.com/noteduco342/courtside-chat/internal/logging"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyLogger
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func prepareApp(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.Log)
	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyLogger, log)
	ctx.Context = newCtx
	return nil
}

func main() {
	app := &cli.App{
		Name:  "courtside-chat",
		Usage: "Community chat backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a config file (yaml, toml or json)",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: prepareApp,
		Action: serve,
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			sweepPresenceCommand,
			wrapKeyCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
