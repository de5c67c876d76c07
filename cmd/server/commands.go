package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/noteduco342/courtside-chat/internal/cache"
	"github.com/noteduco342/courtside-chat/internal/logging"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/scheduler"
	"github.com/noteduco342/courtside-chat/internal/security"
	"github.com/noteduco342/courtside-chat/internal/service"
	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Create or update the chat tables",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "shared",
			Usage: "Also create the users and community_members tables (local development only)",
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg := getConfig(ctx)
		log := getLogger(ctx)
		db, err := repository.InitDB(cfg.Database, logging.Component(log, "gorm"))
		if err != nil {
			return err
		}
		if err := repository.Migrate(db, ctx.Bool("shared")); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Bool("shared", ctx.Bool("shared")).Msg("migration complete")
		return nil
	},
}

var sweepPresenceCommand = &cli.Command{
	Name:  "sweep-presence",
	Usage: "Demote stale presence records once and exit",
	Action: func(ctx *cli.Context) error {
		cfg := getConfig(ctx)
		log := getLogger(ctx)
		db, err := repository.InitDB(cfg.Database, logging.Component(log, "gorm"))
		if err != nil {
			return err
		}
		redisCache := connectRedis(ctx.Context, cfg.Redis, log)
		if redisCache != nil {
			defer redisCache.Close()
		}
		st := stores(db)
		presence := service.NewPresenceService(st, cache.NewPresenceCache(redisCache), nil, logging.Component(log, "presence"))
		sweeper, err := scheduler.NewPresenceSweeper(st.Presence, presence, cfg.Presence, logging.Component(log, "presence_sweeper"))
		if err != nil {
			return err
		}
		res, err := sweeper.RunOnce(ctx.Context)
		log.Info().Int("away", res.Away).Int("offline", res.Offline).Msg("presence sweep")
		return err
	},
}

var wrapKeyCommand = &cli.Command{
	Name:  "wrap-key",
	Usage: "Generate a content key sealed under CHAT_KMS_ROOT_KEY and print it",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "data-key",
			Usage: "Existing base64 32-byte key to wrap instead of a fresh one",
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg := getConfig(ctx)
		if cfg.Chat.KMSRootKey == "" {
			return errors.New("CHAT_KMS_ROOT_KEY is required")
		}

		var key []byte
		if raw := ctx.String("data-key"); raw != "" {
			decoded, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("decode data key: %w", err)
			}
			key = decoded
		} else {
			key = make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return err
			}
		}

		wrapped, err := security.WrapDataKey(ctx.Context, cfg.Chat.KMSRootKey, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "CHAT_WRAPPED_DATA_KEY=%s\n", wrapped)
		return nil
	},
}
