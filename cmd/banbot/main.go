package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/envs-net/muc-banbot/banstore"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "banbot",
		Usage:   "MUC ban enforcement daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/banbot/bans.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:     "admin-room",
			Usage:    "JID of the room moderators issue commands from",
			Required: true,
			EnvVars:  []string{"BANBOT_ADMIN_ROOM"},
		},
		&cli.StringFlag{
			Name:    "nick",
			Usage:   "nickname the bot joins rooms with",
			Value:   "banbot",
			EnvVars: []string{"BANBOT_NICK"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"BANBOT_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "enforce-concurrency",
			Usage:   "max simultaneous mutating requests to the chat service, across all rooms",
			Value:   5,
			EnvVars: []string{"BANBOT_ENFORCE_CONCURRENCY"},
		},
		&cli.IntFlag{
			Name:    "roster-rate-limit",
			Usage:   "max room roster fetches per second during reconciliation",
			Value:   2,
			EnvVars: []string{"BANBOT_ROSTER_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "expiry-interval",
			Usage:   "how often to scan for expired bans",
			Value:   30 * time.Second,
			EnvVars: []string{"BANBOT_EXPIRY_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "announce-to-rooms",
			Usage:   "post anonymized enforcement notices into affected rooms",
			EnvVars: []string{"BANBOT_ANNOUNCE_TO_ROOMS"},
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "log outbound enforcement actions instead of sending them",
			EnvVars: []string{"BANBOT_DRY_RUN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		db, err := banstore.SetupDatabase(cctx.String("database-url"), 40)
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			AdminRoom:          cctx.String("admin-room"),
			BotNick:            cctx.String("nick"),
			AnnounceToRooms:    cctx.Bool("announce-to-rooms"),
			EnforceConcurrency: cctx.Int("enforce-concurrency"),
			RosterRateLimit:    cctx.Int("roster-rate-limit"),
			ExpiryInterval:     cctx.Duration("expiry-interval"),
			DryRun:             cctx.Bool("dry-run"),
			Logger:             logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
			}
		}()

		return srv.Run(cctx.Context)
	},
}
