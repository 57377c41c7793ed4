package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/envs-net/muc-banbot/banstore"
	"github.com/envs-net/muc-banbot/command"
	"github.com/envs-net/muc-banbot/engine"
	"github.com/envs-net/muc-banbot/muc"
	"github.com/envs-net/muc-banbot/roomstate"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Server struct {
	logger  *slog.Logger
	engine  *engine.Engine
	handler *command.Handler
	client  muc.Client
}

type Config struct {
	AdminRoom          string
	BotNick            string
	AnnounceToRooms    bool
	EnforceConcurrency int
	RosterRateLimit    int
	ExpiryInterval     time.Duration
	DryRun             bool

	// Client is the XMPP session adapter. The chat protocol itself is
	// outside this module; nil selects the dry-run client, which logs
	// outbound actions instead of sending them.
	Client muc.Client

	Logger *slog.Logger
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if config.AdminRoom == "" {
		return nil, fmt.Errorf("admin room must be configured")
	}

	store, err := banstore.NewGormstore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing ban store: %w", err)
	}

	client := config.Client
	if client == nil {
		if !config.DryRun {
			logger.Warn("no transport session configured, falling back to dry-run client")
		}
		client = &dryRunClient{logger: logger.With("component", "dryrun")}
	}

	tracker := roomstate.NewTracker()
	eng := engine.NewEngine(store, tracker, client, engine.Config{
		AdminRoom:               config.AdminRoom,
		AnnounceToRooms:         config.AnnounceToRooms,
		EnforceConcurrency:      config.EnforceConcurrency,
		RosterRequestsPerSecond: config.RosterRateLimit,
		ExpiryInterval:          config.ExpiryInterval,
		Logger:                  logger,
	})

	handler := &command.Handler{
		Engine:    eng,
		Tracker:   tracker,
		Client:    client,
		AdminRoom: config.AdminRoom,
		BotNick:   config.BotNick,
		Logger:    logger.With("component", "command"),
	}

	return &Server{
		logger:  logger,
		engine:  eng,
		handler: handler,
		client:  client,
	}, nil
}

// Run joins all rooms, reconciles, and then runs the expiry worker until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	return s.engine.RunExpiryWorker(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Inbound transport events. The session adapter calls these from its
// receive loop.

func (s *Server) OnGroupchatMessage(ctx context.Context, room, nickname, body string) {
	s.handler.HandleMessage(ctx, room, nickname, body)
}

func (s *Server) OnOccupantJoined(ctx context.Context, room, nickname, jid string, aff muc.Affiliation, role muc.Role) {
	if err := s.engine.HandleOccupantJoined(ctx, room, nickname, jid, aff, role); err != nil {
		s.logger.Error("failed to process join", "room", room, "nickname", nickname, "err", err)
	}
}

func (s *Server) OnOccupantLeft(room, nickname string) {
	s.engine.HandleOccupantLeft(room, nickname)
}
