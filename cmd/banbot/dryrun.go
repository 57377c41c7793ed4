package main

import (
	"context"
	"log/slog"

	"github.com/envs-net/muc-banbot/muc"
)

// dryRunClient logs every outbound transport action instead of performing
// it. Useful for rehearsing a ban list against production config, and the
// fallback when no session adapter is wired in.
type dryRunClient struct {
	logger *slog.Logger
}

func (c *dryRunClient) JoinRoom(ctx context.Context, room string) error {
	c.logger.Info("would join room", "room", room)
	return nil
}

func (c *dryRunClient) LeaveRoom(ctx context.Context, room string) error {
	c.logger.Info("would leave room", "room", room)
	return nil
}

func (c *dryRunClient) SetAffiliation(ctx context.Context, room, jid string, aff muc.Affiliation) error {
	c.logger.Info("would set affiliation", "room", room, "jid", jid, "affiliation", aff)
	return nil
}

func (c *dryRunClient) SetRole(ctx context.Context, room, nickname string, role muc.Role) error {
	c.logger.Info("would set role", "room", room, "nickname", nickname, "role", role)
	return nil
}

func (c *dryRunClient) ListByAffiliation(ctx context.Context, room string, aff muc.Affiliation) ([]string, error) {
	return nil, nil
}

func (c *dryRunClient) SendMessage(ctx context.Context, room, body string) error {
	c.logger.Info("would send message", "room", room, "body", body)
	return nil
}

var _ muc.Client = (*dryRunClient)(nil)
