package main

import (
	"log/slog"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/config"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/email"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

func accessTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.AccessTTLMin) * time.Minute
}

// newIdentityService wires the JWT-issuing Service shared by init and serve.
func newIdentityService(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) *identity.Service {
	users := postgres.NewUserRepository(pool)
	tokens := identity.NewTokenIssuer([]byte(cfg.JWTSecret), accessTTL(cfg))
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	return identity.NewService(users, tokens, sender, cfg.MagicLinkBase)
}
