package main

import (
	"log/slog"
	"os"
	"time"

	ctxlog "github.com/ErlanBelekov/dist-job-scheduler/internal/log"
	"github.com/lmittmann/tint"
)

// newLogger selects a console-friendly tint handler for local development
// and structured JSON everywhere else, both wrapped in ctxlog's
// ContextHandler so every line picks up the request_id carried on ctx.
func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
