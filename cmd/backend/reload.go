package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/execengine"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
)

// watchFunctions is the --reload dev convenience: poll dir for changed .py
// files and deploy each as a new version. Code still only ever runs inside
// the subprocess worker, so this does not hot-reload anything into the
// server process itself — it only drives the same Define/PutVersion path
// the upload HTTP endpoint does.
func watchFunctions(ctx context.Context, dir string, functions *registry.Service, engine *execengine.Engine, logger *slog.Logger) {
	logger = logger.With("component", "reload_watcher")
	seen := make(map[string]time.Time)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".py") {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				name := strings.TrimSuffix(entry.Name(), ".py")
				if last, ok := seen[name]; ok && !info.ModTime().After(last) {
					continue
				}
				seen[name] = info.ModTime()
				deployChangedFunction(ctx, filepath.Join(dir, entry.Name()), name, functions, engine, logger)
			}
		}
	}
}

func deployChangedFunction(ctx context.Context, path, name string, functions *registry.Service, engine *execengine.Engine, logger *slog.Logger) {
	source, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read function source", "function", name, "error", err)
		return
	}

	if _, err := functions.Get(ctx, name); err != nil {
		if !errors.Is(err, domain.ErrFunctionNotFound) {
			logger.Error("lookup function", "function", name, "error", err)
			return
		}
		if _, err := functions.Define(ctx, name, "", domain.AuthAdmin, nil, string(source)); err != nil {
			logger.Error("define function", "function", name, "error", err)
			return
		}
	}

	version, err := functions.PutVersion(ctx, name, string(source), "reload-watcher", "auto-deployed by --reload")
	if err != nil {
		logger.Error("deploy function version", "function", name, "error", err)
		return
	}
	if version.IsActive {
		engine.DrainOlderVersions(name, version.ID)
	}
	logger.Info("deployed function version", "function", name, "version", version.ID)
}
