// seed creates one sample collection, one sample function and a recurring
// schedule for local development.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/collections"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres/migrations"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
)

const seedFunctionSource = `# /// script
# dependencies = []
# ///

def handle(input):
    return {"echo": input}
`

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	collectionsSvc := collections.NewService(postgres.NewCollectionRepository(pool), postgres.NewRecordRepository(pool))
	col, err := collectionsSvc.CreateCollection(ctx, "notes", "Notes", []domain.FieldDef{
		{Name: "title", Type: domain.FieldString, Required: true},
		{Name: "body", Type: domain.FieldString},
	})
	if err != nil && err != domain.ErrCollectionNameTaken {
		log.Fatalf("create collection: %v", err)
	}
	if col != nil {
		logger.Info("seeded collection", "name", col.Name)
	}

	functionsSvc := registry.NewService(postgres.NewFunctionRepository(pool))
	def, err := functionsSvc.Define(ctx, "echo", "echoes its input back", domain.AuthUser, []string{"sample"}, seedFunctionSource)
	if err != nil {
		log.Fatalf("define function: %v", err)
	}
	version, err := functionsSvc.PutVersion(ctx, def.Name, seedFunctionSource, "seed", "initial seed")
	if err != nil {
		log.Fatalf("put function version: %v", err)
	}
	logger.Info("seeded function", "name", def.Name, "version", version.ID)

	schedulesSvc := scheduler.NewService(postgres.NewScheduleRepository(pool))
	sched, err := schedulesSvc.Create(ctx, "echo-every-minute", def.Name, domain.ScheduleSpec{
		Method:   domain.MethodInterval,
		Timezone: "UTC",
		Unit:     domain.UnitMinutes,
		Value:    1,
	}, []byte(`{"seed": true}`))
	if err != nil {
		log.Fatalf("create schedule: %v", err)
	}
	nextRun := "unscheduled"
	if sched.NextRunAt != nil {
		nextRun = sched.NextRunAt.Format(time.RFC3339)
	}
	logger.Info("seeded schedule", "name", sched.Name, "next_run_at", nextRun)
}
