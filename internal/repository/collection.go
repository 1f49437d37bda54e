package repository

import (
	"context"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

// CollectionRepository owns Collection schema rows and the schema-evolution
// transactions (add/remove field, toggle unique, drop collection).
type CollectionRepository interface {
	Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error)
	GetByName(ctx context.Context, name string) (*domain.Collection, error)
	List(ctx context.Context) ([]*domain.Collection, error)
	// UpdateSchema atomically replaces the schema, bumps SchemaVersion, and
	// runs fn (backfill / drop-field cleanup) in the same transaction.
	UpdateSchema(ctx context.Context, name string, newSchema []domain.FieldDef, fn func(tx SchemaTx) error) (*domain.Collection, error)
	Delete(ctx context.Context, name string) error
}

// SchemaTx is the transactional handle UpdateSchema's callback uses to
// backfill unique indices or drop a removed field's data.
type SchemaTx interface {
	CountRecords(ctx context.Context, collection string) (int, error)
	FindDuplicateValues(ctx context.Context, collection, field string) ([]any, error)
	DropFieldData(ctx context.Context, collection, field string) error
	RebuildUniqueIndex(ctx context.Context, collection, field string) error
	DropUniqueIndex(ctx context.Context, collection, field string) error
}

// RecordRepository owns Record rows and their unique-index entries for one
// collection at a time.
type RecordRepository interface {
	Create(ctx context.Context, collection string, data map[string]any, ownerID *string) (*domain.Record, error)
	Get(ctx context.Context, collection, id string) (*domain.Record, error)
	List(ctx context.Context, collection string, limit, offset int, filter map[string]any) ([]*domain.Record, int, error)
	Update(ctx context.Context, collection, id string, patch map[string]any, expectedVersion int64) (*domain.Record, error)
	Delete(ctx context.Context, collection, id string) error
	// RecordExists checks reference integrity: does id exist in collection.
	RecordExists(ctx context.Context, collection, id string) (bool, error)
}
