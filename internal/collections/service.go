package collections

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

// Service orchestrates collection schema management and record CRUD. It is
// the single entry point usecase/transport code calls into; repositories
// never get touched directly outside this package.
type Service struct {
	collections repository.CollectionRepository
	records     repository.RecordRepository
	cache       *schemaCache
}

func NewService(collections repository.CollectionRepository, records repository.RecordRepository) *Service {
	return &Service{
		collections: collections,
		records:     records,
		cache:       newSchemaCache(),
	}
}

func (s *Service) CreateCollection(ctx context.Context, name, label string, schema []domain.FieldDef) (*domain.Collection, error) {
	if _, err := compile(&domain.Collection{Name: name, Schema: schema}); err != nil {
		return nil, err
	}
	return s.collections.Create(ctx, &domain.Collection{Name: name, Label: label, Schema: schema})
}

func (s *Service) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	return s.collections.GetByName(ctx, name)
}

func (s *Service) ListCollections(ctx context.Context) ([]*domain.Collection, error) {
	return s.collections.List(ctx)
}

func (s *Service) DeleteCollection(ctx context.Context, name string) error {
	s.cache.invalidate(name)
	return s.collections.Delete(ctx, name)
}

// AddField appends a new field to a collection's schema. A required field
// with no default is only accepted when the collection currently holds no
// records, matching spec §4.B ("required-without-default only on empty
// collection").
func (s *Service) AddField(ctx context.Context, collectionName string, field domain.FieldDef) (*domain.Collection, error) {
	col, err := s.collections.GetByName(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	for _, f := range col.Schema {
		if f.Name == field.Name {
			return nil, domain.ErrDuplicateFieldName
		}
	}
	newSchema := append(append([]domain.FieldDef{}, col.Schema...), field)

	updated, err := s.collections.UpdateSchema(ctx, collectionName, newSchema, func(tx repository.SchemaTx) error {
		if field.Required && field.Default == nil {
			n, err := tx.CountRecords(ctx, collectionName)
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.ErrRequiredFieldMissing
			}
		}
		if field.Unique {
			if err := tx.RebuildUniqueIndex(ctx, collectionName, field.Name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.invalidate(collectionName)
	return updated, nil
}

// RemoveField drops a field from the schema and its data from every record
// in the same transaction as the schema bump, per spec §4.B.
func (s *Service) RemoveField(ctx context.Context, collectionName, fieldName string) (*domain.Collection, error) {
	col, err := s.collections.GetByName(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	var newSchema []domain.FieldDef
	found := false
	for _, f := range col.Schema {
		if f.Name == fieldName {
			found = true
			continue
		}
		newSchema = append(newSchema, f)
	}
	if !found {
		return nil, domain.ErrUnknownField
	}

	updated, err := s.collections.UpdateSchema(ctx, collectionName, newSchema, func(tx repository.SchemaTx) error {
		return tx.DropFieldData(ctx, collectionName, fieldName)
	})
	if err != nil {
		return nil, err
	}
	s.cache.invalidate(collectionName)
	return updated, nil
}

// SetFieldUnique toggles FieldDef.Unique, rebuilding or dropping the backing
// unique index transactionally. Enabling unique on a field with existing
// duplicate values fails with ErrBackfillHasDuplicates.
func (s *Service) SetFieldUnique(ctx context.Context, collectionName, fieldName string, unique bool) (*domain.Collection, error) {
	col, err := s.collections.GetByName(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	newSchema := make([]domain.FieldDef, len(col.Schema))
	found := false
	copy(newSchema, col.Schema)
	for i, f := range newSchema {
		if f.Name == fieldName {
			newSchema[i].Unique = unique
			found = true
		}
	}
	if !found {
		return nil, domain.ErrUnknownField
	}

	updated, err := s.collections.UpdateSchema(ctx, collectionName, newSchema, func(tx repository.SchemaTx) error {
		if unique {
			return tx.RebuildUniqueIndex(ctx, collectionName, fieldName)
		}
		return tx.DropUniqueIndex(ctx, collectionName, fieldName)
	})
	if err != nil {
		return nil, err
	}
	s.cache.invalidate(collectionName)
	return updated, nil
}

func (s *Service) validatorFor(ctx context.Context, collectionName string) (*compiledSchema, *domain.Collection, error) {
	col, err := s.collections.GetByName(ctx, collectionName)
	if err != nil {
		return nil, nil, err
	}
	cs, err := s.cache.get(col)
	if err != nil {
		return nil, nil, err
	}
	return cs, col, nil
}

func (s *Service) CreateRecord(ctx context.Context, collectionName string, data map[string]any, ownerID *string) (*domain.Record, error) {
	cs, _, err := s.validatorFor(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	normalized, errs := cs.Validate(data, false)
	if len(errs) > 0 {
		return nil, errs
	}
	if err := s.checkReferences(ctx, cs, normalized); err != nil {
		return nil, err
	}
	return s.records.Create(ctx, collectionName, normalized, ownerID)
}

func (s *Service) GetRecord(ctx context.Context, collectionName, id string) (*domain.Record, error) {
	return s.records.Get(ctx, collectionName, id)
}

func (s *Service) ListRecords(ctx context.Context, collectionName string, limit, offset int, filter map[string]any) ([]*domain.Record, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.records.List(ctx, collectionName, limit, offset, filter)
}

// UpdateRecord applies a partial patch under optimistic concurrency:
// expectedVersion must match the record's current Version or the update
// fails with ErrConcurrencyConflict, forcing the caller to re-read and retry.
func (s *Service) UpdateRecord(ctx context.Context, collectionName, id string, patch map[string]any, expectedVersion int64) (*domain.Record, error) {
	cs, _, err := s.validatorFor(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	normalized, errs := cs.Validate(patch, true)
	if len(errs) > 0 {
		return nil, errs
	}
	if err := s.checkReferences(ctx, cs, normalized); err != nil {
		return nil, err
	}
	return s.records.Update(ctx, collectionName, id, normalized, expectedVersion)
}

func (s *Service) DeleteRecord(ctx context.Context, collectionName, id string) error {
	return s.records.Delete(ctx, collectionName, id)
}

// checkReferences walks every FieldReference value present in a normalized
// record and confirms it resolves to a live record in its target
// collection, per the Record invariant (spec §3: "every reference resolves
// to an existing record in the named collection") and §4.B's create/update
// contract ("return ReferenceViolation naming the offending field"). Each
// broken reference is reported as its own ValidationError so the caller
// gets every offending field in one response, the same full-list posture
// as schema validation.
func (s *Service) checkReferences(ctx context.Context, cs *compiledSchema, data map[string]any) error {
	var errs domain.ValidationErrors
	for name, v := range data {
		def, ok := cs.fields[name]
		if !ok || def.Type != domain.FieldReference {
			continue
		}
		id, ok := v.(string)
		if !ok {
			continue
		}
		if err := s.CheckReference(ctx, def.Collection, id); err != nil {
			errs = append(errs, domain.ValidationError{Field: name, Message: "referenced record does not exist"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CheckReference verifies a FieldReference value points at a live record in
// its target collection, used by callers validating cross-collection
// integrity before a write (spec §4.B reference fields).
func (s *Service) CheckReference(ctx context.Context, targetCollection, id string) error {
	exists, err := s.records.RecordExists(ctx, targetCollection, id)
	if err != nil {
		return fmt.Errorf("check reference: %w", err)
	}
	if !exists {
		return domain.ErrReferenceViolation
	}
	return nil
}
