package registry

import (
	"context"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

// Service is the Function Registry's entry point: deploy, activate,
// inspect. It owns FunctionDefinition rows via repository.FunctionRepository
// and never touches call records (that is internal/execengine's job).
type Service struct {
	functions repository.FunctionRepository
}

func NewService(functions repository.FunctionRepository) *Service {
	return &Service{functions: functions}
}

func (s *Service) Define(ctx context.Context, name, description string, authLevel domain.AuthLevel, tags []string, moduleSource string) (*domain.FunctionDefinition, error) {
	return s.functions.Upsert(ctx, &domain.FunctionDefinition{
		Name:         name,
		Description:  description,
		AuthLevel:    authLevel,
		Tags:         tags,
		ModuleSource: moduleSource,
	})
}

func (s *Service) Get(ctx context.Context, name string) (*domain.FunctionDefinition, error) {
	return s.functions.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]*domain.FunctionDefinition, error) {
	return s.functions.List(ctx)
}

// PutVersion hashes and parses sourceText, then stores it as the function's
// new active version. If the hash matches the function's current active
// version, it is returned unchanged and no new row is written (spec §4.C).
func (s *Service) PutVersion(ctx context.Context, functionName, sourceText, deployedBy, notes string) (*domain.FunctionVersion, error) {
	if _, err := s.functions.GetByName(ctx, functionName); err != nil {
		return nil, err
	}

	deps, err := ParseInlineDeps(sourceText)
	if err != nil {
		return nil, err
	}

	return s.functions.PutVersion(ctx, &domain.FunctionVersion{
		FunctionName: functionName,
		ContentHash:  ContentHash(sourceText),
		SourceText:   sourceText,
		InlineDeps:   deps,
		DeployedBy:   deployedBy,
		Notes:        notes,
	})
}

func (s *Service) ActiveVersion(ctx context.Context, functionName string) (*domain.FunctionVersion, error) {
	return s.functions.ActiveVersion(ctx, functionName)
}

func (s *Service) ListVersions(ctx context.Context, functionName string) ([]*domain.FunctionVersion, error) {
	return s.functions.ListVersions(ctx, functionName)
}
