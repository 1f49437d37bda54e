package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/robfig/cron/v3"
)

// Service owns FunctionSchedule CRUD (spec §6 GET|POST|PATCH|DELETE
// /api/admin/schedules); Dispatcher owns firing them. Kept as a separate
// type from Dispatcher the same way the teacher splits ScheduleUsecase
// (CRUD) from the job-firing loop.
type Service struct {
	schedules repository.ScheduleRepository
}

func NewService(schedules repository.ScheduleRepository) *Service {
	return &Service{schedules: schedules}
}

// Create validates spec, computes the first next_run_at, and persists the
// schedule active.
func (s *Service) Create(ctx context.Context, name, functionName string, spec domain.ScheduleSpec, input []byte) (*domain.FunctionSchedule, error) {
	next, err := firstRun(spec, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.schedules.Create(ctx, &domain.FunctionSchedule{
		Name:         name,
		FunctionName: functionName,
		Spec:         spec,
		Input:        input,
		IsActive:     true,
		NextRunAt:    next,
		Timezone:     spec.Timezone,
	})
}

func (s *Service) Get(ctx context.Context, id string) (*domain.FunctionSchedule, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.FunctionSchedule, error) {
	return s.schedules.List(ctx, input)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.schedules.SetActive(ctx, id, active)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.schedules.Delete(ctx, id)
}

// firstRun computes the schedule's initial next_run_at from a freshly
// created spec: the next cron/interval occurrence after "from", or the
// literal once instant.
func firstRun(spec domain.ScheduleSpec, from time.Time) (*time.Time, error) {
	switch spec.Method {
	case domain.MethodOnce:
		loc, err := time.LoadLocation(spec.Timezone)
		if err != nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation("2006-01-02 15:04:05", spec.Date+" "+spec.Time, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidScheduleSpec, err)
		}
		return &t, nil

	case domain.MethodInterval:
		step := intervalDuration(spec.Unit, spec.Value)
		if step <= 0 {
			return nil, domain.ErrInvalidScheduleSpec
		}
		next := from.Add(step)
		return &next, nil

	case domain.MethodCron:
		loc, err := time.LoadLocation(spec.Timezone)
		if err != nil {
			loc = time.UTC
		}
		sched, err := cron.ParseStandard(spec.Cron)
		if err != nil {
			return nil, domain.ErrInvalidScheduleSpec
		}
		next := sched.Next(from.In(loc))
		return &next, nil

	default:
		return nil, domain.ErrInvalidScheduleSpec
	}
}
