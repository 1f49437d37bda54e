package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
)

type fakeScheduleRepo struct {
	rows      map[string]*domain.FunctionSchedule
	nextID    int
	createErr error
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{rows: make(map[string]*domain.FunctionSchedule)}
}

func (r *fakeScheduleRepo) Create(_ context.Context, s *domain.FunctionSchedule) (*domain.FunctionSchedule, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	s.ID = string(rune('a' + r.nextID))
	r.rows[s.ID] = s
	return s, nil
}

func (r *fakeScheduleRepo) GetByID(_ context.Context, id string) (*domain.FunctionSchedule, error) {
	s, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	return s, nil
}

func (r *fakeScheduleRepo) List(_ context.Context, _ repository.ListSchedulesInput) ([]*domain.FunctionSchedule, error) {
	var out []*domain.FunctionSchedule
	for _, s := range r.rows {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeScheduleRepo) SetActive(_ context.Context, id string, active bool) error {
	s, ok := r.rows[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.IsActive = active
	return nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.rows[id]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeScheduleRepo) ClaimDue(_ context.Context, _ time.Time, _ int, _ func(tx repository.ScheduleFireTx, s *domain.FunctionSchedule) error) error {
	return nil
}

func TestCreate_Interval_SetsNextRunAtFromNow(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduler.NewService(repo)

	s, err := svc.Create(context.Background(), "every-5-min", "echo", domain.ScheduleSpec{
		Method:   domain.MethodInterval,
		Timezone: "UTC",
		Unit:     domain.UnitMinutes,
		Value:    5,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be set")
	}
	if !s.IsActive {
		t.Fatal("expected a freshly created schedule to be active")
	}
	delta := s.NextRunAt.Sub(time.Now().UTC())
	if delta < 4*time.Minute || delta > 6*time.Minute {
		t.Fatalf("expected next run ~5 minutes out, got %v", delta)
	}
}

func TestCreate_Cron_ComputesNextOccurrence(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduler.NewService(repo)

	s, err := svc.Create(context.Background(), "midnight", "echo", domain.ScheduleSpec{
		Method:   domain.MethodCron,
		Timezone: "UTC",
		Cron:     "0 0 * * *",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be set")
	}
	if s.NextRunAt.Hour() != 0 || s.NextRunAt.Minute() != 0 {
		t.Fatalf("expected midnight UTC, got %v", s.NextRunAt)
	}
}

func TestCreate_InvalidCron_ReturnsError(t *testing.T) {
	svc := scheduler.NewService(newFakeScheduleRepo())

	_, err := svc.Create(context.Background(), "bad", "echo", domain.ScheduleSpec{
		Method: domain.MethodCron,
		Cron:   "not a cron",
	}, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestCreate_Once_ParsesDateAndTime(t *testing.T) {
	svc := scheduler.NewService(newFakeScheduleRepo())

	s, err := svc.Create(context.Background(), "one-shot", "echo", domain.ScheduleSpec{
		Method:   domain.MethodOnce,
		Timezone: "UTC",
		Date:     "2030-01-01",
		Time:     "12:00:00",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	if !s.NextRunAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, s.NextRunAt)
	}
}

func TestSetActive_TogglesIsActive(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduler.NewService(repo)

	s, err := svc.Create(context.Background(), "toggle-me", "echo", domain.ScheduleSpec{
		Method: domain.MethodInterval, Timezone: "UTC", Unit: domain.UnitHours, Value: 1,
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.SetActive(context.Background(), s.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, err := svc.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsActive {
		t.Fatal("expected schedule to be inactive")
	}
}

func TestDelete_RemovesSchedule(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduler.NewService(repo)

	s, err := svc.Create(context.Background(), "delete-me", "echo", domain.ScheduleSpec{
		Method: domain.MethodInterval, Timezone: "UTC", Unit: domain.UnitHours, Value: 1,
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), s.ID); err != domain.ErrScheduleNotFound {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}
