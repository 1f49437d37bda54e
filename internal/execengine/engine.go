// Package execengine implements the Execution Engine (spec §4.E): the
// invoke/invoke_async algorithm tying the Function Registry, the Process
// Pool, and the Counter Store together around one FunctionCall's lifecycle.
package execengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/ratelimit"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

// globalConcurrencyKey is the Counter Store key for the process-wide
// max_concurrent_executions cap (spec §4.E step 4).
const globalConcurrencyKey = "__global__"

// Engine owns a FunctionCall's lifecycle end to end: insertion in PENDING
// through a terminal state, the two Counter Store reservations around it,
// and the worker lease/release around the subprocess roundtrip.
type Engine struct {
	calls     repository.FunctionCallRepository
	functions *registry.Service
	pool      *pool.Pool
	counters  ratelimit.Store

	maxPerUser  int
	maxGlobal   int
	callTimeout time.Duration

	mu        sync.Mutex
	cancelled map[string]bool
}

type Config struct {
	Calls           repository.FunctionCallRepository
	Functions       *registry.Service
	Pool            *pool.Pool
	Counters        ratelimit.Store
	MaxPerUser      int
	MaxGlobal       int
	FunctionTimeout time.Duration
}

func New(cfg Config) *Engine {
	return &Engine{
		calls:       cfg.Calls,
		functions:   cfg.Functions,
		pool:        cfg.Pool,
		counters:    cfg.Counters,
		maxPerUser:  cfg.MaxPerUser,
		maxGlobal:   cfg.MaxGlobal,
		callTimeout: cfg.FunctionTimeout,
		cancelled:   make(map[string]bool),
	}
}

// GetCall returns one FunctionCall by id, for the function-calls inspection
// endpoint (spec §6).
func (e *Engine) GetCall(ctx context.Context, id string) (*domain.FunctionCall, error) {
	return e.calls.Get(ctx, id)
}

// ListCalls returns a filtered, paginated page of FunctionCall rows (spec §6
// GET /api/admin/function-calls).
func (e *Engine) ListCalls(ctx context.Context, functionName, status, trigger string, limit, offset int) ([]*domain.FunctionCall, int, error) {
	return e.calls.List(ctx, functionName, status, trigger, limit, offset)
}

// DrainOlderVersions tells the Process Pool to drain every (functionName,
// version) pool other than activeVersionID, per spec §4.D's version-change
// policy: idle workers on the old version are killed immediately, leased
// ones finish their current call then exit. Callers invoke this right after
// registry.Service.PutVersion publishes a new active version.
func (e *Engine) DrainOlderVersions(functionName, activeVersionID string) {
	e.pool.DrainVersion(functionName, activeVersionID)
}

// RecoverAbandoned sweeps every call left PENDING/RUNNING by a previous
// process into FAILED/abandoned, run once at startup (spec §4.E recovery).
func (e *Engine) RecoverAbandoned(ctx context.Context) (int, error) {
	return e.calls.SweepAbandoned(ctx)
}

// Cancel sets the per-call cancellation flag. run checks the flag once the
// protocol wait ends (a response arrives or the timeout fires) and then
// records the call CANCELLED and evicts its worker; setting the flag does not
// interrupt a wait already in progress. Idempotent.
func (e *Engine) Cancel(callID string) {
	e.mu.Lock()
	e.cancelled[callID] = true
	e.mu.Unlock()
}

func (e *Engine) isCancelled(callID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[callID]
}

func (e *Engine) forgetCancel(callID string) {
	e.mu.Lock()
	delete(e.cancelled, callID)
	e.mu.Unlock()
}

// userKey scopes the per-caller Counter Store key; trigger sources with no
// caller (schedule fires) share one synthetic key.
func userKey(callerID *string) string {
	if callerID == nil {
		return "__system__"
	}
	return "user:" + *callerID
}

// Caller describes who is invoking a function, for the auth_level check in
// step 2 of the invoke algorithm (spec §4.E). A nil Caller is an
// unauthenticated request, valid only against AuthPublic functions.
type Caller struct {
	UserID  string
	IsAdmin bool
}

// authorize implements spec §4.E step 2: a function's auth_level gates who
// may invoke it, independent of whether the call ultimately succeeds.
func authorize(level domain.AuthLevel, caller *Caller) error {
	switch level {
	case domain.AuthPublic:
		return nil
	case domain.AuthUser:
		if caller == nil {
			return apperr.New(apperr.KindUnauthorized, "this function requires authentication", nil)
		}
		return nil
	case domain.AuthAdmin:
		if caller == nil {
			return apperr.New(apperr.KindUnauthorized, "this function requires authentication", nil)
		}
		if !caller.IsAdmin {
			return apperr.New(apperr.KindForbidden, "this function requires an admin caller", nil)
		}
		return nil
	default:
		return apperr.New(apperr.KindForbidden, "unknown auth level", nil)
	}
}

// Invoke runs the full spec §4.E algorithm and blocks until the call
// reaches a terminal state, returning the final FunctionCall row.
func (e *Engine) Invoke(ctx context.Context, functionName string, input json.RawMessage, caller *Caller, trigger domain.CallTrigger) (*domain.FunctionCall, error) {
	def, err := e.functions.Get(ctx, functionName)
	if err != nil {
		return nil, err
	}
	if err := authorize(def.AuthLevel, caller); err != nil {
		return nil, err
	}

	version, err := e.functions.ActiveVersion(ctx, functionName)
	if err != nil {
		return nil, err
	}

	var callerID *string
	if caller != nil {
		callerID = &caller.UserID
	}
	uKey := userKey(callerID)
	// A refused reservation still leaves a terminal FAILED/rate_limited row.
	recordRefusal := func(msg string) {
		refused, ierr := e.calls.Insert(ctx, &domain.FunctionCall{
			FunctionName: functionName, VersionID: version.ID, Trigger: trigger,
			CallerID: callerID, Status: domain.CallPending, Input: input,
		})
		if ierr == nil {
			e.failPending(ctx, refused.ID, apperr.KindRateLimited, msg)
		}
	}
	userTok, err := e.counters.TryAcquire(ctx, uKey, e.maxPerUser)
	if err != nil {
		metrics.CounterRejectionsTotal.WithLabelValues("per_user").Inc()
		recordRefusal("per-user concurrent function limit reached")
		return nil, apperr.New(apperr.KindRateLimited, "per-user concurrent function limit reached", err)
	}

	globalTok, err := e.counters.TryAcquire(ctx, globalConcurrencyKey, e.maxGlobal)
	if err != nil {
		_ = e.counters.Release(ctx, userTok)
		metrics.CounterRejectionsTotal.WithLabelValues("global").Inc()
		recordRefusal("global concurrent execution limit reached")
		return nil, apperr.New(apperr.KindRateLimited, "global concurrent execution limit reached", err)
	}
	defer func() {
		_ = e.counters.Release(ctx, userTok)
		_ = e.counters.Release(ctx, globalTok)
	}()

	call, err := e.calls.Insert(ctx, &domain.FunctionCall{
		FunctionName: functionName,
		VersionID:    version.ID,
		Trigger:      trigger,
		CallerID:     callerID,
		Status:       domain.CallPending,
		Input:        input,
	})
	if err != nil {
		return nil, err
	}
	defer e.forgetCancel(call.ID)

	e.run(ctx, call, version)

	return e.calls.Get(ctx, call.ID)
}

// InvokeAsync persists the PENDING call and runs the rest of the algorithm
// in the background, returning as soon as the row exists (spec §4.E).
func (e *Engine) InvokeAsync(ctx context.Context, functionName string, input json.RawMessage, caller *Caller, trigger domain.CallTrigger) (*domain.FunctionCall, error) {
	def, err := e.functions.Get(ctx, functionName)
	if err != nil {
		return nil, err
	}
	if err := authorize(def.AuthLevel, caller); err != nil {
		return nil, err
	}

	version, err := e.functions.ActiveVersion(ctx, functionName)
	if err != nil {
		return nil, err
	}

	var callerID *string
	if caller != nil {
		callerID = &caller.UserID
	}

	call, err := e.calls.Insert(ctx, &domain.FunctionCall{
		FunctionName: functionName,
		VersionID:    version.ID,
		Trigger:      trigger,
		CallerID:     callerID,
		Status:       domain.CallPending,
		Input:        input,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx := context.Background()
		defer e.forgetCancel(call.ID)

		uKey := userKey(callerID)
		userTok, err := e.counters.TryAcquire(bgCtx, uKey, e.maxPerUser)
		if err != nil {
			metrics.CounterRejectionsTotal.WithLabelValues("per_user").Inc()
			e.failPending(bgCtx, call.ID, apperr.KindRateLimited, "per-user concurrent function limit reached")
			return
		}
		globalTok, err := e.counters.TryAcquire(bgCtx, globalConcurrencyKey, e.maxGlobal)
		if err != nil {
			_ = e.counters.Release(bgCtx, userTok)
			metrics.CounterRejectionsTotal.WithLabelValues("global").Inc()
			e.failPending(bgCtx, call.ID, apperr.KindRateLimited, "global concurrent execution limit reached")
			return
		}
		defer func() {
			_ = e.counters.Release(bgCtx, userTok)
			_ = e.counters.Release(bgCtx, globalTok)
		}()

		e.run(bgCtx, call, version)
	}()

	return call, nil
}

// RunScheduledCall drives steps 3-9 of the invoke algorithm for a call row
// the Scheduler already inserted as PENDING inside its claim-and-advance
// transaction (repository.ScheduleFireTx.InsertPendingCall). Unlike
// Invoke/InvokeAsync it never inserts a call itself, since the schedule
// fire and the call's existence must be atomic with the schedule's own
// advance, something only the scheduler's transaction can guarantee.
func (e *Engine) RunScheduledCall(ctx context.Context, callID, functionName string, input json.RawMessage) {
	defer e.forgetCancel(callID)

	version, err := e.functions.ActiveVersion(ctx, functionName)
	if err != nil {
		e.failPending(ctx, callID, apperr.KindNotFound, "no active version for scheduled function")
		return
	}

	uKey := userKey(nil)
	userTok, err := e.counters.TryAcquire(ctx, uKey, e.maxPerUser)
	if err != nil {
		metrics.CounterRejectionsTotal.WithLabelValues("per_user").Inc()
		e.failPending(ctx, callID, apperr.KindRateLimited, "per-user concurrent function limit reached")
		return
	}
	globalTok, err := e.counters.TryAcquire(ctx, globalConcurrencyKey, e.maxGlobal)
	if err != nil {
		_ = e.counters.Release(ctx, userTok)
		metrics.CounterRejectionsTotal.WithLabelValues("global").Inc()
		e.failPending(ctx, callID, apperr.KindRateLimited, "global concurrent execution limit reached")
		return
	}
	defer func() {
		_ = e.counters.Release(ctx, userTok)
		_ = e.counters.Release(ctx, globalTok)
	}()

	call := &domain.FunctionCall{ID: callID, FunctionName: functionName, Input: input}
	e.run(ctx, call, version)
}

// failPending synthesizes a terminal row for a call that never made it past
// the Counter Store reservations, per the DESIGN.md open-question decision
// to record RateLimited outcomes rather than leave the row stuck PENDING.
func (e *Engine) failPending(ctx context.Context, callID string, kind apperr.Kind, msg string) {
	now := time.Now().UnixMilli()
	_ = e.calls.MarkRunning(ctx, callID, now)
	_ = e.calls.Complete(ctx, callID, domain.CallFailed, nil, string(kind), msg, now)
}

// run executes steps 6-9 of the invoke algorithm: lease, protocol
// roundtrip, outcome classification, release.
func (e *Engine) run(ctx context.Context, call *domain.FunctionCall, version *domain.FunctionVersion) {
	startedAt := time.Now()
	if err := e.calls.MarkRunning(ctx, call.ID, startedAt.UnixMilli()); err != nil {
		return
	}

	leaseCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	lease, err := e.pool.Lease(leaseCtx, call.FunctionName, version.ID, version.SourceText, call.ID, e.callTimeout)
	if err != nil {
		e.complete(ctx, call.ID, call.FunctionName, domain.CallTimedOut, nil, "timeout", "no worker available before deadline", startedAt)
		return
	}

	type result struct {
		status string
		output []byte
		errMsg string
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		status, output, errMsg, err := lease.Invoke(call.ID, call.Input)
		resultCh <- result{status: status, output: output, errMsg: errMsg, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			e.pool.Evict(lease)
			e.complete(ctx, call.ID, call.FunctionName, domain.CallFailed, nil, string(apperr.KindProtocolError),
				fmt.Sprintf("protocol error: %v; stderr: %s", res.err, truncate(lease.Stderr(), 2000)), startedAt)
			return
		}
		if e.isCancelled(call.ID) {
			e.pool.Evict(lease)
			e.complete(ctx, call.ID, call.FunctionName, domain.CallCancelled, nil, string(apperr.KindCancelled), "call was cancelled", startedAt)
			return
		}
		switch res.status {
		case "ok":
			e.pool.Release(lease, pool.OutcomeOK)
			e.complete(ctx, call.ID, call.FunctionName, domain.CallSucceeded, res.output, "", "", startedAt)
		default:
			e.pool.Release(lease, pool.OutcomeOK)
			e.complete(ctx, call.ID, call.FunctionName, domain.CallFailed, nil, "function_error", res.errMsg, startedAt)
		}

	case <-leaseCtx.Done():
		e.pool.Evict(lease)
		if e.isCancelled(call.ID) {
			e.complete(ctx, call.ID, call.FunctionName, domain.CallCancelled, nil, string(apperr.KindCancelled), "call was cancelled", startedAt)
			return
		}
		e.complete(ctx, call.ID, call.FunctionName, domain.CallTimedOut, nil, string(apperr.KindTimeout), "function exceeded its configured timeout", startedAt)
	}
}

func (e *Engine) complete(ctx context.Context, callID, functionName string, status domain.CallStatus, output []byte, errType, errMsg string, startedAt time.Time) {
	_ = e.calls.Complete(ctx, callID, status, output, errType, errMsg, time.Now().UnixMilli())
	metrics.CallDuration.WithLabelValues(functionName, string(status)).Observe(time.Since(startedAt).Seconds())
	metrics.CallsCompletedTotal.WithLabelValues(functionName, string(status)).Inc()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
