package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
)

// Outcome is what the Execution Engine reports when releasing a leased
// worker (spec §4.D: "ok", "protocol_error", "crashed").
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeProtocolError
	OutcomeCrashed
)

// Lease is the handle the Execution Engine holds while a worker is LEASED.
type Lease struct {
	w  *worker
	fp *functionPool
}

// Invoke proxies to the underlying worker's protocol roundtrip.
func (l *Lease) Invoke(callID string, input []byte) (status string, output []byte, errMsg string, err error) {
	resp, err := l.w.invoke(callID, input)
	if err != nil {
		return "", nil, "", err
	}
	return resp.Status, resp.Output, resp.Error, nil
}

// Stderr returns diagnostic output captured from the worker since spawn.
func (l *Lease) Stderr() string { return l.w.stderr.String() }

// poolKey identifies one functionPool: a function pinned to one version.
type poolKey struct {
	functionName string
	versionID    string
}

func (k poolKey) String() string { return k.functionName + "@" + k.versionID }

// functionPool holds every worker (IDLE or LEASED) for one (function,
// version) pair. Grounded on oriys-nova's functionPool: a mutex plus a
// condition variable bound to it so lease() can block until a worker frees
// up or the pool is allowed to spawn another. A plain sync.Mutex is used
// here rather than nova's sync.RWMutex: this pool has no read-only hot path
// comparable to nova's per-request readyVMs snapshot, so the extra
// reader/writer bookkeeping would add complexity without a payoff.
type functionPool struct {
	mu   sync.Mutex
	cond *sync.Cond

	idle     []*worker
	leased   map[*worker]struct{}
	draining bool // true once a newer version exists; no new spawns, idle workers drained
}

func newFunctionPool() *functionPool {
	fp := &functionPool{leased: make(map[*worker]struct{})}
	fp.cond = sync.NewCond(&fp.mu)
	return fp
}

// Pool is the top-level resource manager, one functionPool per
// (function_name, version_id) pair, stored in a sync.Map since pools are
// created rarely (one per deploy) but looked up on every invocation.
type Pool struct {
	pools sync.Map // poolKey -> *functionPool

	workDir  string
	poolSize int
	idleTTL  time.Duration
	spawnCap int32
	spawned  atomic.Int32
	env      func(functionName, versionID, callID string) []string

	closing     atomic.Bool
	janitorStop chan struct{}
}

type Config struct {
	WorkDir   string
	PoolSize  int
	IdleTTL   time.Duration
	SpawnCap  int
	// EnvForCall builds the environment variables injected into a worker at
	// spawn time (spec §4.G: "a provided client handle whose endpoint and
	// token are injected via environment variables at spawn").
	EnvForCall func(functionName, versionID, callID string) []string
}

func New(cfg Config) *Pool {
	p := &Pool{
		workDir:     cfg.WorkDir,
		poolSize:    cfg.PoolSize,
		idleTTL:     cfg.IdleTTL,
		spawnCap:    int32(cfg.SpawnCap),
		env:         cfg.EnvForCall,
		janitorStop: make(chan struct{}),
	}
	go p.janitorLoop()
	return p
}

func (p *Pool) getOrCreatePool(key poolKey) *functionPool {
	if v, ok := p.pools.Load(key); ok {
		return v.(*functionPool)
	}
	fp := newFunctionPool()
	actual, _ := p.pools.LoadOrStore(key, fp)
	return actual.(*functionPool)
}

// Lease blocks up to deadline for an IDLE worker for (functionName,
// versionID, sourceText); if none is idle it spawns one unless the global
// spawn cap is reached, in which case it waits for a release or the
// deadline (spec §4.D lease algorithm).
func (p *Pool) Lease(ctx context.Context, functionName, versionID, sourceText string, callID string, deadline time.Duration) (*Lease, error) {
	key := poolKey{functionName: functionName, versionID: versionID}
	fp := p.getOrCreatePool(key)

	waitStart := time.Now()
	deadlineAt := waitStart.Add(deadline)

	fp.mu.Lock()
	for {
		if len(fp.idle) > 0 {
			w := fp.idle[len(fp.idle)-1]
			fp.idle = fp.idle[:len(fp.idle)-1]
			w.state = stateLeased
			fp.leased[w] = struct{}{}
			fp.mu.Unlock()
			metrics.PoolLeaseWait.Observe(time.Since(waitStart).Seconds())
			return &Lease{w: w, fp: fp}, nil
		}

		if p.spawned.Load() < p.spawnCap {
			p.spawned.Add(1)
			fp.mu.Unlock()

			var env []string
			if p.env != nil {
				env = p.env(functionName, versionID, callID)
			}
			w, err := spawn(functionName, versionID, sourceText, p.workDir, env)
			if err != nil {
				p.spawned.Add(-1)
				return nil, fmt.Errorf("spawn worker: %w", err)
			}
			metrics.PoolWorkersSpawnedTotal.WithLabelValues(functionName).Inc()

			fp.mu.Lock()
			w.state = stateLeased
			fp.leased[w] = struct{}{}
			fp.mu.Unlock()
			metrics.PoolLeaseWait.Observe(time.Since(waitStart).Seconds())
			return &Lease{w: w, fp: fp}, nil
		}

		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			fp.mu.Unlock()
			return nil, apperr.New(apperr.KindTimeout, "no worker available before deadline", nil)
		}

		waitDone := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			fp.mu.Lock()
			fp.cond.Broadcast()
			fp.mu.Unlock()
		})
		go func() {
			<-waitDone
			timer.Stop()
		}()
		fp.cond.Wait()
		close(waitDone)

		if ctx.Err() != nil {
			fp.mu.Unlock()
			return nil, ctx.Err()
		}
		if time.Now().After(deadlineAt) {
			fp.mu.Unlock()
			return nil, apperr.New(apperr.KindTimeout, "no worker available before deadline", nil)
		}
	}
}

// Release returns a leased worker per outcome: ok keeps it warm (IDLE) if
// it is not draining; protocol_error/crashed evicts it.
func (p *Pool) Release(l *Lease, outcome Outcome) {
	fp := l.fp
	w := l.w

	fp.mu.Lock()
	delete(fp.leased, w)

	evict := outcome != OutcomeOK || fp.draining || w.markEvict
	if evict {
		fp.mu.Unlock()
		w.kill()
		p.spawned.Add(-1)
		fp.mu.Lock()
		fp.cond.Broadcast()
		fp.mu.Unlock()
		return
	}

	if len(fp.idle) >= p.poolSize {
		fp.mu.Unlock()
		w.kill()
		p.spawned.Add(-1)
		fp.mu.Lock()
		fp.cond.Broadcast()
		fp.mu.Unlock()
		return
	}

	w.state = stateIdle
	w.lastUsedAt = time.Now()
	fp.idle = append(fp.idle, w)
	idleCount := len(fp.idle)
	fp.cond.Broadcast()
	fp.mu.Unlock()
	metrics.PoolWorkersIdle.WithLabelValues(w.functionName, w.versionID).Set(float64(idleCount))
}

// Evict forcibly kills a specific worker regardless of outcome, used by the
// Execution Engine on timeout/cancellation (spec §4.E step 8).
func (p *Pool) Evict(l *Lease) {
	p.Release(l, OutcomeCrashed)
}

// DrainVersion marks every older-version pool for functionName (any
// versionID other than activeVersionID) as draining: idle workers are
// killed immediately, leased workers are killed on release (spec §4.D
// "version change" policy).
func (p *Pool) DrainVersion(functionName, activeVersionID string) {
	p.pools.Range(func(k, v any) bool {
		key := k.(poolKey)
		if key.functionName != functionName || key.versionID == activeVersionID {
			return true
		}
		fp := v.(*functionPool)
		fp.mu.Lock()
		fp.draining = true
		for _, w := range fp.idle {
			w.kill()
			p.spawned.Add(-1)
		}
		fp.idle = nil
		for w := range fp.leased {
			w.markEvict = true
		}
		fp.cond.Broadcast()
		fp.mu.Unlock()
		return true
	})
}

// janitorLoop evicts IDLE workers that have exceeded idleTTL, the same
// "sweep on an interval" shape as the teacher's Reaper goroutine.
func (p *Pool) janitorLoop() {
	ticker := time.NewTicker(p.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.janitorStop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	now := time.Now()
	p.pools.Range(func(_, v any) bool {
		fp := v.(*functionPool)
		fp.mu.Lock()
		var kept []*worker
		for _, w := range fp.idle {
			if now.Sub(w.lastUsedAt) > p.idleTTL {
				w.kill()
				p.spawned.Add(-1)
				continue
			}
			kept = append(kept, w)
		}
		fp.idle = kept
		fp.mu.Unlock()
		return true
	})
}

// Shutdown stops the janitor and kills every worker, idle or leased.
func (p *Pool) Shutdown() {
	if !p.closing.CompareAndSwap(false, true) {
		return
	}
	close(p.janitorStop)
	p.pools.Range(func(_, v any) bool {
		fp := v.(*functionPool)
		fp.mu.Lock()
		for _, w := range fp.idle {
			w.kill()
		}
		for w := range fp.leased {
			w.kill()
		}
		fp.mu.Unlock()
		return true
	})
}
