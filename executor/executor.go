// Package executor runs sync commands on a bounded pool and maintenance
// passes one at a time, keeping the two apart.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/util"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSyncUnavailable = errors.New("sync is unavailable during maintenance")
	ErrPassRunning     = errors.New("a maintenance pass is already running")
)

// Job is one sync command, e.g. the sync of one account.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Status struct {
	SyncAvailable      bool
	ActiveSyncs        int64
	MaintenanceRunning bool
	LastPassStarted    time.Time
	LastPassDuration   time.Duration
	LastPassErr        string
}

type Pools struct {
	workers int
	sem     *semaphore.Weighted
	// syncs hold the read lock; a maintenance pass takes the write lock
	exclusive   sync.RWMutex
	maintenance sync.Mutex
	unavailable atomic.Bool
	active      atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	last   Status
	wg     sync.WaitGroup
	log    *log.Logger
}

func New(syncWorkers int) *Pools {
	if syncWorkers <= 0 {
		syncWorkers = util.DefaultSyncWorkers
	}
	return &Pools{
		workers: syncWorkers,
		sem:     semaphore.NewWeighted(int64(syncWorkers)),
		log:     util.Logger("Executor"),
	}
}

// Sync runs one job on the sync pool, waiting for a free worker.
func (p *Pools) Sync(ctx context.Context, job Job) error {
	if p.unavailable.Load() || !p.exclusive.TryRLock() {
		return ErrSyncUnavailable
	}
	defer p.exclusive.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.active.Add(1)
	defer p.active.Add(-1)
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		p.log.Error("Sync failed", "job", job.Name, "err", err)
		return fmt.Errorf("sync %s: %w", job.Name, err)
	}
	p.log.Debug("Sync done", "job", job.Name, "duration", time.Since(start))
	return nil
}

// SyncAll runs the jobs concurrently, at most as many as there are
// workers, and returns the first error after all finished.
func (p *Pools) SyncAll(ctx context.Context, jobs []Job) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, job := range jobs {
		g.Go(func() error {
			return p.Sync(ctx, job)
		})
	}
	return g.Wait()
}

// RunMaintenance runs f exclusively: sync is unavailable until it returns,
// and in-flight syncs complete before f starts.
func (p *Pools) RunMaintenance(ctx context.Context, f func(ctx context.Context) error) error {
	if !p.maintenance.TryLock() {
		return ErrPassRunning
	}
	return p.runLocked(ctx, f)
}

// StartMaintenance is RunMaintenance in the background. done, if not nil,
// receives the result.
func (p *Pools) StartMaintenance(ctx context.Context, f func(ctx context.Context) error, done func(error)) error {
	if !p.maintenance.TryLock() {
		return ErrPassRunning
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.runLocked(ctx, f)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (p *Pools) runLocked(ctx context.Context, f func(ctx context.Context) error) error {
	defer p.maintenance.Unlock()

	p.unavailable.Store(true)
	defer p.unavailable.Store(false)
	p.exclusive.Lock()
	defer p.exclusive.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	start := time.Now()
	p.mu.Lock()
	p.cancel = cancel
	p.last.LastPassStarted = start
	p.mu.Unlock()

	p.log.Info("Maintenance pass started")
	err := f(ctx)

	p.mu.Lock()
	p.cancel = nil
	p.last.LastPassDuration = time.Since(start)
	p.last.LastPassErr = ""
	if err != nil {
		p.last.LastPassErr = err.Error()
	}
	p.mu.Unlock()
	p.log.Info("Maintenance pass finished", "duration", time.Since(start), "err", err)
	return err
}

// CancelMaintenance cancels the running pass. Returns false when none runs.
func (p *Pools) CancelMaintenance() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	p.cancel()
	return true
}

func (p *Pools) Status() Status {
	p.mu.Lock()
	s := p.last
	s.MaintenanceRunning = p.cancel != nil
	p.mu.Unlock()
	s.SyncAvailable = !p.unavailable.Load()
	s.ActiveSyncs = p.active.Load()
	return s
}

// Close cancels a running pass and waits for background passes.
func (p *Pools) Close() {
	p.CancelMaintenance()
	p.wg.Wait()
}
