// Package jobs tracks long-running background operations (package upgrades,
// speed tests) so chat handlers can acknowledge immediately and never block
// the polling loop.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keenbot/keenbot/pkg/logger"
	"github.com/keenbot/keenbot/pkg/shell"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed-out"
)

// Job is one background operation, keyed by a stable operation key
// (e.g. "opkg_upgrade", "speedtest"). Owned by the Registry; callers only
// ever see copies.
type Job struct {
	ID         string
	Key        string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	Result     shell.Result
}

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool { return j.Status != StatusRunning }

// Registry enforces at-most-one running job per key and retains a bounded
// history of completed jobs.
type Registry struct {
	runner     *shell.Runner
	maxHistory int

	mu   sync.Mutex
	jobs map[string]*Job

	// history receives a copy of every completed job; wired to the sqlite
	// store in main. May be nil.
	history func(Job)

	wg sync.WaitGroup
}

func NewRegistry(runner *shell.Runner, maxHistory int) *Registry {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Registry{
		runner:     runner,
		maxHistory: maxHistory,
		jobs:       make(map[string]*Job),
	}
}

// SetHistory installs the completed-job sink. Call before Start.
func (r *Registry) SetHistory(fn func(Job)) { r.history = fn }

// Start begins cmd under key on its own goroutine. It returns false without
// side effects if a job with the same key is already running. The check and
// the registration happen under one lock, so two racing Starts for the same
// key resolve to exactly one winner.
func (r *Registry) Start(ctx context.Context, key string, cmd shell.Command, onDone func(Job)) bool {
	return r.StartFunc(ctx, key, func(ctx context.Context) shell.Result {
		return r.runner.Run(ctx, cmd)
	}, onDone)
}

// StartFunc is Start for operations that are not a single command (multi-step
// opkg flows, speed tests). fn must honor ctx and return a Result either way.
func (r *Registry) StartFunc(ctx context.Context, key string, fn func(context.Context) shell.Result, onDone func(Job)) bool {
	r.mu.Lock()
	if j, ok := r.jobs[key]; ok && j.Status == StatusRunning {
		r.mu.Unlock()
		return false
	}
	job := &Job{
		ID:        uuid.NewString(),
		Key:       key,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	r.jobs[key] = job
	r.evictLocked()
	r.mu.Unlock()

	logger.InfoCF("jobs", "job started", map[string]interface{}{"key": key, "id": job.ID})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := fn(ctx)

		r.mu.Lock()
		job.Result = res
		job.FinishedAt = time.Now()
		switch {
		case res.TimedOut:
			job.Status = StatusTimedOut
		case res.OK():
			job.Status = StatusSucceeded
		default:
			job.Status = StatusFailed
		}
		snapshot := *job
		r.evictLocked()
		r.mu.Unlock()

		logger.InfoCF("jobs", "job finished", map[string]interface{}{
			"key":    key,
			"status": string(snapshot.Status),
			"rc":     res.ExitCode,
			"took":   res.Duration.String(),
		})
		if r.history != nil {
			r.history(snapshot)
		}
		if onDone != nil {
			onDone(snapshot)
		}
	}()
	return true
}

// Status returns a copy of the job currently registered under key.
func (r *Registry) Status(key string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[key]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns copies of all tracked jobs, running first, newest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sortJobs(out)
	return out
}

// RunningCount reports how many jobs are currently executing.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Wait blocks until all running jobs finish; used on shutdown.
func (r *Registry) Wait() { r.wg.Wait() }

// evictLocked drops oldest-completed jobs past the retention cap. Runs on
// every start and every completion; running jobs are never evicted.
func (r *Registry) evictLocked() {
	completed := 0
	for _, j := range r.jobs {
		if j.Status != StatusRunning {
			completed++
		}
	}
	for completed > r.maxHistory {
		var oldestKey string
		var oldest time.Time
		for k, j := range r.jobs {
			if j.Status == StatusRunning {
				continue
			}
			if oldestKey == "" || j.FinishedAt.Before(oldest) {
				oldestKey, oldest = k, j.FinishedAt
			}
		}
		delete(r.jobs, oldestKey)
		completed--
	}
}

func sortJobs(js []Job) {
	rank := func(j Job) int {
		if j.Status == StatusRunning {
			return 0
		}
		return 1
	}
	sort.Slice(js, func(a, b int) bool {
		if rank(js[a]) != rank(js[b]) {
			return rank(js[a]) < rank(js[b])
		}
		return js[a].StartedAt.After(js[b].StartedAt)
	})
}
