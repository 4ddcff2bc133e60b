// Package storage - background job scheduler
//
// What: Executes CREATE JOB statements on their declared schedule: a cron
//      expression, a fixed interval, or a single run-at instant. Jobs live
//      in the system catalog; the scheduler reads them from there and
//      records each run back.
// How: Cron jobs register with one robfig/cron instance; interval and
//      one-shot jobs are polled by a ticking loop against their NextRunAt.
//      Execution goes through the JobExecutor seam so the scheduler never
//      imports the SQL engine, and each run gets a per-job timeout context.
// Why: Periodic maintenance SQL (rollups, retention deletes, refreshes)
//      belongs inside the database's own clock, not in every embedding
//      application; the executor seam keeps the dependency arrow pointing
//      the right way.
package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobExecutor runs one SQL statement on behalf of a job. The root API's
// connection type satisfies it through a thin adapter, which is how job SQL
// reaches the engine without a circular import.
type JobExecutor interface {
	ExecuteSQL(ctx context.Context, sql string) (any, error)
}

// cronParser accepts the six-field (seconds-first) expressions CREATE JOB
// uses, plus @-descriptors.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler drives the catalog's enabled jobs.
type Scheduler struct {
	db       *DB
	catalog  *CatalogManager
	cron     *cron.Cron
	executor JobExecutor

	// Logf receives scheduler diagnostics. Defaults to log.Printf; embedders
	// that want a silent engine swap in a no-op before Start.
	Logf func(format string, args ...any)

	mu      sync.RWMutex
	running map[string]*jobExecution
	runs    map[string]int // completed executions per job, for observability
	lastErr map[string]error
	stopCh  chan struct{}
	started bool
}

// jobExecution tracks one in-flight run.
type jobExecution struct {
	startTime time.Time
	cancelFn  context.CancelFunc
}

// NewScheduler builds a scheduler over db's catalog. Call Start to begin.
func NewScheduler(db *DB, executor JobExecutor) *Scheduler {
	return &Scheduler{
		db:       db,
		catalog:  db.Catalog(),
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		executor: executor,
		Logf:     log.Printf,
		running:  make(map[string]*jobExecution),
		runs:     make(map[string]int),
		lastErr:  make(map[string]error),
		stopCh:   make(chan struct{}),
	}
}

// Start registers every enabled catalog job and begins both schedulers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	for _, job := range s.catalog.ListEnabledJobs() {
		if err := s.scheduleJob(job); err != nil {
			s.Logf("schedule job %q: %v", job.Name, err)
		}
	}

	s.cron.Start()
	go s.runIntervalScheduler()
	return nil
}

// Stop halts both schedulers and cancels in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	<-s.cron.Stop().Done()
	close(s.stopCh)

	for name, exec := range s.running {
		s.Logf("canceling running job %q", name)
		exec.cancelFn()
	}
}

// Runs reports how many times the named job has completed, and its most
// recent execution error if any.
func (s *Scheduler) Runs(name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[name], s.lastErr[name]
}

// scheduleJob routes a job to the cron or the interval scheduler. Caller
// holds s.mu.
func (s *Scheduler) scheduleJob(job *CatalogJob) error {
	switch job.ScheduleType {
	case "CRON":
		return s.scheduleCronJob(job)
	case "INTERVAL":
		s.calculateNextRun(job)
		return nil
	case "ONCE":
		if job.RunAt != nil {
			job.NextRunAt = job.RunAt
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule type: %s", job.ScheduleType)
	}
}

func (s *Scheduler) scheduleCronJob(job *CatalogJob) error {
	if job.CronExpr == "" {
		return fmt.Errorf("CRON expression empty for job %q", job.Name)
	}

	loc := time.UTC
	if job.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(job.Timezone)
		if err != nil {
			s.Logf("invalid timezone %q for job %q, using UTC", job.Timezone, job.Name)
			loc = time.UTC
		}
	}

	schedule, err := cronParser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid CRON expression %q: %w", job.CronExpr, err)
	}
	nextRun := schedule.Next(time.Now().In(loc))
	job.NextRunAt = &nextRun

	_, err = s.cron.AddFunc(job.CronExpr, func() {
		s.executeJob(job)
	})
	return err
}

// runIntervalScheduler polls INTERVAL and ONCE jobs once per second.
func (s *Scheduler) runIntervalScheduler() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.checkIntervalJobs(now)
		}
	}
}

func (s *Scheduler) checkIntervalJobs(now time.Time) {
	for _, job := range s.catalog.ListEnabledJobs() {
		if job.ScheduleType != "INTERVAL" && job.ScheduleType != "ONCE" {
			continue
		}
		if job.NextRunAt == nil {
			// A CREATE JOB statement registered this job after Start;
			// give it a first deadline instead of skipping it forever.
			if job.ScheduleType == "INTERVAL" {
				s.calculateNextRun(job)
			} else if job.RunAt != nil {
				job.NextRunAt = job.RunAt
			}
			continue
		}
		if now.Before(*job.NextRunAt) {
			continue
		}
		s.executeJob(job)

		if job.ScheduleType == "ONCE" {
			job.Enabled = false
			if err := s.catalog.RegisterJob(job); err != nil {
				s.Logf("disable ONCE job %q: %v", job.Name, err)
			}
		}
	}
}

// executeJob runs a job's SQL under its timeout, honoring no_overlap.
func (s *Scheduler) executeJob(job *CatalogJob) {
	s.mu.Lock()
	if job.NoOverlap {
		if _, isRunning := s.running[job.Name]; isRunning {
			s.mu.Unlock()
			s.Logf("job %q already running, skipping (no_overlap)", job.Name)
			return
		}
	}

	timeout := time.Duration(job.MaxRuntimeMs) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	exec := &jobExecution{startTime: time.Now(), cancelFn: cancel}
	s.running[job.Name] = exec
	s.mu.Unlock()

	go func() {
		var runErr error
		defer func() {
			cancel()
			s.calculateNextRun(job)
			// A job whose schedule produced no next run (bad interval)
			// still records its last run.
			nextRun := exec.startTime
			if job.NextRunAt != nil {
				nextRun = *job.NextRunAt
			}
			if err := s.catalog.UpdateJobRuntime(job.Name, exec.startTime, nextRun); err != nil {
				s.Logf("update job runtime for %q: %v", job.Name, err)
			}
			s.mu.Lock()
			delete(s.running, job.Name)
			s.runs[job.Name]++
			s.lastErr[job.Name] = runErr
			s.mu.Unlock()
		}()

		if s.executor == nil {
			s.Logf("job %q skipped (no executor configured)", job.Name)
			return
		}
		if _, err := s.executor.ExecuteSQL(ctx, job.SQLText); err != nil {
			runErr = err
			s.Logf("job %q failed: %v", job.Name, err)
		}
	}()
}

// calculateNextRun computes NextRunAt from the schedule type.
func (s *Scheduler) calculateNextRun(job *CatalogJob) {
	now := time.Now()

	switch job.ScheduleType {
	case "INTERVAL":
		if job.IntervalMs <= 0 {
			s.Logf("invalid interval for job %q", job.Name)
			return
		}
		interval := time.Duration(job.IntervalMs) * time.Millisecond
		switch {
		case job.LastRunAt == nil:
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		case job.CatchUp:
			nextRun := job.LastRunAt.Add(interval)
			for nextRun.Before(now) {
				nextRun = nextRun.Add(interval)
			}
			job.NextRunAt = &nextRun
		default:
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		}

	case "CRON":
		if job.CronExpr == "" {
			return
		}
		schedule, err := cronParser.Parse(job.CronExpr)
		if err != nil {
			return
		}
		loc := time.UTC
		if job.Timezone != "" {
			if l, err := time.LoadLocation(job.Timezone); err == nil {
				loc = l
			}
		}
		nextRun := schedule.Next(now.In(loc))
		job.NextRunAt = &nextRun

	case "ONCE":
		// NextRunAt was fixed at registration.
	}
}

// AddJob registers a new job in the catalog and schedules it if enabled.
func (s *Scheduler) AddJob(job *CatalogJob) error {
	if err := s.catalog.RegisterJob(job); err != nil {
		return err
	}
	if job.Enabled {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.scheduleJob(job)
	}
	return nil
}

// RemoveJob cancels a running instance and deletes the job from the catalog.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec, ok := s.running[name]; ok {
		exec.cancelFn()
		delete(s.running, name)
	}
	return s.catalog.DeleteJob(name)
}
