// Package pager - background checkpointer
//
// What: Periodically folds committed WAL frames back into the main database
//      file so the WAL stays short without any caller asking for it.
// How: A cron schedule drives CheckpointAs(CheckpointPassive); passive mode
//      flushes dirty pages without resetting the WAL, so it never disturbs a
//      reader's snapshot.
// Why: Commit latency stays flat when the WAL is folded continuously in the
//      background instead of in one large stall at close time.
package pager

import (
	"sync"

	"github.com/robfig/cron/v3"
)

// CheckpointerConfig configures the background checkpointer.
type CheckpointerConfig struct {
	// Schedule is a cron expression (with seconds field). Empty means the
	// default of every 30 seconds.
	Schedule string
	// Mode is the checkpoint mode each tick runs. Defaults to Passive.
	Mode CheckpointMode
}

const defaultCheckpointSchedule = "*/30 * * * * *"

// Checkpointer runs periodic checkpoints against one Pager.
type Checkpointer struct {
	pager *Pager
	cron  *cron.Cron
	mode  CheckpointMode

	mu      sync.Mutex
	lastErr error
	runs    int
	started bool
}

// NewCheckpointer builds a checkpointer; call Start to begin ticking.
func NewCheckpointer(p *Pager, cfg CheckpointerConfig) (*Checkpointer, error) {
	sched := cfg.Schedule
	if sched == "" {
		sched = defaultCheckpointSchedule
	}
	cp := &Checkpointer{
		pager: p,
		cron:  cron.New(cron.WithSeconds()),
		mode:  cfg.Mode,
	}
	if _, err := cp.cron.AddFunc(sched, cp.tick); err != nil {
		return nil, err
	}
	return cp, nil
}

func (cp *Checkpointer) tick() {
	err := cp.pager.CheckpointAs(cp.mode)
	cp.mu.Lock()
	cp.runs++
	cp.lastErr = err
	cp.mu.Unlock()
}

// Start begins the schedule. Safe to call once.
func (cp *Checkpointer) Start() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.started {
		return
	}
	cp.started = true
	cp.cron.Start()
}

// Stop halts the schedule and waits for an in-flight tick to finish.
func (cp *Checkpointer) Stop() {
	cp.mu.Lock()
	started := cp.started
	cp.started = false
	cp.mu.Unlock()
	if started {
		<-cp.cron.Stop().Done()
	}
}

// Stats reports how many ticks have run and the most recent error, if any.
func (cp *Checkpointer) Stats() (runs int, lastErr error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.runs, cp.lastErr
}
