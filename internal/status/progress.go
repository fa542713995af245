package status

import (
	"sync"
	"time"
)

// Snapshot is the progress of the current run as served on /status.
type Snapshot struct {
	Mode      string    `json:"mode" example:"put-get" doc:"Run mode"`
	RunID     string    `json:"run_id" doc:"Run identifier"`
	Total     int       `json:"total" doc:"Scenarios or steps planned, 0 when unknown"`
	Passed    int       `json:"passed" doc:"Scenarios or steps passed so far"`
	Failed    int       `json:"failed" doc:"Scenarios or steps failed so far"`
	Current   string    `json:"current,omitempty" doc:"Name of the scenario or step in progress"`
	StartedAt time.Time `json:"started_at" doc:"Run start time"`
	Done      bool      `json:"done" doc:"Whether the run has finished"`
}

// Progress tracks a run for the status server. The zero value is ready to
// use and safe for concurrent use.
type Progress struct {
	mu   sync.Mutex
	snap Snapshot
}

// Start resets the progress for a new run.
func (p *Progress) Start(mode, runID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = Snapshot{Mode: mode, RunID: runID, Total: total, StartedAt: time.Now()}
}

// SetCurrent records the scenario or step in progress.
func (p *Progress) SetCurrent(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Current = name
}

// Record counts a finished scenario or step.
func (p *Progress) Record(passed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if passed {
		p.snap.Passed++
	} else {
		p.snap.Failed++
	}
}

// Finish marks the run done.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Current = ""
	p.snap.Done = true
}

// Snapshot returns a copy of the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}
