package usecase

import (
	"sync"
	"time"

	"social-publisher/domain/model"
)

type runState struct {
	progress   model.PublishProgress
	index      map[model.Platform]int
	finishedAt time.Time
}

// ProgressTracker keeps the running state of fan-outs in memory. Finished runs
// are kept for the retention window, then evicted.
type ProgressTracker struct {
	mu        sync.Mutex
	runs      map[string]*runState
	retention time.Duration
	now       func() time.Time
}

func NewProgressTracker(retention time.Duration) *ProgressTracker {
	if retention <= 0 {
		retention = time.Hour
	}
	return &ProgressTracker{runs: map[string]*runState{}, retention: retention, now: time.Now}
}

func (t *ProgressTracker) Start(runID, userID string, platforms []model.Platform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked()
	now := t.now()
	rs := &runState{
		progress: model.PublishProgress{RunID: runID, UserID: userID, Jobs: make([]model.JobProgress, len(platforms))},
		index:    make(map[model.Platform]int, len(platforms)),
	}
	for i, p := range platforms {
		rs.progress.Jobs[i] = model.JobProgress{Platform: p, State: model.StatePending, UpdatedAt: now}
		rs.index[p] = i
	}
	t.runs[runID] = rs
}

// Update stores the job's current view. It returns false when nothing
// observable changed, so callers can skip notifying.
func (t *ProgressTracker) Update(runID string, job *model.UploadJob) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[runID]
	if !ok {
		return false
	}
	i, ok := rs.index[job.Platform]
	if !ok {
		return false
	}
	prev := rs.progress.Jobs[i]
	if prev.State.IsTerminal() {
		return false
	}
	changed = prev.State != job.State || job.BytesSent > prev.BytesSent
	rs.progress.Jobs[i] = job.Progress(t.now())
	return changed
}

func (t *ProgressTracker) Finish(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rs, ok := t.runs[runID]; ok {
		rs.progress.Done = true
		rs.finishedAt = t.now()
	}
}

// Snapshot returns a copy of the run as seen by its owner.
func (t *ProgressTracker) Snapshot(runID, userID string) (*model.PublishProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[runID]
	if !ok || rs.progress.UserID != userID {
		return nil, false
	}
	out := rs.progress
	out.Jobs = append([]model.JobProgress(nil), rs.progress.Jobs...)
	out.InFlight = []model.Platform{}
	for _, j := range out.Jobs {
		if !j.State.IsTerminal() {
			out.InFlight = append(out.InFlight, j.Platform)
		}
	}
	return &out, true
}

func (t *ProgressTracker) evictLocked() {
	cutoff := t.now().Add(-t.retention)
	for id, rs := range t.runs {
		if rs.progress.Done && rs.finishedAt.Before(cutoff) {
			delete(t.runs, id)
		}
	}
}
