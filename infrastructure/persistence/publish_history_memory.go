package persistence

import (
	"context"
	"sync"

	"social-publisher/domain/model"
)

// MemoryPublishHistory keeps the most recent reports per user in memory.
type MemoryPublishHistory struct {
	mu      sync.RWMutex
	perUser int
	reports map[string][]model.PublishReport
}

func NewMemoryPublishHistory(perUser int) *MemoryPublishHistory {
	if perUser <= 0 {
		perUser = 100
	}
	return &MemoryPublishHistory{perUser: perUser, reports: map[string][]model.PublishReport{}}
}

func (h *MemoryPublishHistory) Save(_ context.Context, report *model.PublishReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *report
	cp.Results = append([]model.UploadResult(nil), report.Results...)
	list := append(h.reports[report.UserID], cp)
	if len(list) > h.perUser {
		list = list[len(list)-h.perUser:]
	}
	h.reports[report.UserID] = list
	return nil
}

// ListRecent returns newest first.
func (h *MemoryPublishHistory) ListRecent(_ context.Context, userID string, limit int64) ([]model.PublishReport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.reports[userID]
	out := make([]model.PublishReport, 0, len(list))
	for i := len(list) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
