package app

import (
	"context"
	"fmt"
	"time"

	"pycomplete/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Session    string            `json:"session"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components"`
}

// Health reports on the worker and the journal. It takes the request lock,
// so a slow request delays the answer.
func (a *App) Health(ctx context.Context) HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Session:    a.session,
		Uptime:     time.Since(a.started).Round(time.Second).String(),
		Components: make(map[string]string),
	}

	if a.rt == nil {
		status.Status = "degraded"
		status.Components["python"] = "missing"
	} else if info, err := a.rt.Info(ctx); err != nil {
		status.Status = "degraded"
		status.Components["python"] = "unavailable: " + err.Error()
	} else {
		status.Components["python"] = fmt.Sprintf("ok (%s, generation %d)", info.Version, a.rt.Generation())
	}

	if a.journal != nil {
		status.Components["journal"] = fmt.Sprintf("ok (%s, %d queued)", a.journal.store.Path(), a.journal.queue.Len())
	} else {
		status.Components["journal"] = "disabled"
	}

	status.Components["documents"] = fmt.Sprintf("%d", len(a.registry.Paths()))
	status.Components["heap"] = fmt.Sprintf("%d MB", util.GetHeapAllocMB())
	return status
}

// HealthMap adapts Health to the observability server.
func (a *App) HealthMap(ctx context.Context) map[string]any {
	h := a.Health(ctx)
	return map[string]any{
		"status":     h.Status,
		"timestamp":  h.Timestamp,
		"session":    h.Session,
		"uptime":     h.Uptime,
		"components": h.Components,
	}
}
