package httptransport

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"fro-server/internal/platform/observability"
)

// HealthReport is the payload of GET /api/health.
type HealthReport struct {
	Status      string                                 `json:"status"`
	Service     ServiceInfo                            `json:"service"`
	Uptime      string                                 `json:"uptime"`
	Workspaces  int                                    `json:"workspaces"`
	Process     ProcessStats                           `json:"process"`
	Preferences map[string]any                         `json:"preferences,omitempty"`
	Metrics     map[string]observability.MetricSummary `json:"metrics,omitempty"`
}

// ProcessStats are best-effort; fields stay zero when unavailable.
type ProcessStats struct {
	Goroutines       int     `json:"goroutines"`
	RSSBytes         uint64  `json:"rss_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	SystemMemPercent float64 `json:"system_mem_percent"`
}

// handleHealth
// @Summary Liveness and service information
// @Tags System
// @Produce json
// @Success 200 {object} APIResponse
// @Router /health [get]
func (h *Handler) handleHealth(c *gin.Context) {
	report := HealthReport{
		Status:     "ok",
		Service:    h.info,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Workspaces: h.workspaces.Len(),
		Process:    processStats(c),
	}
	if stats, err := h.prefs.Stats(c.Request.Context()); err == nil {
		report.Preferences = stats
	} else {
		h.logger.WarnTag("PREFS", "stats unavailable: %v", err)
	}
	if observability.Enabled() {
		report.Metrics = observability.Snapshot()
	}
	RespondSuccess(c, http.StatusOK, report, "")
}

func processStats(c *gin.Context) ProcessStats {
	stats := ProcessStats{Goroutines: runtime.NumGoroutine()}
	ctx := c.Request.Context()

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			stats.RSSBytes = info.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			stats.CPUPercent = cpu
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.SystemMemPercent = vm.UsedPercent
	}
	return stats
}
