package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/rs/zerolog"
)

const checkTimeout = 2 * time.Second

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// QueueLength reports the backlog of a worker queue.
type QueueLength func(ctx context.Context) (int64, error)

// SystemHandler serves health probes and a runtime snapshot for admins.
type SystemHandler struct {
	checks    map[string]Check
	queues    map[string]QueueLength
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. checks are run by the readiness
// probe; queues are reported in the admin status.
func NewSystemHandler(checks map[string]Check, queues map[string]QueueLength, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
	Queues       map[string]int64  `json:"queues"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`
}

// Health godoc
// GET /health
// Liveness: the process is serving requests.
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// GET /ready
// Readiness: every dependency answered. Responds 503 otherwise.
func (h *SystemHandler) Ready(c *gin.Context) {
	deps, healthy := h.runChecks(c.Request.Context())
	if !healthy {
		h.log.Warn().Interface("dependencies", deps).Msg("Readiness check failed")
		response.FailWithData(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable, gin.H{"dependencies": deps})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ready", "dependencies": deps})
}

// Status godoc
// GET /api/v1/admin/system/status
// Runtime metrics, dependency health and worker queue backlog.
func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	deps, _ := h.runChecks(ctx)

	queues := make(map[string]int64, len(h.queues))
	for name, length := range h.queues {
		n, err := length(ctx)
		if err != nil {
			h.log.Warn().Err(err).Str("queue", name).Msg("Queue length unavailable")
			n = -1
		}
		queues[name] = n
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.Success(c, http.StatusOK, systemStatus{
		Uptime:       formatDuration(time.Since(h.startTime)),
		Dependencies: deps,
		Queues:       queues,
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    mem.HeapAlloc,
		HeapSys:      mem.HeapSys,
		NumGC:        mem.NumGC,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
	})
}

func (h *SystemHandler) runChecks(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := h.checks[name](checkCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
