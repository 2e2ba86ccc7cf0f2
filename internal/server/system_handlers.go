package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/foresight/internal/scheduler"
)

// JobRunner is the scheduler as seen by the job endpoints
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	RunAsync(id scheduler.JobID) (string, error)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SystemHandlers handles system monitoring and job endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	jobs        JobRunner
	health      HealthChecker
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, jobs JobRunner, health HealthChecker) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		jobs:        jobs,
		health:      health,
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status        string  `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DataDirMB     float64 `json:"data_dir_mb"`
	Database      string  `json:"database"`
	Jobs          int     `json:"jobs"`
	RunningJobs   int     `json:"running_jobs"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DataDirMB:     h.getDirSize(h.dataDir),
		Database:      "ok",
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			response.Status = "degraded"
			response.Database = "unavailable"
		}
	}

	if h.jobs != nil {
		for _, j := range h.jobs.Jobs() {
			response.Jobs++
			if j.Running {
				response.RunningJobs++
			}
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// JobsStatusResponse lists every registered job
type JobsStatusResponse struct {
	TotalJobs int                   `json:"total_jobs"`
	Jobs      []scheduler.JobStatus `json:"jobs"`
}

// HandleJobsStatus handles GET /api/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	var jobs []scheduler.JobStatus
	if h.jobs != nil {
		jobs = h.jobs.Jobs()
	}
	h.writeJSON(w, http.StatusOK, JobsStatusResponse{TotalJobs: len(jobs), Jobs: jobs})
}

// HandleRunJob handles POST /api/jobs/{id}/run. The job runs in the
// background; a job that is already running is not queued.
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	id := scheduler.JobID(chi.URLParam(r, "id"))
	if h.jobs == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Scheduler not available",
		})
		return
	}

	runID, err := h.jobs.RunAsync(id)
	switch {
	case err == nil:
		h.log.Info().Str("job", string(id)).Str("run_id", runID).Msg("Manual job run triggered")
		h.writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"job":    string(id),
			"run_id": runID,
		})
	case errors.Is(err, scheduler.ErrJobBusy):
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "dropped",
			"job":     string(id),
			"message": "Job is already running",
		})
	case errors.Is(err, scheduler.ErrUnknownJob):
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Unknown job",
		})
	default:
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
	}
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
