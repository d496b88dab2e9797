package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/aura-studio/aura/internal/database"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/retry"
	"github.com/aura-studio/aura/internal/service"
	"github.com/aura-studio/aura/internal/supervisor"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version    string
	startTime  time.Time
	jobService *service.JobService
	breakers   *retry.BreakerRegistry
	sup        *supervisor.Supervisor
	db         *database.DB
	profile    models.SystemProfile
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithJobService sets the job service for queue statistics.
func (h *HealthHandler) WithJobService(s *service.JobService) *HealthHandler {
	h.jobService = s
	return h
}

// WithBreakers sets the provider circuit breaker registry.
func (h *HealthHandler) WithBreakers(r *retry.BreakerRegistry) *HealthHandler {
	h.breakers = r
	return h
}

// WithSupervisor sets the encoder process supervisor.
func (h *HealthHandler) WithSupervisor(s *supervisor.Supervisor) *HealthHandler {
	h.sup = s
	return h
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// WithProfile sets the detected hardware profile.
func (h *HealthHandler) WithProfile(p models.SystemProfile) *HealthHandler {
	h.profile = p
	return h
}

// CircuitBreakerStatus is one provider breaker snapshot.
type CircuitBreakerStatus struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// EncoderProcessStatus is one tracked encoder child process.
type EncoderProcessStatus struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	JobID    string `json:"job_id,omitempty"`
	Running  bool   `json:"running"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// CPUInfo describes host CPU load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo describes host and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	ChildProcessCount int     `json:"child_process_count"`
}

// DatabaseHealth describes database connectivity.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	Driver         string  `json:"driver,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	Version       string                 `json:"version"`
	Uptime        string                 `json:"uptime"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Draining      bool                   `json:"draining"`
	Jobs          service.Stats          `json:"jobs"`
	CPUInfo       CPUInfo                `json:"cpu"`
	Memory        MemoryInfo             `json:"memory"`
	Hardware      models.SystemProfile   `json:"hardware"`
	Database      DatabaseHealth         `json:"database"`
	Breakers      []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
	OpenCircuits  []string               `json:"open_circuits,omitempty"`
	Encoders      []EncoderProcessStatus `json:"encoder_processes,omitempty"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzOutput is the output for the readiness probe.
type ReadyzOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including queue, breaker, and system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Description: "Returns ok while the process is serving requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Returns ready when the database responds and the service accepts jobs",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// GetLivez returns liveness.
func (h *HealthHandler) GetLivez(ctx context.Context, input *HealthInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetReadyz returns readiness: the database must respond and the service
// must be accepting submissions.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *HealthInput) (*ReadyzOutput, error) {
	out := &ReadyzOutput{}
	out.Body.Status = "ready"
	out.Body.Components = map[string]string{}

	if h.db == nil {
		out.Body.Status = "not_ready"
		out.Body.Components["database"] = "not_configured"
	} else if err := h.db.Ping(ctx); err != nil {
		out.Body.Status = "not_ready"
		out.Body.Components["database"] = "error"
	} else {
		out.Body.Components["database"] = "ok"
	}

	if h.jobService != nil && h.jobService.Draining() {
		out.Body.Status = "not_ready"
		out.Body.Components["jobs"] = "draining"
	} else {
		out.Body.Components["jobs"] = "ok"
	}

	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPUInfo:       h.getCPUInfo(),
		Memory:        h.getMemoryInfo(),
		Hardware:      h.profile,
		Database:      h.getDatabaseHealth(ctx),
	}

	if h.jobService != nil {
		resp.Jobs = h.jobService.GetStats()
		resp.Draining = h.jobService.Draining()
		if resp.Draining {
			resp.Status = "draining"
		}
	}

	if h.breakers != nil {
		stats := h.breakers.AllStats()
		resp.Breakers = make([]CircuitBreakerStatus, 0, len(stats))
		for provider, s := range stats {
			resp.Breakers = append(resp.Breakers, CircuitBreakerStatus{
				Provider: provider,
				State:    s.State,
				Failures: s.Failures,
			})
		}
		resp.OpenCircuits = h.breakers.OpenCircuits()
	}

	if h.sup != nil {
		entries := h.sup.Entries()
		resp.Encoders = make([]EncoderProcessStatus, 0, len(entries))
		for _, e := range entries {
			resp.Encoders = append(resp.Encoders, EncoderProcessStatus{
				Name:     e.Name,
				PID:      e.PID,
				JobID:    e.Metadata.JobID,
				Running:  e.Running(),
				ExitCode: e.ExitCode,
			})
		}
	}

	if resp.Database.Status == "error" {
		resp.Status = "degraded"
	}

	return &HealthOutput{Body: resp}, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.ProcessMemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}
	if children, err := proc.Children(); err == nil {
		info.ChildProcessCount = len(children)
	}
	return info
}

// getDatabaseHealth pings the database and reports response time.
func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "unknown"}
	}

	health := DatabaseHealth{
		Status: "ok",
		Driver: h.db.Driver(),
	}
	start := time.Now()
	err := h.db.Ping(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}
	return health
}
