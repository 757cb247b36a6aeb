package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// HubStats is the minimal view of the websocket hub the health check needs.
type HubStats interface {
	ClientCount() int
}

// HealthService provides liveness and readiness information.
type HealthService struct {
	version   string
	buildTime string
	datasets  *DatasetService
	hub       HubStats
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// NewHealthService creates the health service. hub may be nil.
func NewHealthService(version, buildTime string, datasets *DatasetService, hub HubStats, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		datasets:  datasets,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// Check reports the current process and service state.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
		Runtime: map[string]interface{}{
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"goroutines":     runtime.NumGoroutine(),
			"alloc_bytes":    m.Alloc,
			"uptime_seconds": time.Since(s.startTime).Seconds(),
		},
		Services: map[string]interface{}{},
	}
	if s.buildTime != "" {
		status.Runtime["build_time"] = s.buildTime
	}

	if s.datasets != nil {
		status.Services["datasets"] = map[string]interface{}{
			"status":   "up",
			"sessions": s.datasets.SessionCount(),
		}
	}
	if s.hub != nil {
		status.Services["websocket"] = map[string]interface{}{
			"status":  "up",
			"clients": s.hub.ClientCount(),
		}
	}

	return status
}

// VersionInfo returns the build identification block.
func (s *HealthService) VersionInfo() map[string]string {
	info := map[string]string{
		"version":    s.version,
		"go_version": runtime.Version(),
	}
	if s.buildTime != "" {
		info["build_time"] = s.buildTime
	}
	return info
}

// Uptime returns the elapsed time since service start, formatted.
func (s *HealthService) Uptime() string {
	d := time.Since(s.startTime).Round(time.Second)
	return fmt.Sprint(d)
}
