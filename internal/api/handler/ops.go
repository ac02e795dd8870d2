// Package handler provides HTTP handlers for the cyclemaps API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker/v2"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/api/response"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/provider/resilience"
)

const readinessTimeout = 2 * time.Second

// OpsConfig holds the dependencies for the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// DB is pinged by the readiness check. Optional; readiness reports OK
	// without it (in-memory deployments).
	DB *pgxpool.Pool

	// Registry reports circuit breaker health for the status endpoint.
	Registry *resilience.Registry

	// Flags surfaces active degradation flags on the status endpoint.
	Flags *featureflags.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        *pgxpool.Pool
	registry  *resilience.Registry
	flags     *featureflags.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		db:        cfg.DB,
		registry:  cfg.Registry,
		flags:     cfg.Flags,
	}
}

// HealthCheck handles GET /healthz - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /readyz - readiness check.
// Reports FAIL with a 503 when the database does not answer.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"postgres": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   now,
	}

	postgres := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			detail := err.Error()
			postgres.Status = models.HealthStatusFail
			postgres.Detail = &detail
			status.Status = models.HealthStatusDegraded
		}
	}
	status.Subsystems = append(status.Subsystems, postgres)

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(ph, &status.Status))
		}
	}

	if h.flags != nil {
		status.ActiveDegradationFlags = activeDegradationFlags(r.Context(), h.flags)
	}

	response.JSON(w, r, http.StatusOK, status)
}

// providerStatus maps circuit breaker state onto the API health vocabulary.
// An open breaker degrades the overall status.
func providerStatus(ph *resilience.ProviderHealth, overall *models.HealthStatus) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider: ph.Name,
		Status:   models.HealthStatusOK,
	}
	switch ph.CircuitState {
	case gobreaker.StateHalfOpen:
		ps.Status = models.HealthStatusDegraded
	case gobreaker.StateOpen:
		ps.Status = models.HealthStatusFail
		if *overall == models.HealthStatusOK {
			*overall = models.HealthStatusDegraded
		}
	}
	if ph.LastSuccessAt != nil {
		ts := models.Timestamp(*ph.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if ph.LastFailureAt != nil {
		ts := models.Timestamp(*ph.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// activeDegradationFlags lists the degradation flags currently switched on.
func activeDegradationFlags(ctx context.Context, flags *featureflags.Service) []string {
	var active []string
	if flags.IsSurfaceLookupDisabled(ctx) {
		active = append(active, featureflags.FlagDisableSurfaceLookup)
	}
	if flags.IsCachedOnlyElevation(ctx) {
		active = append(active, featureflags.FlagCachedOnlyElevation)
	}
	if flags.IsProfileBackfillDisabled(ctx) {
		active = append(active, featureflags.FlagDisableProfileBackfill)
	}
	if flags.IsBikeOnlyRouting(ctx) {
		active = append(active, featureflags.FlagRoutingBikeOnly)
	}
	return active
}
