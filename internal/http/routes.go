package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Orchestrator service.PassRunner
	Initiator    service.Initiator
	Finisher     service.Finisher
	Runs         core.RunRepository
	Parameters   *service.ParameterService
	// Optional: verifies the external scheduler on the orchestration trigger.
	TriggerVerifier core.TriggerVerifier
	// Optional: dependencies probed by /readyz.
	Readiness []ReadinessCheck
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	refresh := &RefreshHandlers{
		Orchestrator: services.Orchestrator,
		Initiator:    services.Initiator,
		Finisher:     services.Finisher,
		Runs:         services.Runs,
		Logger:       logger,
	}
	// Every API route requires the service token when verification is configured.
	auth := RequireTrigger(services.TriggerVerifier, logger)
	registerRefreshRoutes(mux, refresh, auth)
	if services.Parameters != nil {
		registerParameterRoutes(mux, &ParameterHandlers{Svc: services.Parameters}, auth)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Readiness))

	return Logging(logger)(Recover(logger)(mux))
}

type middleware = func(http.Handler) http.Handler

func registerRefreshRoutes(mux *http.ServeMux, h *RefreshHandlers, auth middleware) {
	// Cloud schedulers commonly issue GET, so both methods run a pass.
	orchestrate := auth(http.HandlerFunc(h.Orchestrate))
	mux.Handle("POST /api/v1/refresh-jobs/orchestrations", orchestrate)
	mux.Handle("GET /api/v1/refresh-jobs/orchestrations", orchestrate)

	mux.Handle("POST /api/v1/refresh-jobs/{jobID}/runs", auth(http.HandlerFunc(h.InitiateRun)))
	mux.Handle("GET /api/v1/refresh-jobs/{jobID}/runs/{runID}", auth(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/refresh-jobs/{jobID}/runs/{runID}/finish", auth(http.HandlerFunc(h.FinishRun)))
}

func registerParameterRoutes(mux *http.ServeMux, h *ParameterHandlers, auth middleware) {
	mux.Handle("GET /api/v1/organizations/{orgID}/query-parameters", auth(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/v1/organizations/{orgID}/query-parameters", auth(http.HandlerFunc(h.Put)))
}
