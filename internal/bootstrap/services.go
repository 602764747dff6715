package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/adapters/graphclient"
	"github.com/target/refresh-orchestrator/internal/adapters/identity"
	"github.com/target/refresh-orchestrator/internal/adapters/queryclient"
	"github.com/target/refresh-orchestrator/internal/core"
	"github.com/target/refresh-orchestrator/internal/data"
	"github.com/target/refresh-orchestrator/internal/observability/notify/email"
	"github.com/target/refresh-orchestrator/internal/observability/notify/pagerduty"
	"github.com/target/refresh-orchestrator/internal/observability/notify/slack"
	"github.com/target/refresh-orchestrator/internal/observability/statsd"
	"github.com/target/refresh-orchestrator/internal/service"
	"github.com/target/refresh-orchestrator/internal/service/runnotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Parameters      *service.ParameterService
	Dispatcher      *service.QueryDispatcher
	Initiator       *service.RefreshInitiator
	Finisher        *service.RefreshFinisher
	Orchestrator    *service.RefreshOrchestrator
	Runs            core.RunRepository
	FireLocks       *data.RedisFireLocker
	TriggerVerifier core.TriggerVerifier
	Observability   ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	Notifier       *runnotifier.Service
	NotifierConfig config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Context     context.Context
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// Optional: overrides the graph and query service clients.
	Graph   core.GraphService
	Queries core.QueryService
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs       *data.RefreshJobRepo
	Orgs       *data.OrganizationRepo
	Runs       *data.RunRepo
	Parameters *data.ParameterRepo
	Executions *data.ExecutionRepo
	FireLocks  *data.RedisFireLocker
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, appBaseURL string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	metricsSink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		metricsSink, _ = statsd.NewClient(statsd.Config{Logger: obsLogger})
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		Notifier:       buildRunNotifier(obsLogger, cfg.Notifications, appBaseURL, metricsSink),
		NotifierConfig: cfg.Notifications,
	}
}

// buildRunNotifier registers one sink per enabled channel. A notifier without sinks only logs.
func buildRunNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	appBaseURL string,
	metrics statsd.Sink,
) *runnotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return runnotifier.NewService(runnotifier.Options{
			Logger:  baseLogger,
			Metrics: metrics,
		})
	}

	sinks := make([]runnotifier.SinkRegistration, 0, 3)

	if cfg.Slack.Enabled {
		sinks = append(sinks, runnotifier.SinkRegistration{
			Name: "slack",
			Sink: slack.NewClient(slack.Config{
				AllowedDomains: cfg.Slack.AllowedDomains,
				AppBaseURL:     appBaseURL,
				Username:       cfg.Slack.Username,
				Timeout:        cfg.Timeout,
				RetryLimit:     cfg.RetryLimit,
			}),
		})
	}

	if cfg.Email.Enabled {
		client, err := email.NewClient(email.Config{
			Host:       cfg.Email.Host,
			Port:       cfg.Email.Port,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			From:       cfg.Email.From,
			AppBaseURL: appBaseURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise email notifier", "error", err)
		} else {
			sinks = append(sinks, runnotifier.SinkRegistration{Name: "email", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Severity:   cfg.PagerDuty.Severity,
			AppBaseURL: appBaseURL,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, runnotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return runnotifier.NewService(runnotifier.Options{
		Logger:  baseLogger,
		Metrics: metrics,
		Sinks:   sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, rdb redis.UniversalClient) *serviceRepositories {
	repos := &serviceRepositories{
		Jobs:       data.NewRefreshJobRepo(db),
		Orgs:       data.NewOrganizationRepo(db),
		Runs:       data.NewRunRepo(db),
		Parameters: data.NewParameterRepo(db),
		Executions: data.NewExecutionRepo(db),
	}
	if rdb != nil {
		repos.FireLocks = data.NewRedisFireLocker(rdb)
	}
	return repos
}

// buildCollaborators creates the graph and query service clients sharing one authenticated HTTP client.
func buildCollaborators(ctx context.Context, cfg *config.AppConfig) (*graphclient.Client, *queryclient.Client, error) {
	hc := identity.NewHTTPClient(ctx, cfg.ServiceIdentity)

	graph, err := graphclient.New(cfg.GraphService, hc)
	if err != nil {
		return nil, nil, fmt.Errorf("create graph service client: %w", err)
	}
	queries, err := queryclient.New(cfg.QueryService, hc)
	if err != nil {
		return nil, nil, fmt.Errorf("create query service client: %w", err)
	}
	return graph, queries, nil
}

// DomainServicesOptions groups dependencies for building domain services.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Graph         core.GraphService
	Queries       core.QueryService
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	repos := opts.Repos
	metrics := opts.Observability.MetricsSink
	orchCfg := opts.Config.Orchestrator
	orchCfg.Sanitize()

	params, err := service.NewParameterService(service.ParameterServiceOptions{
		Repo:   repos.Parameters,
		Logger: opts.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create parameter service: %w", err)
	}

	dispatcher, err := service.NewQueryDispatcher(service.QueryDispatcherOptions{
		Executions: repos.Executions,
		Queries:    opts.Queries,
		Logger:     opts.Logger,
		Metrics:    metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create query dispatcher: %w", err)
	}

	initiator, err := service.NewRefreshInitiator(service.RefreshInitiatorOptions{
		Deps: service.InitiatorDeps{
			Jobs:       repos.Jobs,
			Runs:       repos.Runs,
			Graph:      opts.Graph,
			Params:     params,
			Dispatcher: dispatcher,
		},
		Concurrency: orchCfg.Concurrency,
		Logger:      opts.Logger,
		Metrics:     metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create refresh initiator: %w", err)
	}

	finisher, err := service.NewRefreshFinisher(service.RefreshFinisherOptions{
		Deps: service.FinisherDeps{
			Jobs:       repos.Jobs,
			Orgs:       repos.Orgs,
			Runs:       repos.Runs,
			Graph:      opts.Graph,
			Params:     params,
			Dispatcher: dispatcher,
			Notifier:   opts.Observability.Notifier,
		},
		RunTimeout:  orchCfg.RunTimeout,
		Concurrency: orchCfg.Concurrency,
		Logger:      opts.Logger,
		Metrics:     metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create refresh finisher: %w", err)
	}

	orchDeps := service.OrchestratorDeps{
		Jobs:      repos.Jobs,
		Orgs:      repos.Orgs,
		Runs:      repos.Runs,
		Initiator: initiator,
		Finisher:  finisher,
		Notifier:  opts.Observability.Notifier,
	}
	if repos.FireLocks != nil {
		orchDeps.Locker = repos.FireLocks
	}
	orchestrator, err := service.NewRefreshOrchestrator(service.RefreshOrchestratorOptions{
		Deps:    orchDeps,
		Config:  orchCfg,
		Logger:  opts.Logger,
		Metrics: metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create refresh orchestrator: %w", err)
	}

	return ServiceContainer{
		Parameters:    params,
		Dispatcher:    dispatcher,
		Initiator:     initiator,
		Finisher:      finisher,
		Orchestrator:  orchestrator,
		Runs:          repos.Runs,
		FireLocks:     repos.FireLocks,
		Observability: opts.Observability,
	}, nil
}

// NewServices creates all application services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	graph, queries := deps.Graph, deps.Queries
	if graph == nil || queries == nil {
		graphClient, queryClient, err := buildCollaborators(ctx, deps.Config)
		if err != nil {
			return ServiceContainer{}, err
		}
		if graph == nil {
			graph = graphClient
		}
		if queries == nil {
			queries = queryClient
		}
	}

	services, err := buildDomainServices(&DomainServicesOptions{
		Repos:         buildRepositories(deps.DB, deps.RedisClient),
		Graph:         graph,
		Queries:       queries,
		Observability: buildObservability(logger, deps.Config.Observability, deps.Config.HTTP.BaseURL),
		Config:        deps.Config,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	verifier, err := BuildTriggerVerifier(ctx, TriggerVerifierConfig{
		Auth:   deps.Config.TriggerAuth,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}
	services.TriggerVerifier = verifier

	return services, nil
}
