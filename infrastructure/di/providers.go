package di

import (
	"context"
	"fmt"
	"net/http"

	supa "github.com/supabase-community/supabase-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/application/session"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/config"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/messaging/eventbridge"
	dynamostore "github.com/Itzadetunji/mind-map-sub001/infrastructure/persistence/dynamodb"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/persistence/memory"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/persistence/resilient"
	supastore "github.com/Itzadetunji/mind-map-sub001/infrastructure/persistence/supabase"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/http/rest"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/http/rest/handlers"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/websocket"
	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
	"github.com/Itzadetunji/mind-map-sub001/pkg/observability"
)

const serviceName = "mindmap-editor"

// ProvideLogLevel parses the configured level into an atomic level so it can
// be changed on config reload.
func ProvideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return level, nil
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideMetrics returns nil when metrics are disabled.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("mindmap")
}

// ProvideTracer returns a tracer from the global provider, which main
// replaces with the OTLP provider before the container is built. Flush spans
// are not recorded at all when tracing is off.
func ProvideTracer(cfg *config.Config) trace.Tracer {
	if !cfg.Tracing.Enabled {
		return observability.NoopTracer()
	}
	return otel.Tracer(serviceName)
}

// ProvideSupabaseClient returns nil when no Supabase project is configured.
func ProvideSupabaseClient(cfg *config.Config) (*supa.Client, error) {
	if cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "" {
		return nil, nil
	}
	return supastore.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
}

// ProvideProjectStore builds the configured store, wrapped in a circuit
// breaker when enabled. A seed file is loaded into the memory store, or
// written to DynamoDB for local tables.
func ProvideProjectStore(ctx context.Context, cfg *config.Config, client *supa.Client, logger *zap.Logger) (ports.ProjectStore, error) {
	var seed []*project.Project
	if cfg.Store.SeedFile != "" {
		projects, err := memory.ReadSeedFile(cfg.Store.SeedFile)
		if err != nil {
			return nil, err
		}
		seed = projects
	}

	var store ports.ProjectStore

	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = memory.NewProjectStore(seed...)
		logger.Info("Using in-memory project store", zap.Int("seeded", len(seed)))

	case config.DriverSupabase:
		if client == nil {
			return nil, fmt.Errorf("supabase store selected without supabase credentials")
		}
		store = supastore.NewProjectStore(client, cfg.Supabase.ProjectsTable, logger)

	case config.DriverDynamoDB:
		dynamo, err := dynamostore.NewClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, err
		}
		ddb := dynamostore.NewProjectStore(dynamo, cfg.DynamoDB.Table, logger)
		if err := seedDynamoDB(ctx, ddb, seed, logger); err != nil {
			return nil, err
		}
		store = ddb

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if !cfg.Store.CircuitBreaker {
		return store, nil
	}
	settings := resilient.DefaultSettings(cfg.Store.Driver + "-project-store")
	settings.CallTimeout = cfg.Store.Timeout
	return resilient.NewProjectStore(store, settings, logger), nil
}

func seedDynamoDB(ctx context.Context, store *dynamostore.ProjectStore, seed []*project.Project, logger *zap.Logger) error {
	created := 0
	for _, p := range seed {
		err := store.CreateProject(ctx, p)
		switch {
		case err == nil:
			created++
		case pkgerrors.IsConflict(err):
			// already seeded
		default:
			return fmt.Errorf("failed to seed project %s: %w", p.ID, err)
		}
	}
	if len(seed) > 0 {
		logger.Info("Seeded DynamoDB projects", zap.Int("created", created), zap.Int("total", len(seed)))
	}
	return nil
}

// ProvideHub creates the save-status hub. It is started by main.
func ProvideHub(metrics *observability.Collector, logger *zap.Logger) *websocket.Hub {
	if metrics == nil {
		return websocket.NewHub(logger, nil)
	}
	return websocket.NewHub(logger, metrics)
}

// ProvideBroadcaster sends session save outcomes to the hub.
func ProvideBroadcaster(hub *websocket.Hub, logger *zap.Logger) *websocket.Broadcaster {
	return websocket.NewBroadcaster(hub, logger)
}

// ProvideEventPublisher returns nil when save events are disabled. It is
// started by main.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*eventbridge.Publisher, error) {
	if !cfg.Events.Enabled {
		return nil, nil
	}
	region := cfg.Events.Region
	if region == "" {
		region = cfg.DynamoDB.Region
	}
	client, err := eventbridge.NewClient(ctx, region, cfg.Events.Endpoint)
	if err != nil {
		return nil, err
	}
	return eventbridge.NewPublisher(client, cfg.Events.BusName, cfg.Events.Source, cfg.Events.Buffer, logger), nil
}

// ProvideSaveNotifier fans save outcomes out to websocket clients and, when
// enabled, EventBridge.
func ProvideSaveNotifier(broadcaster *websocket.Broadcaster, publisher *eventbridge.Publisher) ports.SaveNotifier {
	if publisher == nil {
		return broadcaster
	}
	return ports.Notifiers{broadcaster, publisher}
}

// SessionSettings maps configuration onto session settings.
func SessionSettings(cfg *config.Config) session.Settings {
	return session.Settings{
		AutosaveDelay: cfg.Autosave.Delay,
		HistoryLimit:  cfg.History.Limit,
		IdleTimeout:   cfg.Session.IdleTimeout,
	}
}

// ProvideSessionManager creates the manager that owns open sessions.
func ProvideSessionManager(
	cfg *config.Config,
	store ports.ProjectStore,
	notifier ports.SaveNotifier,
	metrics *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *session.Manager {
	opts := []session.ManagerOption{
		session.WithNotifier(notifier),
		session.WithTracer(tracer),
	}
	if metrics != nil {
		opts = append(opts, session.WithMetrics(metrics))
	}
	return session.NewManager(store, SessionSettings(cfg), logger, opts...)
}

// ProvideErrorHandler includes stack traces in development responses.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideSessionHandler creates the REST handler for editor sessions.
func ProvideSessionHandler(cfg *config.Config, manager *session.Manager, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *handlers.SessionHandler {
	return handlers.NewSessionHandler(manager, errs, logger, cfg.Graph.StrictValidation)
}

// ProvideVerifier returns nil when authentication is disabled.
func ProvideVerifier(cfg *config.Config, client *supa.Client) (auth.Verifier, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}
	if cfg.Auth.VerifyWithSupabase {
		if client == nil {
			return nil, fmt.Errorf("supabase token verification requires supabase credentials")
		}
		return auth.NewSupabaseVerifier(client), nil
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	})
	if err != nil {
		return nil, err
	}
	return validator, nil
}

// ProvideWebSocketServer serves the per-session save-status stream.
func ProvideWebSocketServer(
	cfg *config.Config,
	hub *websocket.Hub,
	manager *session.Manager,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *websocket.Server {
	wsConfig := websocket.DefaultServerConfig()
	wsConfig.AllowedOrigins = cfg.CORS.AllowedOrigins
	if cfg.Session.MaxSockets > 0 {
		wsConfig.MaxConnections = cfg.Session.MaxSockets
	}

	authorize := func(sessionID, userID string) error {
		_, err := manager.Get(sessionID, userID)
		return err
	}
	return websocket.NewServer(hub, authorize, wsConfig, errs, logger)
}

// ProvideHTTPHandler assembles the router.
func ProvideHTTPHandler(
	cfg *config.Config,
	sessions *handlers.SessionHandler,
	errs *pkgerrors.ErrorHandler,
	verifier auth.Verifier,
	metrics *observability.Collector,
	store ports.ProjectStore,
	wsServer *websocket.Server,
	logger *zap.Logger,
) http.Handler {
	checks := map[string]ports.HealthChecker{}
	if hc, ok := store.(ports.HealthChecker); ok {
		checks["project_store"] = hc
	}

	router := rest.NewRouter(sessions, errs, rest.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Verifier:       verifier,
		Metrics:        metrics,
		Checks:         checks,
		WebSocket:      wsServer,
	}, logger)
	return router.Setup()
}
