//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/Itzadetunji/mind-map-sub001/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideMetrics,
	ProvideTracer,
	ProvideSupabaseClient,
	ProvideProjectStore,
	ProvideHub,
	ProvideBroadcaster,
	ProvideEventPublisher,
	ProvideSaveNotifier,
	ProvideSessionManager,
	ProvideErrorHandler,
	ProvideSessionHandler,
	ProvideVerifier,
	ProvideWebSocketServer,
	ProvideHTTPHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
