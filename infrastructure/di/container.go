// Package di wires the editor service together with google/wire.
package di

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/application/session"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/config"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/messaging/eventbridge"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/http/rest/handlers"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/websocket"
	"github.com/Itzadetunji/mind-map-sub001/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	LogLevel       zap.AtomicLevel
	Logger         *zap.Logger
	Metrics        *observability.Collector
	Store          ports.ProjectStore
	Hub            *websocket.Hub
	Events         *eventbridge.Publisher
	Sessions       *session.Manager
	SessionHandler *handlers.SessionHandler
	Handler        http.Handler
}

// ApplyConfig pushes reloadable settings from a new configuration into the
// running services. Sessions already open keep their settings.
func (c *Container) ApplyConfig(cfg *config.Config) {
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		c.LogLevel.SetLevel(level.Level())
	} else {
		c.Logger.Warn("Ignoring invalid log level", zap.String("log_level", cfg.LogLevel))
	}
	c.Sessions.ApplySettings(SessionSettings(cfg))
	c.SessionHandler.SetStrictValidation(cfg.Graph.StrictValidation)
}
