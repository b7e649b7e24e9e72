package websocket

import (
	"time"

	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/application/ports"
)

// Event types written to clients.
const (
	EventConnectionEstablished = "CONNECTION_ESTABLISHED"
	EventSaveSucceeded         = "SAVE_SUCCEEDED"
	EventSaveFailed            = "SAVE_FAILED"
	EventSessionClosed         = "SESSION_CLOSED"
)

// Broadcaster turns save outcomes into hub messages.
type Broadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

var _ ports.SaveNotifier = (*Broadcaster)(nil)

func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, logger: logger}
}

// SaveSucceeded implements ports.SaveNotifier.
func (b *Broadcaster) SaveSucceeded(sessionID string, result autosave.Result) {
	b.send(sessionID, EventSaveSucceeded, map[string]interface{}{
		"project_id":  result.ProjectID,
		"changed":     result.Changes.Fields(),
		"diff":        result.Diff,
		"saved_at":    result.SavedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// SaveFailed implements ports.SaveNotifier.
func (b *Broadcaster) SaveFailed(sessionID string, err error) {
	b.send(sessionID, EventSaveFailed, map[string]interface{}{
		"error":     err.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// SessionClosed implements ports.SaveNotifier. Clients are disconnected
// after the event is delivered.
func (b *Broadcaster) SessionClosed(sessionID string) {
	data := map[string]interface{}{
		"closed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	b.report(sessionID, EventSessionClosed, b.hub.CloseSession(sessionID, EventSessionClosed, data))
}

func (b *Broadcaster) send(sessionID, eventType string, data interface{}) {
	b.report(sessionID, eventType, b.hub.SendToSession(sessionID, eventType, data))
}

func (b *Broadcaster) report(sessionID, eventType string, err error) {
	if err != nil {
		b.logger.Warn("Failed to broadcast event",
			zap.String("sessionID", sessionID),
			zap.String("eventType", eventType),
			zap.Error(err),
		)
		return
	}
	b.logger.Debug("Event broadcasted",
		zap.String("sessionID", sessionID),
		zap.String("eventType", eventType),
	)
}
