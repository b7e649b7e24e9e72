// Package eventbridge publishes editor save events to an EventBridge bus so
// other services can react to saved projects.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/application/ports"
)

// Detail types.
const (
	DetailProjectSaved       = "ProjectSaved"
	DetailProjectSaveFailed  = "ProjectSaveFailed"
	DetailEditorSessionClose = "EditorSessionClosed"
)

const (
	// EventBridge accepts at most 10 entries per PutEvents call.
	batchSize      = 10
	defaultBuffer  = 256
	publishTimeout = 5 * time.Second
)

// API is the subset of the EventBridge client the publisher uses.
type API interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher implements ports.SaveNotifier. Notifications are queued and sent
// in batches by Run, so save callbacks never wait on the network. Entries are
// dropped when the queue is full.
type Publisher struct {
	client  API
	busName string
	source  string
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan types.PutEventsRequestEntry
	done   chan struct{}

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

var _ ports.SaveNotifier = (*Publisher)(nil)

// Stats counts entries by outcome.
type Stats struct {
	Published int64
	Failed    int64
	Dropped   int64
}

// NewClient loads the default AWS config for region. A non-empty endpoint
// points the client at a local emulator.
func NewClient(ctx context.Context, region, endpoint string) (*eventbridge.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return eventbridge.NewFromConfig(cfg, func(o *eventbridge.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewPublisher creates a publisher. A non-positive buffer uses the default.
func NewPublisher(client API, busName, source string, buffer int, logger *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Publisher{
		client:  client,
		busName: busName,
		source:  source,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan types.PutEventsRequestEntry, buffer),
		done:    make(chan struct{}),
	}
}

// SaveSucceeded implements ports.SaveNotifier.
func (p *Publisher) SaveSucceeded(sessionID string, result autosave.Result) {
	p.enqueue(DetailProjectSaved, result.ProjectID, map[string]interface{}{
		"session_id":  sessionID,
		"project_id":  result.ProjectID,
		"changed":     result.Changes.Fields(),
		"diff":        result.Diff,
		"saved_at":    result.SavedAt.UTC().Format(time.RFC3339Nano),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// SaveFailed implements ports.SaveNotifier.
func (p *Publisher) SaveFailed(sessionID string, err error) {
	p.enqueue(DetailProjectSaveFailed, "", map[string]interface{}{
		"session_id": sessionID,
		"error":      err.Error(),
	})
}

// SessionClosed implements ports.SaveNotifier.
func (p *Publisher) SessionClosed(sessionID string) {
	p.enqueue(DetailEditorSessionClose, "", map[string]interface{}{
		"session_id": sessionID,
	})
}

func (p *Publisher) enqueue(detailType, projectID string, detail map[string]interface{}) {
	data, err := json.Marshal(detail)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("detailType", detailType), zap.Error(err))
		return
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.busName),
		Source:       aws.String(p.source),
		DetailType:   aws.String(detailType),
		Detail:       aws.String(string(data)),
		Time:         aws.Time(p.now()),
	}
	if projectID != "" {
		entry.Resources = []string{fmt.Sprintf("arn:aws:mindmap::project/%s", projectID)}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- entry:
	default:
		p.dropped.Add(1)
		p.logger.Warn("Event queue full, dropping event", zap.String("detailType", detailType))
	}
}

// Run sends queued entries until Close is called and the queue is drained.
func (p *Publisher) Run() {
	defer close(p.done)

	for entry := range p.queue {
		batch, open := p.fill([]types.PutEventsRequestEntry{entry})
		p.send(batch)
		if !open {
			return
		}
	}
}

// fill adds whatever is already queued to batch, up to batchSize. It reports
// false once the queue has been closed and emptied.
func (p *Publisher) fill(batch []types.PutEventsRequestEntry) ([]types.PutEventsRequestEntry, bool) {
	for len(batch) < batchSize {
		select {
		case entry, ok := <-p.queue:
			if !ok {
				return batch, false
			}
			batch = append(batch, entry)
		default:
			return batch, true
		}
	}
	return batch, true
}

func (p *Publisher) send(batch []types.PutEventsRequestEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: batch})
	if err != nil {
		p.failed.Add(int64(len(batch)))
		p.logger.Error("Failed to publish events to EventBridge", zap.Int("count", len(batch)), zap.Error(err))
		return
	}

	failed := int64(result.FailedEntryCount)
	if failed > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(batch) {
				p.logger.Error("Failed to publish event",
					zap.String("detailType", aws.ToString(batch[i].DetailType)),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
	}
	p.failed.Add(failed)
	p.published.Add(int64(len(batch)) - failed)

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(batch)),
		zap.String("eventBus", p.busName),
	)
}

// Close stops accepting events and waits for queued ones to be sent, or for
// ctx to end. It is safe to call more than once.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns entry counts.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}
