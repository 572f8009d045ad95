package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/freehub/internal/logger"
)

// Processor runs the asynq server that drains the alerts queue.
type Processor struct {
	server *asynq.Server
	log    *logger.Logger
}

func NewProcessor(redisAddr string, log *logger.Logger) *Processor {
	log = log.With("component", "alerts.processor")
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{QueueAlerts: 5},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			log.Warn("task failed", "type", t.Type(), "error", err)
		}),
	})
	return &Processor{server: server, log: log}
}

// Mux routes task types to handlers.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTransition, p.HandleTransition)
	return mux
}

// Start begins processing in the background.
func (p *Processor) Start() error {
	if err := p.server.Start(p.Mux()); err != nil {
		return fmt.Errorf("starting alerts processor: %w", err)
	}
	p.log.Info("alerts processor started")
	return nil
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

// HandleTransition delivers a transition notice. Delivery is a structured
// log line until a push or mail channel exists.
func (p *Processor) HandleTransition(_ context.Context, t *asynq.Task) error {
	var payload TransitionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads will never succeed.
		return fmt.Errorf("decoding %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	p.log.Info("notify",
		"recipient_id", payload.RecipientID,
		"service_id", payload.ServiceID,
		"event", payload.Event,
		"message", payload.Summary())
	return nil
}
