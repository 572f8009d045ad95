package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue is a marketplace.Notifier that hands notices to asynq.
type Queue struct {
	client Enqueuer
	log    *logger.Logger
	now    func() time.Time
}

var _ marketplace.Notifier = (*Queue)(nil)

// NewQueue connects an asynq client to redisAddr.
func NewQueue(redisAddr string, log *logger.Logger) *Queue {
	return NewQueueWithClient(asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}), log)
}

func NewQueueWithClient(client Enqueuer, log *logger.Logger) *Queue {
	return &Queue{client: client, log: log.With("component", "alerts"), now: time.Now}
}

// NewTransitionTask encodes a notification as an asynq task.
func NewTransitionTask(n marketplace.Notification, sentAt time.Time) (*asynq.Task, error) {
	payload := TransitionPayload{
		Event:       string(n.Event),
		ServiceID:   n.ServiceID,
		Title:       n.Title,
		ActorID:     n.ActorID,
		RecipientID: n.RecipientID,
		Status:      string(n.Status),
		Price:       n.Price,
		SentAt:      sentAt,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding transition payload: %w", err)
	}
	return asynq.NewTask(TaskTransition, b, asynq.MaxRetry(5)), nil
}

// Notify enqueues the notice on the alerts queue.
func (q *Queue) Notify(ctx context.Context, n marketplace.Notification) error {
	task, err := NewTransitionTask(n, q.now().UTC())
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskTransition, err)
	}
	q.log.Debug("notice enqueued", "task_id", info.ID, "service_id", n.ServiceID, "event", n.Event)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

