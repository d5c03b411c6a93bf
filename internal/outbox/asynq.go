package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maauso/clipline/internal/persistence"
)

// TypeDeliverIntent is the asynq task type carrying an Intent.
const TypeDeliverIntent = "outbox:deliver"

// AsynqOutbox publishes intents as Redis-backed asynq tasks.
type AsynqOutbox struct {
	client   *asynq.Client
	maxRetry int
}

// NewAsynqOutbox creates a publisher on top of an asynq client.
func NewAsynqOutbox(client *asynq.Client, maxRetry int) *AsynqOutbox {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &AsynqOutbox{client: client, maxRetry: maxRetry}
}

// NewTask encodes an intent as an asynq task.
func NewTask(in Intent, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal intent: %w", err)
	}
	return asynq.NewTask(TypeDeliverIntent, payload,
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(in.ID),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// Publish enqueues the intent. An intent whose ID is already queued is
// treated as delivered.
func (o *AsynqOutbox) Publish(ctx context.Context, in Intent) error {
	task, err := NewTask(in, o.maxRetry)
	if err != nil {
		return err
	}
	if _, err := o.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("outbox: enqueue %s: %w", in.ID, err)
	}
	return nil
}

// Handler delivers asynq intent tasks to a saver.
type Handler struct {
	saver  persistence.Saver
	logger *slog.Logger
}

// NewHandler creates the asynq task handler.
func NewHandler(saver persistence.Saver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{saver: saver, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var in Intent
	if err := json.Unmarshal(t.Payload(), &in); err != nil {
		return fmt.Errorf("outbox: unmarshal intent: %v: %w", err, asynq.SkipRetry)
	}
	if err := Deliver(ctx, h.saver, in); err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		h.logger.Warn("outbox task delivery failed",
			slog.String("intent_id", in.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// NewServeMux routes intent tasks to the handler.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeDeliverIntent, h)
	return mux
}

// Compile-time checks.
var (
	_ Publisher     = (*AsynqOutbox)(nil)
	_ asynq.Handler = (*Handler)(nil)
)
