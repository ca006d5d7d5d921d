package reliability

import (
	"context"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/retry"
	"huddle/pkg/tracing"

	"go.uber.org/zap"
)

// StoreWrapper puts a circuit breaker in front of a MessageStore and traces
// and times every call. Reads are retried with backoff; inserts never are,
// so a message is stored at most once per send.
type StoreWrapper struct {
	store          ports.MessageStore
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	metrics        ports.MetricsRecorder
	logger         *zap.SugaredLogger
}

func NewStoreWrapper(
	store ports.MessageStore,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *StoreWrapper {
	nonRetryable := make([]error, 0, len(retryConfig.NonRetryableErrors)+3)
	nonRetryable = append(nonRetryable, retryConfig.NonRetryableErrors...)
	retryConfig.NonRetryableErrors = append(nonRetryable,
		circuitbreaker.ErrOpen,
		context.Canceled,
		context.DeadlineExceeded,
	)

	w := &StoreWrapper{
		store:          store,
		circuitBreaker: circuitbreaker.New("message_store", cbConfig),
		retryConfig:    retryConfig,
		metrics:        metrics,
		logger:         logger,
	}

	w.circuitBreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		stats := w.circuitBreaker.Stats()
		logger.Warnw("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
			"last_failure", stats.LastFailureTime,
		)
	})

	return w
}

// BreakerState exposes the breaker for health reporting.
func (w *StoreWrapper) BreakerState() circuitbreaker.State {
	return w.circuitBreaker.State()
}

func (w *StoreWrapper) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	return observe(ctx, w, "insert_message", "messages", func(ctx context.Context) (domain.MessageReceipt, error) {
		return circuitbreaker.Do(ctx, w.circuitBreaker, func(ctx context.Context) (domain.MessageReceipt, error) {
			return w.store.InsertMessage(ctx, room, senderID, senderName, content)
		})
	})
}

func (w *StoreWrapper) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	return observe(ctx, w, "count_group_members", "group_members", func(ctx context.Context) (int, error) {
		return withRetry(ctx, w, func(ctx context.Context) (int, error) {
			return w.store.CountGroupMembers(ctx, groupID)
		})
	})
}

func (w *StoreWrapper) CountFriendships(ctx context.Context, userID domain.UserID) (int, error) {
	return observe(ctx, w, "count_friendships", "friendships", func(ctx context.Context) (int, error) {
		return withRetry(ctx, w, func(ctx context.Context) (int, error) {
			return w.store.CountFriendships(ctx, userID)
		})
	})
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (w *StoreWrapper) Ping(ctx context.Context) error {
	_, err := observe(ctx, w, "ping", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.store.Ping(ctx)
	})
	return err
}

func withRetry[T any](ctx context.Context, w *StoreWrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, w.retryConfig, func() (T, error) {
		return circuitbreaker.Do(ctx, w.circuitBreaker, fn)
	})
}

func observe[T any](ctx context.Context, w *StoreWrapper, op, table string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, op, table)
	defer span.End()

	start := time.Now()
	result, err := fn(ctx)
	w.metrics.StoreOperation(op, time.Since(start), err)

	if err != nil {
		tracing.RecordError(ctx, err)
		w.logger.Debugw("store operation failed", "op", op, "error", err)
	}
	return result, err
}
