package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/logger"
)

// LogAndContinue logs error and drops the record
func LogAndContinue(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("error delivering record, skipping", ec.fields()...)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs error and stops the worker
func LogAndFail(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("error delivering record, failing", ec.fields()...)
			return ActionFail{}
		},
	)
}

// SilentFail stops the worker without logging.
func SilentFail() Handler {
	return HandlerFunc(
		func(context.Context, ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// WithMaxAttempts wraps a handler with retry logic
// When the max attempts is reached, the fallback handler is called
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	if fallback == nil {
		fallback = SilentFail()
	}

	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			timer := time.NewTimer(b.Next(uint(ec.Attempt)))
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ActionFail{}
			case <-timer.C:
			}

			return ActionRetry{}
		},
	)
}

// WithDLQ returns SendToDLQ action when inner would Continue
// Useful for: WithMaxAttempts(3, backoff, WithDLQ(topic, inner))
func WithDLQ(topic string, inner Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			var action Action = ActionContinue{}
			if inner != nil {
				action = inner.Handle(ctx, ec)
			}

			if action.Type() == ActionTypeContinue {
				return SendToDLQ(topic)
			}

			return action
		},
	)
}

// ActionLogger logs the action decided by the next handler
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(level, "Error handler decision", append([]any{"action", action.Type().String()}, ec.fields()...)...)
			return action
		},
	)
}
