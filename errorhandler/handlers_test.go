//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	mocklogger "github.com/hugolhafner/go-connect/logger/mock"
	"github.com/hugolhafner/go-connect/record"
	"github.com/stretchr/testify/require"
)

func TestLogAndContinue(t *testing.T) {
	t.Parallel()
	var testErr = errors.New("send failed")

	tests := []struct {
		name string
		err  error
	}{
		{"simple error", testErr},
		{"nil error", nil},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ec := errorhandler.NewErrorContext(record.SourceRecord{}, nil)

				l := mocklogger.New()
				h := errorhandler.LogAndContinue(l)
				action := h.Handle(context.Background(), ec.WithError(tt.err))

				require.Equal(t, errorhandler.ActionContinue{}, action)
				l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error delivering record, skipping")
			},
		)
	}
}

func TestLogAndFail(t *testing.T) {
	t.Parallel()
	var testErr = errors.New("send failed")

	tests := []struct {
		name string
		err  error
	}{
		{"simple error", testErr},
		{"nil error", nil},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ec := errorhandler.NewErrorContext(record.SourceRecord{}, nil)

				l := mocklogger.New()
				h := errorhandler.LogAndFail(l)
				action := h.Handle(context.Background(), ec.WithError(tt.err))

				require.Equal(t, errorhandler.ActionFail{}, action)
				l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error delivering record, failing")
			},
		)
	}
}

func TestWithMaxAttempts(t *testing.T) {
	t.Parallel()
	t.Run(
		"should call fallback after max attempts", func(t *testing.T) {
			t.Parallel()
			var testErr = errors.New("send failed")
			var maxAttempts = 3

			ec := errorhandler.NewErrorContext(record.SourceRecord{}, testErr)

			fallbackCalled := false
			fallback := errorhandler.HandlerFunc(
				func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
					fallbackCalled = true
					return errorhandler.ActionFail{}
				},
			)

			h := errorhandler.WithMaxAttempts(
				maxAttempts,
				backoff.NewFixed(0),
				fallback,
			)

			for i := 1; i < maxAttempts; i++ {
				action := h.Handle(context.Background(), ec.WithAttempt(i))
				require.False(t, fallbackCalled, "fallback should not be called yet on attempt %d", i)
				require.Equal(t, errorhandler.ActionRetry{}, action)
			}

			action := h.Handle(context.Background(), ec.WithAttempt(maxAttempts+1))
			require.True(t, fallbackCalled, "fallback should have been called")
			require.Equal(t, errorhandler.ActionFail{}, action)
		},
	)

	t.Run(
		"should wait on attempts", func(t *testing.T) {
			t.Parallel()
			var testErr = errors.New("send failed")
			var maxAttempts = 3

			ec := errorhandler.NewErrorContext(record.SourceRecord{}, testErr)

			fallbackCalled := false
			fallback := errorhandler.HandlerFunc(
				func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
					fallbackCalled = true
					return errorhandler.ActionFail{}
				},
			)

			h := errorhandler.WithMaxAttempts(
				maxAttempts,
				backoff.NewFixed(100*time.Millisecond),
				fallback,
			)

			start := time.Now()
			action := h.Handle(context.Background(), ec.WithAttempt(2))
			elapsed := time.Since(start)

			require.False(t, fallbackCalled, "fallback should not be called yet")
			require.Equal(t, errorhandler.ActionRetry{}, action)
			require.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "should have waited on retry attempt")
		},
	)

	t.Run(
		"should respect context cancellation", func(t *testing.T) {
			t.Parallel()
			var testErr = errors.New("send failed")
			var maxRetries = 3

			ec := errorhandler.NewErrorContext(record.SourceRecord{}, testErr)

			fallbackCalled := false
			fallback := errorhandler.HandlerFunc(
				func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
					fallbackCalled = true
					return errorhandler.ActionFail{}
				},
			)

			h := errorhandler.WithMaxAttempts(
				maxRetries,
				backoff.NewFixed(time.Millisecond),
				fallback,
			)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			action := h.Handle(ctx, ec)
			require.False(t, fallbackCalled, "fallback should not be called yet")
			require.Equal(
				t, errorhandler.ActionFail{}, action, "expected ActionTypeFail on context cancellation, got: %v",
				action.Type().String(),
			)
		},
	)
}

func TestWithMaxAttempts_NilFallbackFails(t *testing.T) {
	t.Parallel()
	h := errorhandler.WithMaxAttempts(1, backoff.NewFixed(0), nil)

	action := h.Handle(context.Background(), errorhandler.NewErrorContext(record.SourceRecord{}, nil))
	require.Equal(t, errorhandler.ActionFail{}, action)
}

func TestWithDLQ(t *testing.T) {
	t.Parallel()

	t.Run(
		"continue becomes dead letter", func(t *testing.T) {
			t.Parallel()
			h := errorhandler.WithDLQ("connect-dlq", actionHandler(errorhandler.ActionContinue{}))

			action := h.Handle(context.Background(), errorhandler.NewErrorContext(record.SourceRecord{}, nil))
			require.Equal(t, errorhandler.ActionTypeSendToDLQ, action.Type())

			dlq, ok := action.(errorhandler.ActionSendToDLQ)
			require.True(t, ok)
			require.Equal(t, "connect-dlq", dlq.Topic())
		},
	)

	t.Run(
		"nil inner sends to dead letter", func(t *testing.T) {
			t.Parallel()
			h := errorhandler.WithDLQ("connect-dlq", nil)

			action := h.Handle(context.Background(), errorhandler.NewErrorContext(record.SourceRecord{}, nil))
			require.Equal(t, errorhandler.ActionTypeSendToDLQ, action.Type())
		},
	)

	t.Run(
		"fail passes through", func(t *testing.T) {
			t.Parallel()
			h := errorhandler.WithDLQ("connect-dlq", actionHandler(errorhandler.ActionFail{}))

			action := h.Handle(context.Background(), errorhandler.NewErrorContext(record.SourceRecord{}, nil))
			require.Equal(t, errorhandler.ActionFail{}, action)
		},
	)
}

func TestActionLogger(t *testing.T) {
	t.Parallel()
	l := mocklogger.New()
	h := errorhandler.ActionLogger(l, logger.WarnLevel, actionHandler(errorhandler.ActionRetry{}))

	ec := errorhandler.NewErrorContext(record.SourceRecord{Topic: "orders"}, errors.New("broker down")).
		WithPhase(errorhandler.PhaseProduction)
	action := h.Handle(context.Background(), ec)

	require.Equal(t, errorhandler.ActionRetry{}, action)
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Error handler decision")

	v, ok := l.Value("Error handler decision", "action")
	require.True(t, ok)
	require.Equal(t, "retry", v)

	v, ok = l.Value("Error handler decision", "phase")
	require.True(t, ok)
	require.Equal(t, "production", v)
}

func TestSendToDLQ(t *testing.T) {
	h := errorhandler.HandlerFunc(
		func(_ context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
			if ec.Phase == errorhandler.PhaseSerde {
				return errorhandler.SendToDLQ("poison-" + ec.Record.Topic)
			}
			return errorhandler.ActionFail{}
		},
	)

	ec := errorhandler.NewErrorContext(record.SourceRecord{Topic: "orders"}, errors.New("bad value")).
		WithPhase(errorhandler.PhaseSerde)
	action := h.Handle(context.Background(), ec)

	dlq, ok := action.(errorhandler.ActionSendToDLQ)
	require.True(t, ok)
	require.Equal(t, "poison-orders", dlq.Topic())
	require.Equal(t, "dlq", dlq.Type().String())
}
