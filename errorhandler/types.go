package errorhandler

import (
	"context"
)

// ActionType is what the worker does with a record that could not be
// delivered.
type ActionType int

const (
	// ActionTypeContinue drops the record and still commits its offset.
	ActionTypeContinue ActionType = iota
	// ActionTypeRetry serialises and sends the record again.
	ActionTypeRetry
	// ActionTypeFail stops the worker. The record's offset is never committed.
	ActionTypeFail
	// ActionTypeSendToDLQ forwards the record to a dead letter topic and
	// commits its offset once that send succeeds.
	ActionTypeSendToDLQ
)

// String returns the label used in logs and metrics.
func (a ActionType) String() string {
	switch a {
	case ActionTypeContinue:
		return "continue"
	case ActionTypeRetry:
		return "retry"
	case ActionTypeFail:
		return "fail"
	case ActionTypeSendToDLQ:
		return "dlq"
	default:
		return "unknown"
	}
}

var (
	_ Action = ActionContinue{}
	_ Action = ActionRetry{}
	_ Action = ActionFail{}
	_ Action = ActionSendToDLQ{}
)

type Action interface {
	Type() ActionType
}

type ActionContinue struct{}

func (ActionContinue) Type() ActionType { return ActionTypeContinue }

type ActionRetry struct{}

func (ActionRetry) Type() ActionType { return ActionTypeRetry }

type ActionFail struct{}

func (ActionFail) Type() ActionType { return ActionTypeFail }

type ActionSendToDLQ struct {
	topic string
}

// SendToDLQ routes the failed record to topic.
func SendToDLQ(topic string) ActionSendToDLQ {
	return ActionSendToDLQ{topic: topic}
}

func (ActionSendToDLQ) Type() ActionType { return ActionTypeSendToDLQ }

func (a ActionSendToDLQ) Topic() string {
	return a.topic
}

// Handler decides how to proceed after delivering a source record failed.
// Handle may block, for example to back off before a retry, and must
// return once ctx is done.
type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}
