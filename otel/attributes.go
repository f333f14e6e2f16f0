package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrTaskID       = attribute.Key("connect.task.id")
	AttrPollStatus   = attribute.Key("connect.poll.status")
	AttrCommitStatus = attribute.Key("connect.commit.status")
	AttrSendStatus   = attribute.Key("connect.send.status")
	AttrFlushStatus  = attribute.Key("connect.flush.status")
	AttrErrorAction  = attribute.Key("connect.error.action")
	AttrTopic        = attribute.Key("messaging.destination.name")
)

// Status values
const (
	StatusSuccess   = "success"
	StatusEmpty     = "empty"
	StatusPaused    = "paused"
	StatusSkipped   = "skipped"
	StatusContended = "contended"
	StatusRetriable = "retriable"
	StatusDropped   = "dropped"
	StatusDLQ       = "dlq"
	StatusFailed    = "failed"
	StatusError     = "error"
)
