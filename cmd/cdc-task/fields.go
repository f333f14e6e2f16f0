package main

import (
	"github.com/hugolhafner/go-connect/config"
)

const (
	TaskID           = "worker.task.id"
	LogLevel         = "worker.log.level"
	MetricsAddr      = "worker.metrics.addr"
	BootstrapServers = "worker.bootstrap.servers"
	OffsetStore      = "worker.offset.store"
	OffsetTopic      = "worker.offset.topic"
	OffsetBucket     = "worker.offset.bucket"
	NatsURL          = "worker.nats.url"
	DLQTopic         = "worker.errors.deadletterqueue.topic.name"
	RetryAttempts    = "worker.errors.retry.attempts"
	FlushInterval    = "worker.offset.flush.interval.ms"
)

const (
	storeMemory = "memory"
	storeKafka  = "kafka"
	storeNats   = "nats"
)

func workerFields() config.FieldSet {
	return config.FieldSet{
		{Name: TaskID, DisplayName: "Task id", Default: "task-0"},
		{
			Name:        LogLevel,
			DisplayName: "Log level",
			Default:     "info",
			Validator:   config.OneOf("debug", "info", "warn", "error"),
		},
		{Name: MetricsAddr, DisplayName: "Metrics address", Default: ":9100"},
		{
			Name:        BootstrapServers,
			DisplayName: "Bootstrap servers",
			Description: "Comma separated Kafka brokers. Records are logged instead of produced when empty.",
		},
		{
			Name:        OffsetStore,
			DisplayName: "Offset store",
			Default:     storeMemory,
			Validator:   config.OneOf(storeMemory, storeKafka, storeNats),
		},
		{Name: OffsetTopic, DisplayName: "Offset topic", Default: "connect-offsets"},
		{Name: OffsetBucket, DisplayName: "Offset bucket", Default: "connect-offsets"},
		{Name: NatsURL, DisplayName: "NATS url", Default: "nats://127.0.0.1:4222", Secret: true},
		{
			Name:        DLQTopic,
			DisplayName: "Dead letter topic",
			Description: "Records that cannot be delivered are sent here. The task fails on such records when empty.",
		},
		{
			Name:        RetryAttempts,
			DisplayName: "Send attempts",
			Default:     "3",
			Validator:   config.PositiveInteger,
		},
		{
			Name:        FlushInterval,
			DisplayName: "Offset flush interval (ms)",
			Default:     "10000",
			Validator:   config.PositiveInteger,
		},
	}
}
