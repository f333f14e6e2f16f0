package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	connectotel "github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/partition"
	"github.com/hugolhafner/go-connect/record"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Headers added to records routed to a dead letter topic.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorTimestamp    = "x-error-timestamp"
	HeaderErrorAttempt      = "x-error-attempt"
	HeaderErrorPhase        = "x-error-phase"
	HeaderErrorMessage      = "x-error-message"
)

type serdeError struct {
	field string
	err   error
}

func (e *serdeError) Error() string {
	return fmt.Sprintf("serialise %s: %v", e.field, e.err)
}

func (e *serdeError) Unwrap() error {
	return e.err
}

func phaseOf(err error) errorhandler.ErrorPhase {
	var se *serdeError
	if errors.As(err, &se) {
		return errorhandler.PhaseSerde
	}
	return errorhandler.PhaseProduction
}

func convertHeaders(headers []record.Header) []kafka.Header {
	out := make([]kafka.Header, len(headers))
	for i, h := range headers {
		out[i] = kafka.Header{Key: h.Key, Value: h.Value}
	}
	return out
}

func (w *Worker) send(ctx context.Context, rec record.SourceRecord, headers []kafka.Header) error {
	key, err := w.config.KeySerialiser.Serialise(rec.Topic, rec.Key)
	if err != nil {
		return &serdeError{field: "key", err: err}
	}

	value, err := w.config.ValueSerialiser.Serialise(rec.Topic, rec.Value)
	if err != nil {
		return &serdeError{field: "value", err: err}
	}

	start := time.Now()
	err = w.producer.Send(ctx, rec.Topic, key, value, headers)

	status := connectotel.StatusSuccess
	if err != nil {
		status = connectotel.StatusFailed
	}
	w.tel.SendDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(
			semconv.MessagingDestinationName(rec.Topic),
			connectotel.AttrSendStatus.String(status),
		),
	)

	return err
}

func (w *Worker) sendToDLQ(
	ctx context.Context, rec record.SourceRecord, headers []kafka.Header, ec errorhandler.ErrorContext, topic string,
) error {
	key, err := w.config.KeySerialiser.Serialise(rec.Topic, rec.Key)
	if err != nil {
		key = nil
	}

	value, err := w.config.ValueSerialiser.Serialise(rec.Topic, rec.Value)
	if err != nil {
		value = nil
	}

	off, err := json.Marshal(rec.Offset)
	if err != nil {
		return fmt.Errorf("encode offset: %w", err)
	}

	dlqHeaders := make([]kafka.Header, len(headers), len(headers)+7)
	copy(dlqHeaders, headers)
	dlqHeaders = append(
		dlqHeaders,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(rec.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(partition.Key(rec.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: off},
		kafka.Header{Key: HeaderErrorTimestamp, Value: []byte(time.Now().Format(time.RFC3339))},
		kafka.Header{Key: HeaderErrorAttempt, Value: []byte(fmt.Sprintf("%d", ec.Attempt))},
		kafka.Header{Key: HeaderErrorPhase, Value: []byte(ec.Phase.String())},
	)

	if ec.Error != nil {
		dlqHeaders = append(dlqHeaders, kafka.Header{Key: HeaderErrorMessage, Value: []byte(ec.Error.Error())})
	}

	return w.producer.Send(ctx, topic, key, value, dlqHeaders)
}

// deliver sends rec to its topic, consulting the error handler on failure.
// The record is acknowledged on every path that returns nil.
func (w *Worker) deliver(ctx context.Context, rec record.SourceRecord) error {
	recHeaders := append([]record.Header(nil), rec.Headers...)

	ctx, span := w.tel.Tracer.Start(
		ctx, rec.Topic+" send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeKey.String("send"),
			semconv.MessagingDestinationName(rec.Topic),
		),
	)
	defer span.End()

	w.tel.Propagator.Inject(ctx, connectotel.NewHeadersCarrier(&recHeaders))
	headers := convertHeaders(recHeaders)

	ec := errorhandler.NewErrorContext(rec, nil)
	recordStatus := func(status string) {
		span.SetAttributes(attribute.Int("connect.send.attempts", ec.Attempt))
		w.tel.RecordsSent.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(rec.Topic),
				connectotel.AttrSendStatus.String(status),
			),
		)
	}

	for {
		err := w.send(ctx, rec, headers)
		if err == nil {
			w.acknowledge(rec)
			recordStatus(connectotel.StatusSuccess)
			return nil
		}

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, ctx.Err().Error())
			return ctx.Err()
		}

		ec = ec.WithError(err).WithPhase(phaseOf(err))
		span.RecordError(err)

		action := w.config.ErrorHandler.Handle(ctx, ec)

		w.tel.ErrorHandlerActions.Add(
			ctx, 1, metric.WithAttributes(
				connectotel.AttrErrorAction.String(action.Type().String()),
				semconv.MessagingDestinationName(rec.Topic),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeFail:
			recordStatus(connectotel.StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return err

		case errorhandler.ActionTypeRetry:
			w.logger.Debug("Retrying record", "attempt", ec.Attempt, "topic", rec.Topic, "offset", rec.Offset)
			ec = ec.IncrementAttempt()

			if ec.Attempt%10 == 0 {
				w.logger.Warn(
					"Record seen high number of retry attempts, "+
						"consider sending to DLQ or allowing error handler to skip.",
					"attempt", ec.Attempt, "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset,
				)
			}

			continue

		case errorhandler.ActionTypeSendToDLQ:
			a, ok := action.(errorhandler.ActionSendToDLQ)
			if !ok {
				w.logger.Error("Invalid action type, expected ActionSendToDLQ", "action", action.Type().String())
				recordStatus(connectotel.StatusFailed)
				span.SetStatus(codes.Error, "invalid action type")
				return errors.New("invalid action type, expected ActionSendToDLQ")
			}

			if err := w.sendToDLQ(ctx, rec, headers, ec, a.Topic()); err != nil {
				w.logger.Error(
					"Failed to send record to DLQ.",
					"error", err,
					"original_topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
				)
				recordStatus(connectotel.StatusFailed)
				span.SetStatus(codes.Error, err.Error())
				return err
			}

			w.acknowledge(rec)
			recordStatus(connectotel.StatusDLQ)
			return nil

		case errorhandler.ActionTypeContinue:
			w.logger.Debug("Skipping failed record", "topic", rec.Topic, "offset", rec.Offset)
			w.acknowledge(rec)
			recordStatus(connectotel.StatusDropped)
			return nil

		default:
			w.logger.Error(
				"Unknown error handler action, failing record",
				"error", err,
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"attempt", ec.Attempt,
			)
			recordStatus(connectotel.StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
}
