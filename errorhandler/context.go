package errorhandler

import (
	"github.com/hugolhafner/go-connect/record"
)

// ErrorContext describes a record the worker failed to deliver.
type ErrorContext struct {
	// Record is the source record that could not be delivered.
	Record record.SourceRecord

	// Error is the cause reported by the serialiser or the producer.
	Error error

	// Attempt is current attempt number, 1 indexed.
	Attempt int

	// Phase indicates where in the delivery pipeline the error occurred.
	Phase ErrorPhase
}

func NewErrorContext(r record.SourceRecord, err error) ErrorContext {
	r.Partition = cloneStrings(r.Partition)
	r.Offset = r.Offset.Clone()
	r.Headers = append([]record.Header(nil), r.Headers...)

	return ErrorContext{
		Record:  r,
		Error:   err,
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

// fields returns the key/value pairs every handler logs.
func (ec ErrorContext) fields() []any {
	return []any{
		"error", ec.Error,
		"topic", ec.Record.Topic,
		"key", ec.Record.Key,
		"partition", ec.Record.Partition,
		"offset", ec.Record.Offset,
		"attempt", ec.Attempt,
		"phase", ec.Phase.String(),
	}
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
