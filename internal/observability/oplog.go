package observability

import (
	"time"

	"github.com/rs/zerolog"
)

// OperationEvent picks the log level for one finished operation: errors log at
// error, unsupported operations at debug, successes at trace.
func OperationEvent(logger zerolog.Logger, op, key, status string, duration time.Duration, err error) *zerolog.Event {
	var event *zerolog.Event
	switch {
	case status == "ERROR":
		event = logger.Error().Err(err)
	case status == "NOT_IMPLEMENTED":
		event = logger.Debug()
	default:
		event = logger.Trace()
	}
	return event.
		Str("op", op).
		Str("key", key).
		Str("status", status).
		Dur("duration", duration)
}
