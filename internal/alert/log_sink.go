package alert

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/veritrail/veritrail/internal/audit"
)

// LogSink emits every published audit entry as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

func (s *LogSink) Emit(entry *audit.Entry) error {
	s.logger.Info().
		Int64("timestamp", entry.Timestamp).
		Str("eventType", string(entry.EventType)).
		Str("actor", entry.Actor).
		Str("details", entry.Details).
		Str("previousHash", entry.PreviousHash).
		Str("nodeId", entry.NodeID).
		Str("hash", entry.Hash).
		Msg("audit entry")
	return nil
}
