package notify

import (
	"context"

	logx "remindd/pkg/logx"
)

// LogSink writes notifications to the log. It is the sink of last resort
// when no transport is configured, and the capture point in tests.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	return &LogSink{log: log.With(logx.String("component", "notify.log"))}
}

func (s *LogSink) Dispatch(_ context.Context, n Notification) error {
	fields := []logx.Field{
		logx.String("title", n.Title),
		logx.String("severity", string(n.Severity)),
		logx.String("dedup_tag", n.Options.DedupTag),
	}
	if n.Severity == SeverityWarning {
		s.log.Warn(n.Body, fields...)
	} else {
		s.log.Info(n.Body, fields...)
	}
	return nil
}
