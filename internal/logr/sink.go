package logr

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-logr/logr"
)

var _ logr.LogSink = (*slogSink)(nil)

// slogSink is a logr sink that writes to a slog handler, translating logr
// verbosity levels into slog levels.
type slogSink struct {
	handler slog.Handler
	name    string
}

func newLogSink(h slog.Handler) *slogSink {
	return &slogSink{handler: h}
}

func (s *slogSink) Init(logr.RuntimeInfo) {}

func (s *slogSink) Enabled(level int) bool {
	return s.handler.Enabled(context.Background(), toSlogLevel(level))
}

func (s *slogSink) Info(level int, msg string, keysAndValues ...any) {
	s.log(toSlogLevel(level), msg, keysAndValues)
}

func (s *slogSink) Error(err error, msg string, keysAndValues ...any) {
	if err != nil {
		keysAndValues = append([]any{"error", err}, keysAndValues...)
	}
	s.log(slog.LevelError, msg, keysAndValues)
}

func (s *slogSink) WithValues(keysAndValues ...any) logr.LogSink {
	return &slogSink{
		handler: s.handler.WithAttrs(toAttrs(keysAndValues)),
		name:    s.name,
	}
}

func (s *slogSink) WithName(name string) logr.LogSink {
	if s.name != "" {
		name = s.name + "/" + name
	}
	return &slogSink{handler: s.handler, name: name}
}

func (s *slogSink) log(level slog.Level, msg string, keysAndValues []any) {
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if s.name != "" {
		r.AddAttrs(slog.String("logger", s.name))
	}
	r.Add(keysAndValues...)
	_ = s.handler.Handle(context.Background(), r)
}

func toAttrs(keysAndValues []any) []slog.Attr {
	var r slog.Record
	r.Add(keysAndValues...)
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return attrs
}
