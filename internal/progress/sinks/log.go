package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/netgraph-crawler/internal/progress"
)

// LogSink writes crawl events to a zap logger. Run milestones and skipped
// nodes are logged at info (errors at warn); per-node visits stay at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink writing to logger, or a no-op sink for nil.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume implements progress.Sink.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level, msg := describe(evt.Stage)
		ce := s.logger.Check(level, msg)
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("platform", evt.Platform),
		}
		if evt.Key != "" {
			fields = append(fields, zap.String("key", evt.Key), zap.Int("depth", evt.Depth))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("elapsed", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func describe(stage progress.Stage) (zapcore.Level, string) {
	switch stage {
	case progress.StageRunStart:
		return zapcore.InfoLevel, "crawl run started"
	case progress.StageRunDone:
		return zapcore.InfoLevel, "crawl run finished"
	case progress.StageRunError:
		return zapcore.WarnLevel, "crawl run failed"
	case progress.StageSkip:
		return zapcore.InfoLevel, "node skipped"
	case progress.StageIndividual:
		return zapcore.DebugLevel, "individual stored"
	case progress.StageCollection:
		return zapcore.DebugLevel, "collection stored"
	case progress.StageMembership:
		return zapcore.DebugLevel, "membership stored"
	default:
		return zapcore.DebugLevel, "progress event"
	}
}
