package activitymap

import (
	"context"

	"github.com/allergysnatcher/auth"
)

// LogSink writes every event as a normalized record to a logger.
type LogSink struct {
	logger auth.Logger
	opts   []Option
}

// NewLogSink creates a sink logging through logger at info level.
func NewLogSink(logger auth.Logger, opts ...Option) *LogSink {
	return &LogSink{
		logger: auth.ResolveLogger("activity", nil, logger),
		opts:   opts,
	}
}

// Record implements auth.ActivitySink.
func (s *LogSink) Record(_ context.Context, event auth.ActivityEvent) error {
	n := Normalize(event, s.opts...)

	args := []any{
		"verb", n.Verb,
		"actor_id", n.ActorID,
		"object_type", n.ObjectType,
		"object_id", n.ObjectID,
		"channel", n.Channel,
		"occurred_at", n.OccurredAt,
	}
	if len(n.Metadata) > 0 {
		args = append(args, "metadata", n.Metadata)
	}

	s.logger.Info("activity", args...)
	return nil
}

// Fanout records each event in every sink and returns the first error.
type Fanout []auth.ActivitySink

// Record implements auth.ActivitySink.
func (f Fanout) Record(ctx context.Context, event auth.ActivityEvent) error {
	var first error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
