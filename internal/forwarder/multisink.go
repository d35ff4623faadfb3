package forwarder

import (
	"context"

	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"go.uber.org/zap"
)

// MultiSink fans each batch out to an optional mirror before the mandatory
// primary sink. Only the primary's result drives the Forwarder's
// requeue-on-failure accounting; mirror failures are logged and otherwise
// ignored, since the mirror is a convenience, not part of the delivery
// contract.
type MultiSink struct {
	primary Sink
	mirror  Sink
	logger  *zap.SugaredLogger
}

// NewMultiSink wraps primary with an optional mirror. mirror may be nil.
func NewMultiSink(primary Sink, mirror Sink, logger *zap.SugaredLogger) *MultiSink {
	return &MultiSink{primary: primary, mirror: mirror, logger: logger}
}

func (m *MultiSink) RecordSensor(ctx context.Context, records []rpcapi.SensorRecord) (int, error) {
	if m.mirror != nil {
		if _, err := m.mirror.RecordSensor(ctx, records); err != nil {
			m.logger.Warnw("mirror sink failed to record sensor batch", "error", err)
		}
	}
	return m.primary.RecordSensor(ctx, records)
}

func (m *MultiSink) RecordCommand(ctx context.Context, records []rpcapi.CommandRecord) (int, error) {
	if m.mirror != nil {
		if _, err := m.mirror.RecordCommand(ctx, records); err != nil {
			m.logger.Warnw("mirror sink failed to record command batch", "error", err)
		}
	}
	return m.primary.RecordCommand(ctx, records)
}

func (m *MultiSink) Close() error {
	if m.mirror != nil {
		if err := m.mirror.Close(); err != nil {
			m.logger.Warnw("mirror sink close failed", "error", err)
		}
	}
	return m.primary.Close()
}
