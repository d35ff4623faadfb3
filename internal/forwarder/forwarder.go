// Package forwarder batches sensor records and command outcomes and relays
// them to a downstream recording service, per spec §4.6. It is grounded on
// the teacher's BackendForwarder in backend.go, split from one buffer into
// two independent typed ones and generalized over the sink it flushes to.
package forwarder

import (
	"context"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"go.uber.org/zap"
)

const (
	flushInterval = 1 * time.Second
	flushDeadline = 5 * time.Second
)

// Sink is anything the Forwarder can flush batches to: the mandatory
// recorder RPC client, optionally fanned out to a secondary mirror like the
// Redis stream publisher.
type Sink interface {
	RecordSensor(ctx context.Context, records []rpcapi.SensorRecord) (int, error)
	RecordCommand(ctx context.Context, records []rpcapi.CommandRecord) (int, error)
	Close() error
}

// Forwarder owns the two independent buffers and their flush lifecycle. Each
// buffer has its own lock, and a high-water flush runs on its own goroutine.
// The periodic and final flushes run sensor then command on the one loop
// goroutine, so a slow sensor flush (bounded by flushDeadline) delays that
// tick's command flush.
type Forwarder struct {
	sink       Sink
	sensorBuf  *recordBuffer[rpcapi.SensorRecord]
	commandBuf *recordBuffer[rpcapi.CommandRecord]
	ticker     *time.Ticker
	stopChan   chan struct{}
	doneChan   chan struct{}
	logger     *zap.SugaredLogger
}

// New creates a Forwarder flushing to sink, with both buffers sized to
// highWater, and starts its periodic flush loop.
func New(sink Sink, highWater int, logger *zap.SugaredLogger) *Forwarder {
	f := &Forwarder{
		sink:       sink,
		sensorBuf:  newRecordBuffer[rpcapi.SensorRecord](highWater),
		commandBuf: newRecordBuffer[rpcapi.CommandRecord](highWater),
		ticker:     time.NewTicker(flushInterval),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
		logger:     logger,
	}
	go f.loop()
	return f
}

// BufferSensor records an approved sensor sample for forwarding. Satisfies
// server.Forwarder.
func (f *Forwarder) BufferSensor(robotID string, data adapter.SensorData) {
	record := rpcapi.SensorRecord{
		RobotID:   robotID,
		Topic:     data.Topic,
		DataType:  data.DataType,
		Timestamp: data.Timestamp,
		Data:      data.Data,
	}
	if f.sensorBuf.add(record) {
		go f.flushSensor()
	}
}

// BufferCommand records a command outcome for forwarding. Satisfies
// server.Forwarder.
func (f *Forwarder) BufferCommand(robotID string, cmd adapter.Command, approved bool, reason string) {
	record := rpcapi.CommandRecord{
		RobotID:   robotID,
		Type:      cmd.Type,
		Payload:   cmd.Payload,
		Timestamp: cmd.Timestamp,
		Approved:  approved,
		Reason:    reason,
	}
	if f.commandBuf.add(record) {
		go f.flushCommand()
	}
}

func (f *Forwarder) loop() {
	defer close(f.doneChan)
	for {
		select {
		case <-f.ticker.C:
			f.flushSensor()
			f.flushCommand()
		case <-f.stopChan:
			f.flushSensor()
			f.flushCommand()
			return
		}
	}
}

func (f *Forwarder) flushSensor() {
	records := f.sensorBuf.drain()
	if len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushDeadline)
	defer cancel()

	count, err := f.sink.RecordSensor(ctx, records)
	if err != nil {
		dropped := f.sensorBuf.requeue(records)
		f.logger.Errorw("failed to forward sensor records", "error", err, "record_count", len(records))
		if dropped > 0 {
			f.logger.Warnw("sensor buffer overflow, dropping old records", "dropped", dropped)
		}
		return
	}
	f.logger.Debugw("forwarded sensor records", "record_count", count)
}

func (f *Forwarder) flushCommand() {
	records := f.commandBuf.drain()
	if len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushDeadline)
	defer cancel()

	count, err := f.sink.RecordCommand(ctx, records)
	if err != nil {
		dropped := f.commandBuf.requeue(records)
		f.logger.Errorw("failed to forward command records", "error", err, "record_count", len(records))
		if dropped > 0 {
			f.logger.Warnw("command buffer overflow, dropping old records", "dropped", dropped)
		}
		return
	}
	f.logger.Debugw("forwarded command records", "record_count", count)
}

// Close stops the flush loop, performs a final synchronous flush of both
// buffers, and closes the underlying sink.
func (f *Forwarder) Close() error {
	close(f.stopChan)
	<-f.doneChan
	f.ticker.Stop()
	return f.sink.Close()
}
