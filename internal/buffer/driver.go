package buffer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Driver invokes Flush on a fixed interval. The buffer never schedules its
// own flushes; this is the external clock.
type Driver struct {
	buffer   *Buffer
	interval time.Duration
	logger   *zap.Logger
}

// NewDriver constructs a Driver.
func NewDriver(buffer *Buffer, interval time.Duration, logger *zap.Logger) *Driver {
	return &Driver{buffer: buffer, interval: interval, logger: logger}
}

// Run blocks, flushing the buffer every interval until the context finishes.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("flush driver stopped")
			return
		case <-ticker.C:
			if n := d.buffer.Flush(); n > 0 {
				d.logger.Debug("flush cycle complete", zap.Int("events", n))
			}
		}
	}
}
