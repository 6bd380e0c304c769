// Package graceful tracks in-flight work so shutdown can drain accounting
// before the process exits. A cancelled or interrupted request must still get
// its deduction written; draining gives those close paths time to finish.
package graceful

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/lumichat/credit/common/logger"
)

var (
	inFlightRequests int64
	draining         atomic.Bool
)

// BeginRequest increments the in-flight request counter and returns the
// matching decrement. Use with defer at the top of request middleware.
func BeginRequest() func() {
	atomic.AddInt64(&inFlightRequests, 1)
	return func() {
		atomic.AddInt64(&inFlightRequests, -1)
	}
}

// SetDraining flips the draining flag to true.
func SetDraining() { draining.Store(true) }

// IsDraining returns whether the server is currently draining.
func IsDraining() bool { return draining.Load() }

// Drain waits for in-flight requests to finish, bounded by the context
// deadline.
func Drain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadInt64(&inFlightRequests) == 0 {
			logger.Logger.Info("graceful drain complete")
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout",
				zap.Int64("in_flight_requests", atomic.LoadInt64(&inFlightRequests)))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
