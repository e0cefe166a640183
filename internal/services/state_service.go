package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
)

// StatePublisher republishes the state of every channel
type StatePublisher interface {
	PublishAllState(ctx context.Context) error
}

// StateService periodically republishes channel state
type StateService struct {
	publisher StatePublisher
	interval  time.Duration

	published atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// NewStateService creates a new state service. An interval of zero disables it.
func NewStateService(publisher StatePublisher, interval time.Duration) *StateService {
	return &StateService{
		publisher: publisher,
		interval:  interval,
	}
}

// Start runs the publish loop until ctx is done
func (s *StateService) Start(ctx context.Context) {
	if s.interval <= 0 {
		logger.LogDebug("📡 State service disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("📡 State service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("📡 State service stopped (published %d, skipped %d, failed %d)",
				s.published.Load(), s.skipped.Load(), s.failed.Load())
			return
		case <-ticker.C:
			s.PublishOnce(ctx)
		}
	}
}

// PublishOnce runs a single republish. A missing broker session is expected
// between reconnects and only skips the round.
func (s *StateService) PublishOnce(ctx context.Context) {
	err := s.publisher.PublishAllState(ctx)
	switch {
	case err == nil:
		s.published.Add(1)
		logger.LogTrace("📡 State republished")
	case errors.Is(err, bridgeerrors.ErrNotConnected):
		s.skipped.Add(1)
		logger.LogDebug("📡 Skipping state republish - MQTT not connected")
	case bridgeerrors.IsRecoverable(err):
		s.failed.Add(1)
		logger.LogWarn("⚠️ State republish failed: %v", err)
	default:
		s.failed.Add(1)
		logger.LogError("❌ State republish failed: %v (code %d)", err, bridgeerrors.GetDiagnosticCode(err))
	}
}

// Counts returns published, skipped and failed rounds
func (s *StateService) Counts() (published, skipped, failed int64) {
	return s.published.Load(), s.skipped.Load(), s.failed.Load()
}
