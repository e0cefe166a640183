package services

import (
	"context"
	"sync"
	"time"

	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/modbus"
)

// ModbusProber re-checks device connectivity
type ModbusProber interface {
	CheckModbus(ctx context.Context) modbus.Status
}

// ProbeService periodically checks the Modbus device and logs transitions
// between reachable and unreachable
type ProbeService struct {
	prober   ModbusProber
	interval time.Duration

	mu        sync.Mutex
	known     bool
	online    bool
	changedAt time.Time
}

// NewProbeService creates a new probe service. An interval of zero disables it.
func NewProbeService(prober ModbusProber, interval time.Duration) *ProbeService {
	return &ProbeService{
		prober:   prober,
		interval: interval,
	}
}

// Start runs the probe loop until ctx is done
func (s *ProbeService) Start(ctx context.Context) {
	if s.interval <= 0 {
		logger.LogDebug("🔌 Probe service disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("🔌 Probe service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔌 Probe service stopped")
			return
		case <-ticker.C:
			s.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce checks the device and reports whether its state changed
func (s *ProbeService) ProbeOnce(ctx context.Context) (changed bool) {
	st := s.prober.CheckModbus(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed = !s.known || st.Connected != s.online
	if !changed {
		return false
	}

	wasKnown := s.known
	s.known = true
	s.online = st.Connected
	s.changedAt = st.CheckedAt

	switch {
	case st.Connected && wasKnown:
		logger.LogInfo("✅ Modbus device back online")
	case st.Connected:
		logger.LogDebug("🔌 Modbus device online")
	default:
		logger.LogWarn("⚠️ Modbus device offline: %s", st.Error)
	}
	return true
}

// Online returns the last probed state and when it last changed
func (s *ProbeService) Online() (online bool, since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online, s.changedAt
}
