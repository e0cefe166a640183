package logger

import (
	"fmt"
	"sync"
)

// ILogger lets components take a logger by injection.
// Production code uses StandardLogger, tests use MockLogger.
type ILogger interface {
	LogInfo(format string, args ...interface{})
	LogWarn(format string, args ...interface{})
	LogError(format string, args ...interface{})
	LogDebug(format string, args ...interface{})
}

// StandardLogger forwards to the package-level functions
type StandardLogger struct{}

// NewStandardLogger creates a logger that uses global logger functions
func NewStandardLogger() ILogger {
	return &StandardLogger{}
}

func (l *StandardLogger) LogInfo(format string, args ...interface{}) {
	LogInfo(format, args...)
}

func (l *StandardLogger) LogWarn(format string, args ...interface{}) {
	LogWarn(format, args...)
}

func (l *StandardLogger) LogError(format string, args ...interface{}) {
	LogError(format, args...)
}

func (l *StandardLogger) LogDebug(format string, args ...interface{}) {
	LogDebug(format, args...)
}

// MockLogger records formatted messages per level.
// Safe for use from the MQTT delivery goroutine and the test goroutine at once.
type MockLogger struct {
	mu            sync.Mutex
	InfoMessages  []string
	WarnMessages  []string
	ErrorMessages []string
	DebugMessages []string
}

// NewMockLogger creates a new mock logger for testing
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) LogInfo(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.InfoMessages = append(l.InfoMessages, fmt.Sprintf(format, args...))
}

func (l *MockLogger) LogWarn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.WarnMessages = append(l.WarnMessages, fmt.Sprintf(format, args...))
}

func (l *MockLogger) LogError(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ErrorMessages = append(l.ErrorMessages, fmt.Sprintf(format, args...))
}

func (l *MockLogger) LogDebug(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.DebugMessages = append(l.DebugMessages, fmt.Sprintf(format, args...))
}

// Reset clears all recorded messages
func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.InfoMessages = nil
	l.WarnMessages = nil
	l.ErrorMessages = nil
	l.DebugMessages = nil
}

// HasWarnMessage checks if a warning message was logged
func (l *MockLogger) HasWarnMessage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.WarnMessages) > 0
}

// HasErrorMessage checks if an error message was logged
func (l *MockLogger) HasErrorMessage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ErrorMessages) > 0
}
