package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinels of the bridge error taxonomy. Typed errors below wrap them so
// callers can match with errors.Is regardless of the carrier type.
var (
	ErrInvalidChannel          = stderrors.New("invalid channel")
	ErrInvalidVoltage          = stderrors.New("voltage out of range")
	ErrMalformedControlPayload = stderrors.New("malformed control payload")
	ErrInvalidTopic            = stderrors.New("base topic cannot be empty")
	ErrInvalidEndpoint         = stderrors.New("invalid endpoint")
	ErrNotConnected            = stderrors.New("not connected")
	ErrEmptyResponse           = stderrors.New("empty response from device")
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Diagnostic codes carried by BridgeError.Code
const (
	CodeConfig     = 1
	CodeModbus     = 3
	CodeMQTT       = 4
	CodeValidation = 5
	CodeGeneric    = 99
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// BridgeError is the base error type for all bridge errors
type BridgeError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// ModbusError represents a failed exchange with the Modbus device
type ModbusError struct {
	BridgeError
	Endpoint     string
	SlaveID      uint8
	FunctionCode uint8
	Address      uint16
}

// NewModbusError creates a new Modbus error
func NewModbusError(op string, err error, endpoint string, slaveID uint8) *ModbusError {
	return &ModbusError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeModbus,
		},
		Endpoint: endpoint,
		SlaveID:  slaveID,
	}
}

func (e *ModbusError) Error() string {
	if e.FunctionCode != 0 {
		return fmt.Sprintf("[%s] Modbus %s (unit %d, fc 0x%02X, addr 0x%04X): %s: %v",
			e.Severity, e.Endpoint, e.SlaveID, e.FunctionCode, e.Address, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Modbus %s (unit %d): %s: %v",
		e.Severity, e.Endpoint, e.SlaveID, e.Op, e.Err)
}

// Unwrap is redeclared so errors.Is sees the cause through the embedded base
func (e *ModbusError) Unwrap() error {
	return e.Err
}

// MQTTError represents errors from MQTT operations
type MQTTError struct {
	BridgeError
	Broker string
	Topic  string
	QoS    byte
}

// NewMQTTError creates a new MQTT error
func NewMQTTError(op string, err error, broker string) *MQTTError {
	return &MQTTError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeMQTT,
		},
		Broker: broker,
	}
}

// WithTopic sets the topic and returns the receiver
func (e *MQTTError) WithTopic(topic string) *MQTTError {
	e.Topic = topic
	return e
}

func (e *MQTTError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

func (e *MQTTError) Unwrap() error {
	return e.Err
}

// ConfigError represents configuration errors
type ConfigError struct {
	BridgeError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(op string, err error, field string) *ConfigError {
	return &ConfigError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityCritical,
			Code:     CodeConfig,
		},
		Field: field,
	}
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %s: %v",
			e.Severity, e.Field, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %s: %v", e.Severity, e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError describes a rejected input value. Kind is one of the
// package sentinels and is what errors.Is matches against.
type ValidationError struct {
	BridgeError
	Field    string
	Expected interface{}
	Actual   interface{}
}

// NewValidationError creates a validation error of the given kind
func NewValidationError(kind error, field string, expected, actual interface{}) *ValidationError {
	return &ValidationError{
		BridgeError: BridgeError{
			Op:       "validation",
			Err:      kind,
			Severity: SeverityWarning,
			Code:     CodeValidation,
		},
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: field '%s': expected %v, got %v",
		e.Err, e.Field, e.Expected, e.Actual)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a rejected input rather than a
// device or broker failure
func IsValidation(err error) bool {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return true
	}
	return stderrors.Is(err, ErrInvalidChannel) ||
		stderrors.Is(err, ErrInvalidVoltage) ||
		stderrors.Is(err, ErrMalformedControlPayload) ||
		stderrors.Is(err, ErrInvalidTopic) ||
		stderrors.Is(err, ErrInvalidEndpoint)
}
