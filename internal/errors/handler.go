package errors

import (
	stderrors "errors"

	"modbus-voltage-bridge/internal/logger"
)

// ErrorRecorder counts handled errors by component
type ErrorRecorder interface {
	RecordError(component string)
}

// ErrorHandler is the sink for errors that have no caller to return to,
// such as failures inside the MQTT control loop.
type ErrorHandler struct {
	log      logger.ILogger
	recorder ErrorRecorder
}

// NewErrorHandler creates a new error handler. recorder may be nil.
func NewErrorHandler(log logger.ILogger, recorder ErrorRecorder) *ErrorHandler {
	if log == nil {
		log = logger.NewStandardLogger()
	}
	return &ErrorHandler{log: log, recorder: recorder}
}

// Handle logs err according to its type and severity
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var (
		ve  *ValidationError
		me  *ModbusError
		qe  *MQTTError
		ce  *ConfigError
		be  *BridgeError
		cmp string
	)

	switch {
	case stderrors.As(err, &ve):
		cmp = "validation"
		h.log.LogWarn("⚠️ Validation Error: %s", err.Error())
	case stderrors.Is(err, ErrMalformedControlPayload):
		cmp = "validation"
		h.log.LogWarn("⚠️ Validation Error: %s", err.Error())
	case stderrors.As(err, &me):
		cmp = "modbus"
		h.logBySeverity("Modbus", me.Severity, err)
	case stderrors.As(err, &qe):
		cmp = "mqtt"
		h.logBySeverity("MQTT", qe.Severity, err)
	case stderrors.As(err, &ce):
		cmp = "config"
		h.log.LogError("🔴 CRITICAL Configuration Error: %s", err.Error())
	case stderrors.As(err, &be):
		cmp = "bridge"
		h.logBySeverity("Bridge", be.Severity, err)
	default:
		cmp = "generic"
		h.log.LogError("❌ Untyped Error: %v", err)
	}

	if h.recorder != nil {
		h.recorder.RecordError(cmp)
	}
}

func (h *ErrorHandler) logBySeverity(kind string, sev ErrorSeverity, err error) {
	switch sev {
	case SeverityCritical:
		h.log.LogError("🔴 CRITICAL %s Error: %s", kind, err.Error())
	case SeverityError:
		h.log.LogError("%s Error: %s", kind, err.Error())
	case SeverityWarning:
		h.log.LogWarn("%s Warning: %s", kind, err.Error())
	default:
		h.log.LogInfo("%s Info: %s", kind, err.Error())
	}
}

// IsRecoverable returns false for configuration errors and anything critical
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	var ce *ConfigError
	if stderrors.As(err, &ce) {
		return false
	}
	var me *ModbusError
	if stderrors.As(err, &me) {
		return me.Severity != SeverityCritical
	}
	var qe *MQTTError
	if stderrors.As(err, &qe) {
		return qe.Severity != SeverityCritical
	}
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Severity != SeverityCritical
	}
	return true
}

// GetDiagnosticCode extracts the diagnostic code from an error
func GetDiagnosticCode(err error) int {
	if err == nil {
		return 0
	}

	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	var me *ModbusError
	if stderrors.As(err, &me) {
		return me.Code
	}
	var qe *MQTTError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	var ce *ConfigError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Code
	}
	if stderrors.Is(err, ErrMalformedControlPayload) {
		return CodeValidation
	}
	return CodeGeneric
}
