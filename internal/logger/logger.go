package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Log level names accepted in configuration
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

var levelOrder = []string{LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace}

// LoggingConfig represents the logging section of the bridge configuration
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

// GlobalLogging holds the active logging configuration.
// Nil means nothing but startup lines is printed.
var GlobalLogging *LoggingConfig

var (
	outputMu   sync.Mutex
	outputFile *os.File
)

// Init installs cfg as the global configuration and redirects the standard
// logger to the configured file, falling back to stdout.
func Init(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = LogLevelInfo
	}
	cfg.Level = strings.ToLower(cfg.Level)

	outputMu.Lock()
	defer outputMu.Unlock()

	if outputFile != nil {
		_ = outputFile.Close()
		outputFile = nil
	}

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		// 0600: owner read/write only
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			log.Printf("Failed to open log file %s: %v", cfg.File, err)
		} else {
			outputFile = f
			output = f
		}
	}

	log.SetOutput(output)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	GlobalLogging = cfg
}

// ValidLevel reports whether level is one of the known level names
func ValidLevel(level string) bool {
	level = strings.ToLower(level)
	for _, l := range levelOrder {
		if l == level {
			return true
		}
	}
	return false
}

// shouldLog checks if a message should be logged based on current level
func shouldLog(currentLevel, messageLevel string) bool {
	currentIndex := -1
	messageIndex := -1

	for i, level := range levelOrder {
		if level == currentLevel {
			currentIndex = i
		}
		if level == messageLevel {
			messageIndex = i
		}
	}

	// Unknown levels let everything through
	if currentIndex == -1 || messageIndex == -1 {
		return true
	}

	return messageIndex <= currentIndex
}

func enabled(messageLevel string) bool {
	return GlobalLogging != nil && shouldLog(strings.ToLower(GlobalLogging.Level), messageLevel)
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	log.Printf("🔧 "+format, args...)
}

func LogError(format string, args ...interface{}) {
	if enabled(LogLevelError) {
		log.Printf("❌ "+format, args...)
	}
}

func LogWarn(format string, args ...interface{}) {
	if enabled(LogLevelWarn) {
		log.Printf("⚠️ "+format, args...)
	}
}

func LogInfo(format string, args ...interface{}) {
	if enabled(LogLevelInfo) {
		log.Printf("ℹ️ "+format, args...)
	}
}

func LogDebug(format string, args ...interface{}) {
	if enabled(LogLevelDebug) {
		log.Printf("🔧 "+format, args...)
	}
}

func LogTrace(format string, args ...interface{}) {
	if enabled(LogLevelTrace) {
		log.Printf("🔍 "+format, args...)
	}
}

// IsDebugEnabled checks if debug logging is enabled
func IsDebugEnabled() bool {
	return enabled(LogLevelDebug)
}
