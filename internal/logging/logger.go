package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "AIRSCOUT_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks AIRSCOUT_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the AIRSCOUT_LOG_LEVEL
// environment variable. Commands that draw to the terminal use this so
// log output stays off unless asked for.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		return zapcore.InfoLevel
	}
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogServiceEvent logs a Found/Lost announcement from the service browser
func LogServiceEvent(event, name, serviceType string) {
	Debug("Service discovery event",
		zap.String("event", event),
		zap.String("service", name),
		zap.String("service_type", serviceType),
	)
}

// LogResolve logs the outcome of a single resolve call
func LogResolve(name, address string, elapsed time.Duration, err error) {
	if err != nil {
		Warn("Resolve failed",
			zap.String("service", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	Info("Service resolved",
		zap.String("service", name),
		zap.String("address", address),
		zap.Duration("elapsed", elapsed),
	)
}

// LogFetch logs the outcome of a readings download
func LogFetch(name, address string, values int, err error) {
	if err != nil {
		Warn("Fetching sensor data failed",
			zap.String("service", name),
			zap.String("address", address),
			zap.Error(err),
		)
		return
	}
	Debug("Sensor data fetched",
		zap.String("service", name),
		zap.String("address", address),
		zap.Int("values", values),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
