package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging for the backup pipeline
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}

		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stdout,
		Format: "text",
	})
	return logger
}

// WithFields returns a logger entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Pipeline operation logging methods

// LogCommandExecution logs an external command invocation and its outcome.
// The stderr tail is truncated so a noisy pg_restore cannot flood the log.
func (l *Logger) LogCommandExecution(argv []string, exitCode int, duration time.Duration, stderr string) {
	const maxStderr = 300

	fields := logrus.Fields{
		"operation": "command_execution",
		"command":   argv[0],
		"exit_code": exitCode,
		"duration":  duration.String(),
	}

	if len(stderr) > maxStderr {
		stderr = stderr[:maxStderr] + "... [truncated]"
	}

	if exitCode != 0 {
		fields["stderr"] = stderr
		l.logger.WithFields(fields).Error("Command failed")
	} else {
		l.logger.WithFields(fields).Debug("Command completed")
	}
}

// LogDumpResult logs the outcome of a dataset dump
func (l *Logger) LogDumpResult(dataset, dumpPath string, size int64, err error) {
	fields := logrus.Fields{
		"operation": "dataset_dump",
		"dataset":   dataset,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Dataset dump failed")
		return
	}

	fields["dump_file"] = dumpPath
	fields["size"] = size
	l.logger.WithFields(fields).Info("Dataset dump completed")
}

// LogArchiveCreated logs a successfully created encrypted archive
func (l *Logger) LogArchiveCreated(archivePath string, originalSize, archiveSize int64, duration time.Duration) {
	l.logger.WithFields(logrus.Fields{
		"operation":     "archive_encrypt",
		"archive":       archivePath,
		"original_size": originalSize,
		"archive_size":  archiveSize,
		"duration":      duration.String(),
	}).Info("Encrypted archive created")
}

// LogRetentionSweep logs the result of a retention sweep
func (l *Logger) LogRetentionSweep(directory string, retentionDays, deleted int) {
	l.logger.WithFields(logrus.Fields{
		"operation":      "retention_sweep",
		"directory":      directory,
		"retention_days": retentionDays,
		"deleted":        deleted,
	}).Info("Retention sweep completed")
}

// LogDelivery logs an artifact delivery attempt. Delivery failures are
// warnings: the artifact on disk remains the backup of record.
func (l *Logger) LogDelivery(sink, artifact string, err error) {
	fields := logrus.Fields{
		"operation": "artifact_delivery",
		"sink":      sink,
		"artifact":  artifact,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Artifact delivery failed")
	} else {
		l.logger.WithFields(fields).Info("Artifact delivered")
	}
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	switch level {
	case LogLevelQuiet:
		l.logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		l.logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		l.logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		l.logger.SetLevel(logrus.TraceLevel)
	}
}
