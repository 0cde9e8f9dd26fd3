package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileLogger writes JSON lines through a zap core backed by a size-rotated file
type FileLogger struct {
	base            *zap.Logger
	level           zap.AtomicLevel
	out             *rotatingFile
	traceID         string
	redactSensitive bool
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath        string
	Level           LogLevel
	MaxFileSize     int64 // in bytes, 0 means no rotation
	RotateEnabled   bool
	RedactSensitive bool
}

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	out, err := openRotatingFile(config.FilePath, config.MaxFileSize, config.RotateEnabled)
	if err != nil {
		return nil, err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	level := zap.NewAtomicLevelAt(toZapLevel(config.Level))
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), level)

	return &FileLogger{
		base:            zap.New(core),
		level:           level,
		out:             out,
		redactSensitive: config.RedactSensitive,
	}, nil
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *FileLogger) log(level zapcore.Level, msg string, fields ...Field) {
	ce := l.base.Check(level, msg)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+2)
	if l.traceID != "" {
		zf = append(zf, zap.String("traceId", l.traceID))
	}
	if len(fields) > 0 {
		zf = append(zf, zap.Namespace("fields"))
		for _, f := range fields {
			if s, ok := f.Value.(string); ok && l.redactSensitive {
				zf = append(zf, zap.String(f.Key, redactSensitiveData(s)))
				continue
			}
			zf = append(zf, zap.Any(f.Key, f.Value))
		}
	}
	if l.redactSensitive {
		ce.Message = redactSensitiveData(ce.Message)
	}
	ce.Write(zf...)
}

// Debug logs a debug-level message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(zapcore.DebugLevel, msg, fields...)
}

// Info logs an info-level message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(zapcore.InfoLevel, msg, fields...)
}

// Warn logs a warning-level message
func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.log(zapcore.WarnLevel, msg, fields...)
}

// Error logs an error-level message
func (l *FileLogger) Error(msg string, fields ...Field) {
	l.log(zapcore.ErrorLevel, msg, fields...)
}

// WithTraceID returns a logger sharing the same file that stamps traceID on every entry
func (l *FileLogger) WithTraceID(traceID string) Logger {
	cp := *l
	cp.traceID = traceID
	return &cp
}

// WithContext returns a new logger that extracts trace ID from context
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *FileLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

// Close flushes and closes the log file. Closing twice is a no-op.
func (l *FileLogger) Close() error {
	_ = l.base.Sync()
	return l.out.Close()
}

// rotatingFile is the zap sink; it renames the file aside once it grows past maxSize
type rotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxSize     int64
	currentSize int64
	rotate      bool
}

func openRotatingFile(path string, maxSize int64, rotate bool) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &rotatingFile{
		file:        file,
		path:        path,
		maxSize:     maxSize,
		currentSize: info.Size(),
		rotate:      rotate && maxSize > 0,
	}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.rotate && r.currentSize >= r.maxSize {
		if err := r.rotateLocked(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
		}
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) rotateLocked() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	rotatedPath := fmt.Sprintf("%s.%s", r.path, time.Now().UTC().Format("20060102-150405.000000000"))
	renameErr := os.Rename(r.path, rotatedPath)

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.file = nil
		return fmt.Errorf("failed to create new log file: %w", err)
	}
	r.file = file
	if renameErr != nil {
		return fmt.Errorf("failed to rename log file: %w", renameErr)
	}
	r.currentSize = 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
