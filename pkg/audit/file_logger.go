package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger writes audit events as newline-delimited JSON
type FileLogger struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *json.Encoder
}

// NewFileLogger appends events to the file at path, creating parent
// directories as needed
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	logger := NewWriterLogger(file)
	logger.closer = file
	return logger, nil
}

// NewWriterLogger writes events to w, typically stdout
func NewWriterLogger(w io.Writer) *FileLogger {
	return &FileLogger{
		w:       w,
		encoder: json.NewEncoder(w),
	}
}

// Log writes one JSON line
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
