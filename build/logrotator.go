package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// RotatingLogWriter is an io.Writer that feeds a log rotator, so that file
// based logging honors the configured maximum size and file count.
type RotatingLogWriter struct {
	pipe *io.PipeWriter

	rotator *rotator.Rotator
}

// NewRotatingLogWriter creates a new file rotator for the given log file. The
// returned writer must be closed to flush outstanding log lines.
func NewRotatingLogWriter(cfg *FileLoggerConfig,
	logFile string) (*RotatingLogWriter, error) {

	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w",
			err)
	}

	r, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false,
		cfg.MaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w",
			err)
	}

	// Run the rotator off of the read end of a pipe that Write feeds.
	pr, pw := io.Pipe()
	go func() {
		_ = r.Run(pr)
	}()

	return &RotatingLogWriter{
		pipe:    pw,
		rotator: r,
	}, nil
}

// Write writes the byte slice to the log rotator.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	return r.pipe.Write(b)
}

// Close closes the underlying log rotator if it has been created.
func (r *RotatingLogWriter) Close() error {
	if r.rotator != nil {
		return r.rotator.Close()
	}

	return nil
}
