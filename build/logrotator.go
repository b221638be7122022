package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

// RotatingLogWriter is the io.Writer behind every subsystem logger. Lines
// are mirrored to the console and, once InitLogRotator succeeded, appended
// to recoverd's log file.
type RotatingLogWriter struct {
	// console receives a copy of every line, nil with --noconsole.
	console io.Writer

	// file feeds the rotator goroutine.
	file *io.PipeWriter

	rotator *rotator.Rotator
}

// NewRotatingLogWriter returns a writer that only prints to stdout until
// InitLogRotator is called.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{
		console: os.Stdout,
	}
}

// newCompressor returns the rotator compressor for a validated compressor
// name.
func newCompressor(name string) (rotator.Compressor, error) {
	switch name {
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd compressor: %w", err)
		}

		return enc, nil

	default:
		return gzip.NewWriter(nil), nil
	}
}

// InitLogRotator opens logFile, creating its directory, and starts rolling
// it over once it exceeds cfg.MaxLogFileSize megabytes. Rolled files are
// compressed and at most cfg.MaxLogFiles of them are kept. Close must be
// called on shutdown.
func (r *RotatingLogWriter) InitLogRotator(cfg *LogConfig,
	logFile string) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return fmt.Errorf("unable to create log directory: %w", err)
	}

	compressor, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	// The rotator threshold is in kilobytes.
	thresholdKB := int64(cfg.MaxLogFileSize) * 1024
	r.rotator, err = rotator.New(
		logFile, thresholdKB, false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("unable to open log file %s: %w", logFile,
			err)
	}
	r.rotator.SetCompressor(compressor, logCompressors[cfg.Compressor])

	if cfg.NoConsole {
		r.console = nil
	}

	// A failing log file can only be reported on stderr.
	pr, pw := io.Pipe()
	go func() {
		if err := r.rotator.Run(pr); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation stopped: "+
				"%v\n", err)
		}
	}()
	r.file = pw

	return nil
}

// Write copies b to the console and the log file.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.console != nil {
		_, _ = r.console.Write(b)
	}

	if r.file == nil {
		return len(b), nil
	}

	return r.file.Write(b)
}

// Close flushes the log file and stops the rotator.
func (r *RotatingLogWriter) Close() error {
	if r.file != nil {
		_ = r.file.Close()
	}

	if r.rotator == nil {
		return nil
	}

	return r.rotator.Close()
}
