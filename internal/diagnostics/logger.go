package diagnostics

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DiagnosticLogger handles diagnostic output while the MCP server owns
// stdio. In MCP mode everything goes to a log file, never to stdout or
// stderr. It also implements Sink.
type DiagnosticLogger struct {
	mu       sync.Mutex
	file     *os.File
	logger   *log.Logger
	filePath string
	isMCP    bool
}

// NewDiagnosticLogger creates a logger that writes to a file in MCP mode and
// to stderr otherwise.
func NewDiagnosticLogger(isMCP bool) *DiagnosticLogger {
	dl := &DiagnosticLogger{isMCP: isMCP}

	if !isMCP {
		dl.logger = log.New(os.Stderr, "[REDEFINE] ", log.LstdFlags)
		return dl
	}

	logDir := filepath.Join(os.TempDir(), "redefine-mcp-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		logDir = filepath.Join(homeDir, ".redefine-mcp-logs")
		_ = os.MkdirAll(logDir, 0755)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("mcp-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// logging is not worth failing the server over
		dl.logger = log.New(io.Discard, "", 0)
		return dl
	}

	dl.file = file
	dl.filePath = logPath
	dl.logger = log.New(file, "[MCP] ", log.LstdFlags|log.Lshortfile)
	return dl
}

// NewWriterLogger logs to w. Used by tests and embedders that route the
// output themselves.
func NewWriterLogger(w io.Writer) *DiagnosticLogger {
	return &DiagnosticLogger{logger: log.New(w, "", 0)}
}

// Printf logs a diagnostic message.
func (dl *DiagnosticLogger) Printf(format string, v ...interface{}) {
	if dl == nil || dl.logger == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.logger.Printf(format, v...)
}

// Errorf logs an error.
func (dl *DiagnosticLogger) Errorf(format string, v ...interface{}) {
	if dl == nil || dl.logger == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.logger.Printf("ERROR: "+format, v...)
}

// Record implements Sink.
func (dl *DiagnosticLogger) Record(e Event) {
	if e.Err != nil {
		dl.Errorf("%s", e)
		return
	}
	dl.Printf("%s", e)
}

// Close closes the log file if it's open.
func (dl *DiagnosticLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		return dl.file.Close()
	}
	return nil
}

// GetLogPath returns the path to the diagnostic log file (MCP mode only).
func (dl *DiagnosticLogger) GetLogPath() string {
	if dl == nil {
		return ""
	}
	return dl.filePath
}

// NoOpLogger suppresses all logging.
var NoOpLogger = &DiagnosticLogger{
	logger: log.New(io.Discard, "", 0),
}
