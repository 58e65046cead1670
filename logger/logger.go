// Package logger provides leveled logging for the paralegal service with a
// console/syslog backend, an optional file backend and an in-memory buffer of
// recent entries for the admin API.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/paralegal-agent/paralegal/config"
)

const (
	module           = "paralegal"
	maxLogBufferSize = 10240                 // Maximum log entries kept in memory
	logFileName      = "paralegal.log"       // Log file name
	timeFormat       = "2006/01/02 15:04:05" // Log timestamp format
)

type entry struct {
	time  string
	level logging.Level
	log   string
}

var (
	logger  = logging.MustGetLogger(module)
	logFile *os.File

	bufMu sync.Mutex
	// logBuffer maintains recent log entries in memory for the admin API
	logBuffer []entry
)

// InitLogger initializes dual logging backends: console/syslog and file.
// Console logging uses the specified level, file logging always uses DEBUG level.
func InitLogger(level logging.Level) {
	initLogger(level, true)
}

// InitConsoleLogger initializes only the console backend. Used by one-shot CLI commands.
func InitConsoleLogger(level logging.Level) {
	initLogger(level, false)
}

func initLogger(level logging.Level, withFile bool) {
	newLogger := logging.MustGetLogger(module)
	backends := make([]logging.Backend, 0, 2)

	if consoleBackend := initDefaultBackend(); consoleBackend != nil {
		leveledBackend := logging.AddModuleLevel(consoleBackend)
		leveledBackend.SetLevel(level, module)
		backends = append(backends, leveledBackend)
	}

	if withFile {
		if fileBackend := initFileBackend(); fileBackend != nil {
			leveledBackend := logging.AddModuleLevel(fileBackend)
			leveledBackend.SetLevel(logging.DEBUG, module)
			backends = append(backends, leveledBackend)
		}
	}

	newLogger.SetBackend(logging.MultiLogger(backends...))
	logger = newLogger
}

// initDefaultBackend creates the console/syslog logging backend.
// Windows and debug runs log to stderr; otherwise syslog is tried first.
func initDefaultBackend() logging.Backend {
	var backend logging.Backend
	includeTime := false

	if runtime.GOOS == "windows" || config.IsDebug() {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
		includeTime = true
	} else {
		if syslogBackend, err := logging.NewSyslogBackend(""); err != nil {
			fmt.Fprintf(os.Stderr, "syslog backend disabled: %v\n", err)
			backend = logging.NewLogBackend(os.Stderr, "", 0)
			includeTime = os.Getppid() > 0
		} else {
			backend = syslogBackend
		}
	}

	return logging.NewBackendFormatter(backend, newFormatter(includeTime))
}

// initFileBackend creates the file logging backend.
// Creates log directory and truncates log file on startup for fresh logs.
func initFileBackend() logging.Backend {
	logDir := config.GetLogFolder()
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log folder %s: %v\n", logDir, err)
		return nil
	}

	logPath := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logPath, err)
		return nil
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file

	backend := logging.NewLogBackend(file, "", 0)
	return logging.NewBackendFormatter(backend, newFormatter(true))
}

func newFormatter(withTime bool) logging.Formatter {
	format := `%{level} - %{message}`
	if withTime {
		format = `%{time:` + timeFormat + `} %{level} - %{message}`
	}
	return logging.MustStringFormatter(format)
}

// CloseLogger closes the log file. Should be called during application shutdown.
func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debug(args ...any) { write(logging.DEBUG, fmt.Sprint(args...), true) }

func Debugf(format string, args ...any) { write(logging.DEBUG, fmt.Sprintf(format, args...), true) }

func Info(args ...any) { write(logging.INFO, fmt.Sprint(args...), true) }

func Infof(format string, args ...any) { write(logging.INFO, fmt.Sprintf(format, args...), true) }

// InfofUnbuffered logs at INFO level to the backends only. The entry never
// reaches the in-memory buffer served to administrators.
func InfofUnbuffered(format string, args ...any) {
	write(logging.INFO, fmt.Sprintf(format, args...), false)
}

func Warning(args ...any) { write(logging.WARNING, fmt.Sprint(args...), true) }

func Warningf(format string, args ...any) { write(logging.WARNING, fmt.Sprintf(format, args...), true) }

func Error(args ...any) { write(logging.ERROR, fmt.Sprint(args...), true) }

func Errorf(format string, args ...any) { write(logging.ERROR, fmt.Sprintf(format, args...), true) }

func write(level logging.Level, msg string, buffered bool) {
	switch level {
	case logging.DEBUG:
		logger.Debug(msg)
	case logging.INFO:
		logger.Info(msg)
	case logging.WARNING:
		logger.Warning(msg)
	default:
		logger.Error(msg)
	}
	if buffered {
		addToBuffer(level, msg)
	}
}

// addToBuffer appends an entry to the in-memory ring buffer.
func addToBuffer(level logging.Level, msg string) {
	e := entry{
		time:  time.Now().Format(timeFormat),
		level: level,
		log:   msg,
	}

	bufMu.Lock()
	defer bufMu.Unlock()
	if len(logBuffer) >= maxLogBufferSize {
		logBuffer = logBuffer[1:]
	}
	logBuffer = append(logBuffer, e)
}

// GetLogs retrieves up to c log entries, newest first, that are at or above the
// severity of level.
func GetLogs(c int, level string) []string {
	var output []string
	logLevel, _ := logging.LogLevel(level)

	bufMu.Lock()
	defer bufMu.Unlock()
	for i := len(logBuffer) - 1; i >= 0 && len(output) < c; i-- {
		if logBuffer[i].level <= logLevel {
			output = append(output, fmt.Sprintf("%s %s - %s", logBuffer[i].time, logBuffer[i].level, logBuffer[i].log))
		}
	}
	return output
}
