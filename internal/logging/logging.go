package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// L is the process-wide logger. Components build entries fluently:
//
//	logging.L.Error(err).WithField("jobId", id).WithMessage("dispatch failed").Write()
var L *Logger

func init() {
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).With().Timestamp().Logger()

	L = &Logger{zlog: &logger}
}

type Logger struct {
	mu   sync.RWMutex
	zlog *zerolog.Logger
}

// SetOutput replaces the underlying zerolog logger. Tests use this to capture
// or silence output.
func (l *Logger) SetOutput(zl zerolog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = &zl
}

type LogEntry struct {
	logger  *Logger
	Level   string
	Err     error
	Message string
	Fields  map[string]any
}

func (l *Logger) Info() *LogEntry {
	return &LogEntry{logger: l, Level: "info", Fields: map[string]any{}}
}

func (l *Logger) Warn() *LogEntry {
	return &LogEntry{logger: l, Level: "warn", Fields: map[string]any{}}
}

func (l *Logger) Error(err error) *LogEntry {
	return &LogEntry{logger: l, Level: "error", Err: err, Fields: map[string]any{}}
}

func (e *LogEntry) WithMessage(msg string) *LogEntry {
	e.Message = msg
	return e
}

func (e *LogEntry) WithField(key string, value any) *LogEntry {
	e.Fields[key] = value
	return e
}

func (e *LogEntry) WithJob(jobID int64) *LogEntry {
	e.Fields["jobId"] = jobID
	return e
}

// Write finalizes the entry and emits it through the global zerolog logger.
func (e *LogEntry) Write() {
	e.logger.mu.RLock()
	defer e.logger.mu.RUnlock()

	switch e.Level {
	case "warn":
		e.logger.zlog.Warn().Fields(e.Fields).Msg(e.Message)
	case "error":
		e.logger.zlog.Error().Err(e.Err).Fields(e.Fields).Msg(e.Message)
	default:
		e.logger.zlog.Info().Fields(e.Fields).Msg(e.Message)
	}
}
