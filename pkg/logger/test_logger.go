package logger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage is one record captured by a TestLogger
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

type capture struct {
	mu       sync.Mutex
	messages []LogMessage
}

// TestLogger records every message in memory so tests can assert on them.
// Child loggers from WithField/WithError share the parent's capture.
type TestLogger struct {
	sink   *capture
	fields map[string]interface{}
	err    error
	nop    *zerolog.Logger
}

// NewTestLogger creates an empty capturing logger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{sink: &capture{}, nop: &nop}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.messages = append(l.sink.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merged,
		Error:   l.err,
	})
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.log("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	child := *l
	child.fields = make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return &child
}

func (l *TestLogger) WithError(err error) Logger {
	child := *l
	child.err = err
	return &child
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.nop }

// GetMessages returns a copy of all captured messages
func (l *TestLogger) GetMessages() []LogMessage {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	out := make([]LogMessage, len(l.sink.messages))
	copy(out, l.sink.messages)
	return out
}

// GetMessagesByLevel returns captured messages of one level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, m := range l.GetMessages() {
		if m.Level == level {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// HasMessage reports whether msg was logged at any level
func (l *TestLogger) HasMessage(msg string) bool {
	for _, m := range l.GetMessages() {
		if m.Message == msg {
			return true
		}
	}
	return false
}

// HasError reports whether anything was logged at error level
func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

// Clear drops all captured messages
func (l *TestLogger) Clear() {
	l.sink.mu.Lock()
	l.sink.messages = nil
	l.sink.mu.Unlock()
}
