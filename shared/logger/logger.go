// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger writes one JSON object per line, tagged with the component and the
// tenant database and request the entry belongs to.
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	mu  sync.Mutex
	out *log.Logger
}

// LogEntry is the serialized form of one log line
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	Tenant     string                 `json:"tenant,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the specified component writing to stdout
func New(component string) *Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter creates a Logger writing to w
func NewWithWriter(component string, w io.Writer) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		out:        log.New(w, "", 0),
	}
}

// Log creates a structured log entry and writes it
func (l *Logger) Log(level LogLevel, tenant, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		Tenant:     tenant,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(tenant, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, tenant, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(tenant, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, tenant, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(tenant, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, tenant, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(tenant, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, tenant, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(tenant, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(tenant, requestID, message, fields)
}

// ErrorWithCode logs an error with a notification code and HTTP status
func (l *Logger) ErrorWithCode(tenant, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(tenant, requestID, message, fields)
}

// Scoped is a Logger with the tenant and request already filled in
type Scoped struct {
	base      *Logger
	tenant    string
	requestID string
}

// WithRequest binds a tenant and request id for the lifetime of one request
func (l *Logger) WithRequest(tenant, requestID string) *Scoped {
	return &Scoped{base: l, tenant: tenant, requestID: requestID}
}

// WithTenant returns a copy scoped to another tenant, keeping the request id
func (s *Scoped) WithTenant(tenant string) *Scoped {
	return &Scoped{base: s.base, tenant: tenant, requestID: s.requestID}
}

func (s *Scoped) Info(message string, fields map[string]interface{}) {
	s.base.Info(s.tenant, s.requestID, message, fields)
}

func (s *Scoped) Warn(message string, fields map[string]interface{}) {
	s.base.Warn(s.tenant, s.requestID, message, fields)
}

func (s *Scoped) Error(message string, fields map[string]interface{}) {
	s.base.Error(s.tenant, s.requestID, message, fields)
}

func (s *Scoped) Debug(message string, fields map[string]interface{}) {
	s.base.Debug(s.tenant, s.requestID, message, fields)
}
