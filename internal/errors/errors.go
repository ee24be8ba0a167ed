// Package errors defines the structured error types used across hydrate and
// a collector that gathers per-page failures during a build run.
package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// PageError records a failure while processing one output page.
type PageError struct {
	Page      string
	Component string
	Message   string
	Severity  ErrorSeverity
	Cause     error
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (pe *PageError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", pe.Page, pe.Severity, pe.Message)
	if pe.Cause != nil {
		msg += ": " + pe.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (pe *PageError) Unwrap() error {
	return pe.Cause
}

// ErrorCollector collects page errors from concurrent build workers.
type ErrorCollector struct {
	pageErrors []PageError
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		pageErrors: make([]PageError, 0),
	}
}

// Add adds a page error to the collector
func (ec *ErrorCollector) Add(err PageError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	ec.pageErrors = append(ec.pageErrors, err)
}

// GetErrors returns a copy of all collected errors sorted by page.
func (ec *ErrorCollector) GetErrors() []PageError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]PageError, len(ec.pageErrors))
	copy(result, ec.pageErrors)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Page < result[j].Page
	})
	return result
}

// HasErrors returns true if any error at or above ErrorSeverityError was added.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	for _, err := range ec.pageErrors {
		if err.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.pageErrors = ec.pageErrors[:0]
}

// Err folds the collected errors into a single build error, or nil when
// nothing at error severity was recorded.
func (ec *ErrorCollector) Err() error {
	if !ec.HasErrors() {
		return nil
	}

	var lines []string
	failed := 0
	for _, err := range ec.GetErrors() {
		if err.Severity < ErrorSeverityError {
			continue
		}
		failed++
		lines = append(lines, err.Error())
	}

	return NewBuildError(ErrCodeBuildFailed,
		fmt.Sprintf("%d page(s) failed:\n  %s", failed, strings.Join(lines, "\n  ")), nil)
}
