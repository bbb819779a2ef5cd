// Package dberr provides the structured error type used across the storage
// and transaction kernel.
package dberr

import (
	"fmt"
	"runtime"
	"strings"
)

// Category classifies errors by their nature and appropriate handling
// strategy.
type Category int

const (
	// CategoryUser marks errors caused by invalid caller input, such as a
	// schema mismatch on insert.
	CategoryUser Category = iota

	// CategoryConcurrency marks errors produced by lock contention, such as
	// a timed-out lock wait.
	CategoryConcurrency

	// CategorySystem marks errors from the underlying filesystem or log.
	CategorySystem

	// CategoryData marks errors indicating corrupt or inconsistent on-disk
	// state.
	CategoryData
)

// Code names the error kind from the taxonomy: TransactionAborted,
// DbException, or NoElement.
type Code string

const (
	CodeTransactionAborted Code = "TransactionAborted"
	CodeDbException        Code = "DbException"
	CodeNoElement          Code = "NoElement"
)

// DBError is a structured, chainable error carrying enough context to
// diagnose a failure without re-deriving it from logs.
type DBError struct {
	Code      Code
	Category  Category
	Message   string
	Operation string
	Component string
	Cause     error
	Stack     []uintptr
}

// New creates a DBError with the given code, category and message.
func New(category Category, code Code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap attaches operation/component context to err. If err is already a
// DBError, the context is filled in only where absent; otherwise a new
// DBError of category CategorySystem is created around it.
func Wrap(err error, code Code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	if dbErr, ok := err.(*DBError); ok {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  CategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the error interface.
func (e *DBError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap enables errors.Is/errors.As chain traversal.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, dberr.TransactionAborted("")) style code checks by
// comparing Code, so callers don't need to type-assert.
func (e *DBError) Is(target error) bool {
	other, ok := target.(*DBError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// FormatStack renders the captured call stack for debugging.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return b.String()
}

// TransactionAborted builds the sentinel error raised when a lock wait
// exceeds its randomized timeout budget.
func TransactionAborted(operation string) *DBError {
	return &DBError{
		Code:      CodeTransactionAborted,
		Category:  CategoryConcurrency,
		Message:   "transaction aborted: lock wait timeout",
		Operation: operation,
		Component: "LockManager",
		Stack:     captureStack(),
	}
}

// DbException builds a DbException-coded error with the given message.
func DbException(component, message string) *DBError {
	return &DBError{
		Code:      CodeDbException,
		Category:  CategoryUser,
		Message:   message,
		Component: component,
		Stack:     captureStack(),
	}
}

// NoElement builds the sentinel error raised by an exhausted iterator.
func NoElement(component string) *DBError {
	return &DBError{
		Code:      CodeNoElement,
		Category:  CategoryUser,
		Message:   "no more elements",
		Component: component,
		Stack:     captureStack(),
	}
}
