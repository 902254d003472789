package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/standardbeagle/redefine/internal/types"
)

// Error types for the redefinition engine
type ErrorType string

const (
	// Redefinition errors
	ErrorTypeUnsupportedChange ErrorType = "unsupported_structural_change"
	ErrorTypeNameExtraction    ErrorType = "name_extraction"
	ErrorTypeContract          ErrorType = "contract_violation"
	ErrorTypeStalePlan         ErrorType = "stale_plan"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// UnsupportedStructuralChangeError is returned when a redefinition implies a
// change the engine cannot reconcile, such as a required nested type whose
// bytes cannot be obtained. The whole batch fails and nothing is committed.
type UnsupportedStructuralChangeError struct {
	Type       ErrorType
	Loader     types.LoaderID
	TypeName   string
	Reason     string
	Underlying error
	Timestamp  time.Time
}

// NewUnsupportedStructuralChangeError creates a new structural change error
func NewUnsupportedStructuralChangeError(loader types.LoaderID, typeName, reason string) *UnsupportedStructuralChangeError {
	return &UnsupportedStructuralChangeError{
		Type:      ErrorTypeUnsupportedChange,
		Loader:    loader,
		TypeName:  typeName,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// WithCause attaches the error that triggered the failure
func (e *UnsupportedStructuralChangeError) WithCause(err error) *UnsupportedStructuralChangeError {
	e.Underlying = err
	return e
}

// Error implements the error interface
func (e *UnsupportedStructuralChangeError) Error() string {
	msg := fmt.Sprintf("unsupported structural change for %s in loader %s: %s", e.TypeName, e.Loader, e.Reason)
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As
func (e *UnsupportedStructuralChangeError) Unwrap() error {
	return e.Underlying
}

// NameExtractionError is returned when raw bytes are too malformed to even
// yield the declared type name.
type NameExtractionError struct {
	Type       ErrorType
	Loader     types.LoaderID
	Source     string // file path or request index, when known
	Offset     int
	Underlying error
	Timestamp  time.Time
}

// NewNameExtractionError creates a new name extraction error
func NewNameExtractionError(offset int, err error) *NameExtractionError {
	return &NameExtractionError{
		Type:       ErrorTypeNameExtraction,
		Offset:     offset,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithSource records where the bytes came from
func (e *NameExtractionError) WithSource(loader types.LoaderID, source string) *NameExtractionError {
	e.Loader = loader
	e.Source = source
	return e
}

// Error implements the error interface
func (e *NameExtractionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("cannot extract type name from %s (loader %s) at offset %d: %v", e.Source, e.Loader, e.Offset, e.Underlying)
	}
	return fmt.Sprintf("cannot extract type name at offset %d: %v", e.Offset, e.Underlying)
}

// Unwrap returns the underlying error
func (e *NameExtractionError) Unwrap() error {
	return e.Underlying
}

// ContractViolationError reports a malformed batch, e.g. nested entries that
// never chain to a root. It indicates a caller bug rather than a runtime
// condition.
type ContractViolationError struct {
	Type      ErrorType
	Loader    types.LoaderID
	Names     []string
	Hints     map[string]string // unresolved name -> closest known name
	Message   string
	Timestamp time.Time
}

// NewContractViolationError creates a new contract violation error
func NewContractViolationError(loader types.LoaderID, message string, names []string) *ContractViolationError {
	return &ContractViolationError{
		Type:      ErrorTypeContract,
		Loader:    loader,
		Names:     names,
		Hints:     make(map[string]string),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithHint records the closest known name for an unresolved one
func (e *ContractViolationError) WithHint(name, closest string) *ContractViolationError {
	e.Hints[name] = closest
	return e
}

// Error implements the error interface
func (e *ContractViolationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "contract violation in loader %s: %s: %s", e.Loader, e.Message, strings.Join(e.Names, ", "))
	for _, name := range e.Names {
		if hint, ok := e.Hints[name]; ok {
			fmt.Fprintf(&b, " (%s: did you mean %s?)", name, hint)
		}
	}
	return b.String()
}

// StalePlanError is returned when a plan is committed after the identity
// cache of one of its loaders has moved on.
type StalePlanError struct {
	Type      ErrorType
	Loader    types.LoaderID
	Planned   uint64
	Current   uint64
	Timestamp time.Time
}

// NewStalePlanError creates a new stale plan error
func NewStalePlanError(loader types.LoaderID, planned, current uint64) *StalePlanError {
	return &StalePlanError{
		Type:      ErrorTypeStalePlan,
		Loader:    loader,
		Planned:   planned,
		Current:   current,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *StalePlanError) Error() string {
	return fmt.Sprintf("stale plan for loader %s: planned at generation %d, cache is at %d", e.Loader, e.Planned, e.Current)
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileNotFound
	if isPermissionError(err) {
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, fs.ErrPermission)
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
