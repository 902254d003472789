package errors

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestUnsupportedStructuralChangeError(t *testing.T) {
	underlying := errors.New("resource not found")
	err := NewUnsupportedStructuralChangeError("app", "com/acme/Outer$3", "nested type bytes unavailable").
		WithCause(underlying)

	if err.Type != ErrorTypeUnsupportedChange {
		t.Errorf("Expected Type to be ErrorTypeUnsupportedChange, got %v", err.Type)
	}

	if err.Loader != "app" {
		t.Errorf("Expected Loader to be 'app', got %s", err.Loader)
	}

	if err.TypeName != "com/acme/Outer$3" {
		t.Errorf("Expected TypeName to be 'com/acme/Outer$3', got %s", err.TypeName)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "unsupported structural change for com/acme/Outer$3 in loader app: nested type bytes unavailable: resource not found"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestUnsupportedStructuralChangeErrorWithoutCause(t *testing.T) {
	err := NewUnsupportedStructuralChangeError("app", "Outer", "hierarchy change")

	expectedMsg := "unsupported structural change for Outer in loader app: hierarchy change"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	if err.Unwrap() != nil {
		t.Errorf("Expected no underlying error")
	}
}

func TestNameExtractionError(t *testing.T) {
	underlying := errors.New("bad magic")
	err := NewNameExtractionError(0, underlying).WithSource("app", "/tmp/Outer.class")

	if err.Type != ErrorTypeNameExtraction {
		t.Errorf("Expected Type to be ErrorTypeNameExtraction, got %v", err.Type)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "cannot extract type name from /tmp/Outer.class (loader app) at offset 0: bad magic"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	bare := NewNameExtractionError(12, underlying)
	if bare.Error() != "cannot extract type name at offset 12: bad magic" {
		t.Errorf("Unexpected message %q", bare.Error())
	}
}

func TestContractViolationError(t *testing.T) {
	err := NewContractViolationError("app", "nested entries without enclosing type", []string{"Outr$1"}).
		WithHint("Outr$1", "Outer")

	if err.Type != ErrorTypeContract {
		t.Errorf("Expected Type to be ErrorTypeContract, got %v", err.Type)
	}

	msg := err.Error()
	if !strings.Contains(msg, "Outr$1") || !strings.Contains(msg, "did you mean Outer?") {
		t.Errorf("Expected message to name the entry and the hint, got %q", msg)
	}
}

func TestStalePlanError(t *testing.T) {
	err := NewStalePlanError("app", 3, 4)

	expectedMsg := "stale plan for loader app: planned at generation 3, cache is at 4"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	var target *StalePlanError
	if !errors.As(error(err), &target) {
		t.Errorf("Expected errors.As to find *StalePlanError")
	}
}

func TestFileError(t *testing.T) {
	underlying := &fs.PathError{Op: "open", Path: "/path/to/file", Err: fs.ErrPermission}
	err := NewFileError("read", "/path/to/file", underlying)

	if err.Type != ErrorTypePermission {
		t.Errorf("Expected Type to be ErrorTypePermission, got %v", err.Type)
	}

	if err.Operation != "read" {
		t.Errorf("Expected Operation to be 'read', got %s", err.Operation)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "file read failed for /path/to/file: open /path/to/file: permission denied"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestFileErrorWithNotFound(t *testing.T) {
	underlying := errors.New("no such file or directory")
	err := NewFileError("stat", "/missing/file", underlying)

	if err.Type != ErrorTypeFileNotFound {
		t.Errorf("Expected Type to be ErrorTypeFileNotFound, got %v", err.Type)
	}
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("invalid value")
	err := NewConfigError("field_name", "invalid_value", underlying)

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := `config error for field field_name (value invalid_value): invalid value`
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := errors.New("error 3")

	multiErr := NewMultiError([]error{err1, err2, err3})
	if len(multiErr.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(multiErr.Errors))
	}
	if !strings.HasPrefix(multiErr.Error(), "3 errors: ") {
		t.Errorf("Expected message to start with '3 errors: ', got %q", multiErr.Error())
	}

	singleErr := NewMultiError([]error{err1})
	if singleErr.Error() != "error 1" {
		t.Errorf("Expected 'error 1', got %q", singleErr.Error())
	}

	emptyErr := NewMultiError([]error{nil, nil})
	if emptyErr.Error() != "no errors" {
		t.Errorf("Expected 'no errors', got %q", emptyErr.Error())
	}
	if emptyErr.ErrorOrNil() != nil {
		t.Errorf("Expected ErrorOrNil to be nil for empty MultiError")
	}

	if !errors.Is(multiErr, err2) {
		t.Errorf("Expected errors.Is to find a wrapped error")
	}
}

func TestTimestamp(t *testing.T) {
	err := NewUnsupportedStructuralChangeError("app", "Outer", "test")
	if err.Timestamp.IsZero() {
		t.Errorf("Expected non-zero timestamp")
	}

	now := time.Now()
	if err.Timestamp.After(now) || now.Sub(err.Timestamp) > time.Second {
		t.Errorf("Timestamp seems incorrect: %v", err.Timestamp)
	}
}
