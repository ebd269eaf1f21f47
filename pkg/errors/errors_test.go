package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if !strings.Contains(err.Error(), "test error") {
		t.Errorf("Expected error message to contain 'test error', got: %s", err.Error())
	}

	if err.Location() == "" {
		t.Error("Location should not be empty")
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if err == nil {
		t.Fatal("Wrap() returned nil")
	}

	if !strings.Contains(err.Error(), "wrapped") {
		t.Errorf("Expected error message to contain 'wrapped', got: %s", err.Error())
	}

	if !strings.Contains(err.Error(), "base error") {
		t.Errorf("Expected error message to contain 'base error', got: %s", err.Error())
	}

	// Test unwrapping
	unwrapped := errors.Unwrap(err)
	if unwrapped != baseErr {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "anything"); err != nil {
		t.Errorf("Wrap(nil) should return nil, got: %v", err)
	}
}

func TestWithField(t *testing.T) {
	err := New("test error").WithField("key", "value")

	fields := err.GetFields()
	if len(fields) != 1 {
		t.Fatalf("Expected 1 field, got %d", len(fields))
	}

	if fields["key"] != "value" {
		t.Errorf("Expected field['key'] = 'value', got: %v", fields["key"])
	}
}

func TestWithFields(t *testing.T) {
	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	err := New("test error").WithFields(fields)

	errFields := err.GetFields()
	if len(errFields) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(errFields))
	}

	if errFields["key1"] != "value1" {
		t.Errorf("Expected field['key1'] = 'value1', got: %v", errFields["key1"])
	}

	if errFields["key2"] != 123 {
		t.Errorf("Expected field['key2'] = 123, got: %v", errFields["key2"])
	}
}

func TestWithCode(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")

	if err.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", err.GetCode())
	}
}

func TestParseErrorSentinel(t *testing.T) {
	err := NewParseError("score", "abc", errors.New("invalid syntax"))

	if !errors.Is(err, ErrParse) {
		t.Error("NewParseError should match ErrParse")
	}

	if errors.Is(err, ErrIO) {
		t.Error("NewParseError should not match ErrIO")
	}

	if err.GetCode() != "PARSE_ERROR" {
		t.Errorf("Expected code 'PARSE_ERROR', got: %s", err.GetCode())
	}

	if err.GetFields()["value"] != "abc" {
		t.Errorf("Expected value field 'abc', got: %v", err.GetFields()["value"])
	}
}

func TestMalformedRecordSentinel(t *testing.T) {
	err := NewMalformedRecord("scp entry", "only_key")

	if !errors.Is(err, ErrMalformedRecord) {
		t.Error("NewMalformedRecord should match ErrMalformedRecord")
	}

	if err.GetCode() != "MALFORMED_RECORD" {
		t.Errorf("Expected code 'MALFORMED_RECORD', got: %s", err.GetCode())
	}

	if err.GetFields()["record"] != "only_key" {
		t.Errorf("Expected record field 'only_key', got: %v", err.GetFields()["record"])
	}
}

func TestIOErrorSentinel(t *testing.T) {
	err := NewIOError("open", "/no/such/file", errors.New("no such file or directory"))

	if !errors.Is(err, ErrIO) {
		t.Error("NewIOError should match ErrIO")
	}

	if !strings.Contains(err.Error(), "/no/such/file") {
		t.Errorf("Expected path in message, got: %s", err.Error())
	}
}

func TestEmptyGroupSentinel(t *testing.T) {
	err := NewEmptyGroup("utt42")

	if !errors.Is(err, ErrEmptyGroup) {
		t.Error("NewEmptyGroup should match ErrEmptyGroup")
	}

	if err.GetFields()["utterance_id"] != "utt42" {
		t.Errorf("Expected utterance_id field 'utt42', got: %v", err.GetFields()["utterance_id"])
	}
}

func TestUnknownMethodSentinel(t *testing.T) {
	err := NewUnknownMethod("mode")

	if !errors.Is(err, ErrUnknownMethod) {
		t.Error("NewUnknownMethod should match ErrUnknownMethod")
	}

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatal("errors.As should recognize *Error")
	}
}

func TestErrorsAsThroughWrap(t *testing.T) {
	inner := NewParseError("score", "x", errors.New("bad"))
	outer := Wrap(inner, "reading phone table")

	if !errors.Is(outer, ErrParse) {
		t.Error("wrapped error should still match ErrParse")
	}

	if GetErrorCode(outer) != "PARSE_ERROR" {
		t.Errorf("Expected code from wrapped error, got: %s", GetErrorCode(outer))
	}
}
