package errors

import (
	"errors"
	"testing"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(cause, ErrCodeConflict, "create user")

	if err.Error() != "create user: duplicate key" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause")
	}
	if !IsConflict(err) {
		t.Errorf("expected conflict code")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "noop") != nil {
		t.Errorf("Wrap(nil) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("x"), ErrCodeValidation, "field %s", "email")
	if err.Message != "field email" || !IsValidation(err) {
		t.Errorf("unexpected error: %+v", err)
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "email must be valid")
	if GetField(err) != "email" || GetCode(err) != ErrCodeValidation {
		t.Errorf("unexpected error: %+v", err)
	}
}

func TestNotFoundf(t *testing.T) {
	err := NotFoundf("user %d", 42)
	if !IsNotFound(err) || err.Error() != "user 42" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetCode_NonAppError(t *testing.T) {
	if GetCode(errors.New("plain")) != "" {
		t.Errorf("expected empty code")
	}
	if GetField(errors.New("plain")) != "" {
		t.Errorf("expected empty field")
	}
}
