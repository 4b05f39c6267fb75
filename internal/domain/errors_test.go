package domain

import (
	"errors"
	"testing"
)

func TestVenueError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewVenueError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "venue connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "venue connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("rejection", func(t *testing.T) {
		err := NewVenueRejection("order_send", baseErr)

		if err.IsRetriable() {
			t.Error("Expected rejection to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewVenueError("dial", baseErr)
		rejection := NewVenueRejection("order_send", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}

		if IsRetriable(rejection) {
			t.Error("IsRetriable should return false for rejection")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "signing_secret", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [signing_secret]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestDuplicateExposureError(t *testing.T) {
	err := &DuplicateExposureError{Symbol: "EURUSD", Direction: DirectionBuy}

	if err.Error() != "duplicate exposure for EURUSD BUY" {
		t.Errorf("Error message = %q", err.Error())
	}

	wrapped := errors.Join(errors.New("outer"), err)
	var dup *DuplicateExposureError
	if !errors.As(wrapped, &dup) {
		t.Error("errors.As should find DuplicateExposureError through Join")
	}
}

func TestAuthorizationError(t *testing.T) {
	err := &AuthorizationError{Reason: "token expired"}

	if err.Error() != "risk authorization rejected: token expired" {
		t.Errorf("Error message = %q", err.Error())
	}

	if IsRetriable(err) {
		t.Error("authorization failures are terminal, not retriable")
	}
}
