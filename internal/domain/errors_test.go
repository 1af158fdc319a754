package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "quantity must be a positive integer"}
	if err.Error() != "quantity must be a positive integer" {
		t.Errorf("Error() = %q, want %q", err.Error(), "quantity must be a positive integer")
	}
}

func TestValidationError_As(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", &ValidationError{Message: "participant is required"})

	var vErr *ValidationError
	if !errors.As(wrapped, &vErr) {
		t.Fatal("errors.As should unwrap a wrapped ValidationError")
	}
	if vErr.Message != "participant is required" {
		t.Errorf("Message = %q, want %q", vErr.Message, "participant is required")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrOrderNotFound,
		ErrNoLiquidity,
		ErrAllocation,
		ErrRoundNotFound,
		ErrSymbolNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
