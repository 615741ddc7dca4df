package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrStoreCorruption marks a malformed fingerprint store. Always recovered
	// through Validate/Rebuild; never surfaced as a batch failure.
	ErrStoreCorruption = errors.New("store corruption")
	// ErrProbeFailure marks a media probe that could not extract metadata.
	ErrProbeFailure = errors.New("probe failure")
	// ErrDuplicatePropertyMismatch marks a plausibility-guard trip that turned
	// an automatic delete into a flagged skip.
	ErrDuplicatePropertyMismatch = errors.New("duplicate property mismatch")
	// ErrTrainingDataOverflow marks a training update rejected for size.
	ErrTrainingDataOverflow = errors.New("training data overflow")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether err should trigger a retry with reduced
// settings instead of failing the file outright.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient), errors.Is(err, ErrProbeFailure):
		return true
	default:
		return false
	}
}

// NeedsReview reports whether err asks for manual intervention rather than a retry.
func NeedsReview(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDuplicatePropertyMismatch), errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
