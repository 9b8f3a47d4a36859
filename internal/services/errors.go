package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers for the retrieval and archival pipeline. Every terminal
// failure surfaced by the network, eprints, bagit, and pipeline packages wraps
// exactly one of these so callers can branch with errors.Is.
var (
	ErrNoContent        = errors.New("no content")
	ErrAuthentication   = errors.New("authentication failure")
	ErrServiceFailure   = errors.New("service failure")
	ErrInternal         = errors.New("internal error")
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrNetwork          = errors.New("network failure")
	ErrBadURL           = errors.New("bad url")
	ErrCorruptedContent = errors.New("corrupted content")
	ErrConfiguration    = errors.New("configuration error")
)

var markers = []error{
	ErrNoContent,
	ErrAuthentication,
	ErrServiceFailure,
	ErrInternal,
	ErrRateLimit,
	ErrNetwork,
	ErrBadURL,
	ErrCorruptedContent,
	ErrConfiguration,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the sentinel carried by err, or nil when err is untagged.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// Kind names the error kind carried by err. Untagged errors report
// "InternalError" so every failure has a printable kind.
func Kind(err error) string {
	switch Marker(err) {
	case ErrNoContent:
		return "NoContent"
	case ErrAuthentication:
		return "AuthenticationFailure"
	case ErrServiceFailure:
		return "ServiceFailure"
	case ErrRateLimit:
		return "RateLimitExceeded"
	case ErrNetwork:
		return "NetworkFailure"
	case ErrBadURL:
		return "BadURL"
	case ErrCorruptedContent:
		return "CorruptedContent"
	case ErrConfiguration:
		return "ConfigurationError"
	default:
		return "InternalError"
	}
}

// ErrorDetails is the user-facing breakdown of a tagged error.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details strips the marker prefix from err so the message reads naturally in
// summaries, and pairs it with the error kind.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	msg := err.Error()
	if marker := Marker(err); marker != nil {
		msg = strings.TrimPrefix(msg, marker.Error()+": ")
	}
	return ErrorDetails{Kind: Kind(err), Message: strings.TrimSpace(msg)}
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
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
