package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized provider errors. These mirror the error classes a browser
// geolocation stack reports and are the only codes callers should branch on.
var (
	ErrPermissionDenied    = errors.New("PERMISSION_DENIED")
	ErrPositionUnavailable = errors.New("POSITION_UNAVAILABLE")
	ErrTimeout             = errors.New("TIMEOUT")
	ErrInternal            = errors.New("INTERNAL")
)

// PlatformMap defines the error token mapping for a specific platform.
type PlatformMap struct {
	Denied      []string // Tokens that map to PERMISSION_DENIED
	Unavailable []string // Tokens that map to POSITION_UNAVAILABLE
	Timeout     []string // Tokens that map to TIMEOUT
}

// PlatformErrorMappings contains the deterministic error mapping tables for
// all supported platforms. Matching is token-based, not heuristic: a platform
// message maps to a normalized code only if it contains a listed token, and
// unknown tokens map to INTERNAL.
//
// To extend: add a platform entry with its token arrays and test each
// token against the exact normalized code it should produce. Unknown
// platforms fall back to the "generic" table.
var PlatformErrorMappings = map[string]PlatformMap{
	"android": {
		Denied: []string{
			"ACCESS_FINE_LOCATION",
			"ACCESS_COARSE_LOCATION",
			"SECURITY_EXCEPTION",
			"PERMISSION_DENIED",
			"LOCATION_PERMISSION",
		},
		Unavailable: []string{
			"PROVIDER_DISABLED",
			"LOCATION_DISABLED",
			"GPS_PROVIDER_UNAVAILABLE",
			"NETWORK_PROVIDER_UNAVAILABLE",
			"AIRPLANE_MODE",
			"NO_LAST_KNOWN_LOCATION",
		},
		Timeout: []string{
			"LOCATION_TIMEOUT",
			"ACQUISITION_TIMEOUT",
			"DEADLINE_EXCEEDED",
		},
	},
	"ios": {
		Denied: []string{
			"KCLERRORDENIED",
			"AUTHORIZATION_DENIED",
			"AUTHORIZATION_RESTRICTED",
			"NOT_DETERMINED",
		},
		Unavailable: []string{
			"KCLERRORLOCATIONUNKNOWN",
			"KCLERRORNETWORK",
			"LOCATION_SERVICES_DISABLED",
			"RANGING_UNAVAILABLE",
		},
		Timeout: []string{
			"REQUEST_TIMED_OUT",
			"TIMEOUT",
		},
	},
	"generic": {
		Denied: []string{
			"PERMISSION_DENIED",
			"DENIED",
			"FORBIDDEN",
			"UNAUTHORIZED",
		},
		Unavailable: []string{
			"POSITION_UNAVAILABLE",
			"UNAVAILABLE",
			"NO_FIX",
			"NO_SIGNAL",
			"DISABLED",
			"OFFLINE",
		},
		Timeout: []string{
			"TIMEOUT",
			"TIMED_OUT",
			"DEADLINE",
		},
	},
}

// PlatformError wraps a raw platform error with its normalized code and
// opaque diagnostic details.
type PlatformError struct {
	Code     error       // Normalized code
	Original error       // Raw platform error
	Details  interface{} // Platform payload (opaque)
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%v (platform: %v)", e.Code, e.Original)
}

func (e *PlatformError) Unwrap() error {
	return e.Code
}

// NormalizePlatformError maps a platform error to a normalized code using the
// generic mapping table.
func NormalizePlatformError(platformErr error, payload interface{}) error {
	return NormalizePlatformErrorWithPlatform(platformErr, payload, "generic")
}

// NormalizePlatformErrorWithPlatform maps a platform error using a specific
// platform's mapping table.
func NormalizePlatformErrorWithPlatform(platformErr error, payload interface{}, platformID string) error {
	if platformErr == nil {
		return nil
	}

	msg := platformErr.Error()
	code := mapPlatformErrorToCode(msg, platformID)

	return &PlatformError{
		Code:     code,
		Original: platformErr,
		Details:  payload,
	}
}

// mapPlatformErrorToCode maps a platform error message to a normalized code
// using table-driven matching.
func mapPlatformErrorToCode(msg string, platformID string) error {
	platformMap, exists := PlatformErrorMappings[platformID]
	if !exists {
		platformMap = PlatformErrorMappings["generic"]
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range platformMap.Denied {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrPermissionDenied
		}
	}

	for _, token := range platformMap.Timeout {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrTimeout
		}
	}

	for _, token := range platformMap.Unavailable {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrPositionUnavailable
		}
	}

	// Unknown token maps to INTERNAL
	return ErrInternal
}

// CodeOf returns the normalized code string for an error, or "INTERNAL"
// when the error carries no recognized code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrPositionUnavailable):
		return "POSITION_UNAVAILABLE"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}
