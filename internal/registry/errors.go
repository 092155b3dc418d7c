// ABOUTME: Typed errors for registry lookups
// ABOUTME: Distinguishes transport failures, bad upstream payloads, and auth exhaustion

package registry

import "fmt"

// NetworkError wraps a transport-level failure reaching the registry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("registry unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FormatError means the registry accepted the request but returned a body
// that is not valid JSON.
type FormatError struct {
	Status int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("registry returned non-JSON body with status %d", e.Status)
}

// RejectedError means every auth strategy was rejected, or the upstream
// failed in a way that ruled out further attempts. Detail carries a bounded
// excerpt of the last response body; SecretHint is the masked shared secret
// so operators can spot a stale or truncated key without it being logged.
type RejectedError struct {
	Status     int
	Detail     string
	SecretHint string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("registry rejected all auth strategies, last status %d", e.Status)
}
