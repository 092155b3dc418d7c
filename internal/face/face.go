// ABOUTME: Face comparison seam for selfie-vs-document verification
// ABOUTME: Defines the interface only; no comparator ships with the gateway

// Package face defines the pluggable face-comparison seam. The gateway
// accepts selfie and document images and hands them to a Comparator; no
// implementation is bundled, so deployments without one answer 501.
package face

import "context"

// Result is the outcome of comparing two face images.
type Result struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
}

// Comparator compares a live selfie against a document portrait. Both
// arguments are raw image bytes; format sniffing is the implementation's
// concern.
type Comparator interface {
	Compare(ctx context.Context, selfie, document []byte) (Result, error)
}
