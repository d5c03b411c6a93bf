// Package id provides identifier generation for productions.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// prefix marks campaign IDs minted by this service rather than by a caller.
const prefix = "prod-"

// Generate creates a new campaign ID for callers that do not assign one.
// Format: prod-<uuid v7>
// Example: prod-01927c2e-7b0a-7cc1-9c1e-4a8d1f6b2e11
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		// Fallback to a random v4 if the clock source fails
		u = uuid.New()
	}
	return prefix + u.String()
}

// IsGenerated reports whether the ID was minted by Generate.
func IsGenerated(campaignID string) bool {
	rest, ok := strings.CutPrefix(campaignID, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
