// Package id provides unique identifier generation for jobs.
package id

import (
	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-6f1c2a4e-3b0d-4c9a-9a51-0d4c7f6b2e11
func Generate() string {
	return "job-" + uuid.NewString()
}
