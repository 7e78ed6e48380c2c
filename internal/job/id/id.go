// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: prep-<timestamp>-<random>
// Example: prep-1701432000-a1b2c3d4
func Generate() string {
	random := uuid.New()
	return fmt.Sprintf("prep-%d-%x", time.Now().Unix(), random[:4])
}
