package sandbox

import (
	"slices"
	"time"
)

// Policy defines resource limits for interpreter workers.
type Policy struct {
	MaxMemory    string        // Docker memory limit (e.g. "512m")
	MaxTimeout   time.Duration // Maximum duration of one run
	StartTimeout time.Duration // How long a worker may take to report ready
	MaxOutput    int           // Largest single harness event, in bytes
	Network      bool          // Whether network access is allowed
	Images       []string      // Allowed Docker images
}

// DefaultPolicy returns safe defaults for code execution.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemory:    "512m",
		MaxTimeout:   30 * time.Second,
		StartTimeout: 60 * time.Second,
		MaxOutput:    32 << 20,
		Network:      false,
		Images: []string{
			"python:3.12-slim",
			"pyrun/python-matplotlib:3.12",
		},
	}
}

// IsImageAllowed checks if an image is on the allowlist.
func (p Policy) IsImageAllowed(image string) bool {
	return slices.Contains(p.Images, image)
}
