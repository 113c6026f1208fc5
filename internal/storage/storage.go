package storage

import (
	"context"
	"errors"
	"time"
)

// RunStatus is how a recorded run ended.
type RunStatus string

const (
	StatusOK          RunStatus = "ok"
	StatusFailed      RunStatus = "failed"
	StatusTimeout     RunStatus = "timeout"
	StatusUnavailable RunStatus = "unavailable"
)

// Source is the surface a run was submitted through.
type Source string

const (
	SourceHTTP      Source = "http"
	SourceWebSocket Source = "ws"
	SourceCLI       Source = "cli"
	SourceMCP       Source = "mcp"
)

// ErrNotFound is returned when no run matches an ID or prefix.
var ErrNotFound = errors.New("run not found")

// Run is the metadata of one execution. Output payloads are not kept.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Source     Source    `json:"source" yaml:"source"`
	Status     RunStatus `json:"status" yaml:"status"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	Code       string    `json:"code" yaml:"code"`
	TextItems  int       `json:"text_items" yaml:"text_items"`
	ImageItems int       `json:"image_items" yaml:"image_items"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	Status RunStatus
	Source Source
	Limit  int
	Offset int
}

// Store is the persistence interface for run history.
type Store interface {
	// CreateRun inserts a run. The ID field must be set by the caller.
	CreateRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID or unique ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by created_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// DeleteRun removes a run by ID or unique ID prefix.
	DeleteRun(ctx context.Context, id string) error

	// PruneRuns deletes runs created before cutoff and returns how many.
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases resources.
	Close() error
}
