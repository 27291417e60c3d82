package store

import (
	"time"
)

// Record is the persisted outcome of one SAXPY run.
type Record struct {
	// RunID is the uuid attached to the run's log lines
	RunID string `json:"runId"`

	Timestamp time.Time `json:"timestamp"`

	// Backend is the driver that executed the run (host, opencl)
	Backend string `json:"backend"`

	Platform string `json:"platform"`
	Device   string `json:"device"`

	// EntryPoint is the kernel function that was launched
	EntryPoint string `json:"entryPoint"`

	Elements int     `json:"elements"`
	Scalar   float32 `json:"scalar"`

	// Verified reports whether Output matched the host reference exactly
	Verified bool `json:"verified"`

	// Output is the read-back contents of the read-write vector
	Output []float32 `json:"output"`
}

// RecordInfo is a Record without the output vector, for listings.
type RecordInfo struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Device    string    `json:"device"`
	Elements  int       `json:"elements"`
	Verified  bool      `json:"verified"`
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:     r.RunID,
		Timestamp: r.Timestamp,
		Backend:   r.Backend,
		Device:    r.Device,
		Elements:  r.Elements,
		Verified:  r.Verified,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Device == "" {
		return &ValidationError{Field: "Device", Reason: "cannot be empty"}
	}
	if r.Elements <= 0 {
		return &ValidationError{Field: "Elements", Reason: "must be positive"}
	}
	if len(r.Output) != r.Elements {
		return &ValidationError{Field: "Output", Reason: "length must equal Elements"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
