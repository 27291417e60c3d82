package store

// Store persists the records of completed runs, one per run id.
//
// Error handling conventions:
//   - Return ErrNotFound if the record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically writes rec under rec.RunID, replacing any
	// previous record with the same id.
	SaveRecord(rec *Record) error

	// LoadRecord returns ErrNotFound if no record exists for runID.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns the metadata of every readable record. The slice
	// may be empty.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord returns ErrNotFound if no record exists for runID.
	DeleteRecord(runID string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record. Key is a run id or a
// file path.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return "run record not found: " + e.Key
	}
	return "run record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
