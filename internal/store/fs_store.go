package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Records are stored as <baseDir>/runs/<runID>.json.
//
// Thread-safety: writes go through temp file + rename, so concurrent
// readers never see a partial record.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

func (fs *FSStore) runsDir() string {
	return filepath.Join(fs.baseDir, "runs")
}

func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(fs.runsDir(), runID+".json")
}

// Path returns the file a record with runID is stored in.
func (fs *FSStore) Path(runID string) string {
	return fs.recordPath(runID)
}

// SaveRecord atomically saves rec under its run id.
func (fs *FSStore) SaveRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := checkRunID(rec.RunID); err != nil {
		return err
	}

	path := fs.recordPath(rec.RunID)
	if err := WriteRecordFile(path, rec); err != nil {
		return err
	}

	slog.Debug("Run record saved", "run", rec.RunID, "path", path)
	return nil
}

// LoadRecord retrieves the record for the given run.
func (fs *FSStore) LoadRecord(runID string) (*Record, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}

	rec, err := ReadRecordFile(fs.recordPath(runID))
	if errors.Is(err, ErrNotFound) {
		return nil, &NotFoundError{Key: runID}
	}
	return rec, err
}

// ListRecords returns metadata for all stored records.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	entries, err := os.ReadDir(fs.runsDir())
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}

		runID := strings.TrimSuffix(name, ".json")
		rec, err := fs.LoadRecord(runID)
		if err != nil {
			slog.Warn("Failed to load run record for listing", "run", runID, "error", err)
			continue
		}
		infos = append(infos, rec.ToInfo())
	}

	slog.Debug("Listed run records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the record for the given run.
func (fs *FSStore) DeleteRecord(runID string) error {
	if err := checkRunID(runID); err != nil {
		return err
	}

	err := os.Remove(fs.recordPath(runID))
	if os.IsNotExist(err) {
		return &NotFoundError{Key: runID}
	} else if err != nil {
		return fmt.Errorf("failed to remove run record: %w", err)
	}

	slog.Debug("Run record deleted", "run", runID)
	return nil
}

// Size returns the on-disk size of the record for runID.
func (fs *FSStore) Size(runID string) (int64, error) {
	info, err := os.Stat(fs.recordPath(runID))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func checkRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid runID %q", runID)
	}
	return nil
}

// WriteRecordFile validates rec and writes it to path as indented JSON,
// creating parent directories. The file is replaced atomically.
func WriteRecordFile(path string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	// Write to temporary file first (atomic pattern)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}
	return nil
}

// ReadRecordFile loads a record written by WriteRecordFile.
func ReadRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Key: path}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}
	return &rec, nil
}
