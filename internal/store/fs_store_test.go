package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

// createTestRecord creates a record with test data.
func createTestRecord(runID string) *Record {
	return &Record{
		RunID:      runID,
		Timestamp:  time.Now(),
		Backend:    "host",
		Platform:   "Host Software Platform",
		Device:     "Host CPU",
		EntryPoint: "SAXPY",
		Elements:   4,
		Scalar:     2,
		Verified:   true,
		Output:     []float32{107, 107, 111, 111},
	}
}

func TestSaveRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveRecord(createTestRecord("run-123")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "runs", "run-123.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Record file was not created at %s", expectedPath)
	}
	if store.Path("run-123") != expectedPath {
		t.Errorf("Path() = %s, want %s", store.Path("run-123"), expectedPath)
	}

	// Verify no temp file remains
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save: %s.tmp", expectedPath)
	}
}

func TestSaveRecord_Invalid(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRecord(nil); err == nil {
		t.Fatal("Expected error for nil record")
	}

	rec := createTestRecord("")
	if err := store.SaveRecord(rec); err == nil {
		t.Fatal("Expected error for empty runID")
	}

	rec = createTestRecord("../escape")
	if err := store.SaveRecord(rec); err == nil {
		t.Fatal("Expected error for runID with a path separator")
	}

	rec = createTestRecord("short-output")
	rec.Output = rec.Output[:2]
	var validationErr *ValidationError
	if err := store.SaveRecord(rec); !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %T: %v", err, err)
	} else if validationErr.Field != "Output" {
		t.Errorf("Expected Output field error, got %s", validationErr.Field)
	}
}

func TestSaveRecord_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	first := createTestRecord("run-overwrite")
	first.Verified = false
	second := createTestRecord("run-overwrite")

	if err := store.SaveRecord(first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveRecord(second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadRecord("run-overwrite")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Verified {
		t.Error("Expected the second record to win")
	}
}

func TestLoadRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	original := createTestRecord("run-load")
	if err := store.SaveRecord(original); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	loaded, err := store.LoadRecord("run-load")
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}

	if loaded.Device != original.Device {
		t.Errorf("Device mismatch: expected %s, got %s", original.Device, loaded.Device)
	}
	if loaded.Scalar != original.Scalar {
		t.Errorf("Scalar mismatch: expected %v, got %v", original.Scalar, loaded.Scalar)
	}
	if len(loaded.Output) != len(original.Output) {
		t.Fatalf("Output length mismatch: expected %d, got %d", len(original.Output), len(loaded.Output))
	}
	for i := range original.Output {
		if loaded.Output[i] != original.Output[i] {
			t.Errorf("Output[%d] = %v, want %v", i, loaded.Output[i], original.Output[i])
		}
	}
	if !loaded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, loaded.Timestamp)
	}
}

func TestLoadRecord_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRecord("nonexistent-run")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %T: %v", err, err)
	}

	var notFoundErr *NotFoundError
	if !errors.As(err, &notFoundErr) || notFoundErr.Key != "nonexistent-run" {
		t.Errorf("Expected NotFoundError keyed by run id, got %v", err)
	}
}

func TestLoadRecord_Corrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := os.MkdirAll(filepath.Join(tempDir, "runs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, "runs", "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LoadRecord("broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected a decode error, got %v", err)
	}
}

func TestListRecords(t *testing.T) {
	store, tempDir := setupTestStore(t)

	infos, err := store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords on empty store failed: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("Expected 0 records, got %d", len(infos))
	}

	for _, id := range []string{"run-a", "run-b"} {
		if err := store.SaveRecord(createTestRecord(id)); err != nil {
			t.Fatalf("SaveRecord(%s) failed: %v", id, err)
		}
	}
	// Corrupted and foreign files are skipped
	os.WriteFile(filepath.Join(tempDir, "runs", "bad.json"), []byte("nope"), 0644)
	os.WriteFile(filepath.Join(tempDir, "runs", "notes.txt"), []byte("hello"), 0644)

	infos, err = store.ListRecords()
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(infos))
	}

	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.RunID] = true
		if info.Elements != 4 || !info.Verified {
			t.Errorf("Unexpected info for %s: %+v", info.RunID, info)
		}
	}
	if !seen["run-a"] || !seen["run-b"] {
		t.Errorf("Missing records in listing: %v", seen)
	}
}

func TestDeleteRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveRecord(createTestRecord("run-delete")); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if size, err := store.Size("run-delete"); err != nil || size == 0 {
		t.Fatalf("Size = %d, %v", size, err)
	}

	if err := store.DeleteRecord("run-delete"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if _, err := store.LoadRecord("run-delete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteRecord("run-delete"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestWriteRecordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "result.json")

	if err := WriteRecordFile(path, createTestRecord("run-file")); err != nil {
		t.Fatalf("WriteRecordFile failed: %v", err)
	}

	rec, err := ReadRecordFile(path)
	if err != nil {
		t.Fatalf("ReadRecordFile failed: %v", err)
	}
	if rec.RunID != "run-file" {
		t.Errorf("RunID = %s, want run-file", rec.RunID)
	}

	_, err = ReadRecordFile(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordToInfo(t *testing.T) {
	rec := createTestRecord("run-info")
	info := rec.ToInfo()

	if info.RunID != rec.RunID || info.Device != rec.Device || info.Elements != rec.Elements {
		t.Errorf("ToInfo lost metadata: %+v", info)
	}
	if !info.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Timestamp mismatch")
	}
}
