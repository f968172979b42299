package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryAppendOnlyStore_Append(t *testing.T) {
	store := NewMemoryAppendOnlyStore()

	if err := store.Append([]byte("first record")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if string(records[0]) != "first record" {
		t.Errorf("expected %q, got %q", "first record", string(records[0]))
	}
}

func TestMemoryAppendOnlyStore_PreservesOrder(t *testing.T) {
	store := NewMemoryAppendOnlyStore()

	expected := []string{"first", "second", "third"}
	for _, record := range expected {
		if err := store.Append([]byte(record)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(records))
	}
	for i, record := range records {
		if string(record) != expected[i] {
			t.Errorf("record %d: expected %q, got %q", i, expected[i], string(record))
		}
	}
}

func TestMemoryAppendOnlyStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryAppendOnlyStore()
	if err := store.Append([]byte("immutable")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, _ := store.ReadAll()
	records[0][0] = 'X'

	again, _ := store.ReadAll()
	if string(again[0]) != "immutable" {
		t.Errorf("journal record was mutated through a returned slice")
	}
}

func TestFileAppendOnlyStore_AppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "runs.jsonl")

	store, err := NewFileAppendOnlyStore(path)
	if err != nil {
		t.Fatalf("NewFileAppendOnlyStore failed: %v", err)
	}

	for _, record := range []string{"run-1", "run-2"} {
		if err := store.Append([]byte(record)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if string(records[0]) != "run-1" || string(records[1]) != "run-2" {
		t.Errorf("unexpected records: %q, %q", records[0], records[1])
	}
}

func TestFileAppendOnlyStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")

	store, err := NewFileAppendOnlyStore(path)
	if err != nil {
		t.Fatalf("NewFileAppendOnlyStore failed: %v", err)
	}
	if err := store.Append([]byte("persisted")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reopened, err := NewFileAppendOnlyStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	records, err := reopened.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "persisted" {
		t.Fatalf("expected persisted record, got %v", records)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
}
