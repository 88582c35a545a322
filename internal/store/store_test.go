package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	j, err := Open(dbPath, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := j.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	j, err := Open(dbPath, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()
}

func TestCloseNilDB(t *testing.T) {
	j := &Journal{db: nil}
	if err := j.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	tmpDir := t.TempDir()
	j, err := Open(filepath.Join(tmpDir, "test.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	base := time.Now().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		_, err := j.Append(Incident{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			Reason:        "threshold_breach",
			AvgIntervalMs: 7.5,
			WindowFill:    25,
			Locked:        true,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d incidents, want 3", len(got))
	}
	if !got[0].Timestamp.After(got[2].Timestamp) {
		t.Errorf("Recent should return newest first: %v then %v", got[0].Timestamp, got[2].Timestamp)
	}
	if got[0].Reason != "threshold_breach" || !got[0].Locked || got[0].AvgIntervalMs != 7.5 {
		t.Errorf("round-trip mismatch: %+v", got[0])
	}
}

func TestRecentLimit(t *testing.T) {
	tmpDir := t.TempDir()
	j, err := Open(filepath.Join(tmpDir, "test.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	for i := 0; i < 10; i++ {
		if _, err := j.Append(Incident{Timestamp: time.Now(), Reason: "burst_breach"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := j.Recent(4)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("Recent(4) returned %d incidents", len(got))
	}
}

func TestRangeQuery(t *testing.T) {
	tmpDir := t.TempDir()
	j, err := Open(filepath.Join(tmpDir, "test.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		if _, err := j.Append(Incident{Timestamp: base.Add(time.Duration(i) * time.Minute), Reason: "threshold_breach"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := j.Range(base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Range returned %d incidents, want 3", len(got))
	}
	if !got[0].Timestamp.Before(got[2].Timestamp) {
		t.Errorf("Range should return oldest first")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	tmpDir := t.TempDir()
	j, err := Open(filepath.Join(tmpDir, "test.db"), 5)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	base := time.Now()
	var lastID int64
	for i := 0; i < 12; i++ {
		id, err := j.Append(Incident{Timestamp: base.Add(time.Duration(i) * time.Second), Reason: "burst_breach"})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		lastID = id
	}

	n, err := j.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d after pruning, want 5", n)
	}

	got, err := j.Recent(5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if got[0].ID != lastID {
		t.Errorf("pruning removed the newest record: got ID %d, want %d", got[0].ID, lastID)
	}
}
