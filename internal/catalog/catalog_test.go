package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLoadFreshRootIsEmpty(t *testing.T) {
	root := t.TempDir()

	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load on fresh root returned error: %v", err)
	}
	if len(c.All()) != 0 {
		t.Errorf("expected empty catalog, got %d records", len(c.All()))
	}
}

func TestLoadCorruptFileStartsFresh(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, fileName), []byte("not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt catalog: %v", err)
	}

	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load on corrupt file returned error: %v", err)
	}
	if len(c.All()) != 0 {
		t.Errorf("expected empty catalog after corrupt load, got %d records", len(c.All()))
	}
}

func TestAddAndGet(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := New(KindFull, filepath.Join(root, "full_backup_1"), "16.2", nil)
	if err := c.Add(r); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := c.Get(r.ID)
	if !ok {
		t.Fatal("Get did not find the record just added")
	}
	if got.BackupPath != r.BackupPath {
		t.Errorf("BackupPath = %q, want %q", got.BackupPath, r.BackupPath)
	}
}

func TestSaveIsAtomicAndReloadable(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := New(KindFull, filepath.Join(root, "full_backup_1"), "16.2", nil)
	r.Complete("0/3000060", 1024)
	if err := c.Add(r); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, fileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("expected .tmp file to be gone after rename, stat err = %v", err)
	}

	reloaded, err := Load(root, nil)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	got, ok := reloaded.Get(r.ID)
	if !ok {
		t.Fatal("reloaded catalog missing the record")
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.WALEnd != "0/3000060" {
		t.Errorf("WALEnd = %q, want 0/3000060", got.WALEnd)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r := New(KindSnapshot, filepath.Join(root, "snapshot_backup_1"), "16.2", nil)
	if err := c.Add(r); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	path := filepath.Join(root, fileName)
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read catalog: %v", err)
	}

	if err := c.Save(); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read catalog: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("Save is not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestLatestFullPicksGreatestEndTime(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	older := New(KindFull, "full_1", "16.2", nil)
	older.StartTime = time.Now().Add(-2 * time.Hour)
	older.Complete("0/1000000", 100)

	newer := New(KindFull, "full_2", "16.2", nil)
	newer.StartTime = time.Now().Add(-1 * time.Hour)
	newer.Complete("0/2000000", 200)

	failed := New(KindFull, "full_3", "16.2", nil)
	failed.Fail("pg_basebackup exited 1")

	for _, r := range []Record{older, newer, failed} {
		if err := c.Add(r); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	latest, ok := c.LatestFull()
	if !ok {
		t.Fatal("LatestFull found nothing")
	}
	if latest.BackupPath != "full_2" {
		t.Errorf("LatestFull = %q, want full_2", latest.BackupPath)
	}
}

func TestIncrementalsSinceFiltersByBaseAndOrdersByStart(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	full := New(KindFull, "full_1", "16.2", nil)
	full.Complete("0/1000000", 100)
	if err := c.Add(full); err != nil {
		t.Fatalf("Add full failed: %v", err)
	}

	otherFull := New(KindFull, "full_other", "16.2", nil)
	otherFull.Complete("0/1000000", 100)
	if err := c.Add(otherFull); err != nil {
		t.Fatalf("Add otherFull failed: %v", err)
	}

	second := New(KindIncremental, "incr_2", "16.2", &full.ID)
	second.StartTime = time.Now().Add(-1 * time.Hour)
	second.Complete("0/2000000", 10)

	first := New(KindIncremental, "incr_1", "16.2", &full.ID)
	first.StartTime = time.Now().Add(-2 * time.Hour)
	first.Complete("0/1500000", 10)

	unrelated := New(KindIncremental, "incr_unrelated", "16.2", &otherFull.ID)
	unrelated.Complete("0/1600000", 10)

	inProgress := New(KindIncremental, "incr_running", "16.2", &full.ID)

	for _, r := range []Record{second, first, unrelated, inProgress} {
		if err := c.Add(r); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	incs := c.IncrementalsSince(full.ID)
	if len(incs) != 2 {
		t.Fatalf("IncrementalsSince returned %d records, want 2", len(incs))
	}
	if incs[0].BackupPath != "incr_1" || incs[1].BackupPath != "incr_2" {
		t.Errorf("IncrementalsSince order = [%s, %s], want [incr_1, incr_2]", incs[0].BackupPath, incs[1].BackupPath)
	}
}

func TestAddPersistsBaseBackupIDAsUUID(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	full := New(KindFull, "full_1", "16.2", nil)
	if err := c.Add(full); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	inc := New(KindIncremental, "incr_1", "16.2", &full.ID)
	if err := c.Add(inc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, fileName))
	if err != nil {
		t.Fatalf("failed to read catalog file: %v", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("failed to unmarshal catalog file: %v", err)
	}

	var gotBase uuid.UUID
	for _, r := range doc.Backups {
		if r.Kind == KindIncremental {
			if r.BaseBackupID == nil {
				t.Fatal("incremental record lost its base_backup_id on disk")
			}
			gotBase = *r.BaseBackupID
		}
	}
	if gotBase != full.ID {
		t.Errorf("base_backup_id on disk = %s, want %s", gotBase, full.ID)
	}
}
