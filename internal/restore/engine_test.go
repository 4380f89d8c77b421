package restore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"dbbackup/internal/catalog"
	"dbbackup/internal/config"
	"dbbackup/internal/logger"
)

func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{Database: "appdb", DatabaseType: "postgres"}
	return NewSilent(cfg, logger.NewNullLogger(), nil), root
}

func writeBackupDir(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestFullRestoreCopiesBackupAndWritesRecoveryConf(t *testing.T) {
	e, root := testEngine(t)
	backupDir := writeBackupDir(t, root, "full_backup_20260101_000000", map[string]string{
		"base.tar.gz": "tar contents",
	})
	targetDir := filepath.Join(root, "target")

	full := catalog.New(catalog.KindFull, backupDir, "17.2", nil)

	rec, err := e.Full(context.Background(), full, targetDir)
	if err != nil {
		t.Fatalf("Full() = %v", err)
	}
	if rec.Status != catalog.StatusCompleted {
		t.Errorf("Status = %v, want Completed", rec.Status)
	}

	if _, err := os.Stat(filepath.Join(targetDir, "base.tar.gz")); err != nil {
		t.Errorf("backup contents not copied: %v", err)
	}

	conf, err := os.ReadFile(filepath.Join(targetDir, "recovery.conf"))
	if err != nil {
		t.Fatalf("recovery.conf not written: %v", err)
	}
	content := string(conf)
	if !contains(content, "recovery_target_timeline = 'latest'") {
		t.Errorf("recovery.conf = %q, missing recovery_target_timeline", content)
	}
	if !contains(content, "restore_command") {
		t.Errorf("recovery.conf = %q, missing restore_command", content)
	}
}

func TestFullRestoreFailsWhenBackupDirectoryMissing(t *testing.T) {
	e, root := testEngine(t)
	targetDir := filepath.Join(root, "target")
	full := catalog.New(catalog.KindFull, filepath.Join(root, "does-not-exist"), "17.2", nil)

	_, err := e.Full(context.Background(), full, targetDir)
	if !errors.Is(err, ErrMissingBackup) {
		t.Errorf("Full() with missing backup = %v, want ErrMissingBackup", err)
	}
}

func TestIncrementalRestoreMergesWalInStartTimeOrder(t *testing.T) {
	e, root := testEngine(t)
	fullDir := writeBackupDir(t, root, "full_backup_20260101_000000", map[string]string{"base.tar.gz": "x"})
	full := catalog.New(catalog.KindFull, fullDir, "17.2", nil)

	baseID := full.ID
	incr1Dir := writeBackupDir(t, root, "incr1", map[string]string{"pg_wal/000000010000000000000001": "a"})
	incr2Dir := writeBackupDir(t, root, "incr2", map[string]string{"pg_wal/000000010000000000000002": "b"})

	incr1 := catalog.New(catalog.KindIncremental, incr1Dir, "17.2", &baseID)
	incr1.StartTime = time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	incr2 := catalog.New(catalog.KindIncremental, incr2Dir, "17.2", &baseID)
	incr2.StartTime = time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)

	targetDir := filepath.Join(root, "target")
	rec, err := e.Incremental(context.Background(), full, []catalog.Record{incr2, incr1}, targetDir)
	if err != nil {
		t.Fatalf("Incremental() = %v", err)
	}
	if rec.Status != catalog.StatusCompleted {
		t.Fatalf("Status = %v, want Completed", rec.Status)
	}

	for _, f := range []string{"000000010000000000000001", "000000010000000000000002"} {
		if _, err := os.Stat(filepath.Join(targetDir, "pg_wal", f)); err != nil {
			t.Errorf("wal file %s not merged: %v", f, err)
		}
	}
}

func TestPointInTimeRestoreAppliesOnlyIncrementalsAtOrBeforeTarget(t *testing.T) {
	e, root := testEngine(t)
	fullDir := writeBackupDir(t, root, "full_backup_20260101_000000", map[string]string{"base.tar.gz": "x"})
	full := catalog.New(catalog.KindFull, fullDir, "17.2", nil)
	baseID := full.ID

	t1 := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	incr1Dir := writeBackupDir(t, root, "incr1", map[string]string{"pg_wal/w1": "a"})
	incr2Dir := writeBackupDir(t, root, "incr2", map[string]string{"pg_wal/w2": "b"})
	incr3Dir := writeBackupDir(t, root, "incr3", map[string]string{"pg_wal/w3": "c"})

	incr1 := catalog.New(catalog.KindIncremental, incr1Dir, "17.2", &baseID)
	incr1.StartTime = t1
	incr2 := catalog.New(catalog.KindIncremental, incr2Dir, "17.2", &baseID)
	incr2.StartTime = t2
	incr3 := catalog.New(catalog.KindIncremental, incr3Dir, "17.2", &baseID)
	incr3.StartTime = t3

	targetDir := filepath.Join(root, "target")
	rec, err := e.PointInTime(context.Background(), full, []catalog.Record{incr1, incr2, incr3}, targetDir, t2)
	if err != nil {
		t.Fatalf("PointInTime() = %v", err)
	}
	if rec.Status != catalog.StatusCompleted {
		t.Fatalf("Status = %v, want Completed", rec.Status)
	}

	for _, f := range []string{"w1", "w2"} {
		if _, err := os.Stat(filepath.Join(targetDir, "pg_wal", f)); err != nil {
			t.Errorf("expected wal file %s to be applied: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(targetDir, "pg_wal", "w3")); err == nil {
		t.Error("w3 (after target time) should not have been applied")
	}

	conf, err := os.ReadFile(filepath.Join(targetDir, "recovery.conf"))
	if err != nil {
		t.Fatalf("recovery.conf not written: %v", err)
	}
	content := string(conf)
	if !contains(content, "recovery_target_time = '2026-01-01T02:00:00Z'") {
		t.Errorf("recovery.conf = %q, missing recovery_target_time", content)
	}
	if !contains(content, "recovery_target_inclusive = true") {
		t.Errorf("recovery.conf = %q, missing recovery_target_inclusive", content)
	}
}

func TestSnapshotRestoreRejectsWrongKind(t *testing.T) {
	e, root := testEngine(t)
	fullDir := writeBackupDir(t, root, "full_backup_20260101_000000", map[string]string{"base.tar.gz": "x"})
	full := catalog.New(catalog.KindFull, fullDir, "17.2", nil)

	_, err := e.Snapshot(context.Background(), full, root)
	if !errors.Is(err, ErrWrongKind) {
		t.Errorf("Snapshot() on Full record = %v, want ErrWrongKind", err)
	}
}

func TestFindSnapshotDumpLocatesDumpFile(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()
	dir := writeBackupDir(t, root, "snapshot_backup_20260101_000000", map[string]string{
		"snapshot_" + id.String() + ".dump": "dump contents",
	})

	path, err := findSnapshotDump(dir)
	if err != nil {
		t.Fatalf("findSnapshotDump() = %v", err)
	}
	if filepath.Base(path) != "snapshot_"+id.String()+".dump" {
		t.Errorf("findSnapshotDump() = %q, want snapshot dump path", path)
	}
}

func TestFindSnapshotDumpMissingReturnsError(t *testing.T) {
	root := t.TempDir()
	dir := writeBackupDir(t, root, "empty_snapshot", map[string]string{})

	_, err := findSnapshotDump(dir)
	if !errors.Is(err, ErrMissingBackup) {
		t.Errorf("findSnapshotDump() on empty dir = %v, want ErrMissingBackup", err)
	}
}

func TestCopyTreePermissiveCopiesNestedStructure(t *testing.T) {
	root := t.TempDir()
	src := writeBackupDir(t, root, "src", map[string]string{
		"a.txt":        "1",
		"sub/b.txt":    "2",
		"sub/sub2/c.txt": "3",
	})
	dst := filepath.Join(root, "dst")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := copyTreePermissive(src, dst); err != nil {
		t.Fatalf("copyTreePermissive() = %v", err)
	}

	for _, rel := range []string{"a.txt", "sub/b.txt", "sub/sub2/c.txt"} {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Errorf("file %s not copied: %v", rel, err)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
