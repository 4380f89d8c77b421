package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dbbackup/internal/catalog"
	"dbbackup/internal/config"
	"dbbackup/internal/logger"
)

func TestPrepareBackupDirCreatesTimestampedDirectory(t *testing.T) {
	root := t.TempDir()

	dir, err := prepareBackupDir(root, "full")
	if err != nil {
		t.Fatalf("prepareBackupDir() = %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("backup dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("backup dir is not a directory")
	}
	if filepath.Dir(dir) != root {
		t.Errorf("backup dir %q not under root %q", dir, root)
	}
	if got := filepath.Base(dir); len(got) < len("full_backup_") || got[:len("full_backup_")] != "full_backup_" {
		t.Errorf("backup dir name = %q, want full_backup_<ts> prefix", got)
	}
}

func TestDirSizeSumsFileSizes(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.txt"), []byte("1234567890"), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := dirSize(root)
	if err != nil {
		t.Fatalf("dirSize() = %v", err)
	}
	if size != 15 {
		t.Errorf("dirSize() = %d, want 15", size)
	}
}

func TestAppendUniqueDeduplicates(t *testing.T) {
	list := []string{"000000010000000000000001"}
	list = appendUnique(list, "000000010000000000000001")
	if len(list) != 1 {
		t.Fatalf("appendUnique() duplicated an existing entry: %v", list)
	}

	list = appendUnique(list, "000000010000000000000002")
	if len(list) != 2 {
		t.Fatalf("appendUnique() did not add a new entry: %v", list)
	}
}

func TestCopyFileRoundTrips(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.bin")
	dst := filepath.Join(root, "dst.bin")
	content := []byte("wal segment contents")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile() = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("copied content = %q, want %q", got, content)
	}
}

func TestIncrementalFailsWithoutBaseBackup(t *testing.T) {
	root := t.TempDir()
	cat, err := catalog.Load(root, logger.NewNullLogger())
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{BackupDir: root, DatabaseType: "postgres"}
	e := NewSilent(cfg, logger.NewNullLogger(), nil, cat, nil)

	_, err = e.Incremental(context.Background())
	if !errors.Is(err, ErrNoBaseBackup) {
		t.Errorf("Incremental() with no completed full = %v, want ErrNoBaseBackup", err)
	}
}

func TestFormatBytesHumanReadable(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{500, "500 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
