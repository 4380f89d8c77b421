package cloud

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// fakeBackend is an in-memory Backend used to test BackupStore without
// reaching a real object store.
type fakeBackend struct {
	objects map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string][]byte)}
}

func (f *fakeBackend) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[remotePath] = data
	return nil
}

func (f *fakeBackend) Download(ctx context.Context, remotePath, localPath string, progress ProgressCallback) error {
	data, ok := f.objects[remotePath]
	if !ok {
		return ErrNotFound
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0644)
}

func (f *fakeBackend) List(ctx context.Context, prefix string) ([]BackupInfo, error) {
	var out []BackupInfo
	for key, data := range f.objects {
		if len(prefix) == 0 || (len(key) >= len(prefix) && key[:len(prefix)] == prefix) {
			out = append(out, BackupInfo{Key: key, Name: filepath.Base(key), Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeBackend) Delete(ctx context.Context, remotePath string) error {
	delete(f.objects, remotePath)
	return nil
}

func (f *fakeBackend) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, ok := f.objects[remotePath]
	return ok, nil
}

func (f *fakeBackend) GetSize(ctx context.Context, remotePath string) (int64, error) {
	data, ok := f.objects[remotePath]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(data)), nil
}

func (f *fakeBackend) Name() string { return "fake" }

func writeTempFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}

func TestUploadBackupThenDownloadRoundTrips(t *testing.T) {
	backend := newFakeBackend()
	store := NewBackupStore(backend, "backups")

	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "base.tar", "tar-contents")

	backupID := uuid.New()
	if err := store.UploadBackup(context.Background(), backupID, srcDir, nil); err != nil {
		t.Fatalf("UploadBackup() = %v", err)
	}

	destDir := t.TempDir()
	if err := store.DownloadBackup(context.Background(), backupID, destDir); err != nil {
		t.Fatalf("DownloadBackup() = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(destDir, "base.tar"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "tar-contents" {
		t.Errorf("downloaded content = %q, want %q", data, "tar-contents")
	}

	// The metadata descriptor must not be copied down as a backup file.
	if _, err := os.Stat(filepath.Join(destDir, metadataObjectName)); !os.IsNotExist(err) {
		t.Errorf("expected %s not to be downloaded as backup content", metadataObjectName)
	}
}

func TestDownloadBackupMissingReturnsNotFound(t *testing.T) {
	backend := newFakeBackend()
	store := NewBackupStore(backend, "backups")

	err := store.DownloadBackup(context.Background(), uuid.New(), t.TempDir())
	if err == nil {
		t.Fatal("DownloadBackup() of missing backup: want error, got nil")
	}
}

func TestListBackupsWithAncestorFiltersByBaseBackupID(t *testing.T) {
	backend := newFakeBackend()
	store := NewBackupStore(backend, "backups")

	fullID := uuid.New()
	incID := uuid.New()
	unrelatedID := uuid.New()

	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "data", "x")

	if err := store.UploadBackup(context.Background(), fullID, srcDir, nil); err != nil {
		t.Fatalf("UploadBackup(full) = %v", err)
	}
	if err := store.UploadBackup(context.Background(), incID, srcDir, &fullID); err != nil {
		t.Fatalf("UploadBackup(incremental) = %v", err)
	}
	if err := store.UploadBackup(context.Background(), unrelatedID, srcDir, nil); err != nil {
		t.Fatalf("UploadBackup(unrelated) = %v", err)
	}

	matches, err := store.ListBackupsWithAncestor(context.Background(), fullID)
	if err != nil {
		t.Fatalf("ListBackupsWithAncestor() = %v", err)
	}

	if len(matches) != 1 || matches[0] != incID {
		t.Errorf("ListBackupsWithAncestor(%s) = %v, want [%s]", fullID, matches, incID)
	}
}

func TestListBackupsReturnsAllUploadedIDs(t *testing.T) {
	backend := newFakeBackend()
	store := NewBackupStore(backend, "backups")

	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "data", "x")

	idA := uuid.New()
	idB := uuid.New()
	if err := store.UploadBackup(context.Background(), idA, srcDir, nil); err != nil {
		t.Fatalf("UploadBackup(a) = %v", err)
	}
	if err := store.UploadBackup(context.Background(), idB, srcDir, nil); err != nil {
		t.Fatalf("UploadBackup(b) = %v", err)
	}

	ids, err := store.ListBackups(context.Background())
	if err != nil {
		t.Fatalf("ListBackups() = %v", err)
	}

	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[idA] || !seen[idB] {
		t.Errorf("ListBackups() = %v, want to contain %s and %s", ids, idA, idB)
	}
}
