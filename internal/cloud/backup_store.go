package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BackupMetadata is the small descriptor uploaded alongside a backup's
// files so list_backups_with_ancestor (spec.md §4.B) can be answered
// without downloading the whole backup.
type BackupMetadata struct {
	BackupID     uuid.UUID  `json:"backup_id"`
	BaseBackupID *uuid.UUID `json:"base_backup_id,omitempty"`
}

const metadataObjectName = "_backup_meta.json"

// BackupStore implements the backup-oriented operations of spec.md §4.B on
// top of a Backend's bucket/object primitives.
type BackupStore struct {
	backend Backend
	s3      *S3Backend // non-nil when backend is an *S3Backend; enables content-type uploads
	prefix  string
}

// NewBackupStore wraps backend with the backup_id/relative-path key
// convention described in spec.md §6 "Object-store key convention".
func NewBackupStore(backend Backend, prefix string) *BackupStore {
	s, _ := backend.(*S3Backend)
	return &BackupStore{backend: backend, s3: s, prefix: prefix}
}

func (b *BackupStore) backupPrefix(backupID uuid.UUID) string {
	if b.prefix == "" {
		return backupID.String()
	}
	return filepath.Join(b.prefix, backupID.String())
}

// UploadBackup walks dir and uploads every file under
// <prefix>/<backup_id>/<relative path>, deriving a content type from each
// file's extension. baseBackupID is recorded in the metadata descriptor
// used by ListBackupsWithAncestor; pass nil for a Full or Snapshot backup.
func (b *BackupStore) UploadBackup(ctx context.Context, backupID uuid.UUID, dir string, baseBackupID *uuid.UUID) error {
	base := b.backupPrefix(backupID)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.Join(base, rel)
		contentType := contentTypeForExtension(path)

		if b.s3 != nil {
			return b.s3.UploadWithContentType(ctx, path, key, contentType, nil)
		}
		return b.backend.Upload(ctx, path, key, nil)
	})
	if err != nil {
		return fmt.Errorf("upload_backup %s: %w", backupID, err)
	}

	meta := BackupMetadata{BackupID: backupID, BaseBackupID: baseBackupID}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("upload_backup %s: marshal metadata: %w", backupID, err)
	}
	tmp, err := os.CreateTemp("", "backup-meta-*.json")
	if err != nil {
		return fmt.Errorf("upload_backup %s: write metadata: %w", backupID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(metaBytes); err != nil {
		tmp.Close()
		return fmt.Errorf("upload_backup %s: write metadata: %w", backupID, err)
	}
	tmp.Close()

	metaKey := filepath.Join(base, metadataObjectName)
	if err := b.backend.Upload(ctx, tmp.Name(), metaKey, nil); err != nil {
		return fmt.Errorf("upload_backup %s: upload metadata: %w", backupID, err)
	}

	return nil
}

// DownloadBackup lists objects under <prefix>/<backup_id>/, recreates the
// directory structure under targetDir, and downloads each. Fails with
// ErrNotFound if the prefix is empty.
func (b *BackupStore) DownloadBackup(ctx context.Context, backupID uuid.UUID, targetDir string) error {
	base := b.backupPrefix(backupID)

	objects, err := b.backend.List(ctx, base+"/")
	if err != nil {
		return fmt.Errorf("download_backup %s: %w", backupID, err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("download_backup %s: %w", backupID, ErrNotFound)
	}

	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, metadataObjectName) {
			continue
		}
		rel, err := filepath.Rel(base, obj.Key)
		if err != nil {
			return fmt.Errorf("download_backup %s: %w", backupID, err)
		}
		localPath := filepath.Join(targetDir, rel)
		if err := b.backend.Download(ctx, obj.Key, localPath, nil); err != nil {
			return fmt.Errorf("download_backup %s: %s: %w", backupID, obj.Key, err)
		}
	}

	return nil
}

// ListBackups returns the set of top-level backup identifiers under
// <prefix>/.
func (b *BackupStore) ListBackups(ctx context.Context) ([]uuid.UUID, error) {
	objects, err := b.backend.List(ctx, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("list_backups: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, obj := range objects {
		rel := obj.Key
		if b.prefix != "" {
			rel = strings.TrimPrefix(strings.TrimPrefix(rel, b.prefix), "/")
		}
		top := rel
		if idx := strings.Index(rel, "/"); idx >= 0 {
			top = rel[:idx]
		}
		id, err := uuid.Parse(top)
		if err != nil {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// ListBackupsWithAncestor returns the identifiers of every backup whose
// stored metadata references fullID as its base backup.
func (b *BackupStore) ListBackupsWithAncestor(ctx context.Context, fullID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := b.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_backups_with_ancestor: %w", err)
	}

	var matches []uuid.UUID
	for _, id := range ids {
		metaKey := filepath.Join(b.backupPrefix(id), metadataObjectName)
		tmp, err := os.CreateTemp("", "backup-meta-read-*.json")
		if err != nil {
			return nil, fmt.Errorf("list_backups_with_ancestor: %w", err)
		}
		tmpName := tmp.Name()
		tmp.Close()

		err = b.backend.Download(ctx, metaKey, tmpName, nil)
		if err != nil {
			os.Remove(tmpName)
			continue // a backup without a readable metadata descriptor has no ancestor
		}

		data, err := os.ReadFile(tmpName)
		os.Remove(tmpName)
		if err != nil {
			continue
		}

		var meta BackupMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if meta.BaseBackupID != nil && *meta.BaseBackupID == fullID {
			matches = append(matches, id)
		}
	}

	return matches, nil
}
