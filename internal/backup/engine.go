// Package backup implements the three backup strategies of spec.md §4.D:
// physical Full, WAL-only Incremental, and logical Snapshot. All three
// share the skeleton described there — timestamped backup directory,
// wal_start/wal_end bracketing around the kind-specific work, directory
// size computation, and Catalog insertion — so Engine centralizes the
// skeleton and dispatches to per-kind bodies.
package backup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dbbackup/internal/catalog"
	"dbbackup/internal/cloud"
	"dbbackup/internal/config"
	"dbbackup/internal/database"
	"dbbackup/internal/logger"
	"dbbackup/internal/metrics"
	"dbbackup/internal/progress"
)

// ErrNoBaseBackup is returned by Incremental when the Catalog has no
// Completed Full backup to chain from (spec.md §4.D.2).
var ErrNoBaseBackup = errors.New("backup: no completed full backup to chain from")

const dirCreateRetries = 3
const dirCreateRetryInterval = 500 * time.Millisecond

// Engine drives the backup strategies against a single PostgreSQL server.
type Engine struct {
	cfg      *config.Config
	log      logger.Logger
	db       database.Database
	catalog  *catalog.Catalog
	store    *cloud.BackupStore // optional; nil disables remote upload
	progress progress.Indicator
	reporter *progress.DetailedReporter
	silent   bool
}

// New creates a backup engine. store may be nil to disable remote upload
// of completed backups.
func New(cfg *config.Config, log logger.Logger, db database.Database, cat *catalog.Catalog, store *cloud.BackupStore) *Engine {
	indicator := progress.NewIndicator(true, "line")
	return &Engine{
		cfg:      cfg,
		log:      log,
		db:       db,
		catalog:  cat,
		store:    store,
		progress: indicator,
		reporter: progress.NewDetailedReporter(indicator, &loggerAdapter{logger: log}),
	}
}

// NewSilent creates a backup engine with no stdout output, for TUI/daemon
// embedding.
func NewSilent(cfg *config.Config, log logger.Logger, db database.Database, cat *catalog.Catalog, store *cloud.BackupStore) *Engine {
	indicator := progress.NewNullIndicator()
	return &Engine{
		cfg:      cfg,
		log:      log,
		db:       db,
		catalog:  cat,
		store:    store,
		progress: indicator,
		reporter: progress.NewDetailedReporter(indicator, &loggerAdapter{logger: log}),
		silent:   true,
	}
}

// loggerAdapter adapts logger.Logger to progress.Logger.
type loggerAdapter struct {
	logger logger.Logger
}

func (la *loggerAdapter) Info(msg string, args ...any)  { la.logger.Info(msg, args...) }
func (la *loggerAdapter) Warn(msg string, args ...any)  { la.logger.Warn(msg, args...) }
func (la *loggerAdapter) Error(msg string, args ...any) { la.logger.Error(msg, args...) }
func (la *loggerAdapter) Debug(msg string, args ...any) { la.logger.Debug(msg, args...) }

func (e *Engine) printf(format string, args ...interface{}) {
	if !e.silent {
		fmt.Printf(format, args...)
	}
}

func generateOperationID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// prepareBackupDir creates <root>/<kind>_backup_<YYYYMMDD_HHMMSS>/, retrying
// up to dirCreateRetries times at dirCreateRetryInterval to tolerate
// filesystem propagation delays (spec.md §4.D.3, §5 "Cancellation and
// timeouts").
func prepareBackupDir(root, kindLabel string) (string, error) {
	ts := time.Now().Format("20060102_150405")
	dir := filepath.Join(root, fmt.Sprintf("%s_backup_%s", kindLabel, ts))

	var lastErr error
	for attempt := 1; attempt <= dirCreateRetries; attempt++ {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			time.Sleep(dirCreateRetryInterval)
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			lastErr = fmt.Errorf("backup directory not visible after creation: %s", dir)
			time.Sleep(dirCreateRetryInterval)
			continue
		}
		return dir, nil
	}
	return "", fmt.Errorf("failed to prepare backup directory after %d attempts: %w", dirCreateRetries, lastErr)
}

// dirSize sums file sizes under dir via a tree walk (spec.md §4.D step 5).
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// runTool executes an external backup tool (pg_basebackup, pg_dump,
// pg_restore) as an opaque binary with a success/fail contract over exit
// code plus captured stderr (spec.md §9 "Subprocess orchestration").
func (e *Engine) runTool(ctx context.Context, cmdArgs []string) error {
	if len(cmdArgs) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)
	cmd.Env = os.Environ()
	if e.cfg.Password != "" {
		cmd.Env = append(cmd.Env, "PGPASSWORD="+e.cfg.Password)
	}

	var stderr strings.Builder
	cmd.Stderr = &stderr
	if !e.silent {
		cmd.Stdout = os.Stdout
	}

	e.log.Debug("running backup tool", "cmd", cmdArgs[0], "args", cmdArgs[1:])
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", cmdArgs[0], err, msg)
		}
		return fmt.Errorf("%s: %w", cmdArgs[0], err)
	}
	return nil
}

// insertRecord always adds the record to the Catalog, whether Completed or
// Failed, so that failed attempts remain auditable (spec.md §4.D "Common
// failure semantics").
func (e *Engine) insertRecord(r catalog.Record) error {
	if err := e.catalog.Add(r); err != nil {
		e.log.Error("failed to persist backup record to catalog", "backup_id", r.ID, "error", err)
		return err
	}
	return nil
}

// recordMetric feeds a completed (or failed) operation into the global
// metrics collector, mirroring the single call site the teacher drives
// from its legacy backup path.
func (e *Engine) recordMetric(operation string, start time.Time, record catalog.Record, err error) {
	if metrics.GlobalMetrics == nil {
		return
	}
	var size int64
	if record.SizeBytes != nil {
		size = *record.SizeBytes
	}
	errCount := 0
	if err != nil {
		errCount = 1
	}
	metrics.GlobalMetrics.RecordOperation(operation, e.cfg.Database, start, size, err == nil, errCount)
}

// uploadIfConfigured pushes a completed backup directory to the object
// store when one is configured. Upload failures are logged, not fatal: the
// local directory remains the authoritative artifact.
func (e *Engine) uploadIfConfigured(ctx context.Context, r catalog.Record) {
	if e.store == nil {
		return
	}
	e.log.Info("uploading backup to object storage", "backup_id", r.ID)
	if err := e.store.UploadBackup(ctx, r.ID, r.BackupPath, r.BaseBackupID); err != nil {
		e.log.Warn("backup uploaded to object storage failed", "backup_id", r.ID, "error", err)
	}
}

// Full performs a physical pg_basebackup, then a best-effort logical
// pg_dump pair (spec.md §4.D.1).
func (e *Engine) Full(ctx context.Context) (record catalog.Record, err error) {
	start := time.Now()
	defer func() { e.recordMetric("full_backup", start, record, err) }()

	operationID := generateOperationID()
	tracker := e.reporter.StartOperation(operationID, "full_backup", "backup")
	tracker.SetDetails("kind", "Full")

	dir, err := prepareBackupDir(e.cfg.BackupDir, "full")
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: %w", err)
	}
	tracker.SetDetails("backup_dir", dir)
	tracker.UpdateProgress(10, "backup directory prepared")

	version, err := e.db.GetVersion(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read server version: %w", err)
	}
	walStart, err := e.db.CurrentWALLSN(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read wal_start: %w", err)
	}

	record = catalog.New(catalog.KindFull, dir, version, nil)
	record.WALStart = walStart
	tracker.UpdateProgress(20, "captured wal_start")

	label := fmt.Sprintf("full_backup_%s", time.Now().Format("20060102_150405"))
	cmd := e.db.BuildBaseBackupCommand(dir, label, database.BaseBackupOptions{
		Format:           "t",
		Checkpoint:       "fast",
		WALMethod:        "stream",
		CompressionLevel: 9,
	})

	e.printf("   Running pg_basebackup -> %s\n", dir)
	tracker.UpdateProgress(30, "running pg_basebackup")
	if err := e.runTool(ctx, cmd); err != nil {
		record.Fail(err.Error())
		e.insertRecord(record)
		tracker.Fail(err)
		return record, fmt.Errorf("backup: pg_basebackup: %w", err)
	}
	tracker.UpdateProgress(70, "physical backup complete")

	// Logical tier: best-effort, never fails the backup (spec.md §4.D.1).
	if e.cfg.Database != "" {
		e.printf("   Running pg_dump (custom + plain) for %s\n", e.cfg.Database)
		dumpFile := filepath.Join(dir, e.cfg.Database+".dump")
		dumpCmd := e.db.BuildDumpCommand(e.cfg.Database, dumpFile, database.DumpOptions{Format: "custom", CompressionLevel: 9})
		if err := e.runTool(ctx, dumpCmd); err != nil {
			e.log.Warn("logical backup (custom format) failed, physical backup remains authoritative", "error", err)
		}

		sqlFile := filepath.Join(dir, e.cfg.Database+".sql")
		sqlCmd := e.db.BuildDumpCommand(e.cfg.Database, sqlFile, database.DumpOptions{Format: "plain"})
		if err := e.runTool(ctx, sqlCmd); err != nil {
			e.log.Warn("logical backup (plain format) failed, physical backup remains authoritative", "error", err)
		}
	}
	tracker.UpdateProgress(85, "logical backup attempted")

	walEnd, err := e.db.CurrentWALLSN(ctx)
	if err != nil {
		record.Fail(err.Error())
		e.insertRecord(record)
		tracker.Fail(err)
		return record, fmt.Errorf("backup: read wal_end: %w", err)
	}

	size, err := dirSize(dir)
	if err != nil {
		e.log.Warn("failed to compute backup directory size", "dir", dir, "error", err)
	}

	record.Complete(walEnd, size)
	if err := e.insertRecord(record); err != nil {
		tracker.Fail(err)
		return record, fmt.Errorf("backup: catalog insert: %w", err)
	}

	e.uploadIfConfigured(ctx, record)

	tracker.UpdateProgress(100, "full backup completed")
	tracker.Complete(fmt.Sprintf("full backup %s completed (%s)", record.ID, formatBytes(size)))
	return record, nil
}

// Incremental archives WAL segments accumulated since the latest Completed
// Full (spec.md §4.D.2).
func (e *Engine) Incremental(ctx context.Context) (record catalog.Record, err error) {
	start := time.Now()
	defer func() { e.recordMetric("incremental_backup", start, record, err) }()

	operationID := generateOperationID()
	tracker := e.reporter.StartOperation(operationID, "incremental_backup", "backup")
	tracker.SetDetails("kind", "Incremental")

	base, ok := e.catalog.LatestFull()
	if !ok {
		err := ErrNoBaseBackup
		tracker.Fail(err)
		return catalog.Record{}, err
	}

	dir, err := prepareBackupDir(e.cfg.BackupDir, "incremental")
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: %w", err)
	}
	walDir := filepath.Join(dir, "pg_wal")
	if err := os.MkdirAll(walDir, 0o755); err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: create pg_wal dir: %w", err)
	}

	version, err := e.db.GetVersion(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read server version: %w", err)
	}

	baseID := base.ID
	record = catalog.New(catalog.KindIncremental, dir, version, &baseID)

	// wal_start is the base Full's wal_end, with a current-LSN fallback
	// logged as reconstructive (spec.md invariant I5).
	if base.WALEnd != "" {
		record.WALStart = base.WALEnd
	} else {
		current, err := e.db.CurrentWALLSN(ctx)
		if err != nil {
			tracker.Fail(err)
			return catalog.Record{}, fmt.Errorf("backup: read fallback wal_start: %w", err)
		}
		e.log.Warn("base full backup has no recorded wal_end, using current LSN as reconstructive fallback", "base_backup_id", baseID)
		record.WALStart = current
	}

	dataDir, err := e.db.DataDirectory(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read data_directory: %w", err)
	}

	currentLSN, err := e.db.CurrentWALLSN(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read current wal: %w", err)
	}
	expected, err := e.db.WALFilesSince(ctx, record.WALStart, currentLSN)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: enumerate wal files: %w", err)
	}
	tracker.UpdateProgress(20, fmt.Sprintf("%d wal files expected", len(expected)))

	// Force archival of the currently-writing segment, plus the
	// switched-to segment's filename (spec.md §4.D.2).
	if _, err := e.db.SwitchWAL(ctx); err != nil {
		e.log.Warn("pg_switch_wal failed, continuing with already-archived segments", "error", err)
	}
	postSwitchLSN, err := e.db.CurrentWALLSN(ctx)
	if err == nil {
		if name, err := e.db.WALFileName(ctx, postSwitchLSN); err == nil {
			expected = appendUnique(expected, name)
		}
	}

	sourceDir := filepath.Join(dataDir, "pg_wal")
	copied := 0
	for _, name := range expected {
		src := filepath.Join(sourceDir, name)
		dst := filepath.Join(walDir, name)
		if err := copyFile(src, dst); err != nil {
			e.log.Warn("failed to copy wal file, tolerating per-file failure", "file", name, "error", err)
			continue
		}
		copied++
	}
	tracker.UpdateProgress(70, fmt.Sprintf("%d/%d wal files archived", copied, len(expected)))

	if len(expected) > 0 && copied == 0 {
		err := fmt.Errorf("backup: no wal files could be archived out of %d expected", len(expected))
		record.Fail(err.Error())
		e.insertRecord(record)
		tracker.Fail(err)
		return record, err
	}

	walEnd, err := e.db.CurrentWALLSN(ctx)
	if err != nil {
		record.Fail(err.Error())
		e.insertRecord(record)
		tracker.Fail(err)
		return record, fmt.Errorf("backup: read wal_end: %w", err)
	}

	size, err := dirSize(dir)
	if err != nil {
		e.log.Warn("failed to compute backup directory size", "dir", dir, "error", err)
	}

	record.Complete(walEnd, size)
	if err := e.insertRecord(record); err != nil {
		tracker.Fail(err)
		return record, fmt.Errorf("backup: catalog insert: %w", err)
	}

	e.uploadIfConfigured(ctx, record)

	tracker.UpdateProgress(100, "incremental backup completed")
	tracker.Complete(fmt.Sprintf("incremental backup %s completed, %d wal files", record.ID, copied))
	return record, nil
}

// Snapshot performs a logical-only pg_dump backup (spec.md §4.D.3).
func (e *Engine) Snapshot(ctx context.Context) (record catalog.Record, err error) {
	start := time.Now()
	defer func() { e.recordMetric("snapshot_backup", start, record, err) }()

	operationID := generateOperationID()
	tracker := e.reporter.StartOperation(operationID, "snapshot_backup", "backup")
	tracker.SetDetails("kind", "Snapshot")

	dir, err := prepareBackupDir(e.cfg.BackupDir, "snapshot")
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: %w", err)
	}

	version, err := e.db.GetVersion(ctx)
	if err != nil {
		tracker.Fail(err)
		return catalog.Record{}, fmt.Errorf("backup: read server version: %w", err)
	}

	record = catalog.New(catalog.KindSnapshot, dir, version, nil)
	record.WALStart = catalog.SentinelLSN

	snapshotID := uuid.New()
	dumpFile := filepath.Join(dir, fmt.Sprintf("snapshot_%s.dump", snapshotID))

	cmd := e.db.BuildDumpCommand(e.cfg.Database, dumpFile, database.DumpOptions{
		Format:           "custom",
		CompressionLevel: 9,
	})

	e.printf("   Running pg_dump -> %s\n", dumpFile)
	tracker.UpdateProgress(40, "running pg_dump")
	if err := e.runTool(ctx, cmd); err != nil {
		record.Fail(err.Error())
		e.insertRecord(record)
		tracker.Fail(err)
		return record, fmt.Errorf("backup: pg_dump: %w", err)
	}
	tracker.UpdateProgress(80, "snapshot dump complete")

	size, err := dirSize(dir)
	if err != nil {
		e.log.Warn("failed to compute backup directory size", "dir", dir, "error", err)
	}

	record.Complete(catalog.SentinelLSN, size)
	if err := e.insertRecord(record); err != nil {
		tracker.Fail(err)
		return record, fmt.Errorf("backup: catalog insert: %w", err)
	}

	e.uploadIfConfigured(ctx, record)

	tracker.UpdateProgress(100, "snapshot backup completed")
	tracker.Complete(fmt.Sprintf("snapshot backup %s completed (%s)", record.ID, formatBytes(size)))
	return record, nil
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
