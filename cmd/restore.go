package cmd

import (
	"fmt"
	"time"

	"dbbackup/internal/catalog"
	"dbbackup/internal/checks"
	"dbbackup/internal/database"
	"dbbackup/internal/restore"
	"dbbackup/internal/security"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// restoreCmd groups the restore operations spec.md §4.E and §6 describe:
// full, incremental, point-in-time, and snapshot restore, plus a
// read-only snapshot content listing.
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore from a backup",
	Long: `Restore a PostgreSQL data directory (or, for snapshots, a single
database) from the backup catalog into --target-dir.

Subcommands:
  full              - restore a full backup
  incremental       - restore a full backup plus its incrementals
  point-in-time     - restore a full backup plus incrementals up to --target-time
  snapshot          - pg_restore a snapshot backup
  list-contents     - list a snapshot's pg_restore --list output`,
}

var targetDirFlag string
var backupIDFlag string
var targetTimeFlag string

func init() {
	restoreCmd.AddCommand(restoreFullCmd, restoreIncrementalCmd, restorePointInTimeCmd, restoreSnapshotCmd, restoreListContentsCmd)

	for _, c := range []*cobra.Command{restoreFullCmd, restoreIncrementalCmd, restorePointInTimeCmd, restoreSnapshotCmd} {
		c.Flags().StringVar(&targetDirFlag, "target-dir", "", "directory to restore into (required)")
		c.MarkFlagRequired("target-dir")
	}
	for _, c := range []*cobra.Command{restoreFullCmd, restoreIncrementalCmd, restorePointInTimeCmd, restoreSnapshotCmd, restoreListContentsCmd} {
		c.Flags().StringVar(&backupIDFlag, "backup-id", "", "backup id to restore (defaults to the latest matching backup)")
	}
	restorePointInTimeCmd.Flags().StringVar(&targetTimeFlag, "target-time", "", "restore up to this RFC-3339 timestamp (required)")
	restorePointInTimeCmd.MarkFlagRequired("target-time")
}

var restoreFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Restore the latest (or --backup-id) full backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}
		full, err := resolveFull(cat)
		if err != nil {
			return err
		}

		db, err := connectDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		user := security.GetCurrentUser()
		auditLogger.LogRestoreStart(user, cfg.Database, full.BackupPath)

		engine := restore.New(cfg, log, db)
		rec, err := engine.Full(cmd.Context(), full, targetDirFlag)
		if err != nil {
			auditLogger.LogRestoreFailed(user, cfg.Database, err)
			return reportRestoreErr(err)
		}
		auditLogger.LogRestoreComplete(user, cfg.Database, time.Since(rec.StartTime))
		fmt.Printf("✅ restored full backup %s into %s\n", full.ID, rec.TargetDir)
		return nil
	},
}

var restoreIncrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Restore a full backup plus all incrementals taken against it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}
		full, err := resolveFull(cat)
		if err != nil {
			return err
		}
		incrementals := cat.IncrementalsSince(full.ID)

		db, err := connectDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		user := security.GetCurrentUser()
		auditLogger.LogRestoreStart(user, cfg.Database, full.BackupPath)

		engine := restore.New(cfg, log, db)
		rec, err := engine.Incremental(cmd.Context(), full, incrementals, targetDirFlag)
		if err != nil {
			auditLogger.LogRestoreFailed(user, cfg.Database, err)
			return reportRestoreErr(err)
		}
		auditLogger.LogRestoreComplete(user, cfg.Database, time.Since(rec.StartTime))
		fmt.Printf("✅ restored %s + %d incrementals into %s\n", full.ID, len(incrementals), rec.TargetDir)
		return nil
	},
}

var restorePointInTimeCmd = &cobra.Command{
	Use:   "point-in-time",
	Short: "Restore a full backup plus incrementals up to --target-time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetTime, err := time.Parse(time.RFC3339, targetTimeFlag)
		if err != nil {
			return fmt.Errorf("invalid --target-time (want RFC-3339): %w", err)
		}

		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}
		full, err := resolveFull(cat)
		if err != nil {
			return err
		}
		incrementals := cat.IncrementalsSince(full.ID)

		db, err := connectDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		user := security.GetCurrentUser()
		auditLogger.LogRestoreStart(user, cfg.Database, full.BackupPath)

		engine := restore.New(cfg, log, db)
		rec, err := engine.PointInTime(cmd.Context(), full, incrementals, targetDirFlag, targetTime)
		if err != nil {
			auditLogger.LogRestoreFailed(user, cfg.Database, err)
			return reportRestoreErr(err)
		}
		auditLogger.LogRestoreComplete(user, cfg.Database, time.Since(rec.StartTime))
		fmt.Printf("✅ restored %s up to %s into %s\n", full.ID, targetTime.Format(time.RFC3339), rec.TargetDir)
		return nil
	},
}

var restoreSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Restore (pg_restore) a snapshot backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}
		snapshot, err := resolveSnapshot(cat)
		if err != nil {
			return err
		}

		db, err := connectDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		user := security.GetCurrentUser()
		auditLogger.LogRestoreStart(user, cfg.Database, snapshot.BackupPath)

		engine := restore.New(cfg, log, db)
		rec, err := engine.Snapshot(cmd.Context(), snapshot, targetDirFlag)
		if err != nil {
			auditLogger.LogRestoreFailed(user, cfg.Database, err)
			return reportRestoreErr(err)
		}
		auditLogger.LogRestoreComplete(user, cfg.Database, time.Since(rec.StartTime))
		fmt.Printf("✅ restored snapshot %s into %s\n", snapshot.ID, rec.TargetDir)
		return nil
	},
}

var restoreListContentsCmd = &cobra.Command{
	Use:   "list-contents",
	Short: "List a snapshot backup's pg_restore --list output",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}
		snapshot, err := resolveSnapshot(cat)
		if err != nil {
			return err
		}

		db, err := connectDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		engine := restore.New(cfg, log, db)
		out, err := engine.ListSnapshotContents(cmd.Context(), snapshot)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

// reportRestoreErr prints a classified, hinted version of a restore
// failure before returning it so cobra's own error line stays terse.
func reportRestoreErr(err error) error {
	fmt.Println(checks.FormatErrorWithHint(err.Error()))
	return err
}

func connectDatabase(cmd *cobra.Command) (database.Database, error) {
	host := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	user := security.GetCurrentUser()

	if err := rateLimiter.CheckAndWait(host); err != nil {
		return nil, err
	}

	db, err := database.New(cfg, log)
	if err != nil {
		rateLimiter.RecordFailure(host)
		auditLogger.LogConnectionAttempt(user, host, false, err)
		return nil, err
	}
	if err := db.Connect(cmd.Context()); err != nil {
		rateLimiter.RecordFailure(host)
		err = fmt.Errorf("failed to connect: %w", err)
		auditLogger.LogConnectionAttempt(user, host, false, err)
		return nil, err
	}
	rateLimiter.RecordSuccess(host)
	auditLogger.LogConnectionAttempt(user, host, true, nil)
	return db, nil
}

func resolveFull(cat *catalog.Catalog) (catalog.Record, error) {
	if backupIDFlag != "" {
		return resolveByID(cat, backupIDFlag, catalog.KindFull)
	}
	full, ok := cat.LatestFull()
	if !ok {
		return catalog.Record{}, fmt.Errorf("no full backup in catalog")
	}
	return full, nil
}

func resolveSnapshot(cat *catalog.Catalog) (catalog.Record, error) {
	if backupIDFlag != "" {
		return resolveByID(cat, backupIDFlag, catalog.KindSnapshot)
	}

	var best catalog.Record
	found := false
	for _, r := range cat.All() {
		if r.Kind != catalog.KindSnapshot || r.Status != catalog.StatusCompleted {
			continue
		}
		if !found || r.StartTime.After(best.StartTime) {
			best = r
			found = true
		}
	}
	if !found {
		return catalog.Record{}, fmt.Errorf("no snapshot backup in catalog")
	}
	return best, nil
}

func resolveByID(cat *catalog.Catalog, id string, want catalog.Kind) (catalog.Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return catalog.Record{}, fmt.Errorf("invalid --backup-id %q: %w", id, err)
	}
	record, ok := cat.Get(parsed)
	if !ok {
		return catalog.Record{}, fmt.Errorf("no backup %s in catalog", id)
	}
	if record.Kind != want {
		return catalog.Record{}, fmt.Errorf("backup %s is a %s backup, want %s", id, record.Kind, want)
	}
	return record, nil
}
