package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"dbbackup/internal/catalog"
	"github.com/spf13/cobra"
)

var cleanupDryRun bool

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "report what would be deleted without deleting it")
}

// cleanupCmd applies --retention-days/--min-backups against the catalog:
// Full backups (and the Incrementals chained to them) older than the
// retention window are removed, but never below --min-backups full
// backups retained. Snapshots are retained/pruned under the same window
// independently, since they have no dependents.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy to the backup catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RetentionDays <= 0 {
			fmt.Println("retention disabled (--retention-days=0), nothing to do")
			return nil
		}

		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
		victims := selectVictims(cat, cutoff, cfg.MinBackups)
		if len(victims) == 0 {
			fmt.Println("no backups eligible for cleanup")
			return nil
		}

		var freed, removedBytes int64
		removed := 0
		for _, r := range victims {
			if r.SizeBytes != nil {
				freed += *r.SizeBytes
			}
			if cleanupDryRun {
				fmt.Printf("would delete %s backup %s (%s, %s)\n", r.Kind, r.ID, r.StartTime.Format(time.RFC3339), r.BackupPath)
				continue
			}

			if err := os.RemoveAll(r.BackupPath); err != nil {
				log.Warn("failed to remove backup directory, skipping catalog removal", "id", r.ID, "path", r.BackupPath, "error", err)
				continue
			}
			if err := cat.Remove(r.ID); err != nil {
				log.Warn("failed to remove catalog entry", "id", r.ID, "error", err)
				continue
			}
			fmt.Printf("deleted %s backup %s (%s)\n", r.Kind, r.ID, r.BackupPath)
			removed++
			if r.SizeBytes != nil {
				removedBytes += *r.SizeBytes
			}
		}

		if cleanupDryRun {
			fmt.Printf("\n%d backups would be deleted, freeing ~%d bytes\n", len(victims), freed)
		} else {
			fmt.Printf("\n%d backups deleted, ~%d bytes freed\n", removed, removedBytes)
		}
		return nil
	},
}

// selectVictims picks Full backups older than cutoff beyond the newest
// minBackups, then sweeps up every Incremental chained to a deleted Full
// (an Incremental cannot outlive its base). Snapshots are evaluated
// against the same cutoff independently since nothing depends on them.
func selectVictims(cat *catalog.Catalog, cutoff time.Time, minBackups int) []catalog.Record {
	all := cat.All()

	var fulls, snapshots []catalog.Record
	for _, r := range all {
		if r.Status != catalog.StatusCompleted {
			continue
		}
		switch r.Kind {
		case catalog.KindFull:
			fulls = append(fulls, r)
		case catalog.KindSnapshot:
			snapshots = append(snapshots, r)
		}
	}

	sort.Slice(fulls, func(i, j int) bool { return fulls[i].StartTime.After(fulls[j].StartTime) })
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].StartTime.After(snapshots[j].StartTime) })

	var victims []catalog.Record
	deletedFull := make(map[string]bool)

	for i, r := range fulls {
		if i < minBackups {
			continue
		}
		if r.StartTime.Before(cutoff) {
			victims = append(victims, r)
			deletedFull[r.ID.String()] = true
		}
	}
	for i, r := range snapshots {
		if i < minBackups {
			continue
		}
		if r.StartTime.Before(cutoff) {
			victims = append(victims, r)
		}
	}

	for _, r := range all {
		if r.Kind != catalog.KindIncremental || r.Status != catalog.StatusCompleted {
			continue
		}
		if r.BaseBackupID != nil && deletedFull[r.BaseBackupID.String()] {
			victims = append(victims, r)
		}
	}

	return victims
}
