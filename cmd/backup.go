package cmd

import (
	"fmt"
	"strings"
	"time"

	"dbbackup/internal/backup"
	"dbbackup/internal/catalog"
	"dbbackup/internal/checks"
	"dbbackup/internal/cloud"
	"dbbackup/internal/security"
	"github.com/spf13/cobra"
)

// backupCmd groups the three Backup Record strategies spec.md §4.D
// describes: full, incremental, and snapshot.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup",
	Long: `Create a PostgreSQL Backup Record.

Strategies:
  full         - pg_basebackup snapshot of the whole cluster
  incremental  - WAL segments since the latest full backup
  snapshot     - pg_dump of a single database, for logical restore

Examples:
  dbbackup backup full
  dbbackup backup incremental
  dbbackup backup snapshot --database mydb
  dbbackup backup full --cloud s3://my-bucket/backups`,
}

var backupFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Create a full backup (pg_basebackup)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, func(e *backup.Engine) (catalog.Record, error) { return e.Full(cmd.Context()) })
	},
}

var backupIncrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Create an incremental backup (WAL segments since the latest full backup)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, func(e *backup.Engine) (catalog.Record, error) { return e.Incremental(cmd.Context()) })
	},
}

var backupSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create a logical snapshot backup (pg_dump) of --database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, func(e *backup.Engine) (catalog.Record, error) { return e.Snapshot(cmd.Context()) })
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.BackupDir, log)
		if err != nil {
			return err
		}

		records := cat.All()
		if len(records) == 0 {
			fmt.Printf("No backups found in %s\n", cfg.BackupDir)
			return nil
		}

		fmt.Printf("%-36s  %-12s %-10s %-20s %s\n", "ID", "KIND", "STATUS", "START", "PATH")
		fmt.Println(strings.Repeat("-", 100))
		for _, r := range records {
			fmt.Printf("%-36s  %-12s %-10s %-20s %s\n",
				r.ID, r.Kind, r.Status, r.StartTime.Format(time.RFC3339), r.BackupPath)
		}
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupFullCmd, backupIncrementalCmd, backupSnapshotCmd)

	for _, c := range []*cobra.Command{backupFullCmd, backupIncrementalCmd, backupSnapshotCmd} {
		c.Flags().String("cloud", "", "Cloud storage URI (e.g. s3://bucket/path) - takes precedence over individual flags")
		c.Flags().Bool("cloud-auto-upload", false, "Upload the backup to cloud storage after completion")
		c.Flags().String("cloud-provider", "", "Cloud provider (s3, minio, b2)")
		c.Flags().String("cloud-bucket", "", "Cloud bucket name")
		c.Flags().String("cloud-region", "us-east-1", "Cloud region")
		c.Flags().String("cloud-endpoint", "", "Cloud endpoint (for MinIO/B2)")
		c.Flags().String("cloud-prefix", "", "Cloud key prefix")

		c.PreRunE = func(c *cobra.Command, args []string) error {
			if c.Flags().Changed("cloud") {
				return parseCloudURIFlag(c)
			}
			if c.Flags().Changed("cloud-auto-upload") {
				if autoUpload, _ := c.Flags().GetBool("cloud-auto-upload"); autoUpload {
					cfg.CloudEnabled = true
					cfg.CloudAutoUpload = true
				}
			}
			if c.Flags().Changed("cloud-provider") {
				cfg.CloudProvider, _ = c.Flags().GetString("cloud-provider")
			}
			if c.Flags().Changed("cloud-bucket") {
				cfg.CloudBucket, _ = c.Flags().GetString("cloud-bucket")
			}
			if c.Flags().Changed("cloud-region") {
				cfg.CloudRegion, _ = c.Flags().GetString("cloud-region")
			}
			if c.Flags().Changed("cloud-endpoint") {
				cfg.CloudEndpoint, _ = c.Flags().GetString("cloud-endpoint")
			}
			if c.Flags().Changed("cloud-prefix") {
				cfg.CloudPrefix, _ = c.Flags().GetString("cloud-prefix")
			}
			return nil
		}
	}
}

// parseCloudURIFlag parses the --cloud URI flag and updates config.
func parseCloudURIFlag(cmd *cobra.Command) error {
	cloudURI, _ := cmd.Flags().GetString("cloud")
	if cloudURI == "" {
		return nil
	}

	uri, err := cloud.ParseCloudURI(cloudURI)
	if err != nil {
		return fmt.Errorf("invalid cloud URI: %w", err)
	}

	cfg.CloudEnabled = true
	cfg.CloudAutoUpload = true
	cfg.CloudProvider = uri.Provider
	cfg.CloudBucket = uri.Bucket
	if uri.Region != "" {
		cfg.CloudRegion = uri.Region
	}
	if uri.Endpoint != "" {
		cfg.CloudEndpoint = uri.Endpoint
	}
	if uri.Path != "" {
		cfg.CloudPrefix = uri.Dir()
	}
	return nil
}

// backupStore builds the optional cloud.BackupStore wired into
// backup.Engine for auto-upload (spec.md §4.B).
func backupStore() (*cloud.BackupStore, error) {
	if !cfg.CloudEnabled || !cfg.CloudAutoUpload {
		return nil, nil
	}
	if cfg.CloudBucket == "" {
		return nil, fmt.Errorf("cloud auto-upload enabled but no bucket configured")
	}

	backend, err := cloud.NewBackend(&cloud.Config{
		Provider:   cfg.CloudProvider,
		Bucket:     cfg.CloudBucket,
		Region:     cfg.CloudRegion,
		Endpoint:   cfg.CloudEndpoint,
		AccessKey:  cfg.CloudAccessKey,
		SecretKey:  cfg.CloudSecretKey,
		UseSSL:     true,
		PathStyle:  cfg.CloudPathStyle,
		Prefix:     cfg.CloudPrefix,
		Timeout:    300,
		MaxRetries: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud backend: %w", err)
	}
	return cloud.NewBackupStore(backend, cfg.CloudPrefix), nil
}

func runBackup(cmd *cobra.Command, op func(*backup.Engine) (catalog.Record, error)) error {
	user := security.GetCurrentUser()
	auditLogger.LogBackupStart(user, cfg.Database, "backup")

	db, err := connectDatabase(cmd)
	if err != nil {
		auditLogger.LogBackupFailed(user, cfg.Database, err)
		return err
	}
	defer db.Close()

	cat, err := catalog.Load(cfg.BackupDir, log)
	if err != nil {
		err = fmt.Errorf("failed to load catalog: %w", err)
		auditLogger.LogBackupFailed(user, cfg.Database, err)
		return err
	}

	store, err := backupStore()
	if err != nil {
		auditLogger.LogBackupFailed(user, cfg.Database, err)
		return err
	}

	engine := backup.New(cfg, log, db, cat, store)
	record, err := op(engine)
	if err != nil {
		fmt.Println(checks.FormatErrorWithHint(err.Error()))
		auditLogger.LogBackupFailed(user, cfg.Database, err)
		return err
	}

	var size int64
	if record.SizeBytes != nil {
		size = *record.SizeBytes
	}
	auditLogger.LogBackupComplete(user, cfg.Database, record.BackupPath, size)

	fmt.Printf("✅ %s backup %s complete\n", record.Kind, record.ID)
	fmt.Printf("   Path:   %s\n", record.BackupPath)
	fmt.Printf("   Status: %s\n", record.Status)
	if record.SizeBytes != nil {
		fmt.Printf("   Size:   %d bytes\n", *record.SizeBytes)
	}
	return nil
}
