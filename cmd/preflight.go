package cmd

import (
	"fmt"
	"os"

	"dbbackup/internal/auth"
	"dbbackup/internal/checks"
	"dbbackup/internal/database"
	"dbbackup/internal/security"
	"github.com/spf13/cobra"
)

// preflightCmd runs the non-destructive checks an operator should make
// before trusting a backup root: connectivity, required client tools,
// privilege level, and resource headroom.
var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check connectivity, tool availability, and resource limits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed bool

		check := func(name string, err error) {
			if err != nil {
				fmt.Printf("✗ %-28s %v\n", name, err)
				failed = true
				return
			}
			fmt.Printf("✓ %s\n", name)
		}

		if err := os.MkdirAll(cfg.BackupDir, 0o755); err == nil {
			check("backup directory writable", nil)
		} else {
			check("backup directory writable", err)
		}

		space := checks.CheckDiskSpace(cfg.BackupDir)
		fmt.Println(checks.FormatDiskSpaceMessage(space))
		if space.Critical {
			failed = true
		}

		pc := security.NewPrivilegeChecker(log)
		check("privilege level", pc.CheckAndWarn(cfg.AllowRoot))

		method := auth.DetectPostgreSQLAuthMethod(cfg.Host, cfg.Port, cfg.User)
		fmt.Printf("  auth method:                detected %s\n", method)

		db, err := database.New(cfg, log)
		if err != nil {
			check("database driver", err)
		} else {
			check("required client tools (pg_basebackup/pg_dump/pg_restore/psql)", db.ValidateBackupTools())

			if err := db.Connect(cmd.Context()); err != nil {
				check("database connectivity", err)
			} else {
				defer db.Close()
				check("database connectivity", nil)

				version, verr := db.GetVersion(cmd.Context())
				check("database version query", verr)
				if verr == nil {
					fmt.Printf("   %s\n", version)
				}
			}
		}

		if cfg.CheckResources {
			rc := security.NewResourceChecker(log)
			_, rerr := rc.CheckResourceLimits()
			check("resource limits", rerr)
		}

		if failed {
			return fmt.Errorf("preflight checks failed")
		}
		fmt.Println("\nAll preflight checks passed.")
		return nil
	},
}
