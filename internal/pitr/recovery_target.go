// Package pitr provides the PostgreSQL recovery config line formatting
// the restore engine's point-in-time path writes into recovery.conf
// (spec.md §4.E.3, §6 "Recovery configuration").
package pitr

import (
	"fmt"
	"strings"
)

// quotedConfigKeys are the directives whose value PostgreSQL's recovery
// config parser only accepts quoted, even when the value itself contains
// no characters FormatConfigLine would otherwise quote for (an RFC-3339
// timestamp, for instance, has none of " \t#'\"\\").
var quotedConfigKeys = map[string]bool{
	"recovery_target_time":     true,
	"recovery_target_name":     true,
	"recovery_target_timeline": true,
	"archive_cleanup_command":  true,
	"restore_command":          true,
}

// FormatConfigLine formats a config key-value pair for PostgreSQL config files.
func FormatConfigLine(key, value string) string {
	// Quote values that contain spaces or special characters, or that
	// belong to a directive PostgreSQL always expects quoted.
	needsQuoting := quotedConfigKeys[key] || strings.ContainsAny(value, " \t#'\"\\")
	if needsQuoting {
		value = strings.ReplaceAll(value, "'", "''")
		return fmt.Sprintf("%s = '%s'", key, value)
	}
	return fmt.Sprintf("%s = %s", key, value)
}
