package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"dbbackup/internal/config"
	"dbbackup/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL implements Database on top of pgx/v5.
type PostgreSQL struct {
	baseDatabase
}

// NewPostgreSQL creates a new PostgreSQL database handle.
func NewPostgreSQL(cfg *config.Config, log logger.Logger) *PostgreSQL {
	return &PostgreSQL{baseDatabase: baseDatabase{cfg: cfg, log: log}}
}

// Connect opens a pooled pgx connection, used for short-lived metadata
// queries around each backup/restore operation (spec.md §5 "PostgreSQL
// client connections are never shared across tasks — each operation opens
// its own").
func (p *PostgreSQL) Connect(ctx context.Context) error {
	dsn := p.buildDSN()
	p.dsn = dsn

	p.log.Debug("connecting to PostgreSQL", "dsn", sanitizeDSN(dsn))

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}
	poolCfg.MaxConns = 5

	timeoutCtx, cancel := buildTimeout(ctx, 0)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	p.pool = pool
	p.log.Info("connected to PostgreSQL")
	return nil
}

// ListDatabases returns non-template database names.
func (p *PostgreSQL) ListDatabases(ctx context.Context) ([]string, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected to database")
	}

	rows, err := p.pool.Query(ctx, `SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname`)
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		databases = append(databases, name)
	}
	return databases, rows.Err()
}

// ListTables returns schema-qualified table names.
func (p *PostgreSQL) ListTables(ctx context.Context, database string) ([]string, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected to database")
	}

	query := `SELECT schemaname||'.'||tablename FROM pg_tables
	          WHERE schemaname NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
	          ORDER BY schemaname, tablename`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DatabaseExists checks whether a database exists.
func (p *PostgreSQL) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if p.pool == nil {
		return false, fmt.Errorf("not connected to database")
	}
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	return exists, nil
}

// GetVersion returns the server_version string recorded on each Backup
// Record (spec.md §3).
func (p *PostgreSQL) GetVersion(ctx context.Context) (string, error) {
	if p.pool == nil {
		return "", fmt.Errorf("not connected to database")
	}
	var version string
	if err := p.pool.QueryRow(ctx, `SHOW server_version`).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// GetDatabaseSize returns database size in bytes.
func (p *PostgreSQL) GetDatabaseSize(ctx context.Context, database string) (int64, error) {
	if p.pool == nil {
		return 0, fmt.Errorf("not connected to database")
	}
	var size int64
	if err := p.pool.QueryRow(ctx, `SELECT pg_database_size($1)`, database).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to get database size: %w", err)
	}
	return size, nil
}

// CurrentWALLSN reads pg_current_wal_lsn(), used to bracket wal_start and
// wal_end around a backup (spec.md §4.D).
func (p *PostgreSQL) CurrentWALLSN(ctx context.Context) (string, error) {
	if p.pool == nil {
		return "", fmt.Errorf("not connected to database")
	}
	var lsn string
	if err := p.pool.QueryRow(ctx, `SELECT pg_current_wal_lsn()::TEXT`).Scan(&lsn); err != nil {
		return "", fmt.Errorf("failed to read current WAL LSN: %w", err)
	}
	return lsn, nil
}

// SwitchWAL calls pg_switch_wal() to force archival of the segment
// currently being written (spec.md §4.D.2), returning the new LSN.
func (p *PostgreSQL) SwitchWAL(ctx context.Context) (string, error) {
	if p.pool == nil {
		return "", fmt.Errorf("not connected to database")
	}
	var lsn string
	if err := p.pool.QueryRow(ctx, `SELECT pg_switch_wal()::TEXT`).Scan(&lsn); err != nil {
		return "", fmt.Errorf("failed to switch WAL: %w", err)
	}
	return lsn, nil
}

// WALFileName resolves an LSN to its WAL segment filename via
// pg_walfile_name (spec.md §4.D.2).
func (p *PostgreSQL) WALFileName(ctx context.Context, lsn string) (string, error) {
	if p.pool == nil {
		return "", fmt.Errorf("not connected to database")
	}
	var name string
	if err := p.pool.QueryRow(ctx, `SELECT pg_walfile_name($1::pg_lsn)`, lsn).Scan(&name); err != nil {
		return "", fmt.Errorf("failed to resolve WAL filename for %s: %w", lsn, err)
	}
	return name, nil
}

// DataDirectory reads the data_directory setting, used to locate pg_wal/
// on the server filesystem during incremental backup (spec.md §4.D.2).
func (p *PostgreSQL) DataDirectory(ctx context.Context) (string, error) {
	if p.pool == nil {
		return "", fmt.Errorf("not connected to database")
	}
	var dir string
	if err := p.pool.QueryRow(ctx, `SHOW data_directory`).Scan(&dir); err != nil {
		return "", fmt.Errorf("failed to read data_directory: %w", err)
	}
	return dir, nil
}

// WALFilesSince lists the WAL segment files in pg_wal (via pg_ls_waldir)
// spanning [startLSN, currentLSN]: every segment name from the one holding
// startLSN through the one holding currentLSN, in name order.
func (p *PostgreSQL) WALFilesSince(ctx context.Context, startLSN, currentLSN string) ([]string, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected to database")
	}

	query := `
		SELECT name FROM pg_ls_waldir()
		WHERE name ~ '^[0-9A-F]{24}$'
		  AND name >= pg_walfile_name($1::pg_lsn)
		  AND name <= pg_walfile_name($2::pg_lsn)
		ORDER BY name`

	rows, err := p.pool.Query(ctx, query, startLSN, currentLSN)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate WAL files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan WAL filename: %w", err)
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

// BuildBaseBackupCommand builds the pg_basebackup invocation (spec.md §4.D.1).
func (p *PostgreSQL) BuildBaseBackupCommand(destDir, label string, options BaseBackupOptions) []string {
	cmd := []string{"pg_basebackup"}

	cmd = append(cmd, "-h", p.cfg.Host, "-p", strconv.Itoa(p.cfg.Port), "-U", p.cfg.User)
	cmd = append(cmd, "-D", destDir)

	format := options.Format
	if format == "" {
		format = "t"
	}
	cmd = append(cmd, "--format="+format)

	checkpoint := options.Checkpoint
	if checkpoint == "" {
		checkpoint = "fast"
	}
	cmd = append(cmd, "--checkpoint="+checkpoint)

	walMethod := options.WALMethod
	if walMethod == "" {
		walMethod = "stream"
	}
	cmd = append(cmd, "--wal-method="+walMethod)

	compression := options.CompressionLevel
	if compression == 0 {
		compression = 9
	}
	cmd = append(cmd, fmt.Sprintf("--compress=%d", compression))

	cmd = append(cmd, "--label="+label)
	cmd = append(cmd, "--no-password")

	return cmd
}

// BuildDumpCommand builds the pg_dump invocation (spec.md §4.D.1 logical
// tier, §4.D.3 snapshot backup).
func (p *PostgreSQL) BuildDumpCommand(database, outputFile string, options DumpOptions) []string {
	cmd := []string{"pg_dump"}
	cmd = append(cmd, "-h", p.cfg.Host, "-p", strconv.Itoa(p.cfg.Port), "-U", p.cfg.User)

	format := options.Format
	if format == "" {
		format = "custom"
	}
	switch format {
	case "custom":
		cmd = append(cmd, "-Fc")
	case "plain":
		cmd = append(cmd, "-Fp")
	default:
		cmd = append(cmd, "--format="+format)
	}

	if options.CompressionLevel > 0 {
		cmd = append(cmd, fmt.Sprintf("-Z%d", options.CompressionLevel))
	}
	if options.Clean {
		cmd = append(cmd, "--clean")
	}
	if options.IfExists {
		cmd = append(cmd, "--if-exists")
	}

	cmd = append(cmd, "--no-password")
	cmd = append(cmd, "--dbname="+database)
	cmd = append(cmd, "--file="+outputFile)

	return cmd
}

// BuildRestoreCommand builds the pg_restore invocation (spec.md §4.E.4):
// `pg_restore --host <h> --port <p> --username <u> --dbname <target> <dump>
// --verbose --no-owner --no-privileges`.
func (p *PostgreSQL) BuildRestoreCommand(database, inputFile string, options RestoreOptions) []string {
	cmd := []string{"pg_restore"}
	cmd = append(cmd, "--host", p.cfg.Host, "--port", strconv.Itoa(p.cfg.Port), "--username", p.cfg.User)
	cmd = append(cmd, "--dbname", database)
	cmd = append(cmd, inputFile)

	if options.Verbose {
		cmd = append(cmd, "--verbose")
	}
	if options.NoOwner {
		cmd = append(cmd, "--no-owner")
	}
	if options.NoPrivileges {
		cmd = append(cmd, "--no-privileges")
	}

	return cmd
}

// ValidateBackupTools checks that the required PostgreSQL client tools are
// on PATH.
func (p *PostgreSQL) ValidateBackupTools() error {
	tools := []string{"pg_basebackup", "pg_dump", "pg_restore", "psql"}
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("required tool not found: %s", tool)
		}
	}
	return nil
}

// buildDSN constructs a libpq key=value connection string (spec.md §6).
// Unix-socket peer auth is preferred for passwordless localhost
// connections, mirroring common operator setups.
func (p *PostgreSQL) buildDSN() string {
	dsn := fmt.Sprintf("user=%s dbname=%s", p.cfg.User, p.cfg.Database)

	if p.cfg.Password != "" {
		dsn += " password=" + p.cfg.Password
	}

	if p.cfg.Host == "localhost" && p.cfg.Password == "" {
		socketDirs := []string{"/var/run/postgresql", "/tmp", "/var/lib/pgsql"}
		found := false
		for _, dir := range socketDirs {
			socketPath := fmt.Sprintf("%s/.s.PGSQL.%d", dir, p.cfg.Port)
			if _, err := os.Stat(socketPath); err == nil {
				dsn += " host=" + dir
				p.log.Debug("using PostgreSQL socket", "path", socketPath)
				found = true
				break
			}
		}
		if !found {
			dsn += " host=" + p.cfg.Host
			dsn += " port=" + strconv.Itoa(p.cfg.Port)
		}
	} else {
		dsn += " host=" + p.cfg.Host
		dsn += " port=" + strconv.Itoa(p.cfg.Port)
	}

	if p.cfg.SSLMode != "" && !p.cfg.Insecure {
		switch strings.ToLower(p.cfg.SSLMode) {
		case "prefer", "preferred":
			dsn += " sslmode=prefer"
		case "require", "required":
			dsn += " sslmode=require"
		case "verify-ca":
			dsn += " sslmode=verify-ca"
		case "verify-full", "verify-identity":
			dsn += " sslmode=verify-full"
		case "disable", "disabled":
			dsn += " sslmode=disable"
		default:
			dsn += " sslmode=require"
		}
	} else if p.cfg.Insecure {
		dsn += " sslmode=disable"
	}

	return dsn
}

// sanitizeDSN removes the password from a DSN for logging.
func sanitizeDSN(dsn string) string {
	parts := strings.Split(dsn, " ")
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "password=") {
			sanitized = append(sanitized, "password=***")
		} else {
			sanitized = append(sanitized, part)
		}
	}
	return strings.Join(sanitized, " ")
}
