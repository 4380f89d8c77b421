package database

import (
	"context"
	"fmt"
	"time"

	"dbbackup/internal/config"
	"dbbackup/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database represents a PostgreSQL connection and the operations the
// backup/restore engines need (spec.md §4.D, §4.E).
type Database interface {
	Connect(ctx context.Context) error
	Close()
	Ping(ctx context.Context) error

	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]string, error)
	DatabaseExists(ctx context.Context, name string) (bool, error)

	GetVersion(ctx context.Context) (string, error)
	GetDatabaseSize(ctx context.Context, database string) (int64, error)

	// WAL/LSN primitives used by the backup engine's wal_start/wal_end
	// bracketing (spec.md §4.D) and incremental WAL archiving (§4.D.2).
	CurrentWALLSN(ctx context.Context) (string, error)
	SwitchWAL(ctx context.Context) (string, error)
	WALFileName(ctx context.Context, lsn string) (string, error)
	DataDirectory(ctx context.Context) (string, error)
	WALFilesSince(ctx context.Context, startLSN, currentLSN string) ([]string, error)

	// Backup/Restore command building
	BuildBaseBackupCommand(destDir, label string, options BaseBackupOptions) []string
	BuildDumpCommand(database, outputFile string, options DumpOptions) []string
	BuildRestoreCommand(database, inputFile string, options RestoreOptions) []string

	ValidateBackupTools() error
	ConnectionString() string
}

// BaseBackupOptions configures pg_basebackup (spec.md §4.D.1).
type BaseBackupOptions struct {
	Format           string // "t" (tar) per spec.md
	Checkpoint       string // "fast"
	WALMethod        string // "stream"
	CompressionLevel int    // 9
}

// DumpOptions configures pg_dump (spec.md §4.D.1 logical tier, §4.D.3 snapshot).
type DumpOptions struct {
	Format           string // "custom" or "plain"
	CompressionLevel int
	Clean            bool
	IfExists         bool
}

// RestoreOptions configures pg_restore (spec.md §4.E.4).
type RestoreOptions struct {
	NoOwner      bool
	NoPrivileges bool
	Verbose      bool
}

// New creates a PostgreSQL database handle from a Connection Profile.
func New(cfg *config.Config, log logger.Logger) (Database, error) {
	if !cfg.IsPostgreSQL() {
		return nil, fmt.Errorf("unsupported database type: %s (only postgresql is supported)", cfg.DatabaseType)
	}
	return NewPostgreSQL(cfg, log), nil
}

type baseDatabase struct {
	cfg  *config.Config
	log  logger.Logger
	pool *pgxpool.Pool
	dsn  string
}

func (b *baseDatabase) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *baseDatabase) Ping(ctx context.Context) error {
	if b.pool == nil {
		return fmt.Errorf("database not connected")
	}
	return b.pool.Ping(ctx)
}

func (b *baseDatabase) ConnectionString() string {
	return sanitizeDSN(b.dsn)
}

// buildTimeout creates a context with timeout for database operations.
func buildTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
