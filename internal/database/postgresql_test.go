package database

import (
	"strings"
	"testing"

	"dbbackup/internal/config"
	"dbbackup/internal/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Host:         "db.example.com",
		Port:         5433,
		User:         "backup_operator",
		Database:     "appdb",
		Password:     "s3cr3t",
		DatabaseType: "postgres",
		SSLMode:      "require",
	}
}

func TestBuildDSNIncludesHostPortUserDatabase(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	dsn := pg.buildDSN()

	for _, want := range []string{"user=backup_operator", "dbname=appdb", "host=db.example.com", "port=5433", "password=s3cr3t", "sslmode=require"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("buildDSN() = %q, missing %q", dsn, want)
		}
	}
}

func TestBuildDSNInsecureDisablesSSL(t *testing.T) {
	cfg := testConfig()
	cfg.Insecure = true
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	dsn := pg.buildDSN()
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("buildDSN() = %q, want sslmode=disable", dsn)
	}
}

func TestSanitizeDSNRedactsPassword(t *testing.T) {
	dsn := "user=backup_operator dbname=appdb host=db.example.com port=5433 password=s3cr3t sslmode=require"

	got := sanitizeDSN(dsn)

	if strings.Contains(got, "s3cr3t") {
		t.Errorf("sanitizeDSN() leaked password: %q", got)
	}
	if !strings.Contains(got, "password=***") {
		t.Errorf("sanitizeDSN() = %q, want redacted password token", got)
	}
	if !strings.Contains(got, "user=backup_operator") {
		t.Errorf("sanitizeDSN() = %q, want other fields preserved", got)
	}
}

func TestBuildBaseBackupCommandDefaults(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	cmd := pg.BuildBaseBackupCommand("/var/backups/full-1", "nightly-full", BaseBackupOptions{})

	joined := strings.Join(cmd, " ")
	if cmd[0] != "pg_basebackup" {
		t.Fatalf("BuildBaseBackupCommand()[0] = %q, want pg_basebackup", cmd[0])
	}
	for _, want := range []string{"-D /var/backups/full-1", "--format=t", "--checkpoint=fast", "--wal-method=stream", "--compress=9", "--label=nightly-full"} {
		if !strings.Contains(joined, want) {
			t.Errorf("BuildBaseBackupCommand() = %q, missing %q", joined, want)
		}
	}
}

func TestBuildBaseBackupCommandHonorsOptions(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	cmd := pg.BuildBaseBackupCommand("/tmp/x", "custom", BaseBackupOptions{
		Format: "p", Checkpoint: "spread", WALMethod: "fetch", CompressionLevel: 3,
	})

	joined := strings.Join(cmd, " ")
	for _, want := range []string{"--format=p", "--checkpoint=spread", "--wal-method=fetch", "--compress=3"} {
		if !strings.Contains(joined, want) {
			t.Errorf("BuildBaseBackupCommand() = %q, missing %q", joined, want)
		}
	}
}

func TestBuildDumpCommandDefaultsToCustomFormat(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	cmd := pg.BuildDumpCommand("appdb", "/tmp/appdb.dump", DumpOptions{})

	joined := strings.Join(cmd, " ")
	if cmd[0] != "pg_dump" {
		t.Fatalf("BuildDumpCommand()[0] = %q, want pg_dump", cmd[0])
	}
	if !strings.Contains(joined, "-Fc") {
		t.Errorf("BuildDumpCommand() = %q, want custom format flag -Fc", joined)
	}
	if !strings.Contains(joined, "--dbname=appdb") || !strings.Contains(joined, "--file=/tmp/appdb.dump") {
		t.Errorf("BuildDumpCommand() = %q, missing dbname/file flags", joined)
	}
}

func TestBuildDumpCommandPlainFormatWithCleanAndIfExists(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	cmd := pg.BuildDumpCommand("appdb", "/tmp/appdb.sql", DumpOptions{
		Format: "plain", Clean: true, IfExists: true, CompressionLevel: 5,
	})

	joined := strings.Join(cmd, " ")
	for _, want := range []string{"-Fp", "-Z5", "--clean", "--if-exists"} {
		if !strings.Contains(joined, want) {
			t.Errorf("BuildDumpCommand() = %q, missing %q", joined, want)
		}
	}
}

func TestBuildRestoreCommandFlags(t *testing.T) {
	cfg := testConfig()
	pg := NewPostgreSQL(cfg, logger.NewNullLogger())

	cmd := pg.BuildRestoreCommand("appdb", "/tmp/appdb.dump", RestoreOptions{
		NoOwner: true, NoPrivileges: true, Verbose: true,
	})

	joined := strings.Join(cmd, " ")
	if cmd[0] != "pg_restore" {
		t.Fatalf("BuildRestoreCommand()[0] = %q, want pg_restore", cmd[0])
	}
	for _, want := range []string{"--dbname appdb", "/tmp/appdb.dump", "--verbose", "--no-owner", "--no-privileges"} {
		if !strings.Contains(joined, want) {
			t.Errorf("BuildRestoreCommand() = %q, missing %q", joined, want)
		}
	}
}

func TestNewRejectsNonPostgreSQL(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseType = "mysql"

	_, err := New(cfg, logger.NewNullLogger())
	if err == nil {
		t.Fatal("New() with mysql database type: want error, got nil")
	}
}

func TestNewAcceptsPostgreSQL(t *testing.T) {
	cfg := testConfig()

	db, err := New(cfg, logger.NewNullLogger())
	if err != nil {
		t.Fatalf("New() = %v, want no error", err)
	}
	if db == nil {
		t.Fatal("New() returned nil Database")
	}
}
