package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the strategy used to produce a Backup Record.
type Kind string

const (
	KindFull        Kind = "Full"
	KindIncremental Kind = "Incremental"
	KindSnapshot    Kind = "Snapshot"
)

// Status is the lifecycle state of a Backup Record.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// SentinelLSN is reserved to mean "no LSN bound applies". It is used by
// Snapshot backups, which are logical dumps and therefore LSN-independent.
// It must never be treated as a real, comparable LSN.
const SentinelLSN = "0/0000000"

// Record is the unit the Catalog stores (spec.md §3, invariants I1-I6).
type Record struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"kind"`
	Status         Status     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	BaseBackupID   *uuid.UUID `json:"base_backup_id,omitempty"`
	WALStart       string     `json:"wal_start,omitempty"`
	WALEnd         string     `json:"wal_end,omitempty"`
	SizeBytes      *int64     `json:"size_bytes,omitempty"`
	BackupPath     string     `json:"backup_path"`
	ServerVersion  string     `json:"server_version"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// New creates an InProgress Backup Record.
func New(kind Kind, backupPath, serverVersion string, baseBackupID *uuid.UUID) Record {
	return Record{
		ID:            uuid.New(),
		Kind:          kind,
		Status:        StatusInProgress,
		StartTime:     time.Now().UTC(),
		BaseBackupID:  baseBackupID,
		BackupPath:    backupPath,
		ServerVersion: serverVersion,
	}
}

// Complete marks the record Completed, satisfying invariant I2.
func (r *Record) Complete(walEnd string, sizeBytes int64) {
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.EndTime = &now
	r.WALEnd = walEnd
	r.SizeBytes = &sizeBytes
}

// Fail marks the record Failed, satisfying invariant I3.
func (r *Record) Fail(message string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.EndTime = &now
	r.ErrorMessage = message
}
