package models

import "time"

// BackupType identifies the backup family
type BackupType string

const (
	BackupTypeDatabase BackupType = "database"
	BackupTypeFiles    BackupType = "files"
	BackupTypeLogs     BackupType = "logs"
)

// BackupStatus is the terminal state of a backup run
type BackupStatus string

const (
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// BackupRecord describes one backup artifact. A JSON sidecar with the
// same shape is written next to the backup file.
type BackupRecord struct {
	BackupID        string       `json:"backup_id" badgerhold:"key"`
	Type            BackupType   `json:"type" badgerhold:"index"`
	Timestamp       time.Time    `json:"timestamp"`
	Filename        string       `json:"filename"`
	Directories     []string     `json:"directories,omitempty"`
	SizeBytes       int64        `json:"size_bytes"`
	SizeMB          float64      `json:"size_mb"`
	DurationSeconds float64      `json:"duration_seconds"`
	Checksum        string       `json:"checksum"` // sha256 hex over the backup file
	Compressed      bool         `json:"compressed"`
	Status          BackupStatus `json:"status"`
	Error           string       `json:"error,omitempty"`
	CloudUploaded   bool         `json:"cloud_uploaded,omitempty"`
}
