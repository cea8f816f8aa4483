package common

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewReservationID generates a unique quota reservation ID
func NewReservationID() string {
	return "rsv_" + uuid.New().String()
}

// NewBackupID generates a unique backup ID with the "bak_" prefix
func NewBackupID() string {
	return "bak_" + uuid.New().String()
}

// ShortHash returns the first 8 hex characters of the md5 of s.
// Used for deterministic form-field stable ids: the same label always
// produces the same hash across detection passes.
func ShortHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
