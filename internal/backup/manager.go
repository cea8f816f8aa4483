package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

// failedRecordTTL bounds how long failed-run records linger
const failedRecordTTL = 24 * time.Hour

// Manager creates and restores the three backup families: a gzipped
// badger dump for the database, gzip tarballs for files and logs. Every
// artifact gets a SHA-256 checksum and a JSON sidecar.
type Manager struct {
	db      *badgerstore.BadgerDB
	records interfaces.BackupStorage
	config  *common.BackupConfig
	remote  ObjectStore
	logger  arbor.ILogger
}

// NewManager creates the backup manager. remote may be nil.
func NewManager(db *badgerstore.BadgerDB, records interfaces.BackupStorage, config *common.BackupConfig, remote ObjectStore, logger arbor.ILogger) (*Manager, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{
		db:      db,
		records: records,
		config:  config,
		remote:  remote,
		logger:  logger,
	}, nil
}

// BackupDatabase streams a full badger dump through gzip
func (m *Manager) BackupDatabase(ctx context.Context) (*models.BackupRecord, error) {
	start := time.Now()
	filename := fmt.Sprintf("database_%s.bak.gz", start.UTC().Format("20060102_150405"))
	path := filepath.Join(m.config.Dir, filename)

	err := func() error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		gz := gzip.NewWriter(f)
		if _, err := m.db.Store().Badger().Backup(gz, 0); err != nil {
			return fmt.Errorf("database dump failed: %w", err)
		}
		if err := gz.Close(); err != nil {
			return err
		}
		return f.Sync()
	}()

	return m.finalize(ctx, models.BackupTypeDatabase, filename, path, nil, start, err)
}

// BackupFiles tars the configured file directories
func (m *Manager) BackupFiles(ctx context.Context) (*models.BackupRecord, error) {
	return m.backupDirectories(ctx, models.BackupTypeFiles, "files", m.config.FileDirectories)
}

// BackupLogs tars the configured log directories
func (m *Manager) BackupLogs(ctx context.Context) (*models.BackupRecord, error) {
	return m.backupDirectories(ctx, models.BackupTypeLogs, "logs", m.config.LogDirectories)
}

func (m *Manager) backupDirectories(ctx context.Context, backupType models.BackupType, stem string, dirs []string) (*models.BackupRecord, error) {
	start := time.Now()
	filename := fmt.Sprintf("%s_%s.tar.gz", stem, start.UTC().Format("20060102_150405"))
	path := filepath.Join(m.config.Dir, filename)

	err := writeTarball(path, dirs)
	return m.finalize(ctx, backupType, filename, path, dirs, start, err)
}

// finalize checksums, writes the sidecar, uploads, and records the run.
// A failed run still produces a record but never propagates the error
// to the scheduler.
func (m *Manager) finalize(ctx context.Context, backupType models.BackupType, filename, path string, dirs []string, start time.Time, runErr error) (*models.BackupRecord, error) {
	record := &models.BackupRecord{
		BackupID:        common.NewBackupID(),
		Type:            backupType,
		Timestamp:       start.UTC(),
		Filename:        filename,
		Directories:     dirs,
		Compressed:      true,
		DurationSeconds: time.Since(start).Seconds(),
		Status:          models.BackupStatusCompleted,
	}

	if runErr == nil {
		if info, err := os.Stat(path); err == nil {
			record.SizeBytes = info.Size()
			record.SizeMB = float64(info.Size()) / (1024 * 1024)
		}
		checksum, err := fileChecksum(path)
		if err != nil {
			runErr = fmt.Errorf("checksum failed: %w", err)
		} else {
			record.Checksum = checksum
		}
	}

	if runErr == nil && m.remote != nil {
		if err := m.uploadRemote(ctx, path, filename); err != nil {
			m.logger.Warn().Err(err).Str("filename", filename).Msg("Remote backup upload failed")
		} else {
			record.CloudUploaded = true
		}
	}

	if runErr != nil {
		record.Status = models.BackupStatusFailed
		record.Error = runErr.Error()
		os.Remove(path)
		m.logger.Error().
			Err(runErr).
			Str("type", string(backupType)).
			Msg("Backup failed")
	} else {
		m.writeSidecar(path, record)
		m.logger.Info().
			Str("backup_id", record.BackupID).
			Str("type", string(backupType)).
			Str("filename", filename).
			Float64("size_mb", record.SizeMB).
			Dur("duration", time.Since(start)).
			Msg("Backup completed")
	}

	if err := m.records.Save(ctx, record); err != nil {
		m.logger.Error().Err(err).Str("backup_id", record.BackupID).Msg("Failed to save backup record")
	}
	return record, runErr
}

// writeSidecar writes the JSON metadata file next to the artifact
func (m *Manager) writeSidecar(path string, record *models.BackupRecord) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path+".json", data, 0644); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to write backup sidecar")
	}
}

func (m *Manager) uploadRemote(ctx context.Context, path, filename string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.remote.Put(ctx, filename, f)
}

// Restore loads a database backup back into the live store. The
// checksum is verified first; a mismatch aborts with no restore action.
func (m *Manager) Restore(ctx context.Context, backupID string) error {
	record, err := m.records.Get(ctx, backupID)
	if err != nil {
		return fmt.Errorf("backup %s not found: %w", backupID, err)
	}
	if record.Type != models.BackupTypeDatabase {
		return fmt.Errorf("backup %s is type %s, only database backups are restorable", backupID, record.Type)
	}

	path, cleanup, err := m.locate(ctx, record.Filename)
	if err != nil {
		return err
	}
	defer cleanup()

	checksum, err := fileChecksum(path)
	if err != nil {
		return fmt.Errorf("failed to checksum backup file: %w", err)
	}
	if checksum != record.Checksum {
		return fmt.Errorf("checksum mismatch for backup %s: expected %s, got %s", backupID, record.Checksum, checksum)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	if record.Compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	if err := m.db.Store().Badger().Load(reader, 16); err != nil {
		return fmt.Errorf("database restore failed: %w", err)
	}

	m.logger.Info().Str("backup_id", backupID).Str("filename", record.Filename).Msg("Database restored")
	return nil
}

// locate finds the artifact locally, falling back to the remote store
func (m *Manager) locate(ctx context.Context, filename string) (string, func(), error) {
	local := filepath.Join(m.config.Dir, filename)
	if _, err := os.Stat(local); err == nil {
		return local, func() {}, nil
	}

	if m.remote == nil {
		return "", nil, fmt.Errorf("backup file %s not found locally and no remote store configured", filename)
	}

	rc, err := m.remote.Get(ctx, filename)
	if err != nil {
		return "", nil, fmt.Errorf("backup file %s not found locally or remotely: %w", filename, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "restore-*"+filepath.Ext(filename))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// RetentionSweep deletes artifacts and records past each family's
// retention window.
func (m *Manager) RetentionSweep(ctx context.Context) error {
	families := []struct {
		backupType models.BackupType
		days       int
	}{
		{models.BackupTypeDatabase, m.config.DatabaseRetention},
		{models.BackupTypeFiles, m.config.FilesRetention},
		{models.BackupTypeLogs, m.config.LogsRetention},
	}

	for _, fam := range families {
		if fam.days <= 0 {
			continue
		}
		cutoff := time.Now().Add(-time.Duration(fam.days) * 24 * time.Hour)
		expired, err := m.records.ListOlderThan(ctx, fam.backupType, cutoff)
		if err != nil {
			m.logger.Warn().Err(err).Str("type", string(fam.backupType)).Msg("Retention listing failed")
			continue
		}
		// Failed runs age out faster regardless of family retention
		for _, record := range expired {
			if record.Status == models.BackupStatusFailed && time.Since(record.Timestamp) < failedRecordTTL {
				continue
			}
			path := filepath.Join(m.config.Dir, record.Filename)
			os.Remove(path)
			os.Remove(path + ".json")
			if err := m.records.Delete(ctx, record.BackupID); err != nil {
				m.logger.Warn().Err(err).Str("backup_id", record.BackupID).Msg("Failed to delete backup record")
				continue
			}
			m.logger.Debug().
				Str("backup_id", record.BackupID).
				Str("filename", record.Filename).
				Msg("Backup expired and removed")
		}
	}
	return nil
}

// fileChecksum computes the sha256 hex digest of a file
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeTarball writes a gzip tarball containing each directory's files.
// Missing directories are skipped rather than failing the run.
func writeTarball(path string, dirs []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		base := filepath.Base(filepath.Clean(dir))
		err := filepath.Walk(dir, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, file)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(filepath.Join(base, rel))

			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = name
			if info.IsDir() {
				header.Name = strings.TrimSuffix(name, "/") + "/"
			}
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			if info.IsDir() || !info.Mode().IsRegular() {
				return nil
			}

			src, err := os.Open(file)
			if err != nil {
				return err
			}
			defer src.Close()
			_, err = io.Copy(tw, src)
			return err
		})
		if err != nil {
			tw.Close()
			gz.Close()
			return fmt.Errorf("failed to archive %s: %w", dir, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}
