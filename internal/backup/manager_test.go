package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

type testEnv struct {
	db      *badgerstore.BadgerDB
	kv      interfaces.KeyValueStorage
	records interfaces.BackupStorage
	mgr     *Manager
	logger  arbor.ILogger
}

func newTestEnv(t *testing.T, dir string) *testEnv {
	t.Helper()
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	records := badgerstore.NewBackupStorage(db, logger)
	config := &common.BackupConfig{Dir: dir, DatabaseRetention: 30, FilesRetention: 14, LogsRetention: 7}
	mgr, err := NewManager(db, records, config, nil, logger)
	require.NoError(t, err)

	return &testEnv{
		db:      db,
		kv:      badgerstore.NewKVStorage(db, logger),
		records: records,
		mgr:     mgr,
		logger:  logger,
	}
}

func TestBackupDatabase_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	source := newTestEnv(t, dir)
	require.NoError(t, source.kv.Set(ctx, "greeting", "x"))

	record, err := source.mgr.BackupDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusCompleted, record.Status)
	assert.Equal(t, models.BackupTypeDatabase, record.Type)
	assert.NotEmpty(t, record.Checksum)
	assert.True(t, record.Compressed)
	assert.Greater(t, record.SizeBytes, int64(0))

	path := filepath.Join(dir, record.Filename)
	assert.FileExists(t, path)
	assert.FileExists(t, path+".json")

	// A fresh store restores the dump and yields the original value
	dest := newTestEnv(t, dir)
	require.NoError(t, dest.records.Save(ctx, record))
	require.NoError(t, dest.mgr.Restore(ctx, record.BackupID))

	value, err := dest.kv.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "x", value)
}

func TestRestore_ChecksumMismatchAborts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	source := newTestEnv(t, dir)
	require.NoError(t, source.kv.Set(ctx, "greeting", "x"))

	record, err := source.mgr.BackupDatabase(ctx)
	require.NoError(t, err)

	// Corrupt the artifact after the checksum was recorded
	path := filepath.Join(dir, record.Filename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))

	dest := newTestEnv(t, dir)
	require.NoError(t, dest.records.Save(ctx, record))

	err = dest.mgr.Restore(ctx, record.BackupID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	// No restore action took place
	_, err = dest.kv.Get(ctx, "greeting")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestRestore_RejectsNonDatabaseBackups(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	env := newTestEnv(t, dir)

	record := &models.BackupRecord{
		BackupID:  common.NewBackupID(),
		Type:      models.BackupTypeFiles,
		Timestamp: time.Now().UTC(),
		Filename:  "files_20260101_000000.tar.gz",
		Status:    models.BackupStatusCompleted,
	}
	require.NoError(t, env.records.Save(ctx, record))

	err := env.mgr.Restore(ctx, record.BackupID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only database backups are restorable")
}

func TestBackupFiles_ArchivesDirectories(t *testing.T) {
	dir := t.TempDir()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "resume.pdf"), []byte("pdf bytes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "notes.txt"), []byte("notes"), 0644))

	ctx := context.Background()
	env := newTestEnv(t, dir)
	env.mgr.config.FileDirectories = []string{src, filepath.Join(src, "does-not-exist")}

	record, err := env.mgr.BackupFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusCompleted, record.Status)
	assert.Equal(t, models.BackupTypeFiles, record.Type)
	assert.FileExists(t, filepath.Join(dir, record.Filename))

	listed, err := env.records.List(ctx, models.BackupTypeFiles)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, record.BackupID, listed[0].BackupID)
}

func TestRetentionSweep_RemovesExpiredArtifacts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	env := newTestEnv(t, dir)

	record, err := env.mgr.BackupDatabase(ctx)
	require.NoError(t, err)

	// Age the record past the database retention window
	record.Timestamp = time.Now().UTC().Add(-40 * 24 * time.Hour)
	require.NoError(t, env.records.Save(ctx, record))

	require.NoError(t, env.mgr.RetentionSweep(ctx))

	assert.NoFileExists(t, filepath.Join(dir, record.Filename))
	assert.NoFileExists(t, filepath.Join(dir, record.Filename)+".json")
	_, err = env.records.Get(ctx, record.BackupID)
	assert.Error(t, err)
}

func TestRetentionSweep_LeavesFreshRecords(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	env := newTestEnv(t, dir)

	record, err := env.mgr.BackupDatabase(ctx)
	require.NoError(t, err)

	require.NoError(t, env.mgr.RetentionSweep(ctx))

	assert.FileExists(t, filepath.Join(dir, record.Filename))
	_, err = env.records.Get(ctx, record.BackupID)
	assert.NoError(t, err)
}
