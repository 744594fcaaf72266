package maintain

import (
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoedge.xyz/alarm-relay-service/pkg/common"
	"algoedge.xyz/alarm-relay-service/pkg/db"
	"algoedge.xyz/alarm-relay-service/pkg/imagestore"
	"algoedge.xyz/alarm-relay-service/pkg/models"
	_ "algoedge.xyz/alarm-relay-service/pkg/testing"
)

func newTestSweeper(t *testing.T, cfg RetentionConfig) (*Sweeper, *db.DB, *imagestore.Store) {
	t.Helper()
	common.SetTestLoggerNop()

	dbInstance, err := db.New(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	store := imagestore.New(t.TempDir(), "")

	sweeper := &Sweeper{
		Db:   dbInstance,
		Root: store.Root(),
		Cfg:  cfg,
		Now:  func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local) },
	}
	return sweeper, dbInstance, store
}

func seedRowAt(t *testing.T, d *db.DB, ts time.Time, imageURL string) {
	t.Helper()
	require.NoError(t, d.Conn.Create(&models.Message{
		TS:       ts,
		DeviceID: "dev-1",
		ImageURL: imageURL,
		DedupKey: uuid.NewString(),
	}).Error)
}

func TestSweepAgeBoundDeletesRowsAndDayDirs(t *testing.T) {
	sweeper, d, store := newTestSweeper(t, RetentionConfig{SnapRetainDays: 7, DBRetainDays: 7})
	now := sweeper.Now()

	oldURL, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("old")), "20250520")
	require.NoError(t, err)
	freshURL, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("fresh")), "20250609")
	require.NoError(t, err)

	seedRowAt(t, d, now.AddDate(0, 0, -21), oldURL)
	seedRowAt(t, d, now.AddDate(0, 0, -1), freshURL)

	stats, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DeletedRows)
	assert.Equal(t, 1, stats.DeletedFiles)
	assert.Equal(t, 1, stats.RemovedDirs)
	assert.Positive(t, stats.FreedBytes)

	_, err = os.Stat(store.Root() + "/20250520")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.Root() + "/20250609")
	assert.NoError(t, err)

	var count int64
	require.NoError(t, d.Conn.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSweepRowCeilingDropsOldestFirst(t *testing.T) {
	sweeper, d, _ := newTestSweeper(t, RetentionConfig{DBMaxRows: 3})
	now := sweeper.Now()

	for i := 0; i < 5; i++ {
		seedRowAt(t, d, now.Add(time.Duration(i)*time.Minute), "")
	}

	stats, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DeletedRows)

	var rows []models.Message
	require.NoError(t, d.Conn.Order("ts asc").Find(&rows).Error)
	require.Len(t, rows, 3)
	// the two oldest are gone
	assert.Equal(t, now.Add(2*time.Minute).Unix(), rows[0].TS.Unix())
}

func TestSweepByteCeilingEvictsOldestFiles(t *testing.T) {
	sweeper, d, store := newTestSweeper(t, RetentionConfig{SnapMaxBytes: 10})

	oldURL, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("aaaaaaaa")), "20250609")
	require.NoError(t, err)
	// newer file by mtime
	rel, _ := imagestore.RelFromURL(oldURL)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(store.LocalPath(rel), past, past))

	newURL, err := store.SaveBase64(base64.StdEncoding.EncodeToString([]byte("bbbbbbbb")), "20250610")
	require.NoError(t, err)

	seedRowAt(t, d, time.Now(), oldURL)
	seedRowAt(t, d, time.Now(), newURL)

	stats, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeletedFiles)
	assert.Equal(t, int64(1), stats.DeletedRows)

	_, err = os.Stat(store.LocalPath(rel))
	assert.True(t, os.IsNotExist(err))

	newRel, _ := imagestore.RelFromURL(newURL)
	_, err = os.Stat(store.LocalPath(newRel))
	assert.NoError(t, err)
}

func TestSweepZeroConfigIsNoop(t *testing.T) {
	sweeper, d, _ := newTestSweeper(t, RetentionConfig{})
	seedRowAt(t, d, time.Now().AddDate(-1, 0, 0), "")

	stats, err := sweeper.Sweep()
	require.NoError(t, err)
	assert.Equal(t, RetentionStats{}, stats)

	var count int64
	require.NoError(t, d.Conn.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUntilNext(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.Local)

	wait, err := untilNext("10:30", now)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, wait)

	// already past today, schedule tomorrow
	wait, err = untilNext("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, wait)

	_, err = untilNext("25:00", now)
	assert.Error(t, err)
	_, err = untilNext("nope", now)
	assert.Error(t, err)
}
