package migrate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transclip/internal/classify"
	"transclip/internal/storage"
	"transclip/pkg/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func countBoardsNamed(t *testing.T, db *gorm.DB, name string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&storage.BoardModel{}).Where("name = ?", name).Count(&count).Error)
	return count
}

func TestRun_FreshStoreBootstrapsLatest(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Run(db, Plans()...))

	v, err := Version(db, "clippings")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = Version(db, "boards")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	assert.EqualValues(t, 1, countBoardsNamed(t, db, storage.DefaultBoardName))

	// The latest shape is usable immediately.
	clip := storage.ClippingModel{
		UID:       classify.Hash([]byte("x")),
		Kind:      string(types.KindText),
		Content:   "x",
		Timestamp: time.Now(),
	}
	require.NoError(t, db.Create(&clip).Error)
}

func TestRun_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Run(db, Plans()...))
	require.NoError(t, Run(db, Plans()...))

	// Re-invoking on an already-migrated store is a no-op: no duplicate
	// default board, versions unchanged.
	assert.EqualValues(t, 1, countBoardsNamed(t, db, storage.DefaultBoardName))

	v, err := Version(db, "clippings")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func seedLegacyStore(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.AutoMigrate(&SchemaVersion{}, &clippingV1{}))

	base := time.Now().Add(-time.Hour)
	rows := []clippingV1{
		{Title: "greeting", Content: "hello", Type: "TXT", Timestamp: base},
		// Pre-dedup-era duplicate, must collapse into the row above.
		{Title: "greeting again", Content: "hello", Type: "TXT", Timestamp: base.Add(time.Minute)},
		{Title: "", Content: "https://example.com/", Type: "URL", Timestamp: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	require.NoError(t, db.Create(&SchemaVersion{Plan: "clippings", Version: 1, AppliedAt: base}).Error)
}

func TestRun_LegacyStoreUpgrade(t *testing.T) {
	db := openTestDB(t)
	seedLegacyStore(t, db)

	require.NoError(t, Run(db, Plans()...))

	var rows []storage.ClippingModel
	require.NoError(t, db.Order("timestamp asc").Find(&rows).Error)
	require.Len(t, rows, 2)

	// uid backfilled from canonical content bytes, legacy type codes
	// mapped, oldest duplicate kept.
	hello := rows[0]
	assert.Equal(t, classify.Hash([]byte("hello")), hello.UID)
	assert.Equal(t, string(types.KindText), hello.Kind)
	assert.Equal(t, "greeting", hello.Title)

	link := rows[1]
	assert.Equal(t, classify.Hash([]byte("https://example.com/")), link.UID)
	assert.Equal(t, string(types.KindURL), link.Kind)
	assert.Equal(t, "https://example.com/", link.Content)

	// Boards arrived along the way.
	assert.EqualValues(t, 1, countBoardsNamed(t, db, storage.DefaultBoardName))

	v, err := Version(db, "clippings")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRun_LegacyUpgradeIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedLegacyStore(t, db)

	require.NoError(t, Run(db, Plans()...))
	require.NoError(t, Run(db, Plans()...))

	var count int64
	require.NoError(t, db.Model(&storage.ClippingModel{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	assert.EqualValues(t, 1, countBoardsNamed(t, db, storage.DefaultBoardName))
}

func TestRun_UnversionedStoreAborts(t *testing.T) {
	db := openTestDB(t)

	// Clipping data exists but no version was ever recorded. Bootstrapping
	// would jump to the latest shape without backfilling, so Run must
	// refuse instead.
	require.NoError(t, db.AutoMigrate(&clippingV1{}))
	require.NoError(t, db.Create(&clippingV1{Content: "orphaned", Type: "TXT", Timestamp: time.Now()}).Error)

	err := Run(db, ClippingsPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema version is recorded")
}

func TestRun_VersionGapAborts(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&SchemaVersion{}, &clippingV1{}))
	require.NoError(t, db.Create(&SchemaVersion{Plan: "clippings", Version: 0, AppliedAt: time.Now()}).Error)

	err := Run(db, ClippingsPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage expects")
}

func TestRun_FailingHookAbortsInitialization(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&SchemaVersion{}))
	require.NoError(t, db.Create(&SchemaVersion{Plan: "broken", Version: 1, AppliedAt: time.Now()}).Error)

	plan := Plan{
		Name:   "broken",
		Latest: 2,
		Stages: []Stage{
			Custom(1, 2, nil, nil, func(tx *gorm.DB) error {
				return assert.AnError
			}),
		},
	}

	err := Run(db, plan)
	require.Error(t, err)

	// The version must not advance past the failed stage.
	v, verr := Version(db, "broken")
	require.NoError(t, verr)
	assert.Equal(t, 1, v)
}
