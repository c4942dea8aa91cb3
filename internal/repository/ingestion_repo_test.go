package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/database"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	// 运行迁移以创建所需的表
	err = db.AutoMigrate(&models.IngestionRecord{})
	require.NoError(t, err, "Failed to run migrations")

	// 保存原始全局DB引用
	originalDB := database.DB

	// 替换全局DB为测试DB
	database.DB = db

	// 返回测试DB和清理函数
	cleanup := func() {
		// 恢复原始DB引用
		database.DB = originalDB
	}

	return db, cleanup
}

func newTestRecord(id, fileKey string) *models.IngestionRecord {
	return &models.IngestionRecord{
		ID:        id,
		FileKey:   fileKey,
		FileName:  "report.pdf",
		FileSize:  2048,
		Namespace: fileKey,
		Status:    models.StatusPending,
		Stage:     models.StageFetching,
	}
}

func TestIngestionRepository_Create(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()

	rec := newTestRecord("ingest-1", "uploads/1700000000-report.pdf")
	err := repo.Create(rec)
	require.NoError(t, err, "创建摄取记录应成功")

	// 验证记录已写入
	got, err := repo.GetByID("ingest-1")
	require.NoError(t, err)
	assert.Equal(t, "uploads/1700000000-report.pdf", got.FileKey)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero(), "创建时间应被自动设置")
}

func TestIngestionRepository_CreateEmptyID(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()

	err := repo.Create(&models.IngestionRecord{FileKey: "uploads/x.pdf"})
	require.Error(t, err, "空ID的记录应被拒绝")
}

func TestIngestionRepository_GetByID_NotFound(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()

	_, err := repo.GetByID("no-such-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIngestionNotFound)
}

func TestIngestionRepository_GetByFileKey(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()

	// 同一文件键写入两条记录，应返回最新的一条
	older := newTestRecord("ingest-old", "uploads/same.pdf")
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(older))

	newer := newTestRecord("ingest-new", "uploads/same.pdf")
	require.NoError(t, repo.Create(newer))

	got, err := repo.GetByFileKey("uploads/same.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ingest-new", got.ID, "应返回最近创建的记录")
}

func TestIngestionRepository_UpdateStatus(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()
	require.NoError(t, repo.Create(newTestRecord("ingest-2", "uploads/a.pdf")))

	t.Run("Processing", func(t *testing.T) {
		err := repo.UpdateStatus("ingest-2", models.StatusProcessing, "")
		require.NoError(t, err)

		got, err := repo.GetByID("ingest-2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
		assert.Nil(t, got.CompletedAt, "处理中的任务不应有完成时间")
	})

	t.Run("Failed", func(t *testing.T) {
		err := repo.UpdateStatus("ingest-2", models.StatusFailed, "embed failed: server error")
		require.NoError(t, err)

		got, err := repo.GetByID("ingest-2")
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, got.Status)
		assert.Equal(t, "embed failed: server error", got.Error)
		assert.NotNil(t, got.CompletedAt, "失败的任务应有完成时间")
	})
}

func TestIngestionRepository_UpdateStageAndProgress(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()
	require.NoError(t, repo.Create(newTestRecord("ingest-3", "uploads/b.pdf")))

	require.NoError(t, repo.UpdateStage("ingest-3", models.StageEmbedding))
	require.NoError(t, repo.UpdateProgress("ingest-3", 150)) // 超出范围应被截断

	got, err := repo.GetByID("ingest-3")
	require.NoError(t, err)
	assert.Equal(t, models.StageEmbedding, got.Stage)
	assert.Equal(t, 100, got.Progress, "进度应被限制在100以内")
}

func TestIngestionRepository_SetResult(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()
	require.NoError(t, repo.Create(newTestRecord("ingest-4", "uploads/c.pdf")))

	require.NoError(t, repo.SetResult("ingest-4", 3, 12))

	got, err := repo.GetByID("ingest-4")
	require.NoError(t, err)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, 12, got.ChunkCount)
}

func TestIngestionRepository_List(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()

	for i := 0; i < 5; i++ {
		rec := newTestRecord(fmt.Sprintf("ingest-list-%d", i), fmt.Sprintf("uploads/doc-%d.pdf", i))
		if i%2 == 0 {
			rec.Status = models.StatusCompleted
		}
		require.NoError(t, repo.Create(rec))
	}

	t.Run("All", func(t *testing.T) {
		recs, total, err := repo.List(0, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, recs, 5)
	})

	t.Run("FilterByStatus", func(t *testing.T) {
		recs, total, err := repo.List(0, 10, map[string]interface{}{
			"status": models.StatusCompleted,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, recs, 3)
	})

	t.Run("Pagination", func(t *testing.T) {
		recs, total, err := repo.List(0, 2, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total, "总数不受分页影响")
		assert.Len(t, recs, 2)
	})
}

func TestIngestionRepository_Delete(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewIngestionRepository()
	require.NoError(t, repo.Create(newTestRecord("ingest-del", "uploads/d.pdf")))

	require.NoError(t, repo.Delete("ingest-del"))

	_, err := repo.GetByID("ingest-del")
	assert.ErrorIs(t, err, models.ErrIngestionNotFound)
}
