package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/database"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/fyerfyer/pdf-vector-ingest/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStatusManager(t *testing.T) *IngestionStatusManager {
	t.Helper()

	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_status_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	require.NoError(t, db.AutoMigrate(&models.IngestionRecord{}), "Failed to run migrations")

	originalDB := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = originalDB
	})

	repo := repository.NewIngestionRepositoryWithDB(db)
	return NewIngestionStatusManager(repo, nil)
}

func TestStatusManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	manager := setupStatusManager(t)

	runID := "run-1"
	require.NoError(t, manager.StartRun(ctx, runID, "uploads/report.pdf", "uploads/report.pdf"))

	t.Run("InitialState", func(t *testing.T) {
		rec, err := manager.GetRecord(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, rec.Status)
		assert.Equal(t, models.StageFetching, rec.Stage)
		assert.Equal(t, "report.pdf", rec.FileName, "文件名应从存储键提取")
	})

	t.Run("Processing", func(t *testing.T) {
		require.NoError(t, manager.MarkAsProcessing(ctx, runID))

		status, err := manager.GetStatus(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, status)
	})

	t.Run("StageProgression", func(t *testing.T) {
		require.NoError(t, manager.EnterStage(ctx, runID, models.StageEmbedding, 50))

		rec, err := manager.GetRecord(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, models.StageEmbedding, rec.Stage)
		assert.Equal(t, 50, rec.Progress)
	})

	t.Run("Completed", func(t *testing.T) {
		require.NoError(t, manager.MarkAsCompleted(ctx, runID, 3, 12))

		rec, err := manager.GetRecord(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, rec.Status)
		assert.Equal(t, models.StageDone, rec.Stage)
		assert.Equal(t, 100, rec.Progress)
		assert.Equal(t, 3, rec.PageCount)
		assert.Equal(t, 12, rec.ChunkCount)
		assert.NotNil(t, rec.CompletedAt)
	})

	t.Run("CompletedIsTerminal", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, runID)
		require.Error(t, err, "已完成的运行不应再转为处理中")
	})
}

func TestStatusManager_FailedRun(t *testing.T) {
	ctx := context.Background()
	manager := setupStatusManager(t)

	runID := "run-failed"
	require.NoError(t, manager.StartRun(ctx, runID, "uploads/bad.pdf", "uploads/bad.pdf"))
	require.NoError(t, manager.MarkAsProcessing(ctx, runID))

	require.NoError(t, manager.MarkAsFailed(ctx, runID, models.StageEmbedding, "embedding server error"))

	rec, err := manager.GetRecord(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, models.StageEmbedding, rec.Stage, "失败记录应保留失败阶段")
	assert.Equal(t, "embedding server error", rec.Error)

	// 失败的运行允许重试
	require.NoError(t, manager.MarkAsProcessing(ctx, runID))
}

func TestStatusManager_AttachTask(t *testing.T) {
	ctx := context.Background()
	manager := setupStatusManager(t)

	runID := "run-task"
	require.NoError(t, manager.StartRun(ctx, runID, "uploads/q.pdf", "uploads/q.pdf"))
	require.NoError(t, manager.AttachTask(ctx, runID, "task-42"))

	rec, err := manager.GetRecord(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "task-42", rec.TaskID)
}

func TestStatusManager_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	manager := setupStatusManager(t)

	for i := 0; i < 3; i++ {
		runID := fmt.Sprintf("run-list-%d", i)
		require.NoError(t, manager.StartRun(ctx, runID, "uploads/list.pdf", "uploads/list.pdf"))
	}

	recs, total, err := manager.ListRuns(ctx, 0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, recs, 3)

	require.NoError(t, manager.DeleteRun(ctx, "run-list-0"))

	_, err = manager.GetRecord(ctx, "run-list-0")
	assert.ErrorIs(t, err, models.ErrIngestionNotFound)
}
