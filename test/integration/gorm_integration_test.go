package integration

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"magic-collection-be/internal/model"
	"magic-collection-be/internal/repository/unitofwork"
	"magic-collection-be/internal/service"
	"magic-collection-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err, "Failed to connect to DB")
	require.NoError(t, gormDB.AutoMigrate(&model.User{}, &model.ChatHistory{}, &model.ChatExchange{}))

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	assert.NoError(t, sqlDB.Ping())

	ctx := context.Background()
	owner := &model.User{Id: uuid.New(), Email: "it-" + uuid.NewString() + "@example.com", FullName: "Integration"}
	require.NoError(t, gormDB.Create(owner).Error)
	defer func() {
		gormDB.Where("user_id = ?", owner.Id).Delete(&model.ChatExchange{})
		gormDB.Where("user_id = ?", owner.Id).Delete(&model.ChatHistory{})
		gormDB.Delete(owner)
	}()

	store := service.NewConversationStore(unitofwork.NewRepositoryFactory(gormDB), nil)

	historyId, err := store.CreateHistory(ctx, owner.Id)
	require.NoError(t, err)

	t.Run("Increment is atomic under RETURNING", func(t *testing.T) {
		const n = 16
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			firsts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				isFirst, err := store.IncrementMessageCount(ctx, historyId)
				assert.NoError(t, err)
				if isFirst {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, firsts)

		var m model.ChatHistory
		require.NoError(t, gormDB.First(&m, "id = ?", historyId).Error)
		assert.Equal(t, n, m.MessagesCount)
	})

	t.Run("DeleteIfEmpty keeps used histories", func(t *testing.T) {
		require.NoError(t, store.DeleteIfEmpty(ctx, historyId))
		exists, err := store.HistoryExists(ctx, historyId, owner.Id)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}
