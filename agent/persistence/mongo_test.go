package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/BaSui01/agentteam/agent/memory"
	"github.com/BaSui01/agentteam/agent/memory/memorytest"
)

// 需要设置 AGENTTEAM_MONGO_URI 才会运行
func newMongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("AGENTTEAM_MONGO_URI")
	if uri == "" {
		t.Skip("AGENTTEAM_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, db, err := NewMongoDatabase(ctx, MongoStoreConfig{URI: uri, Database: "agentteam_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoPlans(t *testing.T) {
	memorytest.RunPlansSuite(t, func(t *testing.T) memory.GptsPlansMemory {
		s, err := NewMongoPlans(context.Background(), newMongoDB(t))
		require.NoError(t, err)
		return s
	})
}

func TestMongoMessages(t *testing.T) {
	memorytest.RunMessagesSuite(t, func(t *testing.T) memory.GptsMessageMemory {
		s, err := NewMongoMessages(context.Background(), newMongoDB(t))
		require.NoError(t, err)
		return s
	})
}
