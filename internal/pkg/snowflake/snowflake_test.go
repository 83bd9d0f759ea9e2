package snowflake

import (
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NextID(t *testing.T) {
	gen, err := NewGenerator(1, log.DefaultLogger)
	require.NoError(t, err)

	id1 := gen.NextID()
	id2 := gen.NextID()
	assert.Greater(t, id2, id1)
	assert.Greater(t, id1, int64(0))

	nodeID, _, timestamp := Parse(id1)
	assert.Equal(t, int64(1), nodeID)
	assert.Greater(t, timestamp, int64(0))
	assert.Less(t, timestamp, int64(4102444800000)) // 2100-01-01
}

func TestGenerator_NextIDConcurrent(t *testing.T) {
	gen, err := NewGenerator(3, log.DefaultLogger)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, gen.NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = true
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratorFromEnv(t *testing.T) {
	// 环境变量覆盖配置
	t.Setenv("SNOWFLAKE_NODE_ID", "42")

	gen, err := NewGenerator(1, log.DefaultLogger)
	require.NoError(t, err)
	nodeID, _, _ := Parse(gen.NextID())
	assert.Equal(t, int64(42), nodeID)
}

func TestGeneratorInvalidNodeID(t *testing.T) {
	tests := []struct {
		name   string
		nodeID int64
	}{
		{name: "超过 1023", nodeID: 1024},
		{name: "负数", nodeID: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.nodeID, log.DefaultLogger)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "node ID must be between 0 and 1023")
		})
	}
}
