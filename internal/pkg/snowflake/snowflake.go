package snowflake

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/go-kratos/kratos/v2/log"
)

// maxNodeID 10 位节点号
const maxNodeID = 1023

// Generator 账本行 ID 生成器，同一进程内单调递增
type Generator struct {
	node *snowflake.Node
	log  *log.Helper

	mu   sync.Mutex
	last int64
}

// NewGenerator 创建生成器，环境变量 SNOWFLAKE_NODE_ID 优先于配置
func NewGenerator(nodeID int64, logger log.Logger) (*Generator, error) {
	if env := os.Getenv("SNOWFLAKE_NODE_ID"); env != "" {
		if v, err := strconv.ParseInt(env, 10, 64); err == nil {
			nodeID = v
		}
	}
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("node ID must be between 0 and %d, got: %d", maxNodeID, nodeID)
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	helper := log.NewHelper(logger)
	helper.Infof("Snowflake generator initialized with node ID: %d", nodeID)
	return &Generator{node: node, log: helper}, nil
}

// NextID 生成下一个 ID；时钟回拨时沿用上一个 ID 加一，保证不重复
func (g *Generator) NextID() int64 {
	id := g.node.Generate().Int64()
	g.mu.Lock()
	defer g.mu.Unlock()
	if id <= g.last {
		g.log.Warnf("Clock moved backwards, reusing sequence after: %d", g.last)
		id = g.last + 1
	}
	g.last = id
	return id
}

// Parse 拆出节点号、序列号与毫秒时间戳，用于排查
func Parse(id int64) (nodeID int64, step int64, timestamp int64) {
	sfID := snowflake.ParseInt64(id)
	return sfID.Node(), sfID.Step(), sfID.Time()
}
