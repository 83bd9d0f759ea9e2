package server

import (
	"gamification/internal/pkg/hub"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer, NewGRPCServer, NewSweeper, NewHub)

// NewHub 创建 websocket 推送中心，退出时断开全部连接
func NewHub(logger log.Logger) (*hub.Hub, func()) {
	h := hub.NewHub(logger)
	return h, h.Close
}
