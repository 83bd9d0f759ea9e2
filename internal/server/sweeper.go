package server

import (
	"context"
	"sync"
	"time"

	"gamification/internal/biz"
	"gamification/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

var _ transport.Server = (*Sweeper)(nil)

// Sweeper 定期清理进程内限流计数器中已过期的窗口
type Sweeper struct {
	store    biz.LocalRateLimitStore
	clock    biz.Clock
	interval time.Duration
	log      *log.Helper

	once sync.Once
	stop chan struct{}
}

func NewSweeper(store biz.LocalRateLimitStore, clock biz.Clock, c *conf.Gamification, logger log.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clock,
		interval: c.SweepInterval(),
		log:      log.NewHelper(logger),
		stop:     make(chan struct{}),
	}
}

// Start 阻塞直到 Stop 被调用或 ctx 结束
func (s *Sweeper) Start(ctx context.Context) error {
	s.log.Infof("[sweeper] started, interval: %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sweeper) Stop(context.Context) error {
	s.once.Do(func() {
		close(s.stop)
		s.log.Info("[sweeper] stopped")
	})
	return nil
}

// Sweep 执行一次清理，返回移除的窗口数
func (s *Sweeper) Sweep() int {
	removed := s.store.Sweep(s.clock.Now())
	if removed > 0 {
		s.log.Debugf("[sweeper] removed %d expired rate limit windows", removed)
	}
	return removed
}
