package data

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"

	"gamification/internal/biz"
	"gamification/internal/conf"
	"gamification/internal/pkg/hub"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// NewPublisher 进程内 websocket 推送，按配置追加 Redis 频道与邮件通知
func NewPublisher(d *Data, h *hub.Hub, c *conf.Gamification, logger log.Logger) biz.Publisher {
	helper := log.NewHelper(logger)
	pubs := []biz.Publisher{NewHubPublisher(h)}

	notify := &conf.Notify{}
	if c != nil && c.Notify != nil {
		notify = c.Notify
	}
	if rds := d.RedisClient(); rds != nil && notify.RedisChannel != "" {
		pubs = append(pubs, NewRedisPublisher(rds, notify.RedisChannel))
		helper.Infof("Publishing updates to redis channel: %s", notify.RedisChannel)
	}

	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		apiKey = notify.SendgridAPIKey
	}
	if apiKey != "" && notify.FromEmail != "" {
		pubs = append(pubs, NewSendgridPublisher(sendgrid.NewSendClient(apiKey), notify.FromEmail, notify.FromName, logger))
		helper.Infof("Email notifications enabled, from: %s", notify.FromEmail)
	}
	return biz.NewMultiPublisher(pubs...)
}

// hubPublisher 推送给用户当前打开的 websocket 连接
type hubPublisher struct {
	hub *hub.Hub
}

// NewHubPublisher 创建 websocket 推送
func NewHubPublisher(h *hub.Hub) biz.Publisher {
	return &hubPublisher{hub: h}
}

func (p *hubPublisher) Publish(_ context.Context, update *biz.GamificationUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	p.hub.SendToUser(update.UserID, payload)
	return nil
}

// redisPublisher 发布到 Redis 频道，供其他实例或下游服务订阅
type redisPublisher struct {
	rds     *redis.Client
	channel string
}

// NewRedisPublisher 创建 Redis 频道推送
func NewRedisPublisher(rds *redis.Client, channel string) biz.Publisher {
	return &redisPublisher{rds: rds, channel: channel}
}

func (p *redisPublisher) Publish(ctx context.Context, update *biz.GamificationUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.rds.Publish(ctx, p.channel, payload).Err()
}

// mailSender sendgrid 客户端中用到的部分
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// sendgridPublisher 徽章获得与升级时发送邮件，其他推送类型忽略
type sendgridPublisher struct {
	client mailSender
	from   *mail.Email
	logger *log.Helper
}

// NewSendgridPublisher 创建邮件通知
func NewSendgridPublisher(client mailSender, fromEmail, fromName string, logger log.Logger) biz.Publisher {
	return &sendgridPublisher{
		client: client,
		from:   mail.NewEmail(fromName, fromEmail),
		logger: log.NewHelper(logger),
	}
}

func (p *sendgridPublisher) Publish(ctx context.Context, update *biz.GamificationUpdate) error {
	if update.Email == "" {
		return nil
	}
	subject, body, ok := emailContent(update)
	if !ok {
		return nil
	}

	msg := mail.NewSingleEmail(p.from, subject, mail.NewEmail("", update.Email), body, "<p>"+html.EscapeString(body)+"</p>")
	resp, err := p.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	p.logger.WithContext(ctx).Infof("Notification email sent, kind: %s, user_id: %d", update.Kind, update.UserID)
	return nil
}

func emailContent(update *biz.GamificationUpdate) (subject, body string, ok bool) {
	switch update.Kind {
	case biz.UpdateBadgeEarned:
		return fmt.Sprintf("You earned the %s badge", update.BadgeName),
			fmt.Sprintf("Congratulations! You earned the %s badge and %d XP.", update.BadgeName, update.XP), true
	case biz.UpdateLevelUp:
		return fmt.Sprintf("You reached level %d", update.Level),
			fmt.Sprintf("Congratulations! You are now level %d (%s) with %d XP.", update.Level, update.Title, update.TotalXP), true
	}
	return "", "", false
}
