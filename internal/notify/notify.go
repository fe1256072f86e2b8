// Package notify 通过 Redis Pub/Sub 把事件推送给用户的 WebSocket 连接。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 消息类型，前端按 type 分发。
const (
	TypeDashboardInvalidated = "dashboard.invalidated"
	TypeExportCompleted      = "export.completed"
	TypeExportFailed         = "export.failed"
	TypeUsernameCheck        = "username.check"
)

// Message 是统一的推送协议，字段名与前端解析保持一致。
type Message struct {
	Type          string `json:"type"`
	Entity        string `json:"entity,omitempty"`
	Op            string `json:"op,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	URL           string `json:"url,omitempty"`
	ErrorCode     int    `json:"error_code,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}

// Publisher 向指定用户推送消息。
type Publisher interface {
	Publish(ctx context.Context, userID uint, msg Message) error
}

// Channel 返回用户的订阅频道名。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// RedisPublisher 基于 Redis Pub/Sub 的实现。
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher 构造 RedisPublisher。
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uint, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// Nop 丢弃所有消息，用于测试与未配置 Redis 的场景。
type Nop struct{}

func (Nop) Publish(context.Context, uint, Message) error { return nil }
