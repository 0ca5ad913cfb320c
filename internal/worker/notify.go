package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CoverLetterNotifyMessage 通过 Redis Pub/Sub 经 WebSocket 转发给前端。
type CoverLetterNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	JobID         uint   `json:"job_id"`
	CoverLetterID uint   `json:"cover_letter_id,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
	Detail        string `json:"detail,omitempty"`
}

// Publisher 是发布通知所需的 Redis 能力子集。
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// NotifyChannel 返回用户的通知频道名。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func publishNotify(ctx context.Context, pub Publisher, userID uint, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
