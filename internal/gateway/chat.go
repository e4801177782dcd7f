// internal/gateway/chat.go
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"coachreach/internal/models"
)

// chatInboxPrefix keys the per-recipient inbox list in Redis. The in-app
// client drains its inbox on connect and gets live pushes over the same key
// as a pub/sub channel.
const chatInboxPrefix = "chat:inbox:"

// chatInboxTTL bounds how long undelivered in-app messages are retained.
const chatInboxTTL = 30 * 24 * time.Hour

// ChatAdapter delivers in-app chat messages through Redis: an append to the
// recipient's inbox plus a live publish for connected clients.
type ChatAdapter struct {
	rdb *redis.Client
}

func NewChatAdapter(rdb *redis.Client) *ChatAdapter {
	return &ChatAdapter{rdb: rdb}
}

func (a *ChatAdapter) Channel() models.Channel {
	return models.ChannelChat
}

type chatPayload struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

func (a *ChatAdapter) Submit(ctx context.Context, text, address string) (string, error) {
	payload := chatPayload{
		ID:     uuid.New().String(),
		Text:   text,
		SentAt: time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("chat payload: %w", err)
	}

	key := chatInboxPrefix + address
	pipe := a.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, chatInboxTTL)
	pipe.Publish(ctx, key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("chat deliver: %w", err)
	}

	return payload.ID, nil
}
