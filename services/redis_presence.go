package services

import (
	"context"
	"fmt"
	"time"

	"sportsocial/utils/log"

	"github.com/go-redis/redis/v8"
)

const (
	PRESENCE_KEY_PREFIX = "presence:user:"
	PRESENCE_TTL        = 12 * time.Hour
)

// SharedPresence - реестр присутствия для нескольких инстансов: локальные соединения
// живут в PresenceRegistry, а членство дублируется в redis, чтобы любой инстанс мог
// спросить, онлайн ли пользователь хоть где-то
type SharedPresence struct {
	*PresenceRegistry
	client     *redis.Client
	instanceID string
}

func NewSharedPresence(local *PresenceRegistry, client *redis.Client, instanceID string) *SharedPresence {
	return &SharedPresence{PresenceRegistry: local, client: client, instanceID: instanceID}
}

func (p *SharedPresence) member(connectionID string) string {
	return p.instanceID + "/" + connectionID
}

func presenceKey(userID string) string {
	return fmt.Sprintf("%s%s", PRESENCE_KEY_PREFIX, userID)
}

func (p *SharedPresence) OnConnect(ctx context.Context, connectionID string, token string, sender Sender) string {
	userID := p.PresenceRegistry.OnConnect(ctx, connectionID, token, sender)
	if userID == "" {
		return ""
	}

	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, presenceKey(userID), p.member(connectionID))
	pipe.Expire(ctx, presenceKey(userID), PRESENCE_TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Log.WithError(err).WithField("user_id", userID).Warn("failed to mirror presence to redis")
	}
	return userID
}

func (p *SharedPresence) OnDisconnect(ctx context.Context, connectionID string) {
	p.PresenceRegistry.mu.RLock()
	entry, ok := p.PresenceRegistry.connections[connectionID]
	p.PresenceRegistry.mu.RUnlock()

	p.PresenceRegistry.OnDisconnect(ctx, connectionID)
	if !ok {
		return
	}
	if err := p.client.SRem(ctx, presenceKey(entry.userID), p.member(connectionID)).Err(); err != nil {
		log.Log.WithError(err).WithField("user_id", entry.userID).Warn("failed to remove presence from redis")
	}
}

// IsOnline сначала смотрит локально, затем в общий реестр
func (p *SharedPresence) IsOnline(ctx context.Context, userID string) bool {
	if p.PresenceRegistry.IsOnline(ctx, userID) {
		return true
	}
	n, err := p.client.SCard(ctx, presenceKey(userID)).Result()
	if err != nil {
		// redis недоступен - считаем онлайн
		return true
	}
	return n > 0
}
