// Package sequence hands out monotonically increasing message IDs per
// conversation, backed by Redis INCR so any gateway instance can issue
// them without coordination.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	pkgredis "tcpreactor/pkg/redis"
)

const keyPrefix = "seq:"

// Manager issues sequence numbers scoped to a conversation ID.
type Manager struct {
	ctx context.Context
	log *zap.Logger
}

// NewManager returns a Manager. log may be nil.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{ctx: pkgredis.Context(), log: log}
}

// Next returns the next sequence number for conversationID, starting at 1.
func (m *Manager) Next(conversationID string) (int64, error) {
	seq, err := pkgredis.Client.Incr(m.ctx, keyPrefix+conversationID).Result()
	if err != nil {
		if m.log != nil {
			m.log.Warn("sequence: next failed", zap.String("conversation", conversationID), zap.Error(err))
		}
		return 0, fmt.Errorf("sequence: next %s: %w", conversationID, err)
	}
	return seq, nil
}

// Current returns the last issued sequence number without advancing it, or
// 0 if none has been issued yet.
func (m *Manager) Current(conversationID string) (int64, error) {
	seq, err := pkgredis.Client.Get(m.ctx, keyPrefix+conversationID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		if m.log != nil {
			m.log.Warn("sequence: current failed", zap.String("conversation", conversationID), zap.Error(err))
		}
		return 0, err
	}
	return seq, nil
}

// ConversationID combines two user IDs into one order-independent key, so
// A→B and B→A share a sequence.
func ConversationID(userA, userB string) string {
	if userA < userB {
		return userA + ":" + userB
	}
	return userB + ":" + userA
}
