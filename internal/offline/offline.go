// Package offline stores messages for users who are not currently
// connected to any gateway, in a Redis ZSet keyed by sequence number so
// delivery order survives the round trip through storage.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	pkgredis "tcpreactor/pkg/redis"
)

const (
	boxPrefix = "msg_box:"

	// MaxPerUser bounds how many undelivered messages a user accumulates;
	// older entries are trimmed once the limit is exceeded.
	MaxPerUser = 1000

	// TTL is how long an undelivered message is retained before it is
	// dropped regardless of MaxPerUser.
	TTL = 7 * 24 * time.Hour
)

// Message is one stored message awaiting delivery.
type Message struct {
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Content    []byte    `json:"content"`
	MsgType    int       `json:"msg_type"`
	SeqID      int64     `json:"seq_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store manages every user's offline-message box, one sorted set per user.
type Store struct {
	ctx context.Context
	log *zap.Logger
}

// NewStore returns a Store. log may be nil.
func NewStore(log *zap.Logger) *Store {
	return &Store{ctx: pkgredis.Context(), log: log}
}

// Put appends msg to userID's box, trims it to MaxPerUser, and refreshes
// its TTL.
func (s *Store) Put(userID string, msg *Message) error {
	key := boxPrefix + userID
	msg.Timestamp = time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("offline: marshal message for %s: %w", userID, err)
	}

	if err := pkgredis.Client.ZAdd(s.ctx, key, redis.Z{
		Score:  float64(msg.SeqID),
		Member: string(data),
	}).Err(); err != nil {
		if s.log != nil {
			s.log.Warn("offline: store failed", zap.String("user", userID), zap.Error(err))
		}
		return fmt.Errorf("offline: store message for %s: %w", userID, err)
	}

	pkgredis.Client.ZRemRangeByRank(s.ctx, key, 0, -MaxPerUser-1)
	pkgredis.Client.Expire(s.ctx, key, TTL)
	return nil
}

// FetchSince returns userID's stored messages with SeqID >= startSeq, in
// ascending order, capped at count.
func (s *Store) FetchSince(userID string, startSeq, count int64) ([]*Message, error) {
	key := boxPrefix + userID
	results, err := pkgredis.Client.ZRangeByScore(s.ctx, key, &redis.ZRangeBy{
		Min:   fmt.Sprintf("%d", startSeq),
		Max:   "+inf",
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("offline: fetch for %s: %w", userID, err)
	}
	return s.unmarshalAll(results), nil
}

// FetchLatest returns userID's count most recent stored messages, newest
// first.
func (s *Store) FetchLatest(userID string, count int64) ([]*Message, error) {
	key := boxPrefix + userID
	results, err := pkgredis.Client.ZRevRange(s.ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("offline: fetch latest for %s: %w", userID, err)
	}
	return s.unmarshalAll(results), nil
}

func (s *Store) unmarshalAll(raw []string) []*Message {
	out := make([]*Message, 0, len(raw))
	for _, data := range raw {
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			if s.log != nil {
				s.log.Warn("offline: dropping corrupt stored message", zap.Error(err))
			}
			continue
		}
		out = append(out, &m)
	}
	return out
}

// Ack deletes every stored message with SeqID <= maxSeqID for userID.
func (s *Store) Ack(userID string, maxSeqID int64) error {
	key := boxPrefix + userID
	err := pkgredis.Client.ZRemRangeByScore(s.ctx, key, "-inf", fmt.Sprintf("%d", maxSeqID)).Err()
	if err != nil && s.log != nil {
		s.log.Warn("offline: ack failed", zap.String("user", userID), zap.Error(err))
	}
	return err
}

// Count returns how many messages are pending for userID.
func (s *Store) Count(userID string) (int64, error) {
	return pkgredis.Client.ZCard(s.ctx, boxPrefix+userID).Result()
}
