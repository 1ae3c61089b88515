// Package pubsub forwards chat messages between gateway instances over
// Redis Pub/Sub, since a user's two ends of a conversation may each be
// connected to a different gateway process.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	pkgredis "tcpreactor/pkg/redis"
)

// Message is what travels over a Pub/Sub channel between gateways.
type Message struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Content    []byte `json:"content"`
	MsgType    int    `json:"msg_type"`
	SeqID      int64  `json:"seq_id"`
}

// Manager owns this gateway's direct channel subscription and, optionally,
// its shard-channel subscriptions for cluster-wide broadcasts.
type Manager struct {
	gatewayID   string
	directKey   string
	sub         *redis.PubSub
	shardSub    *redis.PubSub
	shardRouter *ShardRouter

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	handler      func(*Message)
	shardHandler func(shard string, payload []byte)
}

func directChannel(gatewayID string) string { return "gw:" + gatewayID }

// NewManager returns a Manager for gatewayID. shardRouter may be nil if the
// gateway doesn't participate in shard broadcasts.
func NewManager(gatewayID string, shardRouter *ShardRouter, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		gatewayID:   gatewayID,
		directKey:   directChannel(gatewayID),
		shardRouter: shardRouter,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// Start subscribes to this gateway's direct channel and begins delivering
// messages to handler in a background goroutine.
func (m *Manager) Start(handler func(*Message)) error {
	m.handler = handler
	m.sub = pkgredis.Client.Subscribe(m.ctx, m.directKey)
	if _, err := m.sub.Receive(m.ctx); err != nil {
		return fmt.Errorf("pubsub: subscribe %s: %w", m.directKey, err)
	}
	go m.receiveLoop(m.sub.Channel(), m.dispatchDirect)
	return nil
}

// StartShard additionally subscribes to the given shard channels,
// delivering raw payloads to shardHandler. It does not consult the
// ShardRouter; the caller chooses which shards to subscribe to.
func (m *Manager) StartShard(shards []string, shardHandler func(shard string, payload []byte)) error {
	m.shardHandler = shardHandler
	m.shardSub = pkgredis.Client.Subscribe(m.ctx, shards...)
	if _, err := m.shardSub.Receive(m.ctx); err != nil {
		return fmt.Errorf("pubsub: subscribe shards: %w", err)
	}
	go m.receiveLoop(m.shardSub.Channel(), m.dispatchShard)
	return nil
}

func (m *Manager) receiveLoop(ch <-chan *redis.Message, dispatch func(*redis.Message)) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			dispatch(msg)
		}
	}
}

func (m *Manager) dispatchDirect(raw *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
		if m.log != nil {
			m.log.Warn("pubsub: bad direct payload", zap.Error(err))
		}
		return
	}
	if m.handler != nil {
		m.handler(&msg)
	}
}

func (m *Manager) dispatchShard(raw *redis.Message) {
	if m.shardHandler != nil {
		m.shardHandler(raw.Channel, []byte(raw.Payload))
	}
}

// Publish sends msg directly to targetGatewayID's channel.
func (m *Manager) Publish(targetGatewayID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return pkgredis.Client.Publish(m.ctx, directChannel(targetGatewayID), data).Err()
}

// PublishBroadcast sends an opaque payload to the shard key is assigned to,
// reaching every gateway subscribed to that shard.
func (m *Manager) PublishBroadcast(key string, payload []byte) error {
	if m.shardRouter == nil {
		return fmt.Errorf("pubsub: no shard router configured")
	}
	return pkgredis.Client.Publish(m.ctx, m.shardRouter.Shard(key), payload).Err()
}

// Stop cancels both subscriptions and closes the underlying connections.
func (m *Manager) Stop() {
	m.cancel()
	if m.sub != nil {
		m.sub.Close()
	}
	if m.shardSub != nil {
		m.shardSub.Close()
	}
}
