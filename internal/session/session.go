// Package session tracks which gateway instance a user is connected to,
// in Redis, so any gateway can route a message to the right peer.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgredis "tcpreactor/pkg/redis"
)

const (
	sessionKeyPrefix = "user_session:"
	gatewayKeyPrefix = "user_gateway:"

	// TTL is the session lifetime; clients must send a heartbeat within
	// this window or the session expires and the user reads as offline.
	TTL = 5 * time.Minute
)

// Manager records and queries user-to-gateway placement for one gateway
// instance.
type Manager struct {
	gatewayID string
	ctx       context.Context
	log       *zap.Logger
}

// NewManager returns a Manager for the gateway identified by gatewayID.
// log may be nil.
func NewManager(gatewayID string, log *zap.Logger) *Manager {
	return &Manager{gatewayID: gatewayID, ctx: pkgredis.Context(), log: log}
}

// Login records that userID is now connected (as connID) on this gateway.
func (m *Manager) Login(userID string, connID int) error {
	client := pkgredis.Client
	pipe := client.Pipeline()

	sessionKey := sessionKeyPrefix + userID
	gatewayKey := gatewayKeyPrefix + userID

	pipe.HSet(m.ctx, sessionKey, map[string]interface{}{
		"gateway_id": m.gatewayID,
		"conn_id":    connID,
		"login_time": time.Now().Unix(),
	})
	pipe.Expire(m.ctx, sessionKey, TTL)
	pipe.Set(m.ctx, gatewayKey, m.gatewayID, TTL)

	if _, err := pipe.Exec(m.ctx); err != nil {
		if m.log != nil {
			m.log.Warn("session: login failed", zap.String("user", userID), zap.Error(err))
		}
		return fmt.Errorf("session: login %s: %w", userID, err)
	}
	if m.log != nil {
		m.log.Info("session: login", zap.String("user", userID), zap.String("gateway", m.gatewayID))
	}
	return nil
}

// Logout removes userID's session and gateway-placement records.
func (m *Manager) Logout(userID string) error {
	pipe := pkgredis.Client.Pipeline()
	pipe.Del(m.ctx, sessionKeyPrefix+userID)
	pipe.Del(m.ctx, gatewayKeyPrefix+userID)
	if _, err := pipe.Exec(m.ctx); err != nil {
		if m.log != nil {
			m.log.Warn("session: logout failed", zap.String("user", userID), zap.Error(err))
		}
		return fmt.Errorf("session: logout %s: %w", userID, err)
	}
	if m.log != nil {
		m.log.Info("session: logout", zap.String("user", userID))
	}
	return nil
}

// Heartbeat refreshes userID's session TTL.
func (m *Manager) Heartbeat(userID string) error {
	pipe := pkgredis.Client.Pipeline()
	pipe.Expire(m.ctx, sessionKeyPrefix+userID, TTL)
	pipe.Expire(m.ctx, gatewayKeyPrefix+userID, TTL)
	_, err := pipe.Exec(m.ctx)
	if err != nil && m.log != nil {
		m.log.Warn("session: heartbeat failed", zap.String("user", userID), zap.Error(err))
	}
	return err
}

// GatewayOf returns the gateway ID userID is currently connected to.
func (m *Manager) GatewayOf(userID string) (string, error) {
	return pkgredis.Client.Get(m.ctx, gatewayKeyPrefix+userID).Result()
}

// IsOnline reports whether userID has a live session anywhere.
func (m *Manager) IsOnline(userID string) bool {
	n, _ := pkgredis.Client.Exists(m.ctx, sessionKeyPrefix+userID).Result()
	return n > 0
}
