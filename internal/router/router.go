// Package router implements cross-gateway message delivery: local push
// when the recipient is connected to this gateway instance, Pub/Sub
// forwarding when they're on a peer instance, and offline storage when
// they're not connected anywhere.
package router

import (
	"sync"

	"go.uber.org/zap"

	"tcpreactor/internal/chatpb"
	"tcpreactor/internal/offline"
	"tcpreactor/internal/pubsub"
	"tcpreactor/internal/sequence"
	"tcpreactor/internal/session"
	"tcpreactor/protocol"
	"tcpreactor/reactor"
)

// Chat message types carried in chatpb.Envelope.MsgType.
const (
	MsgPrivate = 1
	MsgGroup   = 2
	MsgSystem  = 3
)

// Router wires session/pubsub/sequence/offline together and owns the
// local userID -> Connection directory for this gateway process.
type Router struct {
	gatewayID string
	srv       *reactor.Server
	session   *session.Manager
	pubsub    *pubsub.Manager
	sequence  *sequence.Manager
	offline   *offline.Store
	log       *zap.Logger

	mu     sync.RWMutex
	byUID  map[string]*reactor.Connection
	byConn map[*reactor.Connection]string
}

func New(gatewayID string, srv *reactor.Server, sess *session.Manager, ps *pubsub.Manager, seq *sequence.Manager, off *offline.Store, log *zap.Logger) *Router {
	return &Router{
		gatewayID: gatewayID,
		srv:       srv,
		session:   sess,
		pubsub:    ps,
		sequence:  seq,
		offline:   off,
		log:       log,
		byUID:     make(map[string]*reactor.Connection),
		byConn:    make(map[*reactor.Connection]string),
	}
}

// Bind associates userID with conn on this gateway, locally and in Redis.
func (r *Router) Bind(userID string, conn *reactor.Connection) error {
	r.mu.Lock()
	r.byUID[userID] = conn
	r.byConn[conn] = userID
	r.mu.Unlock()
	return r.session.Login(userID, conn.Fd())
}

// Unbind removes conn's local and Redis placement, if it was authenticated.
func (r *Router) Unbind(conn *reactor.Connection) {
	r.mu.Lock()
	userID, ok := r.byConn[conn]
	delete(r.byConn, conn)
	if ok {
		delete(r.byUID, userID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.session.Logout(userID); err != nil && r.log != nil {
		r.log.Warn("router: logout failed", zap.String("user", userID), zap.Error(err))
	}
}

func (r *Router) connFor(userID string) *reactor.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUID[userID]
}

// UserFor returns the userID bound to conn, if it has authenticated.
func (r *Router) UserFor(conn *reactor.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[conn]
	return userID, ok
}

// SendPrivate routes a private message from fromUserID to toUserID,
// delivering locally, forwarding to toUserID's gateway, or storing it
// offline, in that preference order.
func (r *Router) SendPrivate(fromUserID, toUserID string, content []byte) error {
	conv := sequence.ConversationID(fromUserID, toUserID)
	seqID, err := r.sequence.Next(conv)
	if err != nil {
		return err
	}

	targetGateway, err := r.session.GatewayOf(toUserID)
	if err != nil {
		return r.storeOffline(fromUserID, toUserID, content, seqID)
	}

	env := &chatpb.Envelope{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Content:    content,
		MsgType:    MsgPrivate,
		SeqID:      seqID,
	}

	if targetGateway == r.gatewayID {
		return r.deliverLocal(env)
	}
	return r.deliverRemote(targetGateway, env)
}

func (r *Router) deliverLocal(env *chatpb.Envelope) error {
	conn := r.connFor(env.ToUserID)
	if conn == nil || conn.IsClosed() {
		return r.storeOffline(env.FromUserID, env.ToUserID, env.Content, env.SeqID)
	}

	buf := reactor.NewBuffer(64 + len(env.Content))
	protocol.Encode(buf, protocol.NewFrame(protocol.CmdMessage, chatpb.Marshal(env)))
	return r.srv.SendMessage(conn, buf.Readable())
}

func (r *Router) deliverRemote(targetGateway string, env *chatpb.Envelope) error {
	return r.pubsub.Publish(targetGateway, &pubsub.Message{
		FromUserID: env.FromUserID,
		ToUserID:   env.ToUserID,
		Content:    env.Content,
		MsgType:    int(env.MsgType),
		SeqID:      env.SeqID,
	})
}

func (r *Router) storeOffline(fromUserID, toUserID string, content []byte, seqID int64) error {
	return r.offline.Put(toUserID, &offline.Message{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Content:    content,
		MsgType:    MsgPrivate,
		SeqID:      seqID,
	})
}

// HandlePubSubMessage is the Pub/Sub subscriber callback: a peer gateway
// forwarded msg here because our session records say the recipient is
// local.
func (r *Router) HandlePubSubMessage(msg *pubsub.Message) {
	env := &chatpb.Envelope{
		FromUserID: msg.FromUserID,
		ToUserID:   msg.ToUserID,
		Content:    msg.Content,
		MsgType:    int32(msg.MsgType),
		SeqID:      msg.SeqID,
	}
	if err := r.deliverLocal(env); err != nil && r.log != nil {
		r.log.Warn("router: pubsub delivery failed", zap.Error(err))
	}
}

// Ack records that userID has processed every offline message up to
// maxSeqID, trimming them from the offline store.
func (r *Router) Ack(userID string, maxSeqID int64) error {
	return r.offline.Ack(userID, maxSeqID)
}

// DeliverOffline pushes userID's stored messages to conn, most recent
// first, after it authenticates.
func (r *Router) DeliverOffline(userID string, conn *reactor.Connection) error {
	messages, err := r.offline.FetchLatest(userID, 100)
	if err != nil {
		return err
	}
	for _, m := range messages {
		env := &chatpb.Envelope{
			FromUserID: m.FromUserID,
			ToUserID:   m.ToUserID,
			Content:    m.Content,
			MsgType:    int32(m.MsgType),
			SeqID:      m.SeqID,
		}
		buf := reactor.NewBuffer(64 + len(env.Content))
		protocol.Encode(buf, protocol.NewFrame(protocol.CmdMessage, chatpb.Marshal(env)))
		if err := r.srv.SendMessage(conn, buf.Readable()); err != nil {
			break
		}
	}
	return nil
}
