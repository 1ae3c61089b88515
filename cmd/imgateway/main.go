// Command imgateway is a chat gateway built on the reactor package: one
// leader/follower TCP server per process, any number of which can run
// behind the same Redis instance and route messages to each other.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tcpreactor/internal/auth"
	"tcpreactor/internal/chatpb"
	"tcpreactor/internal/offline"
	"tcpreactor/internal/pubsub"
	pkgredis "tcpreactor/pkg/redis"
	"tcpreactor/internal/router"
	"tcpreactor/internal/sequence"
	"tcpreactor/internal/session"
	"tcpreactor/protocol"
	"tcpreactor/reactor"
)

func main() {
	gatewayID := flag.String("id", "gateway_1", "gateway instance id")
	addr := flag.String("addr", ":8080", "tcp listen address")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	ioThreads := flag.Int("io-threads", 4, "reactor io thread count, including the leader")
	workers := flag.Int("workers", 8, "worker pool size; 0 runs Process inline on the follower")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := pkgredis.Init(&pkgredis.Config{Addr: *redisAddr, PoolSize: 100}, log); err != nil {
		log.Fatal("redis init", zap.Error(err))
	}
	defer pkgredis.Close()

	shardRouter := pubsub.NewShardRouter([]string{"shard-0", "shard-1", "shard-2", "shard-3"})
	sessionMgr := session.NewManager(*gatewayID, log)
	pubsubMgr := pubsub.NewManager(*gatewayID, shardRouter, log)
	sequenceMgr := sequence.NewManager(log)
	offlineStore := offline.NewStore(log)

	srv, err := reactor.Init(
		reactor.WithIOThreads(*ioThreads),
		reactor.WithWorkers(*workers),
		reactor.WithTCPNoDelay(true),
		reactor.WithLogger(log),
	)
	if err != nil {
		log.Fatal("reactor init", zap.Error(err))
	}

	gwRouter := router.New(*gatewayID, srv, sessionMgr, pubsubMgr, sequenceMgr, offlineStore, log)

	if err := pubsubMgr.Start(gwRouter.HandlePubSubMessage); err != nil {
		log.Fatal("pubsub start", zap.Error(err))
	}
	defer pubsubMgr.Stop()

	handler := &gatewayHandler{router: gwRouter, log: log}
	if err := srv.AddListen(*addr, handler); err != nil {
		log.Fatal("listen", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		log.Fatal("start", zap.Error(err))
	}
	log.Info("gateway started", zap.String("id", *gatewayID), zap.String("addr", *addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	srv.Stop()
	srv.Destroy()
}

// gatewayHandler implements reactor.Handler over the length-prefixed
// protocol.Frame wire format, dispatching by command type.
type gatewayHandler struct {
	reactor.BaseHandler
	router *router.Router
	log    *zap.Logger
}

func (h *gatewayHandler) Decode(buf *reactor.Buffer) (any, reactor.DecodeStatus) {
	return protocol.Decode(buf)
}

// Encode accepts either a *protocol.Frame built by Process for a direct
// reply, or pre-encoded frame bytes built by router for an asynchronous
// push delivered through Server.SendMessage.
func (h *gatewayHandler) Encode(buf *reactor.Buffer, resp any) {
	switch v := resp.(type) {
	case *protocol.Frame:
		protocol.Encode(buf, v)
	case []byte:
		buf.Append(v)
	}
}

func (h *gatewayHandler) OnDisconnect(conn *reactor.Connection) {
	h.router.Unbind(conn)
}

func (h *gatewayHandler) Process(msg *reactor.Message) {
	f, ok := msg.Request().(*protocol.Frame)
	if !ok {
		return
	}
	conn := msg.Connection()

	switch f.CmdType {
	case protocol.CmdAuth:
		h.handleAuth(conn, msg, f)
	case protocol.CmdHeartbeat:
		msg.SetResponse(protocol.NewFrame(protocol.CmdHeartbeat, nil))
	case protocol.CmdMessage:
		h.handleMessage(conn, f)
	case protocol.CmdMessageAck:
		h.handleAck(conn, f)
	default:
		h.log.Warn("unknown command type", zap.Uint16("cmd", f.CmdType))
	}
}

func (h *gatewayHandler) handleAuth(conn *reactor.Connection, msg *reactor.Message, f *protocol.Frame) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(f.Body, &req); err != nil {
		msg.SetResponse(authAck(false, "invalid request"))
		return
	}

	claims, err := auth.ValidateToken(req.Token)
	if err != nil {
		msg.SetResponse(authAck(false, err.Error()))
		return
	}

	if err := h.router.Bind(claims.UserID, conn); err != nil {
		h.log.Warn("session login failed", zap.String("user", claims.UserID), zap.Error(err))
	}
	msg.SetResponse(authAck(true, claims.UserID))

	go func() {
		if err := h.router.DeliverOffline(claims.UserID, conn); err != nil {
			h.log.Warn("offline delivery failed", zap.String("user", claims.UserID), zap.Error(err))
		}
	}()
}

func (h *gatewayHandler) handleMessage(conn *reactor.Connection, f *protocol.Frame) {
	userID, ok := h.router.UserFor(conn)
	if !ok {
		return
	}
	env, err := chatpb.Unmarshal(f.Body)
	if err != nil {
		h.log.Warn("bad chat envelope", zap.Error(err))
		return
	}
	if err := h.router.SendPrivate(userID, env.ToUserID, env.Content); err != nil {
		h.log.Warn("send private failed", zap.Error(err))
	}
}

func (h *gatewayHandler) handleAck(conn *reactor.Connection, f *protocol.Frame) {
	userID, ok := h.router.UserFor(conn)
	if !ok {
		return
	}
	var ack struct {
		SeqID int64 `json:"seq_id"`
	}
	if err := json.Unmarshal(f.Body, &ack); err != nil {
		return
	}
	if err := h.router.Ack(userID, ack.SeqID); err != nil {
		h.log.Warn("ack failed", zap.String("user", userID), zap.Error(err))
	}
}

func authAck(success bool, message string) *protocol.Frame {
	body, _ := json.Marshal(map[string]interface{}{"success": success, "message": message})
	return protocol.NewFrame(protocol.CmdAuthAck, body)
}
