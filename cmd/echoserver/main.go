// Command echoserver is a minimal reactor.Handler that echoes each
// newline-delimited line back upper-cased. Run with a single IO thread and
// no worker pool, it exercises the leader-acts-as-its-own-follower path
// and inline Process execution with no cross-thread handoff at all.
package main

import (
	"bytes"
	"flag"

	"go.uber.org/zap"

	"tcpreactor/reactor"
)

func main() {
	addr := flag.String("addr", ":9000", "tcp listen address")
	ioThreads := flag.Int("io-threads", 1, "reactor io thread count")
	workers := flag.Int("workers", 0, "worker pool size; 0 runs Process inline")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	srv, err := reactor.Init(
		reactor.WithIOThreads(*ioThreads),
		reactor.WithWorkers(*workers),
		reactor.WithTCPNoDelay(true),
		reactor.WithLogger(log),
	)
	if err != nil {
		log.Fatal("reactor init", zap.Error(err))
	}

	if err := srv.AddListen(*addr, &echoHandler{}); err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	if err := srv.Start(); err != nil {
		log.Fatal("start", zap.Error(err))
	}
	log.Info("echoserver listening", zap.String("addr", *addr))
	srv.Run()
}

type echoHandler struct {
	reactor.BaseHandler
}

func (echoHandler) Decode(buf *reactor.Buffer) (any, reactor.DecodeStatus) {
	line := buf.Readable()
	i := bytes.IndexByte(line, '\n')
	if i < 0 {
		return nil, reactor.DecodeAgain
	}
	req := append([]byte(nil), line[:i]...)
	buf.AdvanceRead(i + 1)
	return req, reactor.DecodeOK
}

func (echoHandler) Encode(buf *reactor.Buffer, resp any) {
	buf.Append(resp.([]byte))
	buf.Append([]byte("\n"))
}

func (echoHandler) Process(msg *reactor.Message) {
	line := msg.Request().([]byte)
	msg.SetResponse(bytes.ToUpper(line))
}
