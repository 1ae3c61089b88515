// Command testclient is a minimal line-oriented console client for
// cmd/imgateway, used to exercise auth, private messaging, heartbeats, and
// ACKs by hand against a running gateway.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"tcpreactor/internal/auth"
	"tcpreactor/internal/chatpb"
	"tcpreactor/protocol"
	"tcpreactor/reactor"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:8080", "gateway address")
	userID := flag.String("user", "user1", "user id")
	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	token, err := auth.IssueToken(*userID, *userID)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	go receiveLoop(conn)
	sendAuth(conn, token)
	go heartbeatLoop(conn)

	fmt.Println("commands: send <user_id> <message> | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), " ", 3)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "quit":
			return
		case "send":
			if len(parts) < 3 {
				fmt.Println("usage: send <user_id> <message>")
				continue
			}
			sendMessage(conn, parts[1], parts[2])
		default:
			fmt.Println("unknown command")
		}
	}
}

// receiveLoop reads raw bytes off conn into a reactor.Buffer and decodes
// frames from it exactly the way the gateway's own pipeline does, since
// protocol.Decode is written against that buffer type on both ends.
func receiveLoop(conn net.Conn) {
	buf := reactor.NewBuffer(4096)
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if err != nil {
			log.Printf("receive: %v", err)
			return
		}
		buf.Append(chunk[:n])

		for {
			f, status := protocol.Decode(buf)
			if status == reactor.DecodeAgain {
				break
			}
			if status == reactor.DecodeErr {
				log.Printf("receive: bad frame")
				return
			}
			handleFrame(conn, f)
		}
	}
}

func handleFrame(conn net.Conn, f *protocol.Frame) {
	switch f.CmdType {
	case protocol.CmdAuthAck:
		var resp map[string]interface{}
		json.Unmarshal(f.Body, &resp)
		if resp["success"] == true {
			log.Printf("authenticated")
		} else {
			log.Printf("auth failed: %v", resp["message"])
		}

	case protocol.CmdMessage:
		env, err := chatpb.Unmarshal(f.Body)
		if err != nil {
			log.Printf("receive: bad envelope: %v", err)
			return
		}
		fmt.Printf("\n[%s] -> %s\n", env.FromUserID, string(env.Content))
		sendAck(conn, env.SeqID)

	case protocol.CmdHeartbeat:
		// no-op: server echoes heartbeats to keep NAT bindings alive

	case protocol.CmdKick:
		log.Printf("server requested disconnect: %s", string(f.Body))

	default:
		log.Printf("unknown command type: %d", f.CmdType)
	}
}

func sendAuth(conn net.Conn, token string) {
	body, _ := json.Marshal(map[string]string{"token": token})
	sendFrame(conn, protocol.NewFrame(protocol.CmdAuth, body))
}

func sendMessage(conn net.Conn, toUserID, content string) {
	env := &chatpb.Envelope{ToUserID: toUserID, Content: []byte(content), Timestamp: time.Now().Unix()}
	sendFrame(conn, protocol.NewFrame(protocol.CmdMessage, chatpb.Marshal(env)))
	log.Printf("-> [%s] %s", toUserID, content)
}

func sendAck(conn net.Conn, seqID int64) {
	body, _ := json.Marshal(map[string]int64{"seq_id": seqID})
	sendFrame(conn, protocol.NewFrame(protocol.CmdMessageAck, body))
}

func heartbeatLoop(conn net.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if err := sendFrame(conn, protocol.NewFrame(protocol.CmdHeartbeat, nil)); err != nil {
			return
		}
	}
}

func sendFrame(conn net.Conn, f *protocol.Frame) error {
	buf := reactor.NewBuffer(64 + len(f.Body))
	protocol.Encode(buf, f)
	_, err := conn.Write(buf.Readable())
	return err
}
