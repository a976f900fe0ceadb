package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parleyhq/parley-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("PARLEY_TOKEN"), "JWT to identify with")
	listen := flag.Duration("listen", 10*time.Second, "how long to print incoming events")
	flag.Parse()

	if *token == "" {
		return errors.New("a token is required (-token or PARLEY_TOKEN)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *listen+5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.IdentifyData{Token: *token})
	if err != nil {
		return fmt.Errorf("marshal identify: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeIdentify, Data: payload}); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypePing}); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	listenCtx, stop := context.WithTimeout(ctx, *listen)
	defer stop()
	for {
		var out json.RawMessage
		if err := wsjson.Read(listenCtx, conn, &out); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(listenCtx.Err(), context.DeadlineExceeded) {
				log.Printf("ws_smoke: done")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		log.Printf("ws_smoke: %s", out)
	}
}
