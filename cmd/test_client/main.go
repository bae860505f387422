package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type outboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func main() {

	serverAddr := flag.String("server", "ws://localhost:8080", "websocket scheme / hostname / port of the service")
	tenantID := flag.String("tenant", "tenant-1", "tenant id to connect as")
	userID := flag.String("user", "user-1", "user id to connect as")
	token := flag.String("token", "", "bearer token (see the generate_jwt command)")
	chatInterval := flag.Duration("chat-interval", 0, "when set, send a chat message at this interval")
	flag.Parse()

	if *token == "" {
		log.Fatal("a bearer token is required, generate one with: channel-connector generate_jwt")
	}

	url := fmt.Sprintf("%s/ws/%s/%s?token=%s", *serverAddr, *tenantID, *userID, *token)

	fmt.Println("Connecting to", *serverAddr)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatal("unable to connect: ", err)
	}
	defer conn.Close()

	fmt.Printf("Connected as (%s, %s)\n", *tenantID, *userID)

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error: ", err)
				return
			}

			var pretty map[string]interface{}
			if err := json.Unmarshal(payload, &pretty); err != nil {
				fmt.Println("received non-json frame:", string(payload))
				continue
			}

			fmt.Printf("received: %s\n", payload)
		}
	}()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if *chatInterval > 0 {
		ticker = time.NewTicker(*chatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	messageCount := 0
	for {
		select {
		case <-done:
			return
		case <-tick:
			messageCount++
			frame := outboundFrame{Type: "chat_message", Content: fmt.Sprintf("test message %d", messageCount)}
			payload, _ := json.Marshal(frame)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Println("write error: ", err)
				return
			}
		case <-signalChan:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
