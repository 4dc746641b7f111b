package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/leadchat/audio"
	"github.com/room4-2/leadchat/messages"
)

// ServerMessage keeps the payload raw until the type is known
type ServerMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func send(conn *websocket.Conn, typ string, payload any) error {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(messages.ClientMessage{Type: typ, Payload: raw})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func main() {
	// Flags
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	text := flag.String("text", "What pricing plans do you offer?", "Message to send")
	record := flag.Duration("record", 0, "Also record on the server for this long, under the 5s auto-stop (0 to skip)")
	play := flag.Bool("play", false, "Play reply audio through sox")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)

	// Connect to server
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	var player audio.Player
	if *play {
		player = audio.NewSoxPlayer("sox -q -t mp3 - -d")
	}

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	replies := make(chan struct{}, 4)

	// Read responses from server
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			var msg ServerMessage
			if err := sonic.Unmarshal(message, &msg); err != nil {
				log.Println("Parse error:", err)
				continue
			}

			switch msg.Type {
			case messages.TypeMessage:
				var payload messages.ChatMessagePayload
				sonic.Unmarshal(msg.Payload, &payload)
				if payload.Placeholder {
					log.Printf("⏳ %s", payload.Content)
					continue
				}
				fmt.Printf("%s: %s\n", payload.Author, payload.Content)
				if payload.Author == "agent" && payload.Content != "" {
					select {
					case replies <- struct{}{}:
					default:
					}
				}

			case messages.TypeStage, messages.TypeEmotion, messages.TypeDebug, messages.TypeRemove:
				log.Printf("📊 %s %s", msg.Type, string(msg.Payload))

			case messages.TypeAudio:
				var payload messages.AudioResponsePayload
				sonic.Unmarshal(msg.Payload, &payload)
				clip, err := base64.StdEncoding.DecodeString(payload.Data)
				if err != nil {
					continue
				}
				log.Printf("🔊 Reply audio: %d bytes (%s)", len(clip), payload.MimeType)
				if player != nil {
					if err := player.Play(context.Background(), clip); err != nil {
						log.Printf("Playback error: %v", err)
					}
				}

			case messages.TypeStatus:
				var payload messages.StatusPayload
				sonic.Unmarshal(msg.Payload, &payload)
				log.Printf("📊 Status: %s %s", payload.Status, payload.Message)

			case messages.TypeAlert:
				log.Printf("⚠️ Alert: %s", string(msg.Payload))

			case messages.TypeError:
				log.Printf("❌ Error: %s", string(msg.Payload))
			}
		}
	}()

	// The first agent message is the welcome
	waitReply := func() bool {
		select {
		case <-replies:
			return true
		case <-done:
		case <-interrupt:
		case <-time.After(60 * time.Second):
			log.Println("⏰ Timeout waiting for response")
		}
		return false
	}
	if !waitReply() {
		return
	}

	log.Printf("📤 Sending text: %q", *text)
	if err := send(conn, messages.TypeClientText, messages.TextPayload{Text: *text}); err != nil {
		log.Fatalf("Send error: %v", err)
	}
	if !waitReply() {
		return
	}

	if *record > 0 {
		log.Printf("🎤 Recording for %s", *record)
		_ = send(conn, messages.TypeClientControl, messages.ControlPayload{Action: messages.ActionToggleRecording})
		time.Sleep(*record)
		_ = send(conn, messages.TypeClientControl, messages.ControlPayload{Action: messages.ActionToggleRecording})
		waitReply()
	}

	// Let any reply audio arrive before closing
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Println("👋 Done")
}
