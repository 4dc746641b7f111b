package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/room4-2/leadchat/agent"
	"github.com/room4-2/leadchat/config"
	"github.com/room4-2/leadchat/storage"
	"github.com/room4-2/leadchat/widget"
)

func main() {
	text := flag.String("text", "What pricing plans do you offer?", "Message to send")
	session := flag.String("session", "", "Session id to reuse (default: a fresh one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = storage.NewSessionID()
	}

	client := agent.NewClient(cfg.ChatURL(), cfg.RequestTimeout)
	log.Printf("📤 [%s] Sending to %s: %q", sessionID[:13], client.Endpoint(), *text)

	start := time.Now()
	resp, err := client.Send(context.Background(), agent.Turn{SessionID: sessionID, Text: *text})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	log.Printf("✅ Reply in %s", time.Since(start).Round(time.Millisecond))
	log.Printf("💬 %s", resp.Reply)
	log.Printf("📊 %s | %s", widget.BadgeFor(resp.LeadStage).Label, widget.EmotionLabel(resp.Emotion))
	if resp.DetectedLang != "" {
		log.Printf("🌐 Detected language: %s", resp.DetectedLang)
	}
	if resp.HasAudio() {
		log.Printf("🔊 Reply audio: %d base64 chars", len(resp.Audio))
	}
	log.Printf("🧠 Memory:\n%s", widget.FormatMemory(resp.Memory))
}
