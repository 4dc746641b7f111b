package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/room4-2/leadchat/agent"
	"github.com/room4-2/leadchat/audio"
	"github.com/room4-2/leadchat/config"
	"github.com/room4-2/leadchat/metrics"
	"github.com/room4-2/leadchat/server"
	"github.com/room4-2/leadchat/session"
	"github.com/room4-2/leadchat/storage"
	"github.com/room4-2/leadchat/widget"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, redisClient := openStorage(cfg)
	sessions := storage.NewSessionStore(store)
	client := agent.NewClient(cfg.ChatURL(), cfg.RequestTimeout)

	var device audio.Device
	if cfg.RecordFile != "" {
		log.Printf("🎤 Replaying %s instead of the microphone", cfg.RecordFile)
		device = audio.NewFileDevice(cfg.RecordFile)
	} else {
		device = audio.NewSoxDevice(cfg.RecordCommand)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("leadchat")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("🤖 Agent endpoint: %s", client.Endpoint())

	switch cfg.ServerType {
	case "terminal":
		go func() {
			<-sigChan
			log.Println("\nReceived shutdown signal...")
			cancel()
		}()
		runTerminal(ctx, widget.Options{
			Sessions:  sessions,
			Client:    client,
			Device:    device,
			Player:    audio.NewSoxPlayer(cfg.PlaybackCommand),
			Metrics:   m,
			MaxBuffer: cfg.MaxBufferSize,
		})
		if redisClient != nil {
			redisClient.Close()
		}

	case "websocket":
		if redisClient == nil {
			// Page bookkeeping only; the server runs without it
			if redisClient, err = storage.DialRedis(cfg.RedisURL, cfg.RedisPassword); err != nil {
				log.Printf("ℹ️ Redis unavailable, page bookkeeping disabled: %v", err)
			}
		}

		// Every page records from the same server-side input
		shared := audio.NewExclusiveDevice(device)
		sessionManager := session.NewManager(cfg, redisClient, m, func() widget.Options {
			return widget.Options{
				Sessions:  sessions,
				Client:    client,
				Device:    shared,
				MaxBuffer: cfg.MaxBufferSize,
			}
		})
		go sessionManager.StartCleanupRoutine(ctx)

		srv := server.NewServerWebsocket(cfg, sessionManager, m)

		go func() {
			<-sigChan
			log.Println("\nReceived shutdown signal...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server shutdown error: %v", err)
			}
		}()

		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}

	default:
		log.Fatalf("Unknown SERVER_TYPE: %s", cfg.ServerType)
	}

	log.Println("Stopped")
}

// openStorage picks the durable store for the session id. Any backend that
// cannot be opened falls back to memory so the widget keeps working.
func openStorage(cfg *config.Config) (storage.Storage, *redis.Client) {
	switch cfg.StorageBackend {
	case "redis":
		client, err := storage.DialRedis(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Printf("⚠️ %v, session id will not survive restarts", err)
			return storage.NewMemoryStorage(), nil
		}
		log.Printf("💾 Session storage: redis %s", cfg.RedisURL)
		return storage.NewRedisStorage(client, ""), client

	case "memory":
		log.Println("💾 Session storage: memory")
		return storage.NewMemoryStorage(), nil

	default:
		fs := storage.NewFileStorage(cfg.StoragePath)
		log.Printf("💾 Session storage: %s", fs.Path())
		return fs, nil
	}
}

func runTerminal(ctx context.Context, opts widget.Options) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.Surface = widget.NewTerminalSurface(os.Stdout)
	controller := widget.NewController(opts)
	go controller.Run(ctx)

	fmt.Printf("Type a message and press Enter. %s starts or stops recording, %s exits.\n\n",
		widget.CommandMic, widget.CommandQuit)

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- widget.ReadCommands(ctx, os.Stdin, controller.Submit)
	}()

	select {
	case err := <-inputDone:
		if err != nil && ctx.Err() == nil {
			log.Printf("Input error: %v", err)
		}
	case <-ctx.Done():
	}

	cancel()
	<-controller.Done()
}
