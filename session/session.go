package session

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/leadchat/audio"
	"github.com/room4-2/leadchat/messages"
	"github.com/room4-2/leadchat/metrics"
	"github.com/room4-2/leadchat/widget"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxMessageSize  = 64 * 1024
)

// ClientSession is one browser page load. It owns a conversation controller
// and renders it by pushing server messages over the WebSocket.
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	Controller   *widget.Controller
	CreatedAt    time.Time
	LastActivity time.Time

	metrics   *metrics.Metrics
	keepAlive time.Duration

	// Use channels for non-blocking writes
	writeChan chan *messages.ServerMessage

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClientSession creates a page around clientConn. opts configure the
// page's controller; its Surface and Player are replaced by the session.
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, opts widget.Options, m *metrics.Metrics, keepAlive time.Duration) *ClientSession {
	sessionCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	cs := &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		CreatedAt:    now,
		LastActivity: now,
		metrics:      m,
		keepAlive:    keepAlive,
		writeChan:    make(chan *messages.ServerMessage, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          sessionCtx,
		cancel:       cancel,
	}

	opts.Surface = cs
	opts.Player = cs
	opts.Metrics = m
	cs.Controller = widget.NewController(opts)
	return cs
}

// Start begins processing messages. The page's welcome message is the first
// thing the browser receives after the connected status.
func (cs *ClientSession) Start() {
	cs.queueMessage(messages.NewStatusMessage(cs.ID, "connected", ""))
	go cs.writePump()
	go cs.runController()
	go cs.handleClientMessages()
}

func (cs *ClientSession) runController() {
	cs.Controller.Run(cs.ctx)
	cs.Close()
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	var ping <-chan time.Time
	if cs.keepAlive > 0 {
		ticker := time.NewTicker(cs.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer func() {
		// Send close message before exiting
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return

		case <-ping:
			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case msg, ok := <-cs.writeChan:
			if !ok {
				// Channel closed, exit gracefully
				return
			}

			cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.write(msg); err != nil {
				return
			}

			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-cs.writeChan:
					if !ok {
						return
					}
					if err := cs.write(msg); err != nil {
						return
					}
				default:
					// No more messages, continue outer loop
				}
			}
		}
	}
}

func (cs *ClientSession) write(msg *messages.ServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		log.Printf("⚠️ [%s] Failed to encode %s message: %v", cs.ID[:8], msg.Type, err)
		return nil
	}
	if err := cs.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	cs.metrics.ObserveWSMessage("out", msg.Type)
	return nil
}

// queueMessage adds a message to the write queue (non-blocking)
func (cs *ClientSession) queueMessage(msg *messages.ServerMessage) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.closed {
		return
	}
	select {
	case cs.writeChan <- msg:
	default:
		log.Printf("⚠️ [%s] Write queue full, dropping %s message", cs.ID[:8], msg.Type)
	}
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.mu.Unlock()

	cs.cancel()

	// Close the write channel first to stop writePump
	close(cs.writeChan)

	// Signal close (for other goroutines waiting on this)
	close(cs.CloseChan)

	// Close client connection - don't write close message as writePump is stopped
	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}

	return nil
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// IdleSince returns when the page last received a message from the browser.
// Outbound frames and pongs do not count as activity.
func (cs *ClientSession) IdleSince() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.LastActivity
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	cs.ClientConn.SetReadLimit(maxMessageSize)
	if cs.keepAlive > 0 {
		cs.ClientConn.SetReadDeadline(time.Now().Add(2 * cs.keepAlive))
		cs.ClientConn.SetPongHandler(func(string) error {
			cs.ClientConn.SetReadDeadline(time.Now().Add(2 * cs.keepAlive))
			return nil
		})
	}

	for {
		messageType, message, err := cs.ClientConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] WebSocket read error: %v", cs.ID[:8], err)
			}
			return
		}
		if cs.keepAlive > 0 {
			cs.ClientConn.SetReadDeadline(time.Now().Add(2 * cs.keepAlive))
		}
		cs.touch()

		if messageType != websocket.TextMessage {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Binary messages are not supported"))
			continue
		}

		var clientMsg messages.ClientMessage
		if err := sonic.Unmarshal(message, &clientMsg); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
			continue
		}

		cs.metrics.ObserveWSMessage("in", clientMsg.Type)
		if err := cs.processClientMessage(&clientMsg); err != nil {
			return
		}
	}
}

// processClientMessage maps browser messages to controller commands. It only
// fails when the controller is gone.
func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) error {
	switch msg.Type {
	case messages.TypeClientText:
		var payload messages.TextPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid text payload"))
			return nil
		}
		return cs.Controller.Submit(cs.ctx, widget.SendText{Text: payload.Text})

	case messages.TypeClientControl:
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return nil
		}
		return cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
		return nil
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) error {
	switch payload.Action {
	case messages.ActionPing:
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "pong", ""))
	case messages.ActionToggleRecording:
		return cs.Controller.Submit(cs.ctx, widget.ToggleRecording{})
	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
	return nil
}

// The session is the controller's surface: every view update becomes one
// server message.

func (cs *ClientSession) AppendMessage(m widget.Message) {
	cs.queueMessage(messages.NewChatMessage(m.ID, string(m.Author), m.Content, m.Placeholder))
}

func (cs *ClientSession) RemoveMessage(id string) {
	cs.queueMessage(messages.NewRemoveMessage(id))
}

func (cs *ClientSession) SetBadge(b widget.Badge) {
	cs.queueMessage(messages.NewStageMessage(string(b.Stage), b.Label, b.Class))
}

func (cs *ClientSession) SetEmotion(label string) {
	cs.queueMessage(messages.NewEmotionMessage(label))
}

func (cs *ClientSession) SetDebug(text string) {
	cs.queueMessage(messages.NewDebugMessage(text))
}

func (cs *ClientSession) SetRecording(recording bool) {
	status := "idle"
	if recording {
		status = "recording"
	}
	cs.queueMessage(messages.NewStatusMessage(cs.ID, status, ""))
}

func (cs *ClientSession) Alert(text string) {
	cs.queueMessage(messages.NewAlertMessage(text))
}

// Play forwards a reply clip to the browser, which plays it on arrival
func (cs *ClientSession) Play(_ context.Context, clip []byte) error {
	cs.queueMessage(messages.NewAudioMessage(base64.StdEncoding.EncodeToString(clip), messages.ReplyAudioMimeType))
	return nil
}

var _ audio.Player = (*ClientSession)(nil)
var _ widget.Surface = (*ClientSession)(nil)
