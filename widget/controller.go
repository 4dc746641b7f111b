// Package widget owns one conversation page: its message log, derived
// conversation state, recorder and outgoing turns. All mutation happens on a
// single loop goroutine fed by commands and turn results.
package widget

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/leadchat/agent"
	"github.com/room4-2/leadchat/audio"
	"github.com/room4-2/leadchat/messages"
	"github.com/room4-2/leadchat/metrics"
	"github.com/room4-2/leadchat/recording"
	"github.com/room4-2/leadchat/storage"
)

// ErrStopped is returned when submitting to a controller whose loop has exited
var ErrStopped = errors.New("controller stopped")

// Command is a user intent consumed by the controller
type Command interface {
	command()
}

// SendText submits a typed message
type SendText struct {
	Text string
}

// ToggleRecording starts or stops the microphone
type ToggleRecording struct{}

func (SendText) command()        {}
func (ToggleRecording) command() {}

// snapshotRequest reads view state on the loop
type snapshotRequest struct {
	reply chan Snapshot
}

func (snapshotRequest) command() {}

// Sender delivers one turn to the agent
type Sender interface {
	Send(ctx context.Context, turn agent.Turn) (*messages.AgentResponse, error)
}

// Options wires a controller's collaborators
type Options struct {
	Sessions  *storage.SessionStore
	Client    Sender
	Device    audio.Device
	Player    audio.Player
	Surface   Surface
	Metrics   *metrics.Metrics
	MaxBuffer int

	// RecorderOptions are passed to the recording controller
	RecorderOptions []recording.Option
}

type pendingTurn struct {
	id            string
	placeholderID string
	turn          agent.Turn
	started       time.Time
}

type turnResult struct {
	id   string
	resp *messages.AgentResponse
	err  error
}

type recordingDone struct {
	rec recording.Recording
}

// Controller is one conversation page
type Controller struct {
	sessions *storage.SessionStore
	client   Sender
	player   audio.Player
	surface  Surface
	metrics  *metrics.Metrics
	recorder *recording.Controller

	commands chan Command
	events   chan any
	done     chan struct{}

	// Owned by the loop goroutine
	ctx       context.Context
	log       Log
	state     ConversationState
	hasState  bool
	recording bool
	pending   *pendingTurn
	queue     []agent.Turn
}

// NewController creates a page controller. Call Run to start it.
func NewController(opts Options) *Controller {
	c := &Controller{
		sessions: opts.Sessions,
		client:   opts.Client,
		player:   opts.Player,
		surface:  opts.Surface,
		metrics:  opts.Metrics,
		commands: make(chan Command),
		events:   make(chan any, 16),
		done:     make(chan struct{}),
	}
	if c.sessions == nil {
		c.sessions = storage.NewSessionStore(nil)
	}
	if c.surface == nil {
		c.surface = nopSurface{}
	}
	maxBuffer := opts.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = 5 * 1024 * 1024
	}
	c.recorder = recording.NewController(opts.Device, maxBuffer, c.onRecording, opts.RecorderOptions...)
	return c
}

// Submit hands a command to the loop. It blocks until the loop accepts it.
func (c *Controller) Submit(ctx context.Context, cmd Command) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current view state
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	if err := c.Submit(ctx, req); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-req.reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Run renders the welcome message and processes commands and results until
// ctx is cancelled. In-flight requests are abandoned with ctx.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	c.ctx = ctx

	c.appendMessage(AuthorAgent, WelcomeText, false)

	for {
		select {
		case <-ctx.Done():
			c.recorder.Cancel()
			return

		case cmd := <-c.commands:
			c.handleCommand(cmd)

		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleCommand(cmd Command) {
	switch cmd := cmd.(type) {
	case SendText:
		c.sendText(cmd.Text)
	case ToggleRecording:
		c.toggleRecording()
	case snapshotRequest:
		cmd.reply <- c.snapshot()
	default:
		log.Printf("⚠️ Unknown command %T", cmd)
	}
}

func (c *Controller) handleEvent(ev any) {
	switch ev := ev.(type) {
	case turnResult:
		c.applyResult(ev)
	case recordingDone:
		c.dispatchRecording(ev.rec)
	default:
		log.Printf("⚠️ Unknown event %T", ev)
	}
}

// post delivers an event to the loop from any goroutine without blocking the caller
func (c *Controller) post(ev any) {
	select {
	case c.events <- ev:
		return
	default:
	}
	go func() {
		select {
		case c.events <- ev:
		case <-c.done:
		}
	}()
}

func (c *Controller) sendText(text string) {
	text = trimInput(text)
	if text == "" {
		return
	}
	c.appendMessage(AuthorUser, text, false)
	c.startTurn(agent.Turn{Text: text})
}

func (c *Controller) toggleRecording() {
	state, err := c.recorder.Toggle(c.ctx)
	if err != nil {
		log.Printf("🎤 Microphone unavailable: %v", err)
		c.surface.Alert(MicUnavailableMsg)
		return
	}
	switch state {
	case recording.StateRecording:
		c.recording = true
		c.surface.SetRecording(true)
		c.appendMessage(AuthorUser, RecordingText, false)
	default:
		c.setIdle()
	}
}

func (c *Controller) setIdle() {
	if c.recording && c.recorder.State() != recording.StateRecording {
		c.recording = false
		c.surface.SetRecording(false)
	}
}

// onRecording runs on the recorder's goroutine (timer or loop)
func (c *Controller) onRecording(rec recording.Recording) {
	c.post(recordingDone{rec: rec})
}

func (c *Controller) dispatchRecording(rec recording.Recording) {
	c.setIdle()
	c.metrics.ObserveRecording(string(rec.Reason))

	c.appendMessage(AuthorUser, SpokeText, false)
	c.startTurn(agent.Turn{Audio: rec.Audio})
}

// startTurn issues turn now, or queues it behind the turn in flight so
// replies apply in the order turns were made
func (c *Controller) startTurn(turn agent.Turn) {
	turn.SessionID = c.sessions.GetOrCreateSessionID(c.ctx)
	if c.pending != nil {
		c.queue = append(c.queue, turn)
		log.Printf("⏳ [%s] Turn queued behind %s (%d waiting)", shortID(turn.SessionID), c.pending.id[:8], len(c.queue))
		return
	}
	c.issue(turn)
}

func (c *Controller) issue(turn agent.Turn) {
	placeholder := c.appendMessage(AuthorAgent, PlaceholderText, true)
	p := &pendingTurn{
		id:            uuid.New().String(),
		placeholderID: placeholder.ID,
		turn:          turn,
		started:       time.Now(),
	}
	c.pending = p

	log.Printf("📤 [%s] Sending %s turn %s", shortID(turn.SessionID), turn.Kind(), p.id[:8])

	ctx := c.ctx
	go func() {
		resp, err := c.send(ctx, turn)
		c.post(turnResult{id: p.id, resp: resp, err: err})
	}()
}

func (c *Controller) send(ctx context.Context, turn agent.Turn) (resp *messages.AgentResponse, err error) {
	if c.client == nil {
		return nil, fmt.Errorf("%w: no agent client", agent.ErrDeliveryFailed)
	}
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%w: %v", agent.ErrDeliveryFailed, r)
		}
	}()
	return c.client.Send(ctx, turn)
}

func (c *Controller) applyResult(res turnResult) {
	p := c.pending
	if p == nil || p.id != res.id {
		log.Printf("⚠️ Dropping result for unknown turn %s", res.id)
		return
	}
	c.pending = nil

	if c.log.RemovePlaceholder(p.placeholderID) {
		c.surface.RemoveMessage(p.placeholderID)
	}

	kind := p.turn.Kind()
	elapsed := time.Since(p.started)

	if res.err != nil || res.resp == nil {
		err := res.err
		if err == nil {
			err = fmt.Errorf("%w: empty response", agent.ErrDeliveryFailed)
		}
		log.Printf("❌ [%s] Turn %s failed: %v", shortID(p.turn.SessionID), p.id[:8], err)
		c.metrics.ObserveTurn(kind, "delivery_failed", elapsed)
		c.appendMessage(AuthorAgent, ErrorText, false)
	} else {
		log.Printf("📥 [%s] Turn %s answered in %s (stage %s)", shortID(p.turn.SessionID), p.id[:8], elapsed.Round(time.Millisecond), res.resp.LeadStage)
		c.metrics.ObserveTurn(kind, "ok", elapsed)
		c.applyResponse(res.resp)
	}

	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.issue(next)
	}
}

func (c *Controller) applyResponse(resp *messages.AgentResponse) {
	c.appendMessage(AuthorAgent, resp.Reply, false)

	c.state = ConversationState{
		LeadStage: resp.LeadStage,
		Emotion:   resp.Emotion,
		Memory:    resp.Memory,
	}
	c.hasState = true

	c.surface.SetBadge(BadgeFor(resp.LeadStage))
	c.surface.SetEmotion(EmotionLabel(resp.Emotion))
	c.surface.SetDebug(FormatMemory(resp.Memory))

	if resp.HasAudio() {
		c.play(resp.Audio)
	}
}

// play decodes and starts a clip without waiting for earlier clips
func (c *Controller) play(encoded string) {
	if c.player == nil {
		return
	}
	clip, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		log.Printf("⚠️ Failed to decode reply audio: %v", err)
		return
	}
	if err := c.player.Play(c.ctx, clip); err != nil {
		log.Printf("⚠️ Failed to play reply audio: %v", err)
	}
}

func (c *Controller) appendMessage(author Author, content string, placeholder bool) Message {
	m := Message{
		ID:          uuid.New().String(),
		Author:      author,
		Content:     content,
		Placeholder: placeholder,
		At:          time.Now(),
	}
	c.log.Append(m)
	c.surface.AppendMessage(m)
	return m
}

func (c *Controller) snapshot() Snapshot {
	id, _ := c.sessions.SessionID(c.ctx)
	return Snapshot{
		SessionID:   id,
		Messages:    c.log.Messages(),
		State:       c.state,
		HasState:    c.hasState,
		Recording:   c.recording,
		InFlight:    c.pending != nil,
		QueuedTurns: len(c.queue),
	}
}

type nopSurface struct{}

func (nopSurface) AppendMessage(Message) {}
func (nopSurface) RemoveMessage(string)  {}
func (nopSurface) SetBadge(Badge)        {}
func (nopSurface) SetEmotion(string)     {}
func (nopSurface) SetDebug(string)       {}
func (nopSurface) SetRecording(bool)     {}
func (nopSurface) Alert(string)          {}

func trimInput(text string) string {
	return strings.TrimSpace(text)
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}
