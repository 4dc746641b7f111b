package widget

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Terminal commands
const (
	CommandMic  = "/mic"
	CommandQuit = "/quit"
)

var (
	userColor  = color.New(color.FgCyan, color.Bold)
	agentColor = color.New(color.FgMagenta, color.Bold)
	faint      = color.New(color.Faint)
	alertColor = color.New(color.FgRed, color.Bold)
	recColor   = color.New(color.FgRed)

	stageColors = map[string]*color.Color{
		"stage-cold":   color.New(color.FgBlue, color.Bold),
		"stage-warm":   color.New(color.FgYellow, color.Bold),
		"stage-hot":    color.New(color.FgRed, color.Bold),
		"stage-closed": color.New(color.FgGreen, color.Bold),
	}
)

// TerminalSurface renders the conversation as console lines
type TerminalSurface struct {
	out io.Writer

	mu       sync.Mutex
	lastLine string // id of the message printed last, if nothing followed it
}

// NewTerminalSurface writes to out
func NewTerminalSurface(out io.Writer) *TerminalSurface {
	return &TerminalSurface{out: out}
}

func (t *TerminalSurface) AppendMessage(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case m.Placeholder:
		faint.Fprintf(t.out, "… %s\n", m.Content)
	case m.Author == AuthorUser:
		userColor.Fprint(t.out, "You: ")
		fmt.Fprintln(t.out, m.Content)
	default:
		agentColor.Fprint(t.out, "Agent: ")
		fmt.Fprintln(t.out, m.Content)
	}
	t.lastLine = m.ID
}

// RemoveMessage erases the placeholder line when it is still the last one printed
func (t *TerminalSurface) RemoveMessage(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastLine != id {
		return
	}
	if !color.NoColor {
		fmt.Fprint(t.out, "\033[1A\033[2K")
	}
	t.lastLine = ""
}

func (t *TerminalSurface) SetBadge(b Badge) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := stageColors[b.Class]
	if !ok {
		c = stageColors["stage-closed"]
	}
	c.Fprintf(t.out, "[%s]\n", b.Label)
	t.lastLine = ""
}

func (t *TerminalSurface) SetEmotion(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	faint.Fprintln(t.out, label)
	t.lastLine = ""
}

func (t *TerminalSurface) SetDebug(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, line := range strings.Split(text, "\n") {
		faint.Fprintf(t.out, "  │ %s\n", line)
	}
	t.lastLine = ""
}

func (t *TerminalSurface) SetRecording(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if recording {
		recColor.Fprintln(t.out, "● REC (type /mic to stop)")
	} else {
		faint.Fprintln(t.out, "■ Mic off")
	}
	t.lastLine = ""
}

func (t *TerminalSurface) Alert(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	alertColor.Fprintf(t.out, "⚠ %s\n", text)
	t.lastLine = ""
}

// ReadCommands turns console lines into commands until EOF, /quit or ctx is
// done. Blank lines are ignored.
func ReadCommands(ctx context.Context, in io.Reader, submit func(context.Context, Command) error) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		var cmd Command
		switch line {
		case "":
			continue
		case CommandQuit:
			return nil
		case CommandMic:
			cmd = ToggleRecording{}
		default:
			cmd = SendText{Text: line}
		}

		if err := submit(ctx, cmd); err != nil {
			return err
		}
	}
	return scanner.Err()
}
