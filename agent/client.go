// Package agent sends conversation turns to the remote sales agent.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/room4-2/leadchat/messages"
)

const maxResponseSize = 32 * 1024 * 1024 // replies may carry base64 audio

var (
	// ErrDeliveryFailed covers every transport, status and decoding failure of a turn
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrInvalidTurn is returned for a turn without exactly one of text or audio
	ErrInvalidTurn = errors.New("turn must carry exactly one of text or audio")
)

// Turn is one user-initiated exchange. Exactly one of Text or Audio is set;
// a non-nil empty Audio is a valid (silent) recording.
type Turn struct {
	SessionID string
	Text      string
	Audio     []byte
}

// Kind returns "audio" or "text"
func (t Turn) Kind() string {
	if t.Audio != nil {
		return "audio"
	}
	return "text"
}

func (t Turn) validate() error {
	if t.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidTurn)
	}
	hasText := t.Text != ""
	hasAudio := t.Audio != nil
	if hasText == hasAudio {
		return ErrInvalidTurn
	}
	return nil
}

// Client posts turns to the agent's chat endpoint. It never retries, caches
// or queues: every Send is one independent request.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for endpoint, e.g. "http://localhost:8000/chat/"
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the chat URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send issues one request for turn and decodes the agent's reply.
// Every failure after validation wraps ErrDeliveryFailed.
func (c *Client) Send(ctx context.Context, turn Turn) (*messages.AgentResponse, error) {
	if err := turn.validate(); err != nil {
		return nil, err
	}

	body, contentType, err := encodeTurn(turn)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding turn: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrDeliveryFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: agent returned %d: %s", ErrDeliveryFailed, resp.StatusCode, errorDetail(raw))
	}

	// null, arrays and scalars decode cleanly but are not a reply
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrDeliveryFailed)
	}

	var out messages.AgentResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrDeliveryFailed, err)
	}
	if out.LeadStage != "" && !out.LeadStage.Valid() {
		log.Printf("⚠️ [%s] Agent returned unknown lead stage %q", shortID(turn.SessionID), out.LeadStage)
	}
	return &out, nil
}

// encodeTurn builds the multipart body: session_id plus message or audio_file
func encodeTurn(turn Turn) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField(messages.FieldSessionID, turn.SessionID); err != nil {
		return nil, "", err
	}

	if turn.Audio != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			messages.FieldAudioFile, messages.AudioFileName))
		h.Set("Content-Type", messages.AudioMimeType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(turn.Audio); err != nil {
			return nil, "", err
		}
	} else {
		if err := mw.WriteField(messages.FieldMessage, turn.Text); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// errorDetail extracts {"error": "..."} from an agent error body
func errorDetail(raw []byte) string {
	var body messages.AgentError
	if err := sonic.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}
