// Package client talks to the pairing HTTP API the way a presentation layer does.
package client

import (
	"bytes"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/infrastructure/http/api"
	"chat-pair/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type ChatClient struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

// NewChatClient uses http.DefaultClient when httpClient is nil.
func NewChatClient(log *slog.Logger, baseURL string, httpClient *http.Client) *ChatClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatClient{log: log, baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// APIError is returned for any non 2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (c *ChatClient) Join(ctx context.Context, username, language string) (api.JoinResponse, error) {
	var res api.JoinResponse
	err := c.do(ctx, http.MethodPost, "/v1/queue", services.JoinRequest{DisplayName: username, Language: language}, &res)
	return res, err
}

func (c *ChatClient) Retry(ctx context.Context, participantID string) (api.JoinResponse, error) {
	var res api.JoinResponse
	err := c.do(ctx, http.MethodPost, "/v1/queue/"+participantID+"/retry", nil, &res)
	return res, err
}

func (c *ChatClient) Leave(ctx context.Context, participantID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/queue/"+participantID, nil, nil)
}

func (c *ChatClient) QueueSize(ctx context.Context) (int, error) {
	var res api.QueueSizeResponse
	err := c.do(ctx, http.MethodGet, "/v1/queue/size", nil, &res)
	return res.Size, err
}

func (c *ChatClient) Session(ctx context.Context, sessionID domain.SessionID) (api.SessionDTO, error) {
	var res api.SessionDTO
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+string(sessionID), nil, &res)
	return res, err
}

func (c *ChatClient) Send(ctx context.Context, sessionID domain.SessionID, senderID, text string) (domain.Message, error) {
	var res api.MessageDTO
	body := services.SendMessageRequest{SenderID: senderID, Text: text}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+string(sessionID)+"/messages", body, &res); err != nil {
		return domain.Message{}, err
	}
	return res.ToMessage()
}

func (c *ChatClient) LeaveSession(ctx context.Context, sessionID domain.SessionID, participantID string) (api.SessionDTO, error) {
	var res api.SessionDTO
	body := map[string]string{"participantId": participantID}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+string(sessionID)+"/leave", body, &res)
	return res, err
}

// Typing tells the partner that the participant is composing a message.
func (c *ChatClient) Typing(ctx context.Context, sessionID domain.SessionID, participantID string) error {
	body := map[string]string{"participantId": participantID}
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+string(sessionID)+"/typing", body, nil)
}

// Stream connects to the event stream of a participant and hands every event to consume
// until the context ends or the server closes the stream.
func (c *ChatClient) Stream(ctx context.Context, participantID string, consume func(event.DomainEvent)) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/events/" + participantID
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer conn.CloseNow()

	for {
		var frame api.EventDTO
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		evt, err := frame.ToEvent()
		if err != nil {
			c.log.Warn("Unreadable event frame", "type", frame.Type, "error", err)
			continue
		}
		consume(evt)
	}
}

func (c *ChatClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusMultipleChoices {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return &APIError{Status: res.StatusCode, Message: apiErr.Error}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
