package server

import (
	"bytes"
	"chat-pair/domain"
	"chat-pair/domain/event"
	"chat-pair/infrastructure/http/api"
	"chat-pair/matchmaking"
	"chat-pair/mocks"
	"chat-pair/runtime"
	"chat-pair/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiFixture struct {
	server   *httptest.Server
	registry *runtime.Registry
	gateway  *mocks.MockTranslationGateway
}

func newAPIFixture(t *testing.T) *apiFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	f := &apiFixture{registry: runtime.NewRegistry(nil), gateway: mocks.NewMockTranslationGateway(ctrl)}
	queue := matchmaking.NewQueue(log, matchmaking.Config{ObserverID: "observer-a"}, nil, f.registry, nil)
	router := runtime.NewMessageRouter(log, runtime.RouterConfig{}, f.registry, f.gateway, nil, make(chan event.DomainEvent, 16))
	t.Cleanup(router.Close)
	sessions := runtime.NewSessionRelay(log, "observer-a", nil, f.registry, router, func(event.DomainEvent) {})
	chatService := services.NewChatService(log, queue, f.registry, router, sessions, nil)
	f.server = httptest.NewServer(NewServer(log, chatService, nil, Config{}).Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) call(t *testing.T, method, path string, body any, out any) int {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestServer_Join_Then_Pair(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	var first api.JoinResponse
	req.Equal(http.StatusCreated, f.call(t, http.MethodPost, "/v1/queue", map[string]string{"username": "Alice", "language": "en"}, &first))
	req.Equal(1, first.Position)
	req.Nil(first.Session)

	var size api.QueueSizeResponse
	req.Equal(http.StatusOK, f.call(t, http.MethodGet, "/v1/queue/size", nil, &size))
	req.Equal(1, size.Size)

	var second api.JoinResponse
	req.Equal(http.StatusCreated, f.call(t, http.MethodPost, "/v1/queue", map[string]string{"username": "Bob", "language": "es"}, &second))
	req.NotNil(second.Session)
	req.True(strings.HasPrefix(second.Session.ID, "1v1-"))
	req.Equal("ACTIVE", second.Session.State)
	req.Equal([]string{first.Participant.ID, second.Participant.ID},
		[]string{second.Session.Members[0].ID, second.Session.Members[1].ID})

	var session api.SessionDTO
	req.Equal(http.StatusOK, f.call(t, http.MethodGet, "/v1/sessions/"+second.Session.ID, nil, &session))
	req.Equal(second.Session.ID, session.ID)
}

func TestServer_Error_Statuses(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	var apiErr api.ErrorResponse

	req.Equal(http.StatusBadRequest, f.call(t, http.MethodPost, "/v1/queue", map[string]string{"username": "Alice"}, &apiErr))
	req.Contains(apiErr.Error, "invalid request")
	req.Equal(http.StatusNotFound, f.call(t, http.MethodGet, "/v1/sessions/1v1-unknown", nil, &apiErr))
	req.Equal(http.StatusNotFound, f.call(t, http.MethodPost, "/v1/queue/ghost/retry", nil, &apiErr))
	req.Equal(http.StatusMethodNotAllowed, f.call(t, http.MethodPut, "/v1/queue/size", nil, nil))
}

func TestServer_Messages_And_Leave(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	f.gateway.EXPECT().DetectLanguage(gomock.Any(), gomock.Any()).Return(domain.Detection{Language: "en", Confidence: 1}, nil).AnyTimes()
	f.gateway.EXPECT().Translate(gomock.Any(), "hi", "en", "es").Return("hola", nil).AnyTimes()

	var alice, bob api.JoinResponse
	f.call(t, http.MethodPost, "/v1/queue", map[string]string{"username": "Alice", "language": "en"}, &alice)
	f.call(t, http.MethodPost, "/v1/queue", map[string]string{"username": "Bob", "language": "es"}, &bob)
	sessionPath := "/v1/sessions/" + bob.Session.ID

	// When alice sends a message
	var sent api.MessageDTO
	req.Equal(http.StatusAccepted, f.call(t, http.MethodPost, sessionPath+"/messages",
		map[string]string{"senderId": alice.Participant.ID, "text": "hi"}, &sent))
	req.True(sent.Translating)

	// Then bob eventually reads it translated
	req.Eventually(func() bool {
		var messages []api.MessageDTO
		f.call(t, http.MethodGet, sessionPath+"/messages?participantId="+bob.Participant.ID, nil, &messages)
		return len(messages) == 1 && messages[0].Translations["es"] == "hola"
	}, time.Second, 10*time.Millisecond)

	// And a stranger is refused
	var apiErr api.ErrorResponse
	req.Equal(http.StatusForbidden, f.call(t, http.MethodGet, sessionPath+"/messages?participantId=mallory", nil, &apiErr))

	// And typing notices are accepted from members only
	req.Equal(http.StatusNoContent, f.call(t, http.MethodPost, sessionPath+"/typing", map[string]string{"participantId": alice.Participant.ID}, nil))
	req.Equal(http.StatusForbidden, f.call(t, http.MethodPost, sessionPath+"/typing", map[string]string{"participantId": "mallory"}, &apiErr))

	// When both leave, the session ends closed
	var session api.SessionDTO
	req.Equal(http.StatusOK, f.call(t, http.MethodPost, sessionPath+"/leave", map[string]string{"participantId": alice.Participant.ID}, &session))
	req.Equal("PARTNER_LEFT", session.State)
	req.Equal(http.StatusOK, f.call(t, http.MethodPost, sessionPath+"/leave", map[string]string{"participantId": bob.Participant.ID}, &session))
	req.Equal("CLOSED", session.State)

	// And sending is refused
	req.Equal(http.StatusConflict, f.call(t, http.MethodPost, sessionPath+"/messages",
		map[string]string{"senderId": alice.Participant.ID, "text": "hello?"}, &apiErr))
}

func TestServer_Events_Registers_Connection(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/events/alice"
	conn, _, err := websocket.Dial(ctx, url, nil)
	req.NoError(err)

	// Then the participant is connected while the stream is open
	req.Eventually(func() bool { return f.registry.IsConnected("alice") }, time.Second, 10*time.Millisecond)

	// When an event is fanned out to its sink, it is written as a frame
	for _, sink := range f.registry.SinksFor([]string{"alice"}) {
		req.NoError(sink.Consume(ctx, event.MatchTimedOut{ParticipantID: "alice", Waited: time.Minute}))
	}
	var frame api.EventDTO
	req.NoError(wsjson.Read(ctx, conn, &frame))
	req.Equal(event.MatchTimedOutType, frame.Type)
	req.Equal(int64(60_000), frame.WaitedMs)

	// And closing the stream disconnects the participant
	req.NoError(conn.Close(websocket.StatusNormalClosure, ""))
	req.Eventually(func() bool { return !f.registry.IsConnected("alice") }, time.Second, 10*time.Millisecond)
}
