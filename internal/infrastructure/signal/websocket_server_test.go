package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	OK        bool            `json:"ok"`
	Error     *AckError       `json:"error"`
	Data      json.RawMessage `json:"data"`
	Payload   json.RawMessage `json:"payload"`
}

type testEnv struct {
	server *httptest.Server
	hub    *services.Hub
	store  *memory.MemoryMessageStore
	auth   services.AuthService
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:   time.Second,
		PongTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		SendBufferSize: 32,
		MaxMessageSize: 64 * 1024,
		AllowedOrigins: []string{"*"},
	}
}

func newTestEnv(t *testing.T, capacity int, cfg ServerConfig) *testEnv {
	t.Helper()

	store := memory.NewMemoryMessageStore()
	return newTestEnvWithStore(t, capacity, cfg, store, store)
}

// newTestEnvWithStore runs the hub on backing, which may wrap store.
func newTestEnvWithStore(t *testing.T, capacity int, cfg ServerConfig, store *memory.MemoryMessageStore, backing ports.MessageStore) *testEnv {
	t.Helper()

	auth := services.NewAuthService(testSecret, time.Hour)
	hub := services.NewHub(services.HubConfig{GroupCapacity: capacity, MaxContentLength: 4000}, backing, auth, nil, nil)
	srv := NewWebSocketServer(hub, cfg, nil, nil)

	server := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		hub.Lifecycle.CloseAll()
		server.Close()
	})

	return &testEnv{server: server, hub: hub, store: store, auth: auth}
}

type testClient struct {
	t      *testing.T
	ws     *websocket.Conn
	handle domain.ConnID
}

func (e *testEnv) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (e *testEnv) dial(t *testing.T, identity domain.Identity) *testClient {
	t.Helper()

	token, err := e.auth.GenerateToken(identity)
	require.NoError(t, err)

	ws, resp, err := websocket.DefaultDialer.Dial(e.wsURL(token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	c := &testClient{t: t, ws: ws}
	connected := c.next(domain.EventConnected)

	var payload domain.ConnectedPayload
	require.NoError(t, json.Unmarshal(connected.Payload, &payload))
	assert.Equal(t, identity, payload.Identity)
	c.handle = payload.Handle
	return c
}

func (c *testClient) send(msgType, requestID string, payload interface{}) {
	c.t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteJSON(Envelope{Type: msgType, RequestID: requestID, Payload: raw}))
}

// next reads frames until one of msgType arrives.
func (c *testClient) next(msgType string) frame {
	c.t.Helper()

	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(c.t, c.ws.ReadJSON(&f), "waiting for %s", msgType)
		if f.Type == msgType {
			return f
		}
	}
}

// ack reads frames until the ack for requestID arrives.
func (c *testClient) ack(requestID string) frame {
	c.t.Helper()

	for {
		f := c.next(TypeAck)
		if f.RequestID == requestID {
			return f
		}
	}
}

func TestWebSocket_RejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp2, err := websocket.DefaultDialer.Dial(env.wsURL("garbage"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	assert.Equal(t, 0, env.hub.Connections.Count())
	assert.Equal(t, 0, env.hub.Presence.Count())
}

func TestWebSocket_ConnectRegistersPresence(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	alice := env.dial(t, domain.Identity{ID: 1, Username: "alice"})

	handle, ok := env.hub.Presence.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, alice.handle, handle)
}

func TestWebSocket_CallScenario(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	a := env.dial(t, domain.Identity{ID: 1, Username: "alice"})
	b := env.dial(t, domain.Identity{ID: 2, Username: "bob"})

	offer := json.RawMessage(`{"sdp":"v=0 offer","type":"offer"}`)
	a.send(TypeCallUser, "", CallUserPayload{ToUserID: 2, Offer: offer})

	var incoming domain.IncomingCall
	require.NoError(t, json.Unmarshal(b.next(domain.EventIncomingCall).Payload, &incoming))
	assert.Equal(t, domain.UserID(1), incoming.FromUserID)
	assert.Equal(t, "alice", incoming.FromUsername)
	assert.Equal(t, a.handle, incoming.FromHandle)
	assert.JSONEq(t, string(offer), string(incoming.Offer))

	answer := json.RawMessage(`{"sdp":"v=0 answer","type":"answer"}`)
	b.send(TypeAnswerCall, "", AnswerCallPayload{ToHandle: incoming.FromHandle, Answer: answer})

	var accepted domain.CallAccepted
	require.NoError(t, json.Unmarshal(a.next(domain.EventCallAccepted).Payload, &accepted))
	assert.Equal(t, b.handle, accepted.FromHandle)
	assert.JSONEq(t, string(answer), string(accepted.Answer))

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host"}`)
	a.send(TypeICECandidate, "", ICECandidatePayload{ToHandle: b.handle, Candidate: candidate})

	var ice domain.ICECandidate
	require.NoError(t, json.Unmarshal(b.next(domain.EventICECandidate).Payload, &ice))
	assert.Equal(t, a.handle, ice.FromHandle)
	assert.JSONEq(t, string(candidate), string(ice.Candidate))
}

func TestWebSocket_CallToOfflineUserIsSilent(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	a := env.dial(t, domain.Identity{ID: 1, Username: "alice"})
	a.send(TypeCallUser, "", CallUserPayload{ToUserID: 99, Offer: json.RawMessage(`{}`)})
	a.send(TypePing, "p1", struct{}{})

	// The first frame after the call is the ping ack: nothing was sent back
	// for the call itself.
	require.NoError(t, a.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, a.ws.ReadJSON(&f))
	assert.Equal(t, TypeAck, f.Type)
	assert.Equal(t, "p1", f.RequestID)
	assert.True(t, f.OK)
}

func TestWebSocket_MalformedRelayTargetIsSilent(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})
	a.send(TypeAnswerCall, "", AnswerCallPayload{ToHandle: "not-a-handle", Answer: json.RawMessage(`{}`)})
	a.send(TypeICECandidate, "", ICECandidatePayload{ToHandle: "", Candidate: json.RawMessage(`{}`)})
	a.send(TypePing, "p1", struct{}{})

	require.NoError(t, a.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, a.ws.ReadJSON(&f))
	assert.Equal(t, TypeAck, f.Type)
	assert.Equal(t, "p1", f.RequestID)
}

func TestWebSocket_JoinAndSendMessage(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	room := domain.GroupRoom(101)

	x := env.dial(t, domain.Identity{ID: 1, Username: "x"})
	y := env.dial(t, domain.Identity{ID: 2, Username: "y"})

	x.send(TypeJoinRoom, "j1", RoomPayload{Room: room})
	assert.True(t, x.ack("j1").OK)
	y.send(TypeJoinRoom, "j2", RoomPayload{Room: room})
	joined := y.ack("j2")
	require.True(t, joined.OK)
	var result JoinResult
	require.NoError(t, json.Unmarshal(joined.Data, &result))
	assert.Equal(t, JoinResult{Room: room, Members: 2}, result)

	x.send(TypeSendMessage, "m1", SendMessagePayload{Room: room, Content: "hello"})

	ack := x.ack("m1")
	require.True(t, ack.OK)
	var stored domain.ChatMessage
	require.NoError(t, json.Unmarshal(ack.Data, &stored))
	assert.Equal(t, "hello", stored.Content)
	assert.NotZero(t, stored.ID)

	var received domain.ChatMessage
	require.NoError(t, json.Unmarshal(y.next(domain.EventGroupMessage).Payload, &received))
	assert.Equal(t, stored.ID, received.ID)
	require.NotNil(t, received.SenderID)
	assert.Equal(t, domain.UserID(1), *received.SenderID)
	assert.Equal(t, "x", received.SenderName)

	assert.Len(t, env.store.Messages(room), 1)
}

// gatedStore holds the first insert until release is closed.
type gatedStore struct {
	*memory.MemoryMessageStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) InsertMessage(ctx context.Context, room domain.RoomKey, senderID *domain.UserID, senderName, content string) (domain.MessageReceipt, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryMessageStore.InsertMessage(ctx, room, senderID, senderName, content)
}

func TestWebSocket_SendSurvivesSenderDisconnect(t *testing.T) {
	mem := memory.NewMemoryMessageStore()
	gated := &gatedStore{MemoryMessageStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWithStore(t, 10, testServerConfig(), mem, gated)
	room := domain.GroupRoom(102)

	x := env.dial(t, domain.Identity{ID: 1, Username: "x"})
	y := env.dial(t, domain.Identity{ID: 2, Username: "y"})
	x.send(TypeJoinRoom, "j1", RoomPayload{Room: room})
	require.True(t, x.ack("j1").OK)
	y.send(TypeJoinRoom, "j2", RoomPayload{Room: room})
	require.True(t, y.ack("j2").OK)

	x.send(TypeSendMessage, "m1", SendMessagePayload{Room: room, Content: "bye"})
	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("insert never started")
	}

	require.NoError(t, x.ws.Close())
	close(gated.release)

	var received domain.ChatMessage
	require.NoError(t, json.Unmarshal(y.next(domain.EventGroupMessage).Payload, &received))
	assert.Equal(t, "bye", received.Content)
	require.Len(t, env.store.Messages(room), 1)
	assert.Equal(t, received.ID, env.store.Messages(room)[0].ID)

	assert.Eventually(t, func() bool {
		return env.hub.Connections.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_EmptyMessageRejected(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	room := domain.GroupRoom(5)

	x := env.dial(t, domain.Identity{ID: 1, Username: "x"})
	x.send(TypeSendMessage, "m1", SendMessagePayload{Room: room, Content: "   "})

	ack := x.ack("m1")
	assert.False(t, ack.OK)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "INVALID_MESSAGE", ack.Error.Code)
	assert.Empty(t, env.store.Messages(room))
}

func TestWebSocket_RoomFull(t *testing.T) {
	env := newTestEnv(t, 1, testServerConfig())
	room := domain.GroupRoom(7)

	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})
	b := env.dial(t, domain.Identity{ID: 2, Username: "b"})

	a.send(TypeJoinRoom, "j1", RoomPayload{Room: room})
	assert.True(t, a.ack("j1").OK)

	b.send(TypeJoinRoom, "j2", RoomPayload{Room: room})
	ack := b.ack("j2")
	assert.False(t, ack.OK)
	require.NotNil(t, ack.Error)
	assert.Equal(t, "ROOM_FULL", ack.Error.Code)
	assert.Equal(t, 1, env.hub.Rooms.MemberCount(room))
}

func TestWebSocket_InvalidFrames(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := a.next(TypeAck)
	assert.False(t, f.OK)
	assert.Equal(t, "INVALID_INPUT", f.Error.Code)

	a.send("dance", "u1", struct{}{})
	f = a.ack("u1")
	assert.False(t, f.OK)
	assert.Equal(t, "INVALID_INPUT", f.Error.Code)

	a.send(TypeJoinRoom, "j1", RoomPayload{Room: domain.RoomKey{Kind: "nope", ID: 1}})
	f = a.ack("j1")
	assert.False(t, f.OK)
	assert.Equal(t, "INVALID_INPUT", f.Error.Code)

	// The connection survives every rejected frame.
	a.send(TypePing, "p1", struct{}{})
	assert.True(t, a.ack("p1").OK)
}

func TestWebSocket_QueryPresence(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())

	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})
	b := env.dial(t, domain.Identity{ID: 2, Username: "b"})

	a.send(TypeQueryPresence, "q1", QueryPresencePayload{UserIDs: []domain.UserID{2, 3}})
	f := a.ack("q1")
	require.True(t, f.OK)

	var result PresenceResult
	require.NoError(t, json.Unmarshal(f.Data, &result))
	require.Contains(t, result.Presence, domain.UserID(2))
	require.NotNil(t, result.Presence[2])
	assert.Equal(t, b.handle, *result.Presence[2])
	assert.Nil(t, result.Presence[3])
}

func TestWebSocket_QueryPresenceTooMany(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})

	ids := make([]domain.UserID, domain.MaxPresenceQuery+1)
	for i := range ids {
		ids[i] = domain.UserID(i + 1)
	}
	a.send(TypeQueryPresence, "q1", QueryPresencePayload{UserIDs: ids})
	f := a.ack("q1")
	assert.False(t, f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "INVALID_INPUT", f.Error.Code)

	a.send(TypeQueryPresence, "q2", QueryPresencePayload{UserIDs: ids[:domain.MaxPresenceQuery]})
	assert.True(t, a.ack("q2").OK)
}

func TestWebSocket_MessageRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimitEnabled = true
	cfg.MessagesPerSecond = 1
	cfg.MessageBurst = 1
	env := newTestEnv(t, 10, cfg)

	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})
	a.send(TypePing, "p1", struct{}{})
	a.send(TypePing, "p2", struct{}{})

	assert.True(t, a.ack("p1").OK)
	f := a.ack("p2")
	assert.False(t, f.OK)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", f.Error.Code)
}

func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	room := domain.GroupRoom(3)

	a := env.dial(t, domain.Identity{ID: 1, Username: "a"})
	a.send(TypeJoinRoom, "j1", RoomPayload{Room: room})
	require.True(t, a.ack("j1").OK)

	require.NoError(t, a.ws.Close())

	assert.Eventually(t, func() bool {
		_, online := env.hub.Presence.Lookup(1)
		return !online && !env.hub.Rooms.Exists(room) && env.hub.Connections.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_NewerConnectionSupersedes(t *testing.T) {
	env := newTestEnv(t, 10, testServerConfig())
	identity := domain.Identity{ID: 1, Username: "a"}

	first := env.dial(t, identity)
	second := env.dial(t, identity)

	handle, ok := env.hub.Presence.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, second.handle, handle)

	// Closing the older socket leaves the newer presence entry in place.
	require.NoError(t, first.ws.Close())
	assert.Eventually(t, func() bool {
		return env.hub.Connections.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	handle, ok = env.hub.Presence.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, second.handle, handle)
}

func TestWebSocket_MaxConcurrent(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxConcurrent = 1
	env := newTestEnv(t, 10, cfg)

	env.dial(t, domain.Identity{ID: 1, Username: "a"})

	token, err := env.auth.GenerateToken(domain.Identity{ID: 2, Username: "b"})
	require.NoError(t, err)
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	srv := NewWebSocketServer(nil, ServerConfig{AllowedOrigins: []string{"https://chat.example.com"}}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, srv.checkOrigin(req), "missing origin is allowed")

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, srv.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, srv.checkOrigin(req))

	open := NewWebSocketServer(nil, ServerConfig{AllowedOrigins: []string{"*"}}, nil, nil)
	assert.True(t, open.checkOrigin(req))
}

func TestWSConnection_SendBackpressure(t *testing.T) {
	cfg := testServerConfig()
	cfg.SendBufferSize = 1
	conn := newWSConnection(nil, domain.Identity{ID: 1}, cfg, zapNop())

	require.NoError(t, conn.Send(map[string]string{"n": "1"}))
	assert.ErrorIs(t, conn.Send(map[string]string{"n": "2"}), domain.ErrSendBufferFull)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send(map[string]string{"n": "3"}), domain.ErrConnectionClosed)
}

func zapNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
