package gateway_test

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"PPGate/middleware"
	"PPGate/service/channel"
	"PPGate/service/gateway"
	"PPGate/service/gateway/handlers"
	"PPGate/service/identity"
	"PPGate/service/room"
	"PPGate/tools/errs"
)

type testEnv struct {
	ts   *httptest.Server
	auth *identity.MemoryAuthenticator
}

func newTestGateway(t *testing.T, conf gateway.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := identity.NewMemoryAuthenticator(identity.DefaultOptions([]byte("e2e-secret")))
	mgr := gateway.NewManager(gateway.ManagerConf{})
	router := gateway.NewRouter(2 * time.Second)
	srv := gateway.NewServer(conf, router, mgr)

	rooms := room.NewRegistry(room.Conf{})
	bus := channel.NewBus(false)

	roomCtl := handlers.RoomController{Rooms: rooms}
	middleware.InitWsRoute(router,
		handlers.Base{Auth: auth, Mgr: mgr},
		roomCtl,
		handlers.ChannelController{Bus: bus},
	)

	g := gin.New()
	middleware.InitRoute(g, srv, auth, roomCtl)

	ts := httptest.NewServer(g)
	t.Cleanup(func() {
		ts.Close()
		mgr.Close()
	})
	return &testEnv{ts: ts, auth: auth}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type wsResp struct {
	Id         string          `json:"id"`
	Method     string          `json:"method"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

func send(t *testing.T, c *websocket.Conn, id, method string, params ...interface{}) {
	t.Helper()
	raws := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal param: %v", err)
		}
		raws = append(raws, raw)
	}
	body, err := json.Marshal(map[string]interface{}{"id": id, "method": method, "params": raws})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readFrame skips liveness frames and returns the next envelope.
func readFrame(t *testing.T, c *websocket.Conn) wsResp {
	t.Helper()
	for {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(raw) == gateway.PingFrame || string(raw) == gateway.PongFrame {
			continue
		}
		var resp wsResp
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		return resp
	}
}

// readReply skips pushes until the correlated reply for id arrives.
func readReply(t *testing.T, c *websocket.Conn, id string) wsResp {
	t.Helper()
	for i := 0; i < 16; i++ {
		resp := readFrame(t, c)
		if resp.Method == gateway.ReplyMethod && resp.Id == id {
			return resp
		}
	}
	t.Fatalf("no reply for id %s", id)
	return wsResp{}
}

// readPush skips replies until a push with the given method arrives.
func readPush(t *testing.T, c *websocket.Conn, method string) wsResp {
	t.Helper()
	for i := 0; i < 16; i++ {
		resp := readFrame(t, c)
		if resp.Method == method {
			return resp
		}
	}
	t.Fatalf("no %s push", method)
	return wsResp{}
}

func login(t *testing.T, c *websocket.Conn, username, password string) {
	t.Helper()
	send(t, c, "login-"+username, "base.login", username, password)
	if resp := readReply(t, c, "login-"+username); resp.StatusCode != errs.Success {
		t.Fatalf("login %s: %+v", username, resp)
	}
}

func createRoom(t *testing.T, c *websocket.Conn, conf map[string]interface{}) string {
	t.Helper()
	send(t, c, "create", "room.create", conf)
	resp := readReply(t, c, "create")
	if resp.StatusCode != errs.Success {
		t.Fatalf("room.create: %+v", resp)
	}
	var data struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.RoomID == "" {
		t.Fatalf("create payload %s: %v", resp.Data, err)
	}
	return data.RoomID
}

func TestLoginAndRoomFull(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})
	env.auth.AddUser("alice", "pw1")
	env.auth.AddUser("bob", "pw2")

	a := env.dial(t)
	login(t, a, "alice", "pw1")
	roomID := createRoom(t, a, map[string]interface{}{"maxMember": 1})

	b := env.dial(t)
	login(t, b, "bob", "pw2")
	send(t, b, "join", "room.in", roomID)
	if resp := readReply(t, b, "join"); resp.StatusCode != errs.RoomFull {
		t.Fatalf("want RoomFull, got %+v", resp)
	}
}

func TestUnauthenticatedGate(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})

	c := env.dial(t)
	send(t, c, "r1", "room.create", map[string]interface{}{})
	if resp := readReply(t, c, "r1"); resp.StatusCode != errs.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %+v", resp)
	}

	// 诊断方法不要求认证
	send(t, c, "r2", "hello")
	if resp := readReply(t, c, "r2"); resp.StatusCode != errs.Success {
		t.Fatalf("hello: %+v", resp)
	}
}

func TestMethodNotFound(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})

	c := env.dial(t)
	send(t, c, "r1", "no.such.method")
	if resp := readReply(t, c, "r1"); resp.StatusCode != errs.MethodNotFound {
		t.Fatalf("want MethodNotFound, got %+v", resp)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})

	c := env.dial(t)
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"id":"x",`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readFrame(t, c); resp.StatusCode != errs.WrongBody {
		t.Fatalf("want WrongBody, got %+v", resp)
	}

	send(t, c, "after", "time")
	if resp := readReply(t, c, "after"); resp.StatusCode != errs.Success {
		t.Fatalf("connection should survive a bad frame: %+v", resp)
	}
}

func TestResponseOrdering(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})

	c := env.dial(t)
	const n = 8
	for i := 0; i < n; i++ {
		send(t, c, fmt.Sprintf("r%d", i), "time")
	}
	for i := 0; i < n; i++ {
		resp := readFrame(t, c)
		if want := fmt.Sprintf("r%d", i); resp.Id != want {
			t.Fatalf("reply %d out of order: got id %s", i, resp.Id)
		}
	}
}

func TestRoomMessagePush(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})
	env.auth.AddUser("alice", "pw1")
	env.auth.AddUser("bob", "pw2")

	a := env.dial(t)
	login(t, a, "alice", "pw1")
	roomID := createRoom(t, a, map[string]interface{}{})

	b := env.dial(t)
	login(t, b, "bob", "pw2")
	send(t, b, "join", "room.in", roomID)
	if resp := readReply(t, b, "join"); resp.StatusCode != errs.Success {
		t.Fatalf("join: %+v", resp)
	}

	// 房主先看到进房通知，保证成员写入已完成
	readPush(t, a, "publish.room.notice.in")

	send(t, a, "msg", "room.message", roomID, "hi bob")
	if resp := readReply(t, a, "msg"); resp.StatusCode != errs.Success {
		t.Fatalf("message: %+v", resp)
	}

	push := readPush(t, b, "publish.room.message")
	var body struct {
		SenderName string `json:"senderName"`
		Data       string `json:"data"`
	}
	if err := json.Unmarshal(push.Data, &body); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if body.SenderName != "alice" || body.Data != "hi bob" {
		t.Fatalf("unexpected push body %+v", body)
	}
}

func TestChannelBroadcast(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})
	env.auth.AddUser("alice", "pw1")
	env.auth.AddUser("bob", "pw2")

	a := env.dial(t)
	login(t, a, "alice", "pw1")
	b := env.dial(t)
	login(t, b, "bob", "pw2")

	for name, c := range map[string]*websocket.Conn{"alice": a, "bob": b} {
		send(t, c, "sub-"+name, "channel.subscribe", "hall")
		if resp := readReply(t, c, "sub-"+name); resp.StatusCode != errs.Success {
			t.Fatalf("subscribe %s: %+v", name, resp)
		}
	}

	send(t, a, "cast", "channel.broadcast", "hall", "hello")
	if resp := readReply(t, a, "cast"); resp.StatusCode != errs.Success {
		t.Fatalf("broadcast: %+v", resp)
	}

	push := readPush(t, b, "publish.hall")
	var body struct {
		SenderID   string          `json:"senderId"`
		SenderName string          `json:"senderName"`
		Timestamp  int64           `json:"timestamp"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(push.Data, &body); err != nil {
		t.Fatalf("push payload %s: %v", push.Data, err)
	}
	if body.SenderName != "alice" || body.SenderID == "" || body.Timestamp <= 0 {
		t.Fatalf("missing sender info: %+v", body)
	}
	var msg string
	if err := json.Unmarshal(body.Data, &msg); err != nil || msg != "hello" {
		t.Fatalf("inner payload %s: %v", body.Data, err)
	}
}

func TestLiteralPingPong(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{})

	c := env.dial(t)
	if err := c.WriteMessage(websocket.TextMessage, []byte(gateway.PingFrame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != gateway.PongFrame {
		t.Fatalf("want literal pong, got %q", raw)
	}
}

func TestHeartbeatEvictsSilentPeer(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{
		HeartbeatInterval: 100 * time.Millisecond,
		HeartbeatGrace:    100 * time.Millisecond,
	})

	c := env.dial(t)

	sawPing := false
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(deadline)
		_, raw, err := c.ReadMessage()
		if err != nil {
			if !sawPing {
				t.Fatal("connection dropped before any probe")
			}
			return // probed, unanswered, evicted
		}
		if string(raw) == gateway.PingFrame {
			sawPing = true
		}
	}
	t.Fatal("silent peer was never evicted")
}

func TestHeartbeatSurvivesPong(t *testing.T) {
	t.Parallel()
	env := newTestGateway(t, gateway.Config{
		HeartbeatInterval: 100 * time.Millisecond,
		HeartbeatGrace:    100 * time.Millisecond,
	})

	c := env.dial(t)

	until := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(until) {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, raw, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("responsive peer was dropped: %v", err)
		}
		if string(raw) == gateway.PingFrame {
			if err := c.WriteMessage(websocket.TextMessage, []byte(gateway.PongFrame)); err != nil {
				t.Fatalf("write pong: %v", err)
			}
		}
	}

	send(t, c, "alive", "time")
	if resp := readReply(t, c, "alive"); resp.StatusCode != errs.Success {
		t.Fatalf("connection unusable after heartbeats: %+v", resp)
	}
}
