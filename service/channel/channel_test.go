package channel_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PPGate/service/channel"
	"PPGate/tools/errs"
)

type fakeSub struct {
	id   string
	uid  string
	name string

	mu     sync.Mutex
	frames [][]byte
	hooks  map[string]func()
}

func newFakeSub(uid string) *fakeSub {
	return &fakeSub{id: "conn-" + uid, uid: uid, name: "user-" + uid, hooks: make(map[string]func())}
}

func (s *fakeSub) ID() string { return s.id }

func (s *fakeSub) Identity() (string, string, bool) { return s.uid, s.name, true }

func (s *fakeSub) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSub) DoneHook(key string, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[key] = f
}

func (s *fakeSub) DeleteDoneHook(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hooks, key)
}

func (s *fakeSub) disconnect() {
	s.mu.Lock()
	hooks := make([]func(), 0, len(s.hooks))
	for _, f := range s.hooks {
		hooks = append(hooks, f)
	}
	s.hooks = make(map[string]func())
	s.mu.Unlock()
	for _, f := range hooks {
		f()
	}
}

type pushBody struct {
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	Timestamp  int64           `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

func (s *fakeSub) bodies() []pushBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pushBody
	for _, raw := range s.frames {
		var f struct {
			Data pushBody `json:"data"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		out = append(out, f.Data)
	}
	return out
}

func (s *fakeSub) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, raw := range s.frames {
		var f struct {
			Method string `json:"method"`
			Data   struct {
				Data json.RawMessage `json:"data"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		var msg string
		_ = json.Unmarshal(f.Data.Data, &msg)
		out = append(out, f.Method+":"+msg)
	}
	return out
}

func mustRaw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestSubscribeAndBroadcast(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	b := newFakeSub("u2")
	bus.Subscribe(a, "hall")
	bus.Subscribe(b, "hall")

	if err := bus.Broadcast(a, "hall", mustRaw(t, "hello")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if got := b.received(); len(got) != 1 || got[0] != "publish.hall:hello" {
		t.Fatalf("unexpected frames for b: %v", got)
	}
	if got := a.received(); len(got) != 0 {
		t.Fatalf("sender should not hear itself, got %v", got)
	}

	// 订阅晚于广播的不补发
	late := newFakeSub("u3")
	bus.Subscribe(late, "hall")
	if got := late.received(); len(got) != 0 {
		t.Fatalf("late subscriber got retroactive frames: %v", got)
	}
}

func TestBroadcastCarriesSender(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	b := newFakeSub("u2")
	bus.Subscribe(a, "hall")
	bus.Subscribe(b, "hall")

	before := time.Now().UnixMilli()
	if err := bus.Broadcast(a, "hall", mustRaw(t, "hello")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	bodies := b.bodies()
	if len(bodies) != 1 {
		t.Fatalf("want 1 push, got %d", len(bodies))
	}
	body := bodies[0]
	if body.SenderID != "u1" || body.SenderName != "user-u1" {
		t.Fatalf("sender %q/%q, want u1/user-u1", body.SenderID, body.SenderName)
	}
	if body.Timestamp < before || body.Timestamp > time.Now().UnixMilli() {
		t.Fatalf("timestamp %d outside broadcast window", body.Timestamp)
	}
	var msg string
	if err := json.Unmarshal(body.Data, &msg); err != nil || msg != "hello" {
		t.Fatalf("payload %s, want \"hello\"", body.Data)
	}
}

func TestBroadcastEcho(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(true)

	a := newFakeSub("u1")
	bus.Subscribe(a, "hall")
	if err := bus.Broadcast(a, "hall", mustRaw(t, "hi")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := a.received(); len(got) != 1 {
		t.Fatalf("echo enabled, sender should hear itself: %v", got)
	}
}

func TestBroadcastUnknownChannel(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)
	err := bus.Broadcast(newFakeSub("u1"), "void", mustRaw(t, "x"))
	if !errors.Is(err, errs.ErrChannelNotFound) {
		t.Fatalf("want ChannelNotFound, got %v", err)
	}
}

func TestBroadcastRequiresSubscription(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	bus.Subscribe(newFakeSub("u1"), "hall")
	err := bus.Broadcast(newFakeSub("u2"), "hall", mustRaw(t, "x"))
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want Forbidden, got %v", err)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	b := newFakeSub("u2")
	bus.Subscribe(a, "hall")
	bus.Subscribe(a, "hall")
	bus.Subscribe(b, "hall")

	if err := bus.Broadcast(b, "hall", mustRaw(t, "once")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := a.received(); len(got) != 1 {
		t.Fatalf("duplicate subscription duplicated delivery: %v", got)
	}
}

func TestUnsubscribeAndGC(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	bus.Subscribe(a, "hall")
	if bus.Count() != 1 {
		t.Fatalf("want 1 channel, got %d", bus.Count())
	}

	bus.Unsubscribe(a, "hall")
	if bus.Count() != 0 {
		t.Fatalf("empty channel not recycled, %d left", bus.Count())
	}
	if bus.Exist("hall") {
		t.Fatal("channel still visible after recycle")
	}
}

func TestDisconnectUnsubscribes(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	b := newFakeSub("u2")
	bus.Subscribe(a, "hall")
	bus.Subscribe(b, "hall")

	a.disconnect()

	if err := bus.Broadcast(b, "hall", mustRaw(t, "still here")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := a.received(); len(got) != 0 {
		t.Fatalf("dropped subscriber still receives: %v", got)
	}

	b.disconnect()
	if bus.Count() != 0 {
		t.Fatalf("channels leak after all subscribers left: %d", bus.Count())
	}
}

func TestBroadcastOrderFromOneSender(t *testing.T) {
	t.Parallel()
	bus := channel.NewBus(false)

	a := newFakeSub("u1")
	b := newFakeSub("u2")
	bus.Subscribe(a, "hall")
	bus.Subscribe(b, "hall")

	for _, msg := range []string{"one", "two", "three"} {
		if err := bus.Broadcast(a, "hall", mustRaw(t, msg)); err != nil {
			t.Fatalf("broadcast %s: %v", msg, err)
		}
	}

	want := []string{"publish.hall:one", "publish.hall:two", "publish.hall:three"}
	got := b.received()
	if len(got) != len(want) {
		t.Fatalf("want %d frames, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("out of order at %d: %v", i, got)
		}
	}
}
