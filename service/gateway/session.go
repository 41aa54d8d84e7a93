package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PPGate/logger"
	"PPGate/service/identity"
	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

var errQueueFull = errors.New("send queue full")
var errSessionClosed = errors.New("session closed")

// Session is the server-side state bound to one live connection: identity,
// current room, and teardown hooks for everything the connection joined.
// It is owned by the connection handler that created it; rooms and channels
// hold references only.
type Session struct {
	id     string
	conn   *websocket.Conn
	remote string

	// 每连接独立发送队列，由唯一的写协程消费
	sendq chan []byte

	lifetimeCtx context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once

	// 心跳应答信道
	heartCh chan int64

	mu        sync.RWMutex
	userID    string
	userName  string
	authed    bool
	roomID    string
	createdAt time.Time
	lastSeen  time.Time

	// 断开连接时的钩子任务，先进后出
	doneHooks map[string]func()
	hookChain []string
}

// NewSession wraps an accepted connection. conn may be nil in tests; the
// write pump is only started by the server, so a pumpless session just
// accumulates frames in its outbound queue.
func NewSession(conn *websocket.Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          ids.GenerateShort(),
		conn:        conn,
		sendq:       make(chan []byte, queueSize),
		lifetimeCtx: ctx,
		cancel:      cancel,
		heartCh:     make(chan int64, 8),
		createdAt:   time.Now(),
		lastSeen:    time.Now(),
		doneHooks:   make(map[string]func()),
		hookChain:   make([]string, 0),
	}
	if conn != nil {
		if ra := conn.RemoteAddr(); ra != nil {
			s.remote = ra.String()
		}
	}
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Remote() string { return s.remote }

// Done closes when the session's lifetime ends.
func (s *Session) Done() <-chan struct{} { return s.lifetimeCtx.Done() }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Identity returns the bound user; ok is false until authentication
// succeeded on this connection.
func (s *Session) Identity() (userID, username string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userName, s.authed
}

func (s *Session) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// Bind attaches a verified identity. A session binds exactly once.
func (s *Session) Bind(id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authed {
		return errs.ErrAlreadyAuthenticated
	}
	s.userID = id.UserID
	s.userName = id.Username
	s.authed = true
	return nil
}

// Room returns the current room id, empty when not in any room.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) SetRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

// Touch records inbound traffic for heartbeat accounting.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Send enqueues a frame for the write pump. It never blocks the caller: a
// full queue means a slow client, and the frame is dropped with an error.
func (s *Session) Send(data []byte) error {
	select {
	case <-s.lifetimeCtx.Done():
		return errSessionClosed
	default:
	}
	select {
	case s.sendq <- data:
		return nil
	default:
		return errQueueFull
	}
}

// Outbound exposes the send queue; consumed by the write pump and by tests
// that run without a socket.
func (s *Session) Outbound() <-chan []byte { return s.sendq }

// DoneHook registers a teardown task; hooks run LIFO on Close. Hooks must
// not call Close.
func (s *Session) DoneHook(key string, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doneHooks[key]; !ok {
		s.hookChain = append(s.hookChain, key)
	}
	s.doneHooks[key] = f
}

// DeleteDoneHook removes a teardown task.
func (s *Session) DeleteDoneHook(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doneHooks[key]; !ok {
		return
	}
	delete(s.doneHooks, key)
	for idx, hook := range s.hookChain {
		if hook == key {
			s.hookChain = append(s.hookChain[:idx], s.hookChain[idx+1:]...)
			break
		}
	}
}

// Close tears the session down exactly once: hooks run LIFO (room leave,
// channel unsubscribes, manager removal) before the socket closes, so no
// registry ever holds a dead reference.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		chain := make([]string, len(s.hookChain))
		copy(chain, s.hookChain)
		hooks := make(map[string]func(), len(s.doneHooks))
		for k, f := range s.doneHooks {
			hooks[k] = f
		}
		s.mu.Unlock()

		for i := len(chain) - 1; i >= 0; i-- {
			f, ok := hooks[chain[i]]
			if !ok {
				continue
			}
			f()
		}

		s.cancel()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				logger.Debugf("[WS] connect close err: %v", err)
			}
		}
		logger.Infof("[WS] disconnect %s from %s, lifetime %s",
			s.id, s.remote, time.Since(s.createdAt).String())
	})
}

// writePump is the single writer for the connection.
func (s *Session) writePump() {
	for {
		select {
		case <-s.lifetimeCtx.Done():
			return
		case data := <-s.sendq:
			_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("[WS] write failed session=%s err=%v", s.id, err)
				s.Close()
				return
			}
		}
	}
}
