package channel

import (
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/service/gateway"
	"PPGate/tools/errs"
)

// Subscriber is what the bus needs from a connection. *gateway.Session
// satisfies it.
type Subscriber interface {
	ID() string
	Identity() (userID, username string, ok bool)
	Send(data []byte) error
	DoneHook(key string, f func())
	DeleteDoneHook(key string)
}

// Bus 频道订阅总线，频道按名字惰性创建，无人订阅时回收
type Bus struct {
	echo bool // 广播是否回发给发送者

	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewBus(echo bool) *Bus {
	return &Bus{
		echo:     echo,
		channels: make(map[string]*Channel),
	}
}

// Channel is a named fan-out group.
type Channel struct {
	mu   sync.RWMutex
	subs map[Subscriber]struct{}
}

func (ch *Channel) count() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subs)
}

func (b *Bus) get(name string) (*Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[name]
	return ch, ok
}

func (b *Bus) Exist(name string) bool {
	_, ok := b.get(name)
	return ok
}

func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

// Subscribe 订阅频道，不存在时创建。重复订阅为幂等操作。
func (b *Bus) Subscribe(s Subscriber, name string) {
	b.mu.Lock()
	ch, ok := b.channels[name]
	if !ok {
		ch = &Channel{subs: make(map[Subscriber]struct{})}
		b.channels[name] = ch
		logger.Infof("[WS CHANNEL] channel %s created", name)
	}
	// 在持有总线锁时写入订阅者，避免与空频道回收竞争
	ch.mu.Lock()
	ch.subs[s] = struct{}{}
	ch.mu.Unlock()
	b.mu.Unlock()

	s.DoneHook("publish."+name, func() { b.drop(s, name) })
}

// Unsubscribe 退订频道
func (b *Bus) Unsubscribe(s Subscriber, name string) {
	s.DeleteDoneHook("publish." + name)
	b.drop(s, name)
}

// drop removes s from the channel and garbage-collects it when empty. The
// bus lock is only taken after the channel lock is released.
func (b *Bus) drop(s Subscriber, name string) {
	ch, ok := b.get(name)
	if !ok {
		return
	}
	ch.mu.Lock()
	delete(ch.subs, s)
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		b.mu.Lock()
		// 加锁间隙可能有新订阅者进来，复查后再删
		if cur, ok := b.channels[name]; ok && cur == ch && cur.count() == 0 {
			delete(b.channels, name)
			logger.Infof("[WS CHANNEL] channel %s recycled", name)
		}
		b.mu.Unlock()
	}
}

type broadcastBody struct {
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Timestamp  int64       `json:"timestamp"`
	Data       interface{} `json:"data"`
}

// Broadcast 向频道广播消息，仅订阅者可发。消息以 publish.<name> 推送并标注
// 发送者，默认不回发给发送者。
func (b *Bus) Broadcast(s Subscriber, name string, data interface{}) error {
	ch, ok := b.get(name)
	if !ok {
		return errs.ErrChannelNotFound
	}

	ch.mu.RLock()
	defer ch.mu.RUnlock()
	if _, subscribed := ch.subs[s]; !subscribed {
		return errs.ErrForbidden.WithDetail("not subscribed to channel")
	}

	senderID, senderName, _ := s.Identity()
	resp := gateway.NewPush(name, "publish."+name, broadcastBody{
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  time.Now().UnixMilli(),
		Data:       data,
	})
	frame := resp.Bytes()
	for sub := range ch.subs {
		if sub == s && !b.echo {
			continue
		}
		if err := sub.Send(frame); err != nil {
			userID, _, _ := sub.Identity()
			logger.Errorf("[WS CHANNEL] send to subscriber %s failed: %v", userID, err)
		}
	}
	return nil
}
