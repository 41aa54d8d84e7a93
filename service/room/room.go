package room

import (
	"crypto/subtle"
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/service/gateway"
	"PPGate/tools/errs"
)

// Peer is the slice of a connection the room layer needs. *gateway.Session
// satisfies it; tests use fakes.
type Peer interface {
	ID() string
	Identity() (userID, username string, ok bool)
	Send(data []byte) error
	DoneHook(key string, f func())
	DeleteDoneHook(key string)
	Room() string
	SetRoom(roomID string)
}

// Config 房间设置
type Config struct {
	Title     string   `json:"title"`
	MaxMember int      `json:"maxMember"` // 0 表示使用默认值
	Password  *string  `json:"password,omitempty"`
	Blacklist []string `json:"blackList"` // user id 黑名单
	AutoClose bool     `json:"autoClose"`
}

// MateInfo 接口返回的房间成员信息
type MateInfo struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Owner  bool   `json:"owner"`
}

// Info is the public listing entry for a room.
type Info struct {
	RoomID       string `json:"roomId"`
	Title        string `json:"roomTitle"`
	OwnerID      string `json:"ownerId"`
	OwnerName    string `json:"ownerName"`
	MemberCount  int    `json:"memberCount"`
	MaxMember    int    `json:"memberMax"`
	WithPassword bool   `json:"withPassword"`
	Forbidden    bool   `json:"forbidden"`
}

// Room is a capacity-bounded, optionally password-protected member group.
// All mutation happens under its own lock; different rooms never contend.
type Room struct {
	id string

	mu        sync.RWMutex
	conf      *Config
	owner     Peer
	ownerID   string
	subs      map[Peer]struct{}
	forbidden bool
	destroyed bool
}

func (r *Room) ID() string { return r.id }

func (r *Room) OwnerID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownerID
}

func (r *Room) ExistMember(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[p]
	return ok
}

// Mates 所有成员
func (r *Room) Mates() []MateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matesLocked()
}

func (r *Room) matesLocked() []MateInfo {
	resp := make([]MateInfo, 0, len(r.subs))
	for p := range r.subs {
		userID, name, _ := p.Identity()
		resp = append(resp, MateInfo{
			UserID: userID,
			Name:   name,
			Owner:  p == r.owner,
		})
	}
	return resp
}

func (r *Room) info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ownerName, _ := r.owner.Identity()
	return Info{
		RoomID:       r.id,
		Title:        r.conf.Title,
		OwnerID:      r.ownerID,
		OwnerName:    ownerName,
		MemberCount:  len(r.subs),
		MaxMember:    r.conf.MaxMember,
		WithPassword: r.conf.Password != nil && *r.conf.Password != "",
		Forbidden:    r.forbidden,
	}
}

type messageBody struct {
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Timestamp  int64       `json:"timestamp"`
	Data       interface{} `json:"data"`
}

// publishLocked fans a frame out to every member except sender. Send only
// enqueues onto each member's write queue, so holding the room lock here
// never blocks on I/O.
func (r *Room) publishLocked(data []byte, sender Peer) {
	for p := range r.subs {
		if p == sender {
			continue
		}
		if err := p.Send(data); err != nil {
			userID, _, _ := p.Identity()
			logger.Errorf("[WS ROOM] send to member %s failed: %v", userID, err)
		}
	}
}

// noticeLocked 发送系统通知，sender为通知触发者，不会收到消息
func (r *Room) noticeLocked(v interface{}, kind string, sender Peer) {
	note := "publish.room.notice"
	if kind != "" {
		note += "." + kind
	}
	resp := gateway.NewPush(r.id, note, v)
	r.publishLocked(resp.Bytes(), sender)
}

// Message 房间内发送消息，作为异步推送发给其他成员
func (r *Room) Message(text string, sender Peer) {
	senderID, senderName, _ := sender.Identity()
	resp := gateway.NewPush(r.id, "publish.room.message", messageBody{
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  time.Now().UnixMilli(),
		Data:       text,
	})
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.publishLocked(resp.Bytes(), sender)
}

// join runs the whole admission check and the membership mutation as one
// critical section, so capacity and blacklist hold under concurrent joins.
func (r *Room) join(p Peer, password string) ([]MateInfo, error) {
	userID, userName, _ := p.Identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return nil, errs.ErrRoomNotFound
	}
	if _, ok := r.subs[p]; ok {
		return r.matesLocked(), nil
	}
	if r.forbidden {
		return nil, errs.ErrForbidden.WithDetail("room forbidden")
	}
	for _, id := range r.conf.Blacklist {
		if id == userID {
			return nil, errs.ErrForbidden.WithDetail("blacklisted")
		}
	}
	if r.conf.Password != nil && *r.conf.Password != "" {
		if subtle.ConstantTimeCompare([]byte(password), []byte(*r.conf.Password)) != 1 {
			return nil, errs.ErrWrongPassword
		}
	}
	if r.conf.MaxMember > 0 && len(r.subs) >= r.conf.MaxMember {
		return nil, errs.ErrRoomFull
	}

	// 空房的首个进入者接管房主；房主断线重连时重新绑定连接
	if len(r.subs) == 0 {
		r.owner = p
		r.ownerID = userID
	} else if userID == r.ownerID {
		r.owner = p
	}

	r.subs[p] = struct{}{}
	logger.Infof("[WS ROOM] user %s get in room %s", userID, r.id)

	r.noticeLocked(MateInfo{UserID: userID, Name: userName}, "in", p)
	return r.matesLocked(), nil
}

// removeMember drops p and reports whether the room emptied out with
// autoClose set, in which case the caller deletes it from the registry.
func (r *Room) removeMember(p Peer) (destroyed bool) {
	userID, _, _ := p.Identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[p]; !ok {
		return false
	}
	delete(r.subs, p)

	if len(r.subs) == 0 {
		if r.conf.AutoClose {
			r.destroyed = true
			logger.Infof("[WS ROOM] room %s closed after last member %s left", r.id, userID)
			return true
		}
		return false
	}

	r.noticeLocked(userID, "out", p)

	// 房主退出且房间非空时推举下一个房主
	if p == r.owner {
		for next := range r.subs {
			r.owner = next
			nextID, _, _ := next.Identity()
			r.ownerID = nextID
			r.noticeLocked(map[string]string{"old": userID, "new": nextID}, "exchangeOwner", nil)
			break
		}
	}
	return false
}

// shutdown clears the member set and invalidates the room id.
func (r *Room) shutdown() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil
	}
	r.noticeLocked("", "close", nil)
	members := make([]Peer, 0, len(r.subs))
	for p := range r.subs {
		members = append(members, p)
	}
	clear(r.subs)
	r.destroyed = true
	return members
}

// Forbidden 房间禁止进入
func (r *Room) setForbidden(to bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forbidden = to
	r.noticeLocked(to, "forbidden", nil)
}
