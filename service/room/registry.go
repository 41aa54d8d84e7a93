package room

import (
	"sync"

	"PPGate/logger"
	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

// Conf carries the registry-wide policy knobs.
type Conf struct {
	DefaultMaxMember int
}

func (c Conf) norm() Conf {
	if c.DefaultMaxMember <= 0 {
		c.DefaultMaxMember = 16
	}
	return c
}

// Registry owns the id -> room map. The registry lock and any room lock are
// never held together: every room mutation happens after the registry lock
// is released, and deletions triggered inside a room (autoClose, shutdown)
// re-acquire the registry lock afterwards.
type Registry struct {
	conf Conf

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry(conf Conf) *Registry {
	return &Registry{
		conf:  conf.norm(),
		rooms: make(map[string]*Room),
	}
}

func (reg *Registry) get(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rm, ok := reg.rooms[id]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	return rm, nil
}

func (reg *Registry) del(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
}

func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// List 房间列表，分页从1开始
func (reg *Registry) List(page, size int) []Info {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	reg.mu.RLock()
	all := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		all = append(all, rm)
	}
	reg.mu.RUnlock()

	start := (page - 1) * size
	if start >= len(all) {
		return []Info{}
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	resp := make([]Info, 0, end-start)
	for _, rm := range all[start:end] {
		resp = append(resp, rm.info())
	}
	return resp
}

// Create 创建房间，创建者自动成为房主并加入房间
func (reg *Registry) Create(p Peer, conf *Config) (*Room, error) {
	if conf == nil {
		conf = &Config{}
	}
	if conf.MaxMember < 0 {
		return nil, errs.ErrInvalidParams.WithDetail("maxMember must be positive")
	}
	if conf.MaxMember == 0 {
		conf.MaxMember = reg.conf.DefaultMaxMember
	}

	// 创建前先退出当前房间
	reg.Leave(p)

	userID, _, _ := p.Identity()
	rm := &Room{
		id:      ids.Generate(),
		conf:    conf,
		owner:   p,
		ownerID: userID,
		subs:    map[Peer]struct{}{p: {}},
	}

	reg.mu.Lock()
	reg.rooms[rm.id] = rm
	reg.mu.Unlock()

	p.SetRoom(rm.id)
	p.DoneHook("room."+rm.id, func() { reg.evict(rm, p) })
	logger.Infof("[WS ROOM] user %s created room %s (%s)", userID, rm.id, conf.Title)
	return rm, nil
}

// Join 进入房间，返回当前成员列表
func (reg *Registry) Join(p Peer, roomID, password string) ([]MateInfo, error) {
	rm, err := reg.get(roomID)
	if err != nil {
		return nil, err
	}

	// 换房间时先退出旧房间
	if prev := p.Room(); prev != "" && prev != roomID {
		reg.Leave(p)
	}

	mates, err := rm.join(p, password)
	if err != nil {
		return nil, err
	}
	p.SetRoom(rm.id)
	p.DoneHook("room."+rm.id, func() { reg.evict(rm, p) })
	return mates, nil
}

// Leave removes p from its current room, if any.
func (reg *Registry) Leave(p Peer) {
	roomID := p.Room()
	if roomID == "" {
		return
	}
	rm, err := reg.get(roomID)
	if err != nil {
		p.SetRoom("")
		return
	}
	p.DeleteDoneHook("room." + roomID)
	reg.evict(rm, p)
}

// evict is the single path through which membership is dropped. It touches
// the room lock first and the registry lock (via del) only after release.
func (reg *Registry) evict(rm *Room, p Peer) {
	destroyed := rm.removeMember(p)
	p.SetRoom("")
	if destroyed {
		reg.del(rm.id)
	}
}

// Close 关闭房间，仅房主可操作
func (reg *Registry) Close(p Peer, roomID string) error {
	rm, err := reg.get(roomID)
	if err != nil {
		return err
	}
	userID, _, _ := p.Identity()
	if rm.OwnerID() != userID || !rm.ExistMember(p) {
		return errs.ErrForbidden.WithDetail("only the owner can close the room")
	}

	members := rm.shutdown()
	for _, m := range members {
		m.DeleteDoneHook("room." + roomID)
		m.SetRoom("")
	}
	reg.del(roomID)
	logger.Infof("[WS ROOM] room %s closed by owner %s", roomID, userID)
	return nil
}

// Forbid 设置房间禁入状态，仅房主可操作
func (reg *Registry) Forbid(p Peer, roomID string, to bool) error {
	rm, err := reg.get(roomID)
	if err != nil {
		return err
	}
	userID, _, _ := p.Identity()
	if rm.OwnerID() != userID || !rm.ExistMember(p) {
		return errs.ErrForbidden.WithDetail("only the owner can forbid the room")
	}
	rm.setForbidden(to)
	return nil
}

// Mates 获取房间成员，仅成员可查看
func (reg *Registry) Mates(p Peer, roomID string) ([]MateInfo, error) {
	rm, err := reg.get(roomID)
	if err != nil {
		return nil, err
	}
	if !rm.ExistMember(p) {
		return nil, errs.ErrForbidden.WithDetail("not a room member")
	}
	return rm.Mates(), nil
}

// Message 在房间内发消息，仅成员可发
func (reg *Registry) Message(p Peer, roomID, text string) error {
	rm, err := reg.get(roomID)
	if err != nil {
		return err
	}
	if !rm.ExistMember(p) {
		return errs.ErrForbidden.WithDetail("not a room member")
	}
	rm.Message(text, p)
	return nil
}
