package gateway

import (
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/tools/errs"
)

// ===== 配置 =====

type ManagerConf struct {
	UnauthTTL   time.Duration    // 未授权连接的宽限期
	SweepEvery  time.Duration    // 清理周期
	MaxPerUser  int              // 每用户最大连接数（<=0 不限制）
	EvictOldest bool             // 超限时是否淘汰最老连接（否则 Bind 直接报错）
	Clock       func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
}

// Manager indexes live sessions by connection id and by user. Sessions that
// never authenticate are swept once their grace period runs out.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]map[string]*Session

	conf     ManagerConf
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewManager(conf ManagerConf) *Manager {
	conf.norm()
	m := &Manager{
		byID:   make(map[string]*Session),
		byUser: make(map[string]map[string]*Session),
		conf:   conf,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

// Add registers a fresh, still unauthenticated session and hooks its removal
// into the session teardown.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.byID[s.ID()] = s
	m.mu.Unlock()

	s.DoneHook("manager", func() { m.remove(s) })
}

// Bind moves the session into the user index after authentication. With
// MaxPerUser reached, either the oldest connection is kicked or the bind is
// refused, depending on EvictOldest.
func (m *Manager) Bind(s *Session) error {
	userID, _, ok := s.Identity()
	if !ok {
		return errs.ErrUnauthenticated
	}

	var evict *Session
	m.mu.Lock()
	mm := m.byUser[userID]
	if m.conf.MaxPerUser > 0 && len(mm) >= m.conf.MaxPerUser {
		if !m.conf.EvictOldest {
			m.mu.Unlock()
			return errs.ErrAlreadyAuthenticated.WithDetail("user connection limit reached")
		}
		for _, w := range mm {
			if evict == nil || w.CreatedAt().Before(evict.CreatedAt()) {
				evict = w
			}
		}
		if evict != nil {
			delete(mm, evict.ID())
		}
	}
	if mm == nil {
		mm = make(map[string]*Session)
		m.byUser[userID] = mm
	}
	mm[s.ID()] = s
	m.mu.Unlock()

	if evict != nil {
		logger.Infof("[WS] evict oldest connection %s of user %s", evict.ID(), userID)
		// 解锁后关闭
		go evict.Close()
	}
	return nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, s.ID())
	if userID, _, ok := s.Identity(); ok {
		if mm := m.byUser[userID]; mm != nil {
			delete(mm, s.ID())
			if len(mm) == 0 {
				delete(m.byUser, userID)
			}
		}
	}
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

// GetUser returns any one live session of the user.
func (m *Manager) GetUser(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.byUser[userID] {
		return s, true
	}
	return nil, false
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.RLock()
	all := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

// ===== 清理协程 =====

func (m *Manager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

// sweepOnce evicts sessions that sat unauthenticated past the grace period.
func (m *Manager) sweepOnce(now time.Time) {
	var expired []*Session

	m.mu.RLock()
	for _, s := range m.byID {
		if !s.Authorized() && now.Sub(s.CreatedAt()) > m.conf.UnauthTTL {
			// 收集后统一关闭，避免持锁期间关闭 socket
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		logger.Infof("[WS] auth grace period exceeded, close session=%s remote=%s", s.ID(), s.Remote())
		s.Close()
	}
}
