package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"PPGate/logger"
	"PPGate/tools/errs"
)

type Config struct {
	HeartbeatInterval time.Duration // 空闲多久后发 ping
	HeartbeatGrace    time.Duration // ping 后等待 pong 的宽限
	MaxWaiting        int           // 待处理请求队列长度
	SendQueue         int           // 每连接发送队列长度
	RateLimit         rate.Limit
	RateBurst         int
}

func (c *Config) norm() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatGrace <= 0 {
		c.HeartbeatGrace = 10 * time.Second
	}
	if c.MaxWaiting <= 0 {
		c.MaxWaiting = 64
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		logger.Errorf("[WS] upgrade from %s error: %v", r.RemoteAddr, reason)
	},
}

// Server owns the websocket endpoint: it upgrades connections, wraps them in
// sessions and runs their read/dispatch/heartbeat loops.
type Server struct {
	conf   Config
	router *Router
	mgr    *Manager
}

func NewServer(conf Config, router *Router, mgr *Manager) *Server {
	conf.norm()
	return &Server{conf: conf, router: router, mgr: mgr}
}

func (s *Server) Manager() *Manager { return s.mgr }

// HandleWS is the gin route upgrading to the persistent connection.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[WS] upgrade websocket error: %v", err)
		return
	}

	sess := NewSession(ws, s.conf.SendQueue)
	s.mgr.Add(sess)
	logger.Infof("[WS] connected session=%s from %s", sess.ID(), sess.Remote())

	// 协议层 ping 也应答，与文本 "ping" 等价
	ws.SetPingHandler(func(appData string) error {
		sess.Touch()
		return sess.Send([]byte(PongFrame))
	})
	ws.SetCloseHandler(func(code int, text string) error {
		sess.Close()
		return nil
	})

	msgCh := make(chan *Request, s.conf.MaxWaiting)
	go sess.writePump()
	go s.dispatchLoop(sess, msgCh)
	go s.heartbeatLoop(sess)

	s.readLoop(sess, msgCh)

	// 读循环退出即连接结束，收尾会触发房间/频道的隐式退出
	sess.Close()
}

// readLoop is the only reader of the socket. It handles liveness frames
// inline and pushes structured envelopes to the dispatch loop.
func (s *Server) readLoop(sess *Session, msgCh chan<- *Request) {
	limiter := rate.NewLimiter(s.conf.RateLimit, s.conf.RateBurst)

	for {
		mt, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed session=%s err=%v", sess.ID(), err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout session=%s err=%v", sess.ID(), err)
			} else {
				logger.Infof("[WS] read err session=%s err=%v", sess.ID(), err)
			}
			return
		}
		if mt != websocket.TextMessage {
			logger.Debugf("[WS] ignore non-text message from %s", sess.Remote())
			continue
		}

		sess.Touch()

		// 心跳帧不走信封解析
		if len(data) < 10 {
			switch string(data) {
			case PongFrame:
				select {
				case sess.heartCh <- time.Now().UnixNano():
				default:
				}
				continue
			case PingFrame:
				_ = sess.Send([]byte(PongFrame))
				continue
			}
		}

		req, perr := ParseRequest(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Errorf("[WS] parse frame err session=%s err=%v sample=%q", sess.ID(), perr, sample)
			resp := NewReply("", errs.WrongBody, "wrong message: "+string(sample))
			_ = sess.Send(resp.Bytes())
			continue
		}

		if !limiter.Allow() {
			resp := NewReply(req.Id, errs.TooManyRequests, "too much request")
			_ = sess.Send(resp.Bytes())
			continue
		}

		select {
		case msgCh <- req:
		case <-time.After(1 * time.Second):
			resp := NewReply(req.Id, errs.TooManyRequests, "too much request")
			_ = sess.Send(resp.Bytes())
		}
	}
}

// dispatchLoop runs requests strictly one after another, so replies leave in
// request order even when handlers touch shared registries.
func (s *Server) dispatchLoop(sess *Session, msgCh <-chan *Request) {
	for {
		select {
		case <-sess.Done():
			return
		case req := <-msgCh:
			s.router.Dispatch(sess, req)
		}
	}
}

// heartbeatLoop probes idle connections and evicts the unresponsive ones.
func (s *Server) heartbeatLoop(sess *Session) {
	ticker := time.NewTicker(s.conf.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.Done():
			return
		case <-ticker.C:
			if time.Since(sess.LastSeen()) < s.conf.HeartbeatInterval {
				continue
			}
			if err := sess.Send([]byte(PingFrame)); err != nil {
				logger.Infof("[WS] heartbeat send failed session=%s err=%v", sess.ID(), err)
			}
			if !s.waitHeartbeat(sess) {
				logger.Infof("[WS] heartbeat failed session=%s remote=%s", sess.ID(), sess.Remote())
				sess.Close()
				return
			}
		}
	}
}

// waitHeartbeat reports whether the peer proved liveness within the grace
// timeout. Any inbound traffic counts, not just the pong reply. Pongs that
// arrived before the probe went out are discarded.
func (s *Server) waitHeartbeat(sess *Session) bool {
	probeAt := time.Now()
	deadline := time.After(s.conf.HeartbeatGrace)
	for {
		select {
		case <-sess.Done():
			return false
		case t := <-sess.heartCh:
			if t < probeAt.UnixNano() {
				continue
			}
			return true
		case <-deadline:
			return sess.LastSeen().After(probeAt)
		}
	}
}
