package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/tools/errs"
)

// HandleFunc is one step of a method's handler chain; middleware and the
// final handler share the signature.
type HandleFunc func(w *Context)

type handlerChain []HandleFunc

// Router maps dotted method names to handler chains. The table is built at
// startup and read-only afterwards.
type Router struct {
	tasks       map[string]handlerChain
	taskTimeout time.Duration
}

func NewRouter(taskTimeout time.Duration) *Router {
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Second
	}
	return &Router{
		tasks:       make(map[string]handlerChain),
		taskTimeout: taskTimeout,
	}
}

// Register binds a handler chain to a method name; a duplicate key is a
// programming error and aborts startup.
func (r *Router) Register(key string, f ...HandleFunc) {
	if _, flag := r.tasks[key]; flag {
		logger.Fatalf("duplicate register ws handler: %s", key)
		return
	}
	r.tasks[key] = f
}

// Methods lists the registered method names, for the debug startup dump.
func (r *Router) Methods() []string {
	out := make([]string, 0, len(r.tasks))
	for k := range r.tasks {
		out = append(out, k)
	}
	return out
}

// Group groups method registrations under a dotted prefix with shared
// middleware.
type Group struct {
	router  *Router
	node    string
	middles []HandleFunc
}

func (r *Router) Group(name string, f ...HandleFunc) *Group {
	return &Group{router: r, node: name, middles: f}
}

// Use 添加中间件
func (g *Group) Use(f ...HandleFunc) {
	g.middles = append(g.middles, f...)
}

// Group 创建一个子组
func (g *Group) Group(name string, f ...HandleFunc) *Group {
	key := name
	if g.node != "" {
		key = fmt.Sprintf("%s.%s", g.node, name)
	}
	return &Group{
		router:  g.router,
		node:    key,
		middles: append(append([]HandleFunc{}, g.middles...), f...),
	}
}

// Register 在组上创建处理函数
func (g *Group) Register(route string, f ...HandleFunc) {
	key := route
	if g.node != "" {
		key = fmt.Sprintf("%s.%s", g.node, route)
	}
	g.router.Register(key, append(append([]HandleFunc{}, g.middles...), f...)...)
}

// Context carries one request through its handler chain.
type Context struct {
	Sess *Session
	Req  *Request

	attribute map[string]interface{}

	statusCode int
	response   interface{}
	isAbort    bool
	withResult bool
	returnOnce *sync.Once
}

func newContext(sess *Session, req *Request) *Context {
	return &Context{
		Sess:       sess,
		Req:        req,
		attribute:  make(map[string]interface{}),
		returnOnce: &sync.Once{},
	}
}

// Result sets the reply and stops the rest of the chain.
func (w *Context) Result(code int, data interface{}) {
	w.statusCode = code
	w.response = data
	w.withResult = true
	w.isAbort = true
}

// Fail maps an error onto the reply envelope.
func (w *Context) Fail(err error) {
	w.Result(errs.Code(err), errs.Message(err))
}

// Abort 中断处理
func (w *Context) Abort() {
	w.isAbort = true
}

// Get 获取上下文变量
func (w *Context) Get(k string) (interface{}, bool) {
	attr, exist := w.attribute[k]
	return attr, exist
}

// Set 设置上下文变量
func (w *Context) Set(k string, v interface{}) {
	w.attribute[k] = v
}

// returnData emits the reply exactly once, guarding against a late handler
// racing a timeout reply.
func (w *Context) returnData(v []byte) {
	w.returnOnce.Do(func() {
		if v != nil {
			_ = w.Sess.Send(v)
			return
		}
		if !w.withResult {
			return
		}
		resp := NewReply(w.Req.Id, w.statusCode, w.response)
		_ = w.Sess.Send(resp.Bytes())
	})
}

// Dispatch runs one request to completion and emits its reply. Callers run
// it sequentially per connection, which is what keeps responses in request
// order; requests from different connections never meet here.
func (r *Router) Dispatch(sess *Session, req *Request) {
	w := newContext(sess, req)

	chain, ok := r.tasks[req.Method]
	if !ok {
		w.Result(errs.MethodNotFound, "method not found: "+req.Method)
		handleLog(errs.MethodNotFound, sess.Remote(), req.Method, "not found", 0)
		w.returnData(nil)
		return
	}

	doneCtx, done := context.WithCancel(context.Background())
	start := time.Now()
	go func() {
		defer done()
		defer func() {
			if err := recover(); err != nil {
				logger.Errorf("[WS] panic from handler %s: %v", req.Method, err)
				w.Result(errs.Unknown, "resolve failed")
			}
		}()
		for _, f := range chain {
			if w.isAbort {
				break
			}
			f(w)
		}
	}()

	select {
	case <-doneCtx.Done():
		cost := time.Since(start)
		logInfo := "success"
		if w.statusCode != errs.Success {
			logInfo = fmt.Sprintf("%v", w.response)
		}
		handleLog(w.statusCode, sess.Remote(), req.Method, logInfo, cost)
		w.returnData(nil)
	case <-time.After(r.taskTimeout):
		handleLog(errs.Timeout, sess.Remote(), req.Method, "timeout", r.taskTimeout)
		resp := NewReply(req.Id, errs.Timeout, "timeout")
		w.returnData(resp.Bytes())
	}
}

// ws格式化日志
func handleLog(code int, remote string, method string, data string, cost time.Duration) {
	info := fmt.Sprintf("%5d | %8s | %20s | %14s | %v", code, cost.String(), remote, method, data)
	if code == errs.Success {
		logger.Infof("[WS] %s", info)
	} else {
		logger.Errorf("[WS] %s", info)
	}
}
