package handlers

import (
	"context"
	"time"

	"PPGate/service/gateway"
	"PPGate/service/identity"
	"PPGate/tools/errs"
)

// Base 基础接口：登录、认证、心跳与诊断
type Base struct {
	Auth identity.Authenticator
	Mgr  *gateway.Manager
}

func (b Base) Hello(w *gateway.Context) {
	w.Result(errs.Success, "hello, this is ppgate")
}

func (b Base) ServerTime(w *gateway.Context) {
	w.Result(errs.Success, time.Now().UnixMilli())
}

// TestGet 回显请求参数，联调用
func (b Base) TestGet(w *gateway.Context) {
	w.Result(errs.Success, w.Req.Params)
}

// Ping 应用层回显，参数为客户端时间戳
func (b Base) Ping(w *gateway.Context) {
	dt, err := w.ParamInt(0)
	if err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, dt)
}

type loginResp struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Login 账号密码登录
// params: [username: string, password: string]
func (b Base) Login(w *gateway.Context) {
	username, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	password, err := w.ParamString(1)
	if err != nil {
		w.Fail(err)
		return
	}
	ident, token, err := b.Auth.Login(context.Background(), username, password)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := b.bind(w.Sess, ident); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, loginResp{Token: token, UserID: ident.UserID, Username: ident.Username})
}

// AuthToken 令牌认证
// params: [token: string]
func (b Base) AuthToken(w *gateway.Context) {
	token, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	ident, err := b.Auth.Verify(context.Background(), token)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := b.bind(w.Sess, ident); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, identity.Identity{UserID: ident.UserID, Username: ident.Username})
}

func (b Base) bind(sess *gateway.Session, ident identity.Identity) error {
	if err := sess.Bind(ident); err != nil {
		return err
	}
	return b.Mgr.Bind(sess)
}

func (b Base) RegisterWSRoute(route string, r *gateway.Router) {
	group := r.Group(route)
	group.Register("ping", b.Ping)
	group.Register("login", b.Login)
	group.Register("auth", b.AuthToken)

	r.Register("hello", b.Hello)
	r.Register("time", b.ServerTime)
	r.Register("test.get", b.TestGet)
}
