package handlers

import (
	"strings"

	"PPGate/service/channel"
	"PPGate/service/gateway"
	"PPGate/tools/errs"
)

// ChannelController 频道订阅接口
type ChannelController struct {
	Bus *channel.Bus
}

// SubHandle 订阅一个或多个频道
// params: [name: string, ...]
func (c ChannelController) SubHandle(w *gateway.Context) {
	if w.ParamCount() == 0 {
		w.Fail(errs.ErrWrongBody.WithDetail("without params"))
		return
	}
	for i := 0; i < w.ParamCount(); i++ {
		name, err := w.ParamString(i)
		if err != nil {
			w.Fail(err)
			return
		}
		c.Bus.Subscribe(w.Sess, name)
	}
	w.Result(errs.Success, "success")
}

// UnsubHandle 退订一个或多个频道
// params: [name: string, ...]
func (c ChannelController) UnsubHandle(w *gateway.Context) {
	if w.ParamCount() == 0 {
		w.Fail(errs.ErrWrongBody.WithDetail("without params"))
		return
	}
	var failedKeys []string
	for i := 0; i < w.ParamCount(); i++ {
		name, err := w.ParamString(i)
		if err != nil {
			w.Fail(err)
			return
		}
		if !c.Bus.Exist(name) {
			failedKeys = append(failedKeys, name)
			continue
		}
		c.Bus.Unsubscribe(w.Sess, name)
	}
	if len(failedKeys) > 0 {
		w.Fail(errs.ErrChannelNotFound.WithDetail(strings.Join(failedKeys, ",")))
		return
	}
	w.Result(errs.Success, "success")
}

// Broadcast 向频道广播消息
// params: [name: string, msg: any]
func (c ChannelController) Broadcast(w *gateway.Context) {
	name, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	msg, err := w.ParamRaw(1)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := c.Bus.Broadcast(w.Sess, name, msg); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, "success")
}

func (c ChannelController) RegisterWSRoute(route string, router *gateway.Router, middles ...gateway.HandleFunc) {
	group := router.Group(route)
	group.Use(middles...)
	group.Register("subscribe", c.SubHandle)
	group.Register("unsubscribe", c.UnsubHandle)
	group.Register("broadcast", c.Broadcast)
}
