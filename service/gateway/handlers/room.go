package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"PPGate/service/gateway"
	"PPGate/service/room"
	"PPGate/tools/decode"
	"PPGate/tools/errs"
)

// RoomController 房间相关接口
type RoomController struct {
	Rooms *room.Registry
}

type createResp struct {
	RoomID string          `json:"roomId"`
	Mates  []room.MateInfo `json:"mates"`
}

// CreateRoom 创建房间
// params: [config: room.Config]
func (r RoomController) CreateRoom(w *gateway.Context) {
	raw, err := w.ParamRaw(0)
	if err != nil {
		w.Fail(err)
		return
	}
	conf, err := decode.DecodeRaw[room.Config](raw)
	if err != nil {
		w.Fail(errs.ErrWrongBody.WithDetail(err.Error()))
		return
	}
	rm, err := r.Rooms.Create(w.Sess, conf)
	if err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, createResp{RoomID: rm.ID(), Mates: rm.Mates()})
}

// GetInRoom 进入房间
// params: [roomId: string, password?: string]
func (r RoomController) GetInRoom(w *gateway.Context) {
	roomID, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	var password string
	if w.ParamCount() > 1 {
		password, err = w.ParamString(1)
		if err != nil {
			w.Fail(err)
			return
		}
	}
	mates, err := r.Rooms.Join(w.Sess, roomID, password)
	if err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, mates)
}

// GetOutRoom 退出当前房间
// params: [roomId?: string]
func (r RoomController) GetOutRoom(w *gateway.Context) {
	cur := w.Sess.Room()
	if cur == "" {
		w.Fail(errs.ErrRoomNotFound.WithDetail("not in any room"))
		return
	}
	if w.ParamCount() > 0 {
		roomID, err := w.ParamString(0)
		if err != nil {
			w.Fail(err)
			return
		}
		if roomID != cur {
			w.Fail(errs.ErrRoomNotFound.WithDetail("not a member of that room"))
			return
		}
	}
	r.Rooms.Leave(w.Sess)
	w.Result(errs.Success, "success")
}

// CloseRoom 关闭房间，仅房主
// params: [roomId: string]
func (r RoomController) CloseRoom(w *gateway.Context) {
	roomID, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := r.Rooms.Close(w.Sess, roomID); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, "success")
}

// ForbiddenRoom 设置房间禁入，仅房主
// params: [roomId: string, stat: bool]
func (r RoomController) ForbiddenRoom(w *gateway.Context) {
	roomID, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	stat, err := w.ParamBool(1)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := r.Rooms.Forbid(w.Sess, roomID, stat); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, "success")
}

// RoomMate 获取房间成员
// params: [roomId: string]
func (r RoomController) RoomMate(w *gateway.Context) {
	roomID, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	mates, err := r.Rooms.Mates(w.Sess, roomID)
	if err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, mates)
}

// RoomMessage 发送房间消息
// params: [roomId: string, message: string]
func (r RoomController) RoomMessage(w *gateway.Context) {
	roomID, err := w.ParamString(0)
	if err != nil {
		w.Fail(err)
		return
	}
	message, err := w.ParamString(1)
	if err != nil {
		w.Fail(err)
		return
	}
	if err := r.Rooms.Message(w.Sess, roomID, message); err != nil {
		w.Fail(err)
		return
	}
	w.Result(errs.Success, "success")
}

// ListRoom 房间列表接口
func (r RoomController) ListRoom(c *gin.Context) {
	type respInfo struct {
		Total int         `json:"total"`
		Rooms []room.Info `json:"rooms"`
	}

	pageNum, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || pageNum < 1 {
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"code": errs.WrongBody, "data": "invalid page"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || pageSize < 1 {
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"code": errs.WrongBody, "data": "invalid size"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": errs.Success,
		"data": respInfo{
			Total: r.Rooms.Count(),
			Rooms: r.Rooms.List(pageNum, pageSize),
		},
	})
}

func (r RoomController) RegisterRoute(route string, g *gin.RouterGroup) {
	g.Group(route).Handle("GET", "list", r.ListRoom)
}

func (r RoomController) RegisterWSRoute(route string, router *gateway.Router, middles ...gateway.HandleFunc) {
	group := router.Group(route)
	group.Use(middles...)
	group.Register("create", r.CreateRoom)
	group.Register("in", r.GetInRoom)
	group.Register("out", r.GetOutRoom)
	group.Register("close", r.CloseRoom)
	group.Register("forbidden", r.ForbiddenRoom)
	group.Register("message", r.RoomMessage)
	group.Register("roommate", r.RoomMate)
	group.Register("mates", r.RoomMate)
}
