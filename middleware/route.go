package middleware

import (
	"github.com/gin-gonic/gin"

	"PPGate/service/gateway"
	"PPGate/service/gateway/handlers"
	"PPGate/service/identity"
)

// InitRoute 挂载 HTTP 路由：握手入口、账号接口与房间列表
func InitRoute(g *gin.Engine, srv *gateway.Server, auth identity.Authenticator, rooms handlers.RoomController) {
	g.GET("/ws", srv.HandleWS)

	api := g.Group("/api")
	api.POST("/login", identity.LoginHandler(auth))
	api.POST("/logout", identity.LogoutHandler(auth))
	rooms.RegisterRoute("room", api)
}

// InitWsRoute 挂载 websocket 方法表
func InitWsRoute(router *gateway.Router, base handlers.Base, rooms handlers.RoomController, channels handlers.ChannelController) {
	base.RegisterWSRoute("base", router)
	rooms.RegisterWSRoute("room", router, LoginCheck)
	channels.RegisterWSRoute("channel", router, LoginCheck)
}
