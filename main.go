package main

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"PPGate/global"
	"PPGate/logger"
	"PPGate/middleware"
	"PPGate/service/channel"
	"PPGate/service/gateway"
	"PPGate/service/gateway/handlers"
	"PPGate/service/identity"
	"PPGate/service/room"
	rds "PPGate/service/storage/redis"
)

func buildAuthenticator() identity.Authenticator {
	opts := identity.DefaultOptions(global.Conf.JwtSecret())
	opts.TTL = global.Conf.TokenTTL()

	if global.Conf.Redis.Enable {
		if err := rds.Init(rds.Config{
			Addr:     global.Conf.Redis.Addr,
			Password: global.Conf.Redis.Password,
			DB:       global.Conf.Redis.DB,
			PoolSize: global.Conf.Redis.PoolSize,
		}); err != nil {
			logger.Fatalf("redis init failed: %v", err)
		}
		return identity.NewRedisAuthenticator(rds.Client(), opts)
	}
	return identity.NewMemoryAuthenticator(opts)
}

func main() {
	if err := global.Load(); err != nil {
		logger.Fatalf("load config failed: %v", err)
	}
	if !global.Conf.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	auth := buildAuthenticator()

	mgr := gateway.NewManager(gateway.ManagerConf{
		UnauthTTL:   global.Conf.UnauthTTL(),
		MaxPerUser:  global.Conf.Websocket.MaxPerUser,
		EvictOldest: global.Conf.Websocket.EvictOldest,
	})
	router := gateway.NewRouter(global.Conf.TaskTimeout())
	srv := gateway.NewServer(gateway.Config{
		HeartbeatInterval: global.Conf.HeartbeatInterval(),
		HeartbeatGrace:    global.Conf.HeartbeatGrace(),
		MaxWaiting:        global.Conf.Websocket.MaxWaiting,
		SendQueue:         global.Conf.Websocket.SendQueue,
		RateLimit:         rate.Limit(global.Conf.Websocket.RateLimit),
		RateBurst:         global.Conf.Websocket.RateBurst,
	}, router, mgr)

	rooms := room.NewRegistry(room.Conf{DefaultMaxMember: global.Conf.Room.DefaultMaxMember})
	bus := channel.NewBus(global.Conf.Channel.BroadcastEcho)

	base := handlers.Base{Auth: auth, Mgr: mgr}
	roomCtl := handlers.RoomController{Rooms: rooms}
	chanCtl := handlers.ChannelController{Bus: bus}

	middleware.InitWsRoute(router, base, roomCtl, chanCtl)

	g := gin.New()
	g.Use(gin.Recovery())
	middleware.InitRoute(g, srv, auth, roomCtl)

	logger.Infof("ppgate listening on %s", global.Conf.Server.Addr)
	if err := g.Run(global.Conf.Server.Addr); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
