package global

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds everything the gateway process needs at startup. Values
// come from gateway.yaml when present, otherwise from the defaults below.
type AppConfig struct {
	Server struct {
		Addr  string `mapstructure:"addr"`
		Debug bool   `mapstructure:"debug"`
	} `mapstructure:"server"`

	Websocket struct {
		HeartbeatSec   int  `mapstructure:"heartbeat"`        // 空闲多久后发 ping
		HeartbeatGrace int  `mapstructure:"heartbeatTimeout"` // ping 后等待 pong 的宽限
		TaskTimeoutSec int  `mapstructure:"taskTimeout"`      // 单个请求处理超时
		MaxWaiting     int  `mapstructure:"maxWaiting"`       // 待处理请求队列长度
		SendQueue      int  `mapstructure:"sendQueue"`        // 每连接发送队列长度
		RateLimit      int  `mapstructure:"rateLimit"`        // 每秒请求数
		RateBurst      int  `mapstructure:"rateBurst"`
		UnauthTTLSec   int  `mapstructure:"unauthTTL"` // 未认证连接宽限期
		MaxPerUser     int  `mapstructure:"maxPerUser"`
		EvictOldest    bool `mapstructure:"evictOldest"`
	} `mapstructure:"websocket"`

	Auth struct {
		Secret      string `mapstructure:"secret"`
		TokenExpire int    `mapstructure:"tokenExpire"` // seconds
	} `mapstructure:"auth"`

	Redis struct {
		Enable   bool   `mapstructure:"enable"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"poolSize"`
	} `mapstructure:"redis"`

	Room struct {
		DefaultMaxMember int `mapstructure:"defaultMaxMember"`
	} `mapstructure:"room"`

	Channel struct {
		// 广播是否回送给发送者
		BroadcastEcho bool `mapstructure:"broadcastEcho"`
	} `mapstructure:"channel"`
}

var Conf = defaultConfig()

func defaultConfig() *AppConfig {
	c := &AppConfig{}
	c.Server.Addr = ":8000"
	c.Websocket.HeartbeatSec = 30
	c.Websocket.HeartbeatGrace = 10
	c.Websocket.TaskTimeoutSec = 10
	c.Websocket.MaxWaiting = 64
	c.Websocket.SendQueue = 256
	c.Websocket.RateLimit = 50
	c.Websocket.RateBurst = 100
	c.Websocket.UnauthTTLSec = 60
	c.Websocket.MaxPerUser = 1
	c.Websocket.EvictOldest = true
	c.Auth.Secret = "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="
	c.Auth.TokenExpire = 7200
	c.Redis.Addr = "127.0.0.1:6379"
	c.Redis.PoolSize = 10
	c.Room.DefaultMaxMember = 16
	return c
}

// Load reads gateway.yaml from the working directory or /etc/ppgate and
// overlays it on the defaults. A missing file is not an error.
func Load() error {
	v := viper.New()
	v.SetConfigName("gateway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ppgate")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return v.Unmarshal(Conf)
}

func (c *AppConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.Websocket.HeartbeatSec) * time.Second
}

func (c *AppConfig) HeartbeatGrace() time.Duration {
	return time.Duration(c.Websocket.HeartbeatGrace) * time.Second
}

func (c *AppConfig) TaskTimeout() time.Duration {
	return time.Duration(c.Websocket.TaskTimeoutSec) * time.Second
}

func (c *AppConfig) UnauthTTL() time.Duration {
	return time.Duration(c.Websocket.UnauthTTLSec) * time.Second
}

func (c *AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenExpire) * time.Second
}

func (c *AppConfig) JwtSecret() []byte {
	return []byte(c.Auth.Secret)
}
