package global

import (
	"context"
	"time"

	"NotifyGate/logger"
	"NotifyGate/tools/ids"

	"github.com/sethvargo/go-envconfig"
)

// AppConfig is the full service configuration, loaded from the environment
// once at startup. Defaults are suitable for a local dev stack.
type AppConfig struct {
	NodeID   string `env:"NG_NODE_ID, default=gateway_01"`
	HTTPPort int    `env:"NG_HTTP_PORT, default=8080"`

	JwtSecret string `env:"NG_JWT_SECRET, default=dev-only-secret-change-me"`

	FeedCap       int `env:"NG_FEED_CAP, default=50"`
	SendQueueSize int `env:"NG_SEND_QUEUE, default=256"`
	FanoutWorkers int `env:"NG_FANOUT_WORKERS, default=8"`

	Redis RedisConfig `env:", prefix=NG_REDIS_"`
	Mongo MongoConfig `env:", prefix=NG_MONGO_"`
	Nats  NatsConfig  `env:", prefix=NG_NATS_"`
}

type RedisConfig struct {
	Enabled  bool   `env:"ENABLED, default=false"`
	Addr     string `env:"ADDR, default=127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB, default=0"`
	PoolSize int    `env:"POOL, default=20"`
}

type MongoConfig struct {
	Enabled     bool   `env:"ENABLED, default=false"`
	Uri         string `env:"URI, default=mongodb://localhost:27017"`
	Database    string `env:"DATABASE, default=notifygate"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	MaxPoolSize uint64 `env:"MAX_POOL, default=20"`
}

type NatsConfig struct {
	Enabled bool     `env:"ENABLED, default=false"`
	Servers []string `env:"SERVERS, default=nats://127.0.0.1:4222"`
	Name    string   `env:"NAME, default=notifygate"`
}

var Config AppConfig

// Load populates Config from the environment.
func Load(ctx context.Context) error {
	return envconfig.Process(ctx, &Config)
}

// ConfigIds seeds the snowflake node id from the configured node name.
func ConfigIds() {
	logger.Infof("[config] id generator node=%s", Config.NodeID)
	ids.SetNodeID(nodeNumber(Config.NodeID))
}

func nodeNumber(nodeID string) int64 {
	var h int64
	for _, r := range nodeID {
		h = (h*31 + int64(r)) & 0x3FF
	}
	return h
}

func JwtSecret() []byte { return []byte(Config.JwtSecret) }

const (
	// Redis mirror entries outlive a crashed node by at most this much.
	PresenceMirrorTTL = 5 * time.Minute
)
