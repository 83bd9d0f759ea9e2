package conf

import "time"

// Bootstrap 服务启动配置，对应 configs/config.yaml
type Bootstrap struct {
	Server       *Server       `json:"server"`
	Data         *Data         `json:"data"`
	Gamification *Gamification `json:"gamification"`
	Trace        *Trace        `json:"trace"`
}

// Server 传输层配置
type Server struct {
	Http *Server_HTTP `json:"http"`
	Grpc *Server_GRPC `json:"grpc"`
}

type Server_HTTP struct {
	Network        string `json:"network"`
	Addr           string `json:"addr"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (s *Server_HTTP) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

type Server_GRPC struct {
	Network        string `json:"network"`
	Addr           string `json:"addr"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (s *Server_GRPC) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// Data 存储层配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
}

// Data_Database 关系型存储配置
//
// Driver 取值 mysql / postgres / sqlite；Isolation 取值 serializable / repeatable_read /
// read_committed，留空则使用驱动默认隔离级别（行锁依旧生效）。
type Data_Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	Isolation   string `json:"isolation"`
	TxTimeoutMs int    `json:"tx_timeout_ms"`
	TxRetries   int    `json:"tx_retries"`
	AutoMigrate bool   `json:"auto_migrate"`
}

func (d *Data_Database) TxTimeout() time.Duration {
	if d == nil || d.TxTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.TxTimeoutMs) * time.Millisecond
}

// Data_Redis 远程缓存配置，Addr 为空表示不使用 Redis
type Data_Redis struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	DialTimeoutMs int    `json:"dial_timeout_ms"`
}

func (r *Data_Redis) DialTimeout() time.Duration {
	if r == nil || r.DialTimeoutMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

// Gamification 奖励引擎运行参数
type Gamification struct {
	Timezone             string  `json:"timezone"`
	CacheTTLSeconds      int     `json:"cache_ttl_seconds"`
	MemoryCacheCapacity  int     `json:"memory_cache_capacity"`
	RateLimitBackend     string  `json:"rate_limit_backend"`
	SweepIntervalSeconds int     `json:"sweep_interval_seconds"`
	Workers              int     `json:"workers"`
	JwtSecret            string  `json:"jwt_secret"`
	SnowflakeNode        int64   `json:"snowflake_node"`
	Notify               *Notify `json:"notify"`
}

func (g *Gamification) CacheTTL() time.Duration {
	if g == nil || g.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return seconds(g.CacheTTLSeconds)
}

func (g *Gamification) SweepInterval() time.Duration {
	if g == nil || g.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return seconds(g.SweepIntervalSeconds)
}

// Location 计算自然日边界所用的时区
func (g *Gamification) Location() *time.Location {
	if g == nil || g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Notify 下游通知配置
type Notify struct {
	RedisChannel   string `json:"redis_channel"`
	SendgridAPIKey string `json:"sendgrid_api_key"`
	FromEmail      string `json:"from_email"`
	FromName       string `json:"from_name"`
}

// Trace 链路追踪配置
type Trace struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"`
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
