package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig      `mapstructure:"app"`
	Server  ServerConfig   `mapstructure:"server"`
	Log     LogConfig      `mapstructure:"log"`
	DB      DBConfig       `mapstructure:"db"`
	Cron    CronConfig     `mapstructure:"cron"`
	Indexer IndexerConfig  `mapstructure:"indexer"`
	Poller  PollerConfig   `mapstructure:"poller"`
	Prices  PricesConfig   `mapstructure:"prices"`
	Chain   ChainConfig    `mapstructure:"chain"`
	Curve   CurveConfig    `mapstructure:"curve"`
	Sync    SyncConfig     `mapstructure:"sync"`
	Markets []MarketConfig `mapstructure:"markets"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// AllowedOrigins gates CORS and websocket origins. Empty allows none.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Refresh string `mapstructure:"refresh"`
	Prices  string `mapstructure:"prices"`
}

type IndexerConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// PollerConfig bounds read-after-write polls. MaxAttempts and Timeout of
// zero poll until the indexer catches up or the caller goes away.
type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PricesConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ReceiptInterval time.Duration `mapstructure:"receipt_interval"`
}

type CurveConfig struct {
	Samples      int     `mapstructure:"samples"`
	PaddingRatio float64 `mapstructure:"padding_ratio"`
}

type SyncConfig struct {
	PersistRaw bool `mapstructure:"persist_raw"`
	KeepRaw    int  `mapstructure:"keep_raw"`
}

type MarketConfig struct {
	ID              string               `mapstructure:"id"`
	PegTokenAddress string               `mapstructure:"peg_token_address"`
	PriceChain      string               `mapstructure:"price_chain"`
	AuctionHouses   []AuctionHouseConfig `mapstructure:"auction_houses"`
}

type AuctionHouseConfig struct {
	Address  string `mapstructure:"address"`
	MidPoint int64  `mapstructure:"mid_point"`
	Duration int64  `mapstructure:"duration"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.enabled", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.refresh", "@every 30s")
	v.SetDefault("cron.prices", "@every 1m")
	v.SetDefault("indexer.base_url", "http://localhost:3000")
	v.SetDefault("indexer.timeout", "15s")
	v.SetDefault("indexer.rate_limit", 10.0)
	v.SetDefault("indexer.burst", 5)
	v.SetDefault("poller.interval", "2s")
	v.SetDefault("poller.max_attempts", 0)
	v.SetDefault("poller.timeout", "0s")
	v.SetDefault("prices.base_url", "https://coins.llama.fi")
	v.SetDefault("prices.timeout", "10s")
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.receipt_interval", "2s")
	v.SetDefault("curve.samples", 200)
	v.SetDefault("curve.padding_ratio", 0.2)
	v.SetDefault("sync.persist_raw", false)
	v.SetDefault("sync.keep_raw", 50)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
