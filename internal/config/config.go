package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Enabled   bool
	URL       string
	Addr      string
	Password  string
	DB        int
	Stream    string
	Group     string
	Consumer  string
	WarmupTTL time.Duration
}

type StorageConfig struct {
	BasePath        string
	MaxSizeGB       float64
	HotCacheTTLDays int
	BaseURL         string
	SigningSecret   string
	SignedURLTTL    time.Duration
	UsageRefresh    time.Duration
}

type ProcessorConfig struct {
	Workers         int
	MaxUploadMB     int
	WebP            bool
	ProgressiveJPEG bool
	JPEGQuality     int
	WebPQuality     int
}

type MonitorConfig struct {
	Interval      time.Duration
	HistorySize   int
	RequestWindow time.Duration
}

type EvictionConfig struct {
	Interval    time.Duration
	MinSweepGap time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Processor        ProcessorConfig
	Monitor          MonitorConfig
	Eviction         EvictionConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func (c StorageConfig) MaxStorageBytes() int64 {
	return int64(c.MaxSizeGB * float64(1<<30))
}

func (c StorageConfig) HotCacheTTL() time.Duration {
	return time.Duration(c.HotCacheTTLDays) * 24 * time.Hour
}

func (c ProcessorConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func Load() (*AppConfig, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("LUMEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage.basepath is required")
	}
	if c.Storage.MaxSizeGB <= 0 {
		return fmt.Errorf("storage.maxsizegb must be positive, got %v", c.Storage.MaxSizeGB)
	}
	if c.Processor.Workers < 1 {
		return fmt.Errorf("processor.workers must be at least 1, got %d", c.Processor.Workers)
	}
	if c.Monitor.HistorySize < 1 {
		return fmt.Errorf("monitor.historysize must be at least 1, got %d", c.Monitor.HistorySize)
	}
	return nil
}

// Watch re-reads the config file on change and hands the new log level to fn.
// Every other setting stays as resolved at startup.
func Watch(v *viper.Viper, fn func(level string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		fn(v.GetString("logging.level"))
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logging.level", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "media:warmup")
	v.SetDefault("redis.group", "warmup-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.warmupttl", "10m")

	v.SetDefault("storage.basepath", "./storage")
	v.SetDefault("storage.maxsizegb", 40)
	v.SetDefault("storage.hotcachettldays", 7)
	v.SetDefault("storage.baseurl", "/media")
	v.SetDefault("storage.signingsecret", "")
	v.SetDefault("storage.signedurlttl", "24h")
	v.SetDefault("storage.usagerefresh", "5m")

	v.SetDefault("processor.workers", 3)
	v.SetDefault("processor.maxuploadmb", 50)
	v.SetDefault("processor.webp", true)
	v.SetDefault("processor.progressivejpeg", true)
	v.SetDefault("processor.jpegquality", 88)
	v.SetDefault("processor.webpquality", 85)

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.historysize", 1000)
	v.SetDefault("monitor.requestwindow", "5m")

	v.SetDefault("eviction.interval", "1h")
	v.SetDefault("eviction.minsweepgap", "6h")
}
