package config

import "time"

type Config struct {
	Ops       OpsConfig       `mapstructure:"ops"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// OpsConfig configures the operational HTTP server (health, status,
// metrics)
type OpsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type CatalogConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type PipelineConfig struct {
	Categories         []string      `mapstructure:"categories"`
	ItemsPerPage       int           `mapstructure:"items_per_page"`
	FallbackTotalItems int           `mapstructure:"fallback_total_items"`
	PageBatchSize      int           `mapstructure:"page_batch_size"`
	IdBatchSize        int           `mapstructure:"id_batch_size"`
	MaxRetryAttempts   int           `mapstructure:"max_retry_attempts"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	MaxBatchAttempts   int           `mapstructure:"max_batch_attempts"`
	PartitionMargin    time.Duration `mapstructure:"partition_margin"`
	WorkerMargin       time.Duration `mapstructure:"worker_margin"`
}

type QueueConfig struct {
	URL       string `mapstructure:"url"`
	PageQueue string `mapstructure:"page_queue"`
	IdQueue   string `mapstructure:"id_queue"`
	Prefetch  int    `mapstructure:"prefetch"`
}

type BlobConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type WatermarkConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ProxyConfig selects how outbound requests reach the catalog. Mode
// direct goes straight out, static rotates over a fixed url list,
// gateway leases ephemeral endpoints from a provisioning service.
type ProxyConfig struct {
	Mode         string   `mapstructure:"mode"`
	GatewayURL   string   `mapstructure:"gateway_url"`
	AccessKey    string   `mapstructure:"access_key"`
	AccessSecret string   `mapstructure:"access_secret"`
	Regions      []string `mapstructure:"regions"`
	URLs         []string `mapstructure:"urls"`
}

type WorkerConfig struct {
	Workers         int           `mapstructure:"workers"`
	HandleTimeout   time.Duration `mapstructure:"handle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}
