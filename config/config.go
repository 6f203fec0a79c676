package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/vultisig/txproof/internal/logging"
	"github.com/vultisig/txproof/internal/metrics"
	"github.com/vultisig/txproof/proof/pkg/rpc"
)

const envPrefix = "TXPROOF"

type TxProofConfig struct {
	LogFormat logging.LogFormat `mapstructure:"log_format" json:"log_format,omitempty" envconfig:"LOG_FORMAT"`
	LogLevel  string            `mapstructure:"log_level" json:"log_level,omitempty" envconfig:"LOG_LEVEL"`
	Server    ServerConfig      `mapstructure:"server" json:"server"`
	Database  DatabaseConfig    `mapstructure:"database" json:"database,omitempty"`
	Redis     RedisConfig       `mapstructure:"redis" json:"redis,omitempty"`
	Metrics   metrics.Config    `mapstructure:"metrics" json:"metrics,omitempty"`
	Proof     ProofConfig       `mapstructure:"proof" json:"proof,omitempty"`
	Worker    WorkerConfig      `mapstructure:"worker" json:"worker,omitempty"`
}

type ServerConfig struct {
	Host  string `mapstructure:"host" json:"host,omitempty"`
	Port  int64  `mapstructure:"port" json:"port,omitempty"`
	Token string `mapstructure:"token" json:"token,omitempty"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type ProofConfig struct {
	Client rpc.Config      `mapstructure:"client" json:"client,omitempty"`
	Proxy  rpc.ProxyConfig `mapstructure:"proxy" json:"proxy,omitempty"`
}

// WorkerConfig sizes the asynq consumer, not the proof polling pool.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency" json:"concurrency,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_format", string(logging.FormatText))
	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("proof.client.timeout", 30*time.Second)
	v.SetDefault("proof.client.retry_max", 0)
	v.SetDefault("proof.client.user_agent", rpc.DefaultUserAgent())
	v.SetDefault("worker.concurrency", 10)
}

func GetConfigure() (*TxProofConfig, error) {
	configName := os.Getenv("VS_TXPROOF_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadConfig(configName)
}

func ReadConfig(configName string) (*TxProofConfig, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg TxProofConfig
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}

// ReadEnvConfig builds the config from TXPROOF_* environment variables only,
// for containers started without a config file.
func ReadEnvConfig() (*TxProofConfig, error) {
	cfg := Default()
	err := envconfig.Process(envPrefix, cfg)
	if err != nil {
		return nil, fmt.Errorf("envconfig.Process: %w", err)
	}
	return cfg, nil
}

func Default() *TxProofConfig {
	return &TxProofConfig{
		LogFormat: logging.FormatText,
		LogLevel:  "info",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Metrics: metrics.DefaultConfig(),
		Proof: ProofConfig{
			Client: rpc.Config{
				Timeout:   30 * time.Second,
				UserAgent: rpc.DefaultUserAgent(),
			},
		},
		Worker: WorkerConfig{
			Concurrency: 10,
		},
	}
}
