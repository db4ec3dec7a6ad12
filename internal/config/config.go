// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	MinIO  MinIOConfig  `mapstructure:"minio"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`
	BasePath      string `mapstructure:"base_path"`
	UploadDir     string `mapstructure:"upload_dir"`
	ChunkDir      string `mapstructure:"chunk_dir"`
	MaxChunkSize  string `mapstructure:"max_chunk_size"`
	MaxSingleSize string `mapstructure:"max_single_size"`
	SeedDir       string `mapstructure:"seed_dir"`
}

// MaxChunkBytes 返回单个分片允许的最大字节数。
func (c ServerConfig) MaxChunkBytes() int64 {
	return mustBytes(c.MaxChunkSize)
}

// MaxSingleBytes 返回直传文件允许的最大字节数。
func (c ServerConfig) MaxSingleBytes() int64 {
	return mustBytes(c.MaxSingleSize)
}

// ClientConfig 存储上传客户端的配置。
type ClientConfig struct {
	ServerURL           string        `mapstructure:"server_url"`
	ChunkSize           string        `mapstructure:"chunk_size"`
	ParallelLimit       int           `mapstructure:"parallel_limit"`
	SingleFileThreshold string        `mapstructure:"single_file_threshold"`
	MaxTotalSize        string        `mapstructure:"max_total_size"`
	MaxFiles            int           `mapstructure:"max_files"`
	AcceptedTypes       string        `mapstructure:"accepted_types"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	RetryMax            int           `mapstructure:"retry_max"`
	ConfirmAttempts     int           `mapstructure:"confirm_attempts"`
	ConfirmInterval     time.Duration `mapstructure:"confirm_interval"`
	FileIDMode          string        `mapstructure:"file_id_mode"`
}

// ChunkBytes 返回客户端分片大小。
func (c ClientConfig) ChunkBytes() int64 { return mustBytes(c.ChunkSize) }

// SingleFileThresholdBytes 返回直传与分片上传的分界大小。
func (c ClientConfig) SingleFileThresholdBytes() int64 { return mustBytes(c.SingleFileThreshold) }

// MaxTotalBytes 返回一次上传允许的总大小，0 表示不限制。
func (c ClientConfig) MaxTotalBytes() int64 { return mustBytes(c.MaxTotalSize) }

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RedisConfig 存储 Redis 的配置，启用后用于合并租约和任务重试计数。
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.chunk_dir", "uploads-chunks")
	v.SetDefault("server.max_chunk_size", "5MiB")
	v.SetDefault("server.max_single_size", "5MiB")
	v.SetDefault("server.seed_dir", "")

	v.SetDefault("client.server_url", "http://localhost:3000/api")
	v.SetDefault("client.chunk_size", "5MiB")
	v.SetDefault("client.parallel_limit", 3)
	v.SetDefault("client.single_file_threshold", "5MiB")
	v.SetDefault("client.max_total_size", "0")
	v.SetDefault("client.max_files", 0)
	v.SetDefault("client.accepted_types", "")
	v.SetDefault("client.request_timeout", 2*time.Minute)
	v.SetDefault("client.retry_max", 2)
	v.SetDefault("client.confirm_attempts", 5)
	v.SetDefault("client.confirm_interval", 500*time.Millisecond)
	v.SetDefault("client.file_id_mode", "metadata")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "")

	// 每个键都需要默认值，AutomaticEnv 才会在 Unmarshal 时读到对应的环境变量。
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lease_ttl", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chunkvault-artifacts")
	v.SetDefault("kafka.group_id", "chunkvault-archiver")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "")
	v.SetDefault("minio.prefix", "artifacts")
}

// Load 从指定路径读取 YAML 配置（路径为空时只使用默认值），并叠加 CHUNKVAULT_ 前缀的环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHUNKVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Init 初始化配置加载，失败时直接 panic，结果写入 Conf。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

func (c Config) validate() error {
	sizes := map[string]string{
		"server.max_chunk_size":        c.Server.MaxChunkSize,
		"server.max_single_size":       c.Server.MaxSingleSize,
		"client.chunk_size":            c.Client.ChunkSize,
		"client.single_file_threshold": c.Client.SingleFileThreshold,
		"client.max_total_size":        c.Client.MaxTotalSize,
	}
	for key, raw := range sizes {
		if _, err := ParseBytes(raw); err != nil {
			return fmt.Errorf("配置项 %s 无效: %w", key, err)
		}
	}
	if c.Client.ChunkBytes() <= 0 {
		return fmt.Errorf("配置项 client.chunk_size 必须大于 0")
	}
	if c.Client.ParallelLimit <= 0 {
		return fmt.Errorf("配置项 client.parallel_limit 必须大于 0")
	}
	switch c.Client.FileIDMode {
	case "metadata", "content":
	default:
		return fmt.Errorf("配置项 client.file_id_mode 无效: %q", c.Client.FileIDMode)
	}
	return nil
}

// ParseBytes 解析 "5MiB"、"512k"、"1048576" 这类大小字符串，空字符串视为 0。
func ParseBytes(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return units.RAMInBytes(raw)
}

func mustBytes(raw string) int64 {
	n, err := ParseBytes(raw)
	if err != nil {
		return 0
	}
	return n
}
