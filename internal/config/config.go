// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置（仅供 cmd 入口使用，worker 通过构造函数显式传递）。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Notify        NotifyConfig        `mapstructure:"notify"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// FitsDatabase 是关系数据库的连接串，postgres:// 前缀选择 Postgres，sqlite:/file: 选择 SQLite，其余按 MySQL DSN 处理。
	FitsDatabase string      `mapstructure:"fits_database"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	// IngestTopic 接收山顶写入端发送的 "文件已落盘" 通知。
	IngestTopic string `mapstructure:"ingest_topic"`
	// EventTopic 发布归档事件（diskfile 新增/被替换、导出完成）。
	EventTopic string `mapstructure:"event_topic"`
	GroupID    string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 S3 兼容对象存储的连接配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"aws_access_key"`
	SecretAccessKey string `mapstructure:"aws_secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// StorageConfig 选择 blob store 后端。
type StorageConfig struct {
	StorageRoot  string `mapstructure:"storage_root"`
	UsingS3      bool   `mapstructure:"using_s3"`
	S3BucketName string `mapstructure:"s3_bucket_name"`
	// StagingDir 存放从 S3 拉取或解压缩的临时文件。
	StagingDir string `mapstructure:"staging_dir"`
	// PreviewPrefix 是预览图在 blob store 中的前缀。
	PreviewPrefix string `mapstructure:"preview_prefix"`
	// ReducedCalsDir 是运维上传的已处理定标文件所在的子目录。
	ReducedCalsDir string `mapstructure:"reduced_cals_dir"`
}

// ArchiveConfig 存储归档业务相关的配置。
type ArchiveConfig struct {
	DeferSeconds          int           `mapstructure:"defer_seconds"`
	ExportDestinations    []string      `mapstructure:"export_destinations"`
	ExportGzip            *int          `mapstructure:"export_gzip"`
	UploadAuthCookie      string        `mapstructure:"upload_auth_cookie"`
	MagicDownloadCookie   string        `mapstructure:"magic_download_cookie"`
	FitsOpenResultLimit   int           `mapstructure:"fits_open_result_limit"`
	FitsClosedResultLimit int           `mapstructure:"fits_closed_result_limit"`
	MakePreviews          bool          `mapstructure:"make_previews"`
	PopulateCalCache      bool          `mapstructure:"populate_calcache"`
	CalCacheDepth         int           `mapstructure:"calcache_depth"`
	ExportRetryInterval   time.Duration `mapstructure:"export_retry_interval"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	ExportTimeout         time.Duration `mapstructure:"export_timeout"`
	FitsverifyPath        string        `mapstructure:"fitsverify_path"`
	MDValidatorPath       string        `mapstructure:"mdvalidator_path"`
	ExternalTimeout       time.Duration `mapstructure:"external_timeout"`
	// Demon 为 true 时，致命错误会通过邮件通知运维。
	Demon bool `mapstructure:"demon"`
}

// NotifyConfig 存储 SMTP 通知相关的配置。
type NotifyConfig struct {
	SMTPServer string   `mapstructure:"smtp_server"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
}

// CookieName 是上传与 magic 下载 cookie 的名称。
const (
	UploadCookieName   = "gemini_fits_upload_auth"
	DownloadCookieName = "gemini_fits_authorization"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("kafka.ingest_topic", "ingest-notifications")
	v.SetDefault("kafka.event_topic", "archive-events")
	v.SetDefault("kafka.group_id", "fitsstore-go-ingest")
	v.SetDefault("elasticsearch.index_name", "fits-headers")
	v.SetDefault("storage.storage_root", "/sci/dataflow")
	v.SetDefault("storage.staging_dir", "/data/z_staging")
	v.SetDefault("storage.preview_prefix", "previews")
	v.SetDefault("storage.reduced_cals_dir", "reduced_cals")
	v.SetDefault("archive.defer_seconds", 4)
	v.SetDefault("archive.fits_open_result_limit", 500)
	v.SetDefault("archive.fits_closed_result_limit", 10000)
	v.SetDefault("archive.calcache_depth", 5)
	v.SetDefault("archive.export_retry_interval", 6*time.Hour)
	v.SetDefault("archive.poll_interval", 5*time.Second)
	v.SetDefault("archive.export_timeout", 10*time.Minute)
	v.SetDefault("archive.external_timeout", 60*time.Second)
}

// Load 从指定路径读取 YAML 文件，叠加 FITSSTORE_* 环境变量后返回配置。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("fitsstore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.FitsDatabase == "" {
		return fmt.Errorf("database.fits_database is required")
	}
	if c.Storage.UsingS3 && c.Storage.S3BucketName == "" {
		return fmt.Errorf("storage.s3_bucket_name is required when storage.using_s3 is set")
	}
	if c.Archive.ExportGzip != nil && (*c.Archive.ExportGzip < -1 || *c.Archive.ExportGzip > 9) {
		return fmt.Errorf("archive.export_gzip must be a gzip level between -1 and 9")
	}
	if c.Archive.CalCacheDepth <= 0 {
		return fmt.Errorf("archive.calcache_depth must be positive")
	}
	return nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
