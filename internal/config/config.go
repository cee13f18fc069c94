// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Index         IndexConfig         `mapstructure:"index"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// MaxUploadMB 限制单个上传文件的大小。
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
	// MaxAttempts 是同一文档任务失败后允许的最大重试次数。
	MaxAttempts int64 `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与兜底回复文案（可选）。
type LLMPromptConfig struct {
	Rules             string `mapstructure:"rules"`
	NoResultText      string `mapstructure:"no_result_text"`
	EmptyDocumentText string `mapstructure:"empty_document_text"`
}

// IndexConfig 选择向量索引的后端实现。
type IndexConfig struct {
	// Backend 取值 memory | sqlite | pgvector | elasticsearch。
	Backend     string `mapstructure:"backend"`
	Dimensions  int    `mapstructure:"dimensions"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// RAGConfig 存储切块与检索参数。
type RAGConfig struct {
	ChunkSize        int     `mapstructure:"chunk_size"`
	ChunkOverlap     int     `mapstructure:"chunk_overlap"`
	MaxResults       int     `mapstructure:"max_results"`
	MinScore         float64 `mapstructure:"min_score"`
	EmbedConcurrency int     `mapstructure:"embed_concurrency"`
}

// IngestionConfig 控制上传后是同步入库还是经 Kafka 异步入库。
type IngestionConfig struct {
	Async bool `mapstructure:"async"`
}

// ConversationConfig 控制对话记忆窗口。
type ConversationConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
	TTLHours    int `mapstructure:"ttl_hours"`
}

// Init 从指定路径读取 YAML 文件并解析到 Conf 变量中，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置文件并叠加默认值与 DOCWHISPER_* 环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DOCWHISPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.Index.Dimensions == 0 {
		cfg.Index.Dimensions = cfg.Embedding.Dimensions
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-ingestion")
	v.SetDefault("kafka.group_id", "doc-whisper-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.index_name", "document_chunks")
	v.SetDefault("minio.bucket_name", "documents")
	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.sqlite_path", "./data/index.db")
	v.SetDefault("rag.chunk_size", 500)
	v.SetDefault("rag.chunk_overlap", 50)
	v.SetDefault("rag.max_results", 5)
	v.SetDefault("rag.min_score", 0.0)
	v.SetDefault("rag.embed_concurrency", 4)
	v.SetDefault("ingestion.async", false)
	v.SetDefault("conversation.max_messages", 10)
	v.SetDefault("conversation.ttl_hours", 168)
}

func (c Config) validate() error {
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap 必须满足 0 <= overlap < chunk_size, 当前 %d/%d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Index.Dimensions <= 0 {
		return fmt.Errorf("index.dimensions 必须为正数 (或配置 embedding.dimensions)")
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.Dimensions != c.Index.Dimensions {
		return fmt.Errorf("embedding.dimensions (%d) 与 index.dimensions (%d) 不一致", c.Embedding.Dimensions, c.Index.Dimensions)
	}
	switch c.Index.Backend {
	case "memory", "sqlite", "pgvector", "elasticsearch":
	default:
		return fmt.Errorf("未知的 index.backend: %q", c.Index.Backend)
	}
	return nil
}
