package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DefaultQuery 默认的检索问题
const DefaultQuery = "What are the key limitations of small-scale language models like LLaMa when used as optimizers for automated prompt engineering techniques like OPRO?"

// Config 应用程序配置结构体
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Document DocumentConfig `mapstructure:"document"`
	Splitter SplitterConfig `mapstructure:"splitter"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Query    QueryConfig    `mapstructure:"query"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`        // 日志文件，为空时只输出到终端
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数
	MaxAge     int    `mapstructure:"max_age"`     // 天
	Compress   bool   `mapstructure:"compress"`
}

// StorageConfig 源文件存储配置
type StorageConfig struct {
	Type      string   `mapstructure:"type" validate:"oneof=local minio"` // 存储类型：local 或 minio
	Path      string   `mapstructure:"path"`                              // 本地存储根目录，为空时直接使用文件路径
	Bucket    string   `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string   `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string   `mapstructure:"access_key"`
	SecretKey string   `mapstructure:"secret_key"`
	UseSSL    bool     `mapstructure:"use_ssl"` // 是否使用SSL
	Prefix    string   `mapstructure:"prefix"`  // 对象名前缀
	Sources   []string `mapstructure:"sources" validate:"min=1,dive,required"`
}

// DocumentConfig 文档读取配置
type DocumentConfig struct {
	PDFLoader    string `mapstructure:"pdf_loader" validate:"oneof=ledongthuc pdfcpu"` // PDF加载器
	PreviewChars int    `mapstructure:"preview_chars" validate:"gte=0"`                // 首页预览字符数
}

// SplitterConfig 分段配置
type SplitterConfig struct {
	Method            string `mapstructure:"method" validate:"oneof=chunk paragraph"`
	ChunkSize         int    `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap      int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TokenChunkSize    int    `mapstructure:"token_chunk_size" validate:"gt=0"`
	TokenChunkOverlap int    `mapstructure:"token_chunk_overlap" validate:"gte=0,ltfield=TokenChunkSize"`
	Encoding          string `mapstructure:"encoding" validate:"required"`
	PreviewChunks     int    `mapstructure:"preview_chunks" validate:"gte=0"` // 日志中展示的片段数
	PreviewChars      int    `mapstructure:"preview_chars" validate:"gte=0"`  // 片段预览的字符数，0表示全文
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"` // 提供商：openai
	Model      string        `mapstructure:"model" validate:"required"`    // 模型名称
	APIKey     string        `mapstructure:"api_key"`                      // API密钥
	Endpoint   string        `mapstructure:"endpoint"`                     // API端点
	BatchSize  int           `mapstructure:"batch_size" validate:"gt=0"`   // 批处理大小
	Dimensions int           `mapstructure:"dimensions" validate:"gte=0"`  // 向量维度，0表示模型默认
	Timeout    time.Duration `mapstructure:"timeout"`                      // 请求超时
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"` // 速率限制时的重试次数
	RetryWait  time.Duration `mapstructure:"retry_wait"`                   // 首次重试等待
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                             // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`                            // Redis地址
	Password string `mapstructure:"password"`                           // Redis密码
	DB       int    `mapstructure:"db"`                                 // Redis数据库
	TTL      int    `mapstructure:"ttl" validate:"gte=0"`               // 缓存TTL（秒）
	Prefix   string `mapstructure:"prefix"`                             // 键前缀
}

// VectorDBConfig 向量集合配置
type VectorDBConfig struct {
	Type       string `mapstructure:"type" validate:"oneof=sqlite memory"`     // 仓库类型
	Path       string `mapstructure:"path"`                                    // 持久化目录
	Collection string `mapstructure:"collection" validate:"required"`          // 集合名称
	Mode       string `mapstructure:"mode" validate:"oneof=recreate reuse"`    // 生命周期模式
	Distance   string `mapstructure:"distance" validate:"oneof=cosine l2 dot"` // 距离度量方式
	Dim        int    `mapstructure:"dim" validate:"gte=0"`                    // 向量维度，0表示自动推断
}

// QueryConfig 检索配置
type QueryConfig struct {
	Text string `mapstructure:"text"` // 为空时跳过检索阶段
	K    int    `mapstructure:"k" validate:"gte=0"`
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("embed.api_key", "EMBED_API_KEY", "OPENAI_API_KEY")

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Debugf("Using config file: %s", v.ConfigFileUsed())
	} else if errors.Is(err, os.ErrNotExist) {
		logrus.Debugf("Config file not found at %s, using defaults", configPath)
	} else {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Embed.Provider == "openai" && c.Embed.APIKey == "" {
		return errors.New("invalid config: embedding api key is required, set OPENAI_API_KEY")
	}
	if c.Storage.Type == "minio" && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return errors.New("invalid config: minio storage requires endpoint and bucket")
	}
	if c.Cache.Enable && c.Cache.Type == "redis" && c.Cache.Address == "" {
		return errors.New("invalid config: redis cache requires an address")
	}
	if c.VectorDB.Type == "sqlite" && c.VectorDB.Path == "" {
		return errors.New("invalid config: sqlite vectordb requires a path")
	}
	return nil
}

// processEnvironmentVariables 展开形如 ${VAR} 的配置值
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Embed.Endpoint,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 未设置的变量展开为空字符串，交由 Validate 判断是否缺失
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.bucket", "rag")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.sources", []string{
		"./data/2405.10276v1.pdf",
		"./data/2405.10317v1.pdf",
	})

	// 文档读取默认配置
	v.SetDefault("document.pdf_loader", "ledongthuc")
	v.SetDefault("document.preview_chars", 500)

	// 分段默认配置
	v.SetDefault("splitter.method", "chunk")
	v.SetDefault("splitter.chunk_size", 500)
	v.SetDefault("splitter.chunk_overlap", 100)
	v.SetDefault("splitter.token_chunk_size", 4000)
	v.SetDefault("splitter.token_chunk_overlap", 200)
	v.SetDefault("splitter.encoding", "cl100k_base")
	v.SetDefault("splitter.preview_chunks", 2)
	v.SetDefault("splitter.preview_chars", 0)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-ada-002")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 100)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 0)
	v.SetDefault("embed.retry_wait", "1s")

	// 缓存默认配置
	v.SetDefault("cache.enable", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 86400) // 24小时
	v.SetDefault("cache.prefix", "rag")

	// 向量集合默认配置
	v.SetDefault("vectordb.type", "sqlite")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.collection", "langchain")
	v.SetDefault("vectordb.mode", "recreate")
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.dim", 0)

	// 检索默认配置
	v.SetDefault("query.text", DefaultQuery)
	v.SetDefault("query.k", 3)
}
