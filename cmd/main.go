package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/fyerfyer/rag-data-pipeline/config"
	"github.com/fyerfyer/rag-data-pipeline/internal/cache"
	"github.com/fyerfyer/rag-data-pipeline/internal/document"
	"github.com/fyerfyer/rag-data-pipeline/internal/embedding"
	"github.com/fyerfyer/rag-data-pipeline/internal/logger"
	"github.com/fyerfyer/rag-data-pipeline/internal/services"
	"github.com/fyerfyer/rag-data-pipeline/internal/vectorstore"
	"github.com/fyerfyer/rag-data-pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// 命令行参数
type flags struct {
	ConfigFile string // 配置文件路径
	LogLevel   string // 日志级别，覆盖配置文件
	ClearCache bool   // 运行前清空嵌入缓存
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rag-pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	cfg, err := appconfig.Load(f.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}

	// 初始化日志
	log, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	log.Info("Starting RAG data pipeline...")

	// 收到中断信号时取消流水线
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建源文件存储
	fileStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 创建嵌入客户端
	embedder, closeCache, err := setupEmbedding(ctx, cfg, log, f.ClearCache)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	defer closeCache()

	// 向量集合在写入阶段才打开，recreate模式的清空不会早于读取和分割
	var store *vectorstore.Store
	defer func() {
		if store != nil {
			store.Close()
		}
	}()
	openStore := func(ctx context.Context) (services.VectorStore, error) {
		s, err := vectorstore.New(vectorstore.Config{
			PersistDirectory: cfg.VectorDB.Path,
			Collection:       cfg.VectorDB.Collection,
			Mode:             vectorstore.Mode(cfg.VectorDB.Mode),
			Backend:          cfg.VectorDB.Type,
			Distance:         cfg.VectorDB.Distance,
			Dimension:        cfg.VectorDB.Dim,
			BatchSize:        cfg.Embed.BatchSize,
		}, embedder, vectorstore.WithLogger(log))
		if err != nil {
			return nil, err
		}
		store = s
		return s, nil
	}

	reader := document.NewReader(
		document.WithStorage(fileStorage),
		document.WithPDFLoader(cfg.Document.PDFLoader),
		document.WithPreviewChars(cfg.Document.PreviewChars),
		document.WithReaderLogger(log),
	)
	splitter := document.NewSplitter(log)

	pipeline := services.NewPipeline(reader, splitter, openStore,
		services.WithSources(cfg.Storage.Sources...),
		services.WithSplitOptions(document.SplitOptions{
			Method:            document.SplitMethod(cfg.Splitter.Method),
			ChunkSize:         cfg.Splitter.ChunkSize,
			ChunkOverlap:      cfg.Splitter.ChunkOverlap,
			TokenChunkSize:    cfg.Splitter.TokenChunkSize,
			TokenChunkOverlap: cfg.Splitter.TokenChunkOverlap,
			EncodingName:      cfg.Splitter.Encoding,
		}),
		services.WithQuery(cfg.Query.Text, cfg.Query.K),
		services.WithPreviewChunks(cfg.Splitter.PreviewChunks),
		services.WithPreviewChars(cfg.Splitter.PreviewChars),
		services.WithLogger(log),
	)

	start := time.Now()
	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"sources":   len(report.Sources),
		"pages":     report.Pages,
		"fragments": report.Fragments,
		"stored":    report.Stored,
		"results":   len(report.Results),
		"elapsed":   time.Since(start).String(),
	}).Info("Pipeline finished")

	return nil
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to the YAML config file")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.BoolVar(&f.ClearCache, "clear-cache", false, "Clear the embedding cache before running")
	flag.Parse()
	return f
}

// setupLogger 初始化日志记录器
func setupLogger(cfg appconfig.LogConfig) (*logrus.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetLogger(log)
	return log, nil
}

// setupStorage 创建源文件存储
func setupStorage(cfg appconfig.StorageConfig) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type: cfg.Type,
		Local: storage.LocalConfig{
			Path: cfg.Path,
		},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		},
	})
}

// setupEmbedding 创建嵌入客户端，启用缓存时包装一层缓存
// 返回的函数负责关闭缓存
func setupEmbedding(ctx context.Context, cfg *appconfig.Config, log *logrus.Logger, clearCache bool) (embedding.Client, func(), error) {
	client, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithTimeout(cfg.Embed.Timeout),
		embedding.WithMaxRetries(cfg.Embed.MaxRetries),
		embedding.WithRetryWait(cfg.Embed.RetryWait),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Cache.Enable {
		if clearCache {
			log.Warn("Embedding cache is disabled, nothing to clear")
		}
		return client, func() {}, nil
	}

	ttl := time.Duration(cfg.Cache.TTL) * time.Second
	c, err := cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		Prefix:          cfg.Cache.Prefix,
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		DefaultTTL:      ttl,
		CleanupInterval: 10 * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if clearCache {
		if err := c.Clear(ctx); err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("failed to clear cache: %w", err)
		}
		log.WithField("prefix", cfg.Cache.Prefix).Info("Embedding cache cleared")
	}

	log.WithField("type", cfg.Cache.Type).Info("Embedding cache enabled")
	return embedding.NewCachedClient(client, c, ttl, log), func() { c.Close() }, nil
}
