package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/rag-data-pipeline/internal/document"
	"github.com/fyerfyer/rag-data-pipeline/internal/embedding"
	"github.com/fyerfyer/rag-data-pipeline/internal/vectordb"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 常用错误定义
var (
	ErrEmptyQuery    = errors.New("query text cannot be empty")
	ErrInvalidConfig = errors.New("invalid vector store config")
)

// Mode 集合生命周期模式
type Mode string

const (
	// ModeRecreate 打开前删除持久化目录，每次运行从空集合开始
	ModeRecreate Mode = "recreate"
	// ModeReuse 保留已有数据，重新写入的来源先删除旧片段
	ModeReuse Mode = "reuse"
)

// DefaultK 查询未指定数量时返回的结果数
const DefaultK = 5

// collectionFile 持久化目录中的数据库文件名
const collectionFile = "collection.db"

// Config 向量存储配置
type Config struct {
	PersistDirectory string // 持久化目录
	Collection       string // 集合名称
	Mode             Mode   // 生命周期模式
	Backend          string // 仓库类型："sqlite" 或 "memory"
	Distance         string // 距离度量：cosine, l2, dot
	Dimension        int    // 向量维度，0表示由第一次写入决定
	BatchSize        int    // 每次嵌入请求的文本数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PersistDirectory: "./data/vectordb",
		Collection:       vectordb.DefaultCollection,
		Mode:             ModeRecreate,
		Backend:          "sqlite",
		Distance:         string(vectordb.Cosine),
		BatchSize:        100,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	switch c.Mode {
	case ModeRecreate, ModeReuse:
	default:
		return fmt.Errorf("%w: unknown mode %q, use 'recreate' or 'reuse'", ErrInvalidConfig, c.Mode)
	}
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.PersistDirectory == "" {
			return fmt.Errorf("%w: persist directory is required for sqlite backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if _, err := vectordb.ParseDistanceType(c.Distance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Dimension < 0 || c.BatchSize < 0 {
		return fmt.Errorf("%w: dimension and batch size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Result 查询结果
type Result struct {
	ID       string         // 记录ID
	Content  string         // 片段文本
	Metadata map[string]any // 片段元数据
	Distance float32        // 距离，越小越相似
	Score    float32        // 相似度得分
}

// Store 向量存储
// 负责把片段嵌入后写入集合，并按文本查询最相近的片段
type Store struct {
	cfg      Config
	embedder embedding.Client
	batch    *embedding.BatchProcessor
	repo     vectordb.Repository
	logger   *logrus.Logger
}

// Option 向量存储配置选项
type Option func(*Store)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New 创建向量存储
// recreate模式下会先删除持久化目录
func New(cfg Config, embedder embedding.Client, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding client is required", ErrInvalidConfig)
	}

	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.batch = embedding.NewBatchProcessor(embedder, cfg.BatchSize, s.logger)

	log := s.logger.WithFields(logrus.Fields{
		"directory":  cfg.PersistDirectory,
		"collection": cfg.Collection,
		"mode":       cfg.Mode,
		"backend":    cfg.Backend,
	})

	if cfg.Backend == "sqlite" && cfg.Mode == ModeRecreate {
		if _, err := os.Stat(cfg.PersistDirectory); err == nil {
			log.Info("Removing existing collection directory")
			if err := os.RemoveAll(cfg.PersistDirectory); err != nil {
				return nil, fmt.Errorf("failed to remove persist directory: %w", err)
			}
		}
	}

	distance, _ := vectordb.ParseDistanceType(cfg.Distance)
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:         cfg.Backend,
		Path:         filepath.Join(cfg.PersistDirectory, collectionFile),
		Collection:   cfg.Collection,
		Dimension:    cfg.Dimension,
		DistanceType: distance,
		Model:        embedder.Name(),
		Logger:       s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector collection: %w", err)
	}
	s.repo = repo

	count, _ := repo.Count()
	log.WithField("count", count).Info("Vector collection ready")

	return s, nil
}

// AddTexts 嵌入并写入片段，返回写入的数量
// 空白片段被跳过；嵌入失败时记录日志并返回错误，不写入任何片段
func (s *Store) AddTexts(ctx context.Context, fragments []document.Document) (int, error) {
	var kept []document.Document
	for _, f := range fragments {
		if strings.TrimSpace(f.PageContent) != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		s.logger.Warn("No fragments to add")
		return 0, nil
	}

	s.logger.Infof("Adding %d fragment(s) to the collection", len(kept))

	texts := make([]string, len(kept))
	for i, f := range kept {
		texts[i] = f.PageContent
	}

	vectors, err := s.batch.Process(ctx, texts)
	if err != nil {
		s.logger.WithError(err).WithField("model", s.embedder.Name()).
			Error("Failed to embed fragments")
		return 0, fmt.Errorf("failed to embed fragments: %w", err)
	}

	if s.cfg.Mode == ModeReuse {
		if err := s.replaceSources(kept); err != nil {
			return 0, err
		}
	}

	docs := make([]vectordb.Document, len(kept))
	for i, f := range kept {
		docs[i] = vectordb.Document{
			ID:       uuid.New().String(),
			Source:   f.Source(),
			Position: fragmentPosition(f, i),
			Text:     f.PageContent,
			Vector:   vectors[i],
			Metadata: f.Metadata,
		}
	}

	if err := s.repo.AddBatch(docs); err != nil {
		s.logger.WithError(err).Error("Failed to store fragments")
		return 0, fmt.Errorf("failed to store fragments: %w", err)
	}

	s.logger.Infof("Added %d fragment(s) to the collection", len(docs))
	return len(docs), nil
}

// replaceSources 删除本次写入涉及的来源已有的片段，避免重复运行产生重复记录
func (s *Store) replaceSources(fragments []document.Document) error {
	seen := make(map[string]bool)
	for _, f := range fragments {
		src := f.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true

		removed, err := s.repo.DeleteBySource(src)
		if err != nil {
			s.logger.WithError(err).WithField("source", src).Error("Failed to replace fragments")
			return fmt.Errorf("failed to replace fragments of %s: %w", src, err)
		}
		if removed > 0 {
			s.logger.WithFields(logrus.Fields{
				"source":  src,
				"removed": removed,
			}).Info("Replaced existing fragments")
		}
	}
	return nil
}

// fragmentPosition 优先使用片段在页面中的序号
func fragmentPosition(f document.Document, fallback int) int {
	if v, ok := f.Metadata[document.MetaChunkIndex].(int); ok {
		return v
	}
	return fallback
}

// Query 查询与文本最相近的k个片段，k<=0时使用DefaultK
// 集合中不足k个时返回全部
func (s *Store) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultK
	}

	count, err := s.repo.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Result{}, nil
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.WithError(err).Error("Failed to embed query")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := vectordb.DefaultSearchFilter()
	filter.MaxResults = k
	hits, err := s.repo.Search(vector, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:       h.Document.ID,
			Content:  h.Document.Text,
			Metadata: h.Document.Metadata,
			Distance: h.Distance,
			Score:    h.Score,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"k":       k,
		"results": len(results),
	}).Debug("Query finished")

	return results, nil
}

// Count 返回集合中的片段数量
func (s *Store) Count() (int, error) {
	return s.repo.Count()
}

// Close 关闭底层仓库
func (s *Store) Close() error {
	return s.repo.Close()
}
