package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyerfyer/rag-data-pipeline/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 以模型名和文本摘要为键缓存向量，只为未命中的文本调用底层客户端
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

// Embed 生成单条文本的向量
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量，缓存读写失败只记录日志
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var (
		missTexts   []string
		missIndices []int
	)

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}

	c.logger.WithFields(logrus.Fields{
		"model":  c.client.Name(),
		"hits":   len(texts) - len(missTexts),
		"misses": len(missTexts),
	}).Debug("Embedding cache lookup")

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
	}

	for j, idx := range missIndices {
		vectors[idx] = fresh[j]
		c.store(ctx, missTexts[j], fresh[j])
	}
	return vectors, nil
}

func (c *CachedClient) key(text string) string {
	return cache.GenerateCacheKey("embedding", c.client.Name(), cache.HashText(text))
}

func (c *CachedClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, found, err := c.cache.Get(ctx, c.key(text))
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		// 损坏的条目直接删除，随后由底层客户端重新生成
		if err := c.cache.Delete(ctx, c.key(text)); err != nil {
			c.logger.WithError(err).Warn("Failed to delete corrupt cache entry")
		}
		return nil, false
	}
	return vec, true
}

func (c *CachedClient) store(ctx context.Context, text string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.key(text), data, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to write embedding cache")
	}
}
