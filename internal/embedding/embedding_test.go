package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/rag-data-pipeline/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClient 实现了Client接口的模拟客户端
type MockClient struct {
	vectors map[string][]float32 // 预设的向量结果
	calls   int                  // EmbedBatch调用次数
	texts   int                  // 累计请求的文本数
	fail    error                // 不为nil时所有请求返回该错误
	short   bool                 // 为true时少返回一个向量
}

func NewMockClient() *MockClient {
	return &MockClient{
		vectors: map[string][]float32{
			"hello": {0.1, 0.2, 0.3},
			"world": {0.4, 0.5, 0.6},
		},
	}
}

func (m *MockClient) Name() string { return "mock-model" }

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.texts += len(texts)
	if m.fail != nil {
		return nil, m.fail
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
		if vec, ok := m.vectors[text]; ok {
			results[i] = vec
		} else {
			results[i] = []float32{float32(len(text)), 0, 1}
		}
	}
	if m.short && len(results) > 0 {
		results = results[:len(results)-1]
	}
	return results, nil
}

// newFakeOpenAI 启动一个模拟OpenAI嵌入接口的测试服务器
// handler返回非零状态码时直接以该状态响应
func newFakeOpenAI(t *testing.T, status func(n int64) int) (*httptest.Server, *int64) {
	t.Helper()
	var requests int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&requests, 1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if code := status(n); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"fake failure","type":"test"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// 倒序返回，客户端需按index还原顺序
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), float32(i), 1},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	t.Cleanup(server.Close)

	return server, &requests
}

// TestClientCreation 测试客户端创建
func TestClientCreation(t *testing.T) {
	RegisterClient("mock", func(config Config) (Client, error) {
		return NewMockClient(), nil
	})

	client, err := NewClient("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock-model", client.Name())

	_, err = NewClient("non-existent")
	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeInvalidRequest, embErr.Code)

	// 缺少API密钥
	_, err = NewClient("openai")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

// TestConfigOptions 测试配置选项
func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithAPIKey("key"),
		WithBaseURL("http://localhost/v1"),
		WithModel("text-embedding-3-small"),
		WithTimeout(5*time.Second),
		WithMaxRetries(2),
		WithRetryWait(time.Millisecond),
		WithDimensions(256),
		WithBatchSize(8),
	)

	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "http://localhost/v1", cfg.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, time.Millisecond, cfg.RetryWait)
	assert.Equal(t, 256, cfg.Dimensions)
	assert.Equal(t, 8, cfg.BatchSize)

	// 默认不重试
	assert.Equal(t, 0, DefaultConfig().MaxRetries)
}

// TestOpenAIClient 使用模拟服务器测试OpenAI客户端
func TestOpenAIClient(t *testing.T) {
	server, requests := newFakeOpenAI(t, func(int64) int { return 0 })

	client, err := NewClient("openai",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL+"/v1"),
		WithBatchSize(3),
	)
	require.NoError(t, err)

	ctx := context.Background()

	vectors, err := client.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 1}, {2, 1, 1}, {3, 2, 1}}, vectors)

	vec, err := client.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 1}, vec)
	assert.Equal(t, int64(2), atomic.LoadInt64(requests))

	// 参数校验不发请求
	_, err = client.Embed(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = client.EmbedBatch(ctx, []string{"1", "2", "3", "4"})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, int64(2), atomic.LoadInt64(requests))

	empty, err := client.EmbedBatch(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

// TestOpenAIClientErrors 测试错误分类
func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   int
	}{
		{"unauthorized", http.StatusUnauthorized, ErrCodeInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrCodeRateLimited},
		{"server error", http.StatusInternalServerError, ErrCodeServerError},
		{"bad request", http.StatusBadRequest, ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, requests := newFakeOpenAI(t, func(int64) int { return tt.status })

			client, err := NewClient("openai", WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1"))
			require.NoError(t, err)

			_, err = client.Embed(context.Background(), "text")
			var embErr *EmbeddingError
			require.True(t, errors.As(err, &embErr), "unexpected error: %v", err)
			assert.Equal(t, tt.code, embErr.Code)
			// 默认不重试
			assert.Equal(t, int64(1), atomic.LoadInt64(requests))
		})
	}
}

// TestOpenAIClientRetry 速率限制时按配置重试
func TestOpenAIClientRetry(t *testing.T) {
	server, requests := newFakeOpenAI(t, func(n int64) int {
		if n <= 2 {
			return http.StatusTooManyRequests
		}
		return 0
	})

	client, err := NewClient("openai",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL+"/v1"),
		WithMaxRetries(3),
		WithRetryWait(time.Millisecond),
	)
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0, 1}, vec)
	assert.Equal(t, int64(3), atomic.LoadInt64(requests))

	// 重试次数用尽后返回速率限制错误
	server2, requests2 := newFakeOpenAI(t, func(int64) int { return http.StatusTooManyRequests })
	client, err = NewClient("openai",
		WithAPIKey("test-key"),
		WithBaseURL(server2.URL+"/v1"),
		WithMaxRetries(1),
		WithRetryWait(time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "abcd")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(2), atomic.LoadInt64(requests2))
}

// TestBatchProcessor 测试批处理器
func TestBatchProcessor(t *testing.T) {
	mock := NewMockClient()
	processor := NewBatchProcessor(mock, 2, nil)

	texts := []string{"hello", "world", "abc", "defg", "hi"}
	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
	assert.Equal(t, []float32{3, 0, 1}, vectors[2])
	assert.Equal(t, []float32{2, 0, 1}, vectors[4])
	assert.Equal(t, 3, mock.calls, "5条文本按每批2条应分3批")

	// 空输入
	vectors, err = processor.Process(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, vectors)

	// 客户端失败时返回错误
	mock.fail = ErrRateLimited
	_, err = processor.Process(context.Background(), texts)
	assert.ErrorIs(t, err, ErrRateLimited)

	// 已取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = processor.Process(ctx, texts)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestSplitIntoBatches 测试批次划分
func TestSplitIntoBatches(t *testing.T) {
	batches := splitIntoBatches([]string{"a", "b", "c"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batches)

	batches = splitIntoBatches([]string{"a", "b"}, 0)
	assert.Len(t, batches, 2)
}

// TestCachedClient 命中缓存的文本不再请求底层客户端
func TestCachedClient(t *testing.T) {
	mock := NewMockClient()
	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	client := NewCachedClient(mock, memCache, time.Minute, nil)
	assert.Equal(t, "mock-model", client.Name())

	ctx := context.Background()
	first, err := client.EmbedBatch(ctx, []string{"hello", "abc"})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.texts)

	second, err := client.EmbedBatch(ctx, []string{"abc", "new text", "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, mock.texts, "只有未命中的文本会被请求")
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	vec, err := client.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 2, mock.calls)

	// 底层失败时不写缓存
	mock.fail = ErrRateLimited
	_, err = client.Embed(ctx, "uncached")
	assert.ErrorIs(t, err, ErrRateLimited)
}

// TestCachedClientShortResponse 底层返回的向量数量不足时报错
func TestCachedClientShortResponse(t *testing.T) {
	mock := NewMockClient()
	mock.short = true
	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	client := NewCachedClient(mock, memCache, time.Minute, nil)
	_, err = client.EmbedBatch(context.Background(), []string{"hello", "world"})
	require.Error(t, err)
	assert.ErrorIs(t, err, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse))

	// 失败的请求不写缓存
	_, found, err := memCache.Get(context.Background(), client.key("hello"))
	require.NoError(t, err)
	assert.False(t, found)
}

// TestCachedClientCorruptEntry 损坏的缓存条目被删除并重新生成
func TestCachedClientCorruptEntry(t *testing.T) {
	mock := NewMockClient()
	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	client := NewCachedClient(mock, memCache, time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, memCache.Set(ctx, client.key("hello"), []byte("not json"), time.Minute))

	vec, err := client.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 1, mock.calls)

	data, found, err := memCache.Get(ctx, client.key("hello"))
	require.NoError(t, err)
	require.True(t, found)
	var cached []float32
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, vec, cached)
}

// TestRealOpenAIClient 使用真实API测试，需要设置OPENAI_API_KEY
func TestRealOpenAIClient(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" || os.Getenv("RUN_OPENAI_TESTS") != "true" {
		t.Skip("OPENAI_API_KEY or RUN_OPENAI_TESTS not set, skipping real API test")
	}

	client, err := NewClient("openai", WithAPIKey(apiKey))
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}
