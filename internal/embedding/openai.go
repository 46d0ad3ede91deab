package embedding

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
// 兼容任何实现了/embeddings接口的服务
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config Config         // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(config Config) (Client, error) {
	if config.APIKey == "" {
		return nil, ErrInvalidAPIKey
	}

	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RetryWait <= 0 {
		config.RetryWait = defaults.RetryWait
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.config.Model),
		Dimensions: c.config.Dimensions,
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err == nil {
			return responseVectors(resp, len(texts))
		}

		embErr := classifyError(ctx, err)
		if embErr.Code != ErrCodeRateLimited || attempt >= c.config.MaxRetries {
			return nil, embErr
		}

		// 指数退避
		wait := c.config.RetryWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// responseVectors 按Index还原输入顺序
func responseVectors(resp openai.EmbeddingResponse, expected int) ([][]float32, error) {
	if len(resp.Data) != expected {
		return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Index < data[j].Index
	})

	vectors := make([][]float32, expected)
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// classifyError 将API错误转换为嵌入错误
func classifyError(ctx context.Context, err error) *EmbeddingError {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return wrapError(ErrCodeTimeout, ErrMsgTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return wrapError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey, err)
	case status == http.StatusTooManyRequests:
		return wrapError(ErrCodeRateLimited, ErrMsgRateLimited, err)
	case status >= http.StatusInternalServerError:
		return wrapError(ErrCodeServerError, ErrMsgServerError, err)
	case status >= http.StatusBadRequest:
		return wrapError(ErrCodeInvalidRequest, ErrMsgInvalidRequest, err)
	default:
		return wrapError(ErrCodeNetworkError, ErrMsgNetworkError, err)
	}
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
