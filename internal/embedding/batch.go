package embedding

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// BatchProcessor 批处理器
// 将大量文本按批次依次发送给嵌入客户端
type BatchProcessor struct {
	client    Client         // 嵌入客户端
	batchSize int            // 每批处理的文本数量
	logger    *logrus.Logger // 日志记录器
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, logger *logrus.Logger) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &BatchProcessor{
		client:    client,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Process 按顺序处理所有批次，返回与输入一一对应的向量
// 任一批次失败即停止，已完成的结果被丢弃
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := splitIntoBatches(texts, p.batchSize)
	vectors := make([][]float32, 0, len(texts))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := p.client.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		if len(result) != len(batch) {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(batches),
				NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse))
		}
		vectors = append(vectors, result...)

		p.logger.WithFields(logrus.Fields{
			"batch": i + 1,
			"total": len(batches),
			"size":  len(batch),
		}).Debug("Embedding batch processed")
	}

	return vectors, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
