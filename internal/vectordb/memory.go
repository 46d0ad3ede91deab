package vectordb

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository 内存向量仓库实现
// 按插入顺序保存文档，搜索时暴力计算距离
type MemoryRepository struct {
	*BaseRepository
	mu        sync.RWMutex
	documents []Document     // 按插入顺序排列的文档
	index     map[string]int // 文档ID到下标的映射
	closed    bool
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}
	return &MemoryRepository{
		BaseRepository: NewBaseRepository(config.Dimension, distType),
		index:          make(map[string]int),
	}, nil
}

// AddBatch 批量添加文档，ID已存在时覆盖原文档
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		vectors[i] = doc.Vector
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, err := r.checkVectors(vectors...); err != nil {
		return err
	}

	now := time.Now()
	for _, doc := range docs {
		doc = cloneDocument(doc)
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}

		if i, ok := r.index[doc.ID]; ok {
			r.documents[i] = doc
			continue
		}
		r.index[doc.ID] = len(r.documents)
		r.documents = append(r.documents, doc)
	}
	return nil
}

// DeleteBySource 删除指定来源的所有片段，返回删除的数量
func (r *MemoryRepository) DeleteBySource(source string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	return r.removeWhere(func(d Document) bool { return d.Source == source }), nil
}

// removeWhere 删除满足条件的文档并重建索引，返回删除的数量，调用方需持有写锁
func (r *MemoryRepository) removeWhere(match func(Document) bool) int {
	before := len(r.documents)
	kept := r.documents[:0]
	for _, d := range r.documents {
		if !match(d) {
			kept = append(kept, d)
		}
	}
	r.documents = kept

	r.index = make(map[string]int, len(kept))
	for i, d := range kept {
		r.index[d.ID] = i
	}
	return before - len(kept)
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.GetDimension()); err != nil {
		return nil, err
	}

	results, err := rankDocuments(vector, r.documents, r.distType, filter)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Document = cloneDocument(results[i].Document)
	}
	return results, nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Close 释放内存
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.documents = nil
	r.index = make(map[string]int)
	r.closed = true
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
