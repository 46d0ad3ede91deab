package vectordb

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// BaseRepository 基础仓库实现
// 维护向量维度和距离类型，为具体实现提供共享的校验和排序
type BaseRepository struct {
	dimMu     sync.RWMutex
	dimension int          // 向量维度，0表示尚未确定
	distType  DistanceType // 距离计算类型
}

// NewBaseRepository 创建基础仓库
func NewBaseRepository(dimension int, distType DistanceType) *BaseRepository {
	if distType == "" {
		distType = Cosine
	}
	return &BaseRepository{
		dimension: dimension,
		distType:  distType,
	}
}

// GetDimension 返回向量维数
func (b *BaseRepository) GetDimension() int {
	b.dimMu.RLock()
	defer b.dimMu.RUnlock()
	return b.dimension
}

// checkVectors 校验一批向量维度一致
// 维度尚未确定时以第一条向量为准，返回是否新确定了维度
func (b *BaseRepository) checkVectors(vectors ...[]float32) (bool, error) {
	b.dimMu.Lock()
	defer b.dimMu.Unlock()

	dim := b.dimension
	for _, v := range vectors {
		if dim == 0 && len(v) > 0 {
			dim = len(v)
		}
		if err := ValidateVector(v, dim); err != nil {
			return false, err
		}
	}

	inferred := b.dimension == 0 && dim > 0
	b.dimension = dim
	return inferred, nil
}

// resetDimension 写入失败时撤销推断出的维度
func (b *BaseRepository) resetDimension() {
	b.dimMu.Lock()
	defer b.dimMu.Unlock()
	b.dimension = 0
}

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return 1 - dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance 计算余弦距离
func cosineDistance(v1, v2 []float32) float32 {
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	// 浮点误差
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

// euclideanDistance 计算欧几里德距离
func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// FilterDocuments 根据过滤条件筛选文档，保持原有顺序
func FilterDocuments(docs []Document, filter SearchFilter) []Document {
	if len(filter.Sources) == 0 && len(filter.Metadata) == 0 {
		return docs
	}

	sources := make(map[string]bool, len(filter.Sources))
	for _, s := range filter.Sources {
		sources[s] = true
	}

	var result []Document
	for _, doc := range docs {
		if len(sources) > 0 && !sources[doc.Source] {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}
		result = append(result, doc)
	}
	return result
}

// matchMetadata 检查文档元数据是否匹配过滤条件
// 数值统一按float64比较，JSON反序列化后的元数据也能匹配
func matchMetadata(docMeta map[string]any, filterMeta map[string]any) bool {
	for key, filterValue := range filterMeta {
		docValue, exists := docMeta[key]
		if !exists {
			return false
		}
		if a, ok := toFloat(docValue); ok {
			if b, ok := toFloat(filterValue); ok && a == b {
				continue
			}
			return false
		}
		if docValue != filterValue {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// rankDocuments 计算每个文档到查询向量的距离并排序
// docs须按插入顺序排列
func rankDocuments(vector []float32, docs []Document, distType DistanceType, filter SearchFilter) ([]SearchResult, error) {
	candidates := FilterDocuments(docs, filter)
	results := make([]SearchResult, 0, len(candidates))

	for _, doc := range candidates {
		dist, err := ComputeDistance(vector, doc.Vector, distType)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Document: doc,
			Distance: dist,
			Score:    DistanceToScore(dist, distType),
		})
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// SortSearchResults 按距离升序排序，距离相同时保持原有顺序
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}

// DistanceToScore 将距离转换为评分
// 不同距离度量需要不同的转换方法
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine, DotProduct:
		// 两者的距离都定义为1-相似度
		return 1 - distance
	case Euclidean:
		// 高斯衰减，距离越小分数越高
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	return nil
}

// cloneDocument 复制文档，避免调用方修改内部状态
func cloneDocument(doc Document) Document {
	out := doc
	out.Vector = append([]float32(nil), doc.Vector...)
	if doc.Metadata != nil {
		out.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
