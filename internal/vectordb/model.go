package vectordb

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrModelMismatch    = errors.New("embedding model mismatch")
	ErrClosed           = errors.New("repository is closed")
)

// Document 向量记录
// 包含片段文本、向量表示及其元数据
type Document struct {
	ID        string         // 唯一标识符
	Source    string         // 来源文件
	Position  int            // 在来源中的片段位置
	Text      string         // 原始文本内容
	Vector    []float32      // 向量表示
	CreatedAt time.Time      // 创建时间
	Metadata  map[string]any // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦距离，1-余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积距离，1-点积，要求向量已归一化
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// ParseDistanceType 解析距离类型，空字符串表示余弦距离
func ParseDistanceType(s string) (DistanceType, error) {
	switch DistanceType(s) {
	case "", Cosine:
		return Cosine, nil
	case DotProduct, Euclidean:
		return DistanceType(s), nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", s)
	}
}

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
	Distance float32  // 距离，越小越相似
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	Sources    []string       // 按来源过滤
	Metadata   map[string]any // 按元数据过滤
	MaxResults int            // 最大返回结果数，0表示不限制
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MaxResults: 5,
	}
}

// Repository 向量数据库仓库接口
type Repository interface {
	// AddBatch 批量添加文档，要么全部写入要么都不写入
	AddBatch(docs []Document) error

	// DeleteBySource 删除指定来源的所有片段，返回删除的数量
	DeleteBySource(source string) (int, error)

	// Search 相似度搜索，结果按距离升序，距离相同时保持插入顺序
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 获取文档总数
	Count() (int, error)

	// GetDimension 返回向量维数，0表示尚未确定
	GetDimension() int

	// Close 关闭数据库连接
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type         string       // 数据库类型："memory" 或 "sqlite"
	Path         string       // sqlite数据库文件路径
	Collection   string       // 集合名称
	Dimension    int          // 向量维度，0表示由第一次写入决定
	DistanceType DistanceType // 距离计算类型
	Model        string       // 嵌入模型名称，记录在集合元数据中
	Logger       *logrus.Logger
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量数据库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量数据库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量数据库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported vector database type: %s", config.Type)
	}
	return factory(config)
}
