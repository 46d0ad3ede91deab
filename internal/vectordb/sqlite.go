package vectordb

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/rag-data-pipeline/internal/database"
	"github.com/fyerfyer/rag-data-pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCollection 未指定名称时使用的集合名
const DefaultCollection = "langchain"

// SQLiteRepository 基于gorm和sqlite的持久化向量仓库
// 向量以小端序BLOB保存，搜索时加载集合内的全部向量计算距离
type SQLiteRepository struct {
	*BaseRepository
	mu         sync.Mutex
	db         *gorm.DB
	collection models.Collection
	logger     *logrus.Logger
}

// NewSQLiteRepository 打开或创建sqlite向量集合
func NewSQLiteRepository(config Config) (Repository, error) {
	if config.Path == "" {
		return nil, errors.New("sqlite vector database requires a path")
	}
	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	name := config.Collection
	if name == "" {
		name = DefaultCollection
	}

	dbCfg := database.DefaultConfig()
	dbCfg.DSN = config.Path
	db, err := database.Open(dbCfg, logger)
	if err != nil {
		return nil, err
	}

	coll, err := loadOrCreateCollection(db, name, config.Dimension, distType, config.Model)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":       config.Path,
		"collection": coll.Name,
		"dimension":  coll.Dimension,
		"distance":   distType,
		"model":      config.Model,
	}).Debug("Vector collection opened")

	return &SQLiteRepository{
		BaseRepository: NewBaseRepository(coll.Dimension, distType),
		db:             db,
		collection:     coll,
		logger:         logger,
	}, nil
}

// collectionMeta 集合级元数据
type collectionMeta struct {
	EmbeddingModel string `json:"embedding_model,omitempty"` // 写入向量时使用的嵌入模型
}

func decodeCollectionMeta(raw datatypes.JSON) (collectionMeta, error) {
	var meta collectionMeta
	if len(raw) == 0 {
		return meta, nil
	}
	err := json.Unmarshal(raw, &meta)
	return meta, err
}

// loadOrCreateCollection 按名称查找集合，不存在时创建
// 已有集合记录了不同的嵌入模型时返回 ErrModelMismatch
func loadOrCreateCollection(db *gorm.DB, name string, dimension int, distType DistanceType, model string) (models.Collection, error) {
	var coll models.Collection
	err := db.Where("name = ?", name).First(&coll).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		raw, err := json.Marshal(collectionMeta{EmbeddingModel: model})
		if err != nil {
			return coll, err
		}
		coll = models.Collection{
			ID:        uuid.New().String(),
			Name:      name,
			Dimension: dimension,
			Distance:  string(distType),
			Metadata:  datatypes.JSON(raw),
		}
		if err := db.Create(&coll).Error; err != nil {
			return coll, fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		return coll, nil
	}
	if err != nil {
		return coll, fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	if dimension > 0 && coll.Dimension > 0 && coll.Dimension != dimension {
		return coll, fmt.Errorf("%w: collection %s has dimension %d, configured %d",
			ErrInvalidDimension, name, coll.Dimension, dimension)
	}
	meta, err := decodeCollectionMeta(coll.Metadata)
	if err != nil {
		return coll, fmt.Errorf("failed to decode metadata of collection %s: %w", name, err)
	}
	if model != "" && meta.EmbeddingModel != "" && meta.EmbeddingModel != model {
		return coll, fmt.Errorf("%w: collection %s was built with %s, configured %s",
			ErrModelMismatch, name, meta.EmbeddingModel, model)
	}
	if meta.EmbeddingModel == "" && model != "" {
		meta.EmbeddingModel = model
		raw, err := json.Marshal(meta)
		if err != nil {
			return coll, err
		}
		coll.Metadata = datatypes.JSON(raw)
	}

	if coll.Dimension == 0 && dimension > 0 {
		coll.Dimension = dimension
	}
	if coll.Distance != string(distType) {
		coll.Distance = string(distType)
	}
	if err := db.Save(&coll).Error; err != nil {
		return coll, fmt.Errorf("failed to update collection %s: %w", name, err)
	}
	return coll, nil
}

// AddBatch 在一个事务中写入所有文档，ID已存在时覆盖
func (r *SQLiteRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		vectors[i] = doc.Vector
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return ErrClosed
	}

	inferred, err := r.checkVectors(vectors...)
	if err != nil {
		return err
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.Embedding{}).
			Where("collection_id = ?", r.collection.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		now := time.Now()
		rows := make([]models.Embedding, 0, len(docs))
		for i, doc := range docs {
			row, err := r.toModel(doc, maxSeq+int64(i)+1, now)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}

		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(rows, 100).Error; err != nil {
			return err
		}

		if inferred {
			return tx.Model(&r.collection).Update("dimension", r.GetDimension()).Error
		}
		return nil
	})
	if err != nil {
		if inferred {
			r.resetDimension()
		}
		return fmt.Errorf("failed to insert embeddings: %w", err)
	}
	return nil
}

// DeleteBySource 删除指定来源的所有片段，返回删除的数量
func (r *SQLiteRepository) DeleteBySource(source string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return 0, ErrClosed
	}
	res := r.db.Where("collection_id = ? AND source = ?", r.collection.ID, source).
		Delete(&models.Embedding{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete embeddings of %s: %w", source, res.Error)
	}
	return int(res.RowsAffected), nil
}

// Search 相似度搜索
func (r *SQLiteRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil, ErrClosed
	}

	query := r.db.Where("collection_id = ?", r.collection.ID)
	if len(filter.Sources) > 0 {
		query = query.Where("source IN ?", filter.Sources)
	}

	var rows []models.Embedding
	if err := query.Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(rows) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.GetDimension()); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := fromModel(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return rankDocuments(vector, docs, r.distType, filter)
}

// Count 获取文档总数
func (r *SQLiteRepository) Count() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return 0, ErrClosed
	}
	var n int64
	if err := r.db.Model(&models.Embedding{}).
		Where("collection_id = ?", r.collection.ID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close 关闭数据库连接
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := database.Close(r.db)
	r.db = nil
	return err
}

// toModel 将文档转换为数据库模型
func (r *SQLiteRepository) toModel(doc Document, seq int64, now time.Time) (models.Embedding, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return models.Embedding{}, fmt.Errorf("failed to encode metadata of %s: %w", doc.ID, err)
	}

	return models.Embedding{
		ID:           doc.ID,
		CollectionID: r.collection.ID,
		Seq:          seq,
		Source:       doc.Source,
		Position:     doc.Position,
		Text:         doc.Text,
		Vector:       EncodeVector(doc.Vector),
		Metadata:     datatypes.JSON(meta),
		CreatedAt:    doc.CreatedAt,
	}, nil
}

// fromModel 将数据库模型转换为文档
// 元数据经过JSON往返，数值类型会变为float64
func fromModel(row models.Embedding) (Document, error) {
	vec, err := DecodeVector(row.Vector)
	if err != nil {
		return Document{}, fmt.Errorf("embedding %s: %w", row.ID, err)
	}

	var meta map[string]any
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return Document{}, fmt.Errorf("failed to decode metadata of %s: %w", row.ID, err)
		}
	}

	return Document{
		ID:        row.ID,
		Source:    row.Source,
		Position:  row.Position,
		Text:      row.Text,
		Vector:    vec,
		CreatedAt: row.CreatedAt,
		Metadata:  meta,
	}, nil
}

func init() {
	RegisterRepository("sqlite", NewSQLiteRepository)
}
