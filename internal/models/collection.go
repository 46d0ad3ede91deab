package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Collection 向量集合数据模型
// 一个持久化目录中可以有多个按名称区分的集合
type Collection struct {
	ID        string         `gorm:"primaryKey"`           // 集合ID，主键
	Name      string         `gorm:"not null;uniqueIndex"` // 集合名称
	Dimension int            `gorm:"not null;default:0"`   // 向量维度，0表示尚未写入向量
	Distance  string         `gorm:"size:20;not null"`     // 距离度量
	CreatedAt time.Time      `gorm:"not null"`             // 创建时间
	UpdatedAt time.Time      `gorm:"not null"`             // 更新时间
	Metadata  datatypes.JSON `gorm:"type:json"`            // 附加信息，记录嵌入模型名称
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *Collection) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (c *Collection) BeforeUpdate(tx *gorm.DB) (err error) {
	c.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Collection) TableName() string {
	return "collections"
}

// Embedding 向量记录数据模型
// 保存一个文本片段、它的向量和元数据
type Embedding struct {
	ID           string         `gorm:"primaryKey"`                                   // 记录ID，主键
	CollectionID string         `gorm:"not null;index:idx_collection_seq,priority:1"` // 所属集合ID
	Seq          int64          `gorm:"not null;index:idx_collection_seq,priority:2"` // 集合内的插入顺序
	Source       string         `gorm:"not null;index"`                               // 来源文件
	Position     int            `gorm:"not null"`                                     // 在来源中的片段位置
	Text         string         `gorm:"type:text;not null"`                           // 文本内容
	Vector       []byte         `gorm:"not null"`                                     // 小端序float32向量
	Metadata     datatypes.JSON `gorm:"type:json"`                                    // 元数据，JSON格式
	CreatedAt    time.Time      `gorm:"not null"`                                     // 创建时间
}

// BeforeCreate GORM的钩子函数
func (e *Embedding) BeforeCreate(tx *gorm.DB) (err error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (Embedding) TableName() string {
	return "embeddings"
}
