package storage

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// 存储类型
const (
	TypeLocal = "local"
	TypeMinio = "minio"
)

// FileInfo 文件元数据结构
type FileInfo struct {
	Key      string    // 文件键，本地存储为相对路径，MinIO为对象名
	Name     string    // 文件名
	Size     int64     // 文件大小(字节)
	MimeType string    // 文件MIME类型
	ModTime  time.Time // 最后修改时间
}

// Storage 源文件存储接口
// 流水线通过它读取待处理的文档，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Get 获取文件内容
	// 文件不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)
	Get(key string) (io.ReadCloser, error)

	// List 列出前缀下的所有文件，返回的键可以直接传给 Get
	List(prefix string) ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(key string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string      // 存储类型：local 或 minio
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO存储配置
}

// New 根据配置创建存储实现
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return NewLocalStorage(cfg.Local)
	case TypeMinio:
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// getMimeType 简单根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
