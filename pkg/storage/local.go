package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage 本地文件存储实现
// 键是相对于基础路径的文件路径；基础路径为空时键按原样使用
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径，为空表示直接使用文件路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.Path == "" {
		return &LocalStorage{}, nil
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: absPath,
	}, nil
}

// resolve 将键转换为文件系统路径
func (s *LocalStorage) resolve(key string) string {
	if s.basePath == "" || filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.basePath, key)
}

// Get 打开文件，错误原样返回
func (s *LocalStorage) Get(key string) (io.ReadCloser, error) {
	return os.Open(s.resolve(key))
}

// List 列出前缀目录下的所有文件
func (s *LocalStorage) List(prefix string) ([]FileInfo, error) {
	root := s.resolve(prefix)
	if root == "" {
		root = "."
	}
	keepPath := s.basePath == "" || filepath.IsAbs(prefix)

	var files []FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		key := path
		if !keepPath {
			if key, err = filepath.Rel(s.basePath, path); err != nil {
				return err
			}
		}

		files = append(files, FileInfo{
			Key:      key,
			Name:     d.Name(),
			Size:     info.Size(),
			MimeType: getMimeType(d.Name()),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(key string) (bool, error) {
	info, err := os.Stat(s.resolve(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}
