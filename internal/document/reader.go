package document

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/fyerfyer/rag-data-pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Reader 文档读取器
// 通过加载器按页读取文件，并对每页文本做清洗
type Reader struct {
	storage      storage.Storage // 源文件存储，为nil时直接读本地路径
	pdfLoader    string          // PDF加载器名称
	previewChars int             // 预览日志的字符数
	logger       *logrus.Logger  // 日志记录器
}

// ReaderOption 读取器配置选项
type ReaderOption func(*Reader)

// WithStorage 设置源文件存储
func WithStorage(s storage.Storage) ReaderOption {
	return func(r *Reader) {
		r.storage = s
	}
}

// WithPDFLoader 设置PDF加载器
func WithPDFLoader(name string) ReaderOption {
	return func(r *Reader) {
		if name != "" {
			r.pdfLoader = name
		}
	}
}

// WithPreviewChars 设置预览字符数
func WithPreviewChars(n int) ReaderOption {
	return func(r *Reader) {
		if n >= 0 {
			r.previewChars = n
		}
	}
}

// WithReaderLogger 设置日志记录器
func WithReaderLogger(logger *logrus.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader 创建文档读取器
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{
		pdfLoader:    LoaderLedongthuc,
		previewChars: 500,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read 读取文件并返回清洗后的页面文档
// 没有任何页面时记录日志并返回nil；打开或解析失败的错误原样返回
func (r *Reader) Read(ctx context.Context, path string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loader, err := LoaderFactory(path, r.pdfLoader)
	if err != nil {
		return nil, err
	}

	docs, err := r.load(loader, path)
	if err != nil {
		return nil, err
	}

	log := r.logger.WithFields(logrus.Fields{
		"source": path,
		"loader": loader.Name(),
	})

	if len(docs) == 0 {
		log.Warn("No documents loaded")
		return nil, nil
	}

	for i := range docs {
		docs[i].PageContent = CleanText(docs[i].PageContent)
	}

	log.Infof("Loaded %d document(s) from the file", len(docs))
	log.Infof("First document content preview: %s", preview(docs[0].PageContent, r.previewChars))

	return docs, nil
}

// ResolveSources 展开目录形式的来源并确认每个文件存在
// 以 "/" 结尾的来源展开为其下所有支持的文件，按键排序；不存在的文件返回 fs.ErrNotExist
func (r *Reader) ResolveSources(ctx context.Context, sources []string) ([]string, error) {
	var src storage.Storage = &storage.LocalStorage{}
	if r.storage != nil {
		src = r.storage
	}

	var resolved []string
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !strings.HasSuffix(source, "/") {
			exists, err := src.Exists(source)
			if err != nil {
				return nil, fmt.Errorf("failed to check %s: %w", source, err)
			}
			if !exists {
				return nil, &fs.PathError{Op: "open", Path: source, Err: fs.ErrNotExist}
			}
			resolved = append(resolved, source)
			continue
		}

		files, err := src.List(source)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", source, err)
		}
		var keys []string
		for _, f := range files {
			if detectContentType(f.Key) != Unknown {
				keys = append(keys, f.Key)
			}
		}
		sort.Strings(keys)

		r.logger.WithFields(logrus.Fields{
			"source": source,
			"files":  len(keys),
		}).Info("Expanded source directory")
		resolved = append(resolved, keys...)
	}
	return resolved, nil
}

// load 从存储或本地路径加载
func (r *Reader) load(loader Loader, path string) ([]Document, error) {
	if r.storage == nil {
		return loader.Load(path)
	}

	rc, err := r.storage.Get(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return loader.LoadReader(rc, path)
}

// preview 截取前n个字符
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
