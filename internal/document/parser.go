package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// 常用错误定义
var (
	ErrUnsupportedType     = errors.New("unsupported document type")
	ErrInvalidSplitMethod  = errors.New("invalid splitting method, use 'chunk' or 'paragraph'")
	ErrInvalidSplitOptions = errors.New("invalid split options")
)

// 元数据键
const (
	MetaSource     = "source"      // 源文件路径
	MetaPage       = "page"        // 页码（从0开始）
	MetaTotalPages = "total_pages" // 总页数
	MetaLoader     = "loader"      // 使用的加载器
	MetaStartIndex = "start_index" // 片段在页面中的起始偏移（字符）
	MetaChunkIndex = "chunk_index" // 片段在页面中的序号
	MetaTokenCount = "token_count" // 片段的token数量（仅paragraph模式）
)

// Document 页面级文本记录
// 读取阶段每页生成一个，分段阶段每个片段生成一个
type Document struct {
	PageContent string         // 文本内容
	Metadata    map[string]any // 元数据，例如来源路径和页码
}

// NewDocument 创建文档，元数据会被复制
func NewDocument(content string, metadata map[string]any) Document {
	return Document{
		PageContent: content,
		Metadata:    cloneMetadata(metadata),
	}
}

// Source 返回文档的来源路径
func (d Document) Source() string {
	if v, ok := d.Metadata[MetaSource].(string); ok {
		return v
	}
	return ""
}

// cloneMetadata 复制元数据映射
func cloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+2)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Loader 页面加载器接口
// 负责将不同格式的文件解析为按页划分的文档
type Loader interface {
	// Load 从文件路径加载文档
	Load(filePath string) ([]Document, error)

	// LoadReader 从Reader加载文档
	// source用于填写元数据中的来源
	LoadReader(r io.Reader, source string) ([]Document, error)

	// Name 返回加载器名称
	Name() string
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// PDF加载器名称
const (
	LoaderLedongthuc = "ledongthuc"
	LoaderPDFCPU     = "pdfcpu"
)

// LoaderFactory 根据文件类型创建对应的加载器
// pdfLoader指定PDF使用的加载器，为空时使用ledongthuc
func LoaderFactory(filePath string, pdfLoader string) (Loader, error) {
	switch detectContentType(filePath) {
	case PDF:
		if pdfLoader == LoaderPDFCPU {
			return NewPDFCPULoader(), nil
		}
		return NewPDFLoader(), nil
	case Markdown:
		return NewMarkdownLoader(), nil
	case PlainText:
		return NewPlainTextLoader(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// pageDocuments 将页面文本列表转换为文档
func pageDocuments(pages []string, source, loader string) []Document {
	docs := make([]Document, 0, len(pages))
	for i, text := range pages {
		docs = append(docs, Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaSource:     source,
				MetaPage:       i,
				MetaTotalPages: len(pages),
				MetaLoader:     loader,
			},
		})
	}
	return docs
}
