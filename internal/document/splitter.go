package document

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
)

// SplitMethod 文本分段方法
type SplitMethod string

const (
	// MethodChunk 按字符窗口递归分割
	MethodChunk SplitMethod = "chunk"
	// MethodParagraph 按token数量分割
	MethodParagraph SplitMethod = "paragraph"
)

// 默认分段参数
const (
	DefaultChunkSize         = 1000
	DefaultChunkOverlap      = 200
	DefaultTokenChunkSize    = 4000
	DefaultTokenChunkOverlap = 200
	DefaultEncodingName      = "cl100k_base"
)

// recursiveSeparators 递归分割时依次尝试的分隔符：段落、行、单词、字符
var recursiveSeparators = []string{"\n\n", "\n", " ", ""}

// SplitOptions 分段参数
type SplitOptions struct {
	Method            SplitMethod // 分段方法
	ChunkSize         int         // 分块大小（字符数，chunk模式）
	ChunkOverlap      int         // 分块重叠（字符数，chunk模式）
	TokenChunkSize    int         // 分块大小（token数，paragraph模式）
	TokenChunkOverlap int         // 分块重叠（token数，paragraph模式）
	EncodingName      string      // tiktoken编码名称（paragraph模式）
}

// DefaultSplitOptions 返回默认分段参数
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		Method:            MethodChunk,
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		TokenChunkSize:    DefaultTokenChunkSize,
		TokenChunkOverlap: DefaultTokenChunkOverlap,
		EncodingName:      DefaultEncodingName,
	}
}

// Validate 校验分段参数
func (o SplitOptions) Validate() error {
	switch o.Method {
	case MethodChunk:
		return validateWindow(o.ChunkSize, o.ChunkOverlap)
	case MethodParagraph:
		return validateWindow(o.TokenChunkSize, o.TokenChunkOverlap)
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidSplitMethod, o.Method)
	}
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitOptions, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative, got %d", ErrInvalidSplitOptions, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidSplitOptions, overlap, size)
	}
	return nil
}

// Splitter 文档分段器
// 将页面文档分割成带位置信息的片段
type Splitter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken // 已加载的tiktoken编码
	logger    *logrus.Logger
}

// NewSplitter 创建文档分段器
func NewSplitter(logger *logrus.Logger) *Splitter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Splitter{
		encodings: make(map[string]*tiktoken.Tiktoken),
		logger:    logger,
	}
}

// SplitDocuments 按指定方法分割文档
// 片段按源文档顺序输出，同一文档内按偏移从左到右
func (s *Splitter) SplitDocuments(docs []Document, opts SplitOptions) ([]Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		split   func(text string) ([]string, error)
		counter *tiktoken.Tiktoken
		overlap int
	)

	switch opts.Method {
	case MethodChunk:
		rc := textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(recursiveSeparators),
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		)
		split = rc.SplitText
		overlap = opts.ChunkOverlap
	case MethodParagraph:
		encoding := opts.EncodingName
		if encoding == "" {
			encoding = DefaultEncodingName
		}
		tke, err := s.encoding(encoding)
		if err != nil {
			return nil, err
		}
		ts := textsplitter.NewTokenSplitter(
			textsplitter.WithEncodingName(encoding),
			textsplitter.WithChunkSize(opts.TokenChunkSize),
			textsplitter.WithChunkOverlap(opts.TokenChunkOverlap),
		)
		split = ts.SplitText
		counter = tke
	}

	var fragments []Document
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}

		chunks, err := split(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.Source(), err)
		}

		offsets := locateChunks(doc.PageContent, chunks, overlap)
		for i, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			frag := NewDocument(chunk, doc.Metadata)
			frag.Metadata[MetaStartIndex] = offsets[i]
			frag.Metadata[MetaChunkIndex] = i
			if counter != nil {
				frag.Metadata[MetaTokenCount] = len(counter.Encode(chunk, nil, nil))
			}
			fragments = append(fragments, frag)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"method":    opts.Method,
		"documents": len(docs),
		"fragments": len(fragments),
	}).Debug("Documents split")

	return fragments, nil
}

// encoding 加载并缓存tiktoken编码
func (s *Splitter) encoding(name string) (*tiktoken.Tiktoken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tke, ok := s.encodings[name]; ok {
		return tke, nil
	}
	tke, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %s: %w", name, err)
	}
	s.encodings[name] = tke
	return tke, nil
}

// locateChunks 计算每个片段在原文中的字符偏移，找不到时为-1
// overlap大于0时，下一个片段不会早于上一个片段结尾减去重叠的位置
func locateChunks(text string, chunks []string, overlap int) []int {
	offsets := make([]int, len(chunks))
	prevStart, prevLen := -1, 0

	for i, chunk := range chunks {
		from := 0
		if prevStart >= 0 {
			from = prevStart + 1
			if overlap > 0 {
				if f := prevStart + prevLen - tailBytes(chunks[i-1], overlap); f > from {
					from = f
				}
			}
		}

		idx := -1
		if from <= len(text) {
			if j := strings.Index(text[from:], chunk); j >= 0 {
				idx = from + j
			}
		}
		if idx < 0 && prevStart >= 0 && prevStart+1 <= len(text) {
			if j := strings.Index(text[prevStart+1:], chunk); j >= 0 {
				idx = prevStart + 1 + j
			}
		}

		if idx < 0 {
			offsets[i] = -1
			continue
		}
		offsets[i] = utf8.RuneCountInString(text[:idx])
		prevStart, prevLen = idx, len(chunk)
	}

	return offsets
}

// tailBytes 返回s末尾n个字符占用的字节数
func tailBytes(s string, n int) int {
	size := 0
	for i := 0; i < n && size < len(s); i++ {
		_, w := utf8.DecodeLastRuneInString(s[:len(s)-size])
		size += w
	}
	return size
}
