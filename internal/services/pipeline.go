package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/rag-data-pipeline/internal/document"
	"github.com/fyerfyer/rag-data-pipeline/internal/vectorstore"
	"github.com/sirupsen/logrus"
)

// DocumentReader 按页读取源文件
type DocumentReader interface {
	ResolveSources(ctx context.Context, sources []string) ([]string, error)
	Read(ctx context.Context, path string) ([]document.Document, error)
}

// DocumentSplitter 把页面分割成片段
type DocumentSplitter interface {
	SplitDocuments(docs []document.Document, opts document.SplitOptions) ([]document.Document, error)
}

// VectorStore 片段的向量集合
type VectorStore interface {
	AddTexts(ctx context.Context, fragments []document.Document) (int, error)
	Query(ctx context.Context, text string, k int) ([]vectorstore.Result, error)
}

// StoreOpener 打开向量集合
// 在写入阶段开始时才调用，读取或分割失败时不会触碰已有集合
type StoreOpener func(ctx context.Context) (VectorStore, error)

// RunReport 一次运行的结果
type RunReport struct {
	Sources     []string             // 展开后实际读取的源文件
	Pages       int                  // 读取的页面数
	Fragments   int                  // 分割出的片段数
	Stored      int                  // 写入集合的片段数
	Results     []vectorstore.Result // 检索结果
	Stages      []StageRecord        // 各阶段的执行记录
	Status      Stage                // 最终状态：completed 或 failed
	FailedStage Stage                // 失败时所处的阶段
	Err         error                // 失败原因
}

// Pipeline 数据流水线
// 依次执行 读取 → 分割 → 嵌入写入 → 检索
type Pipeline struct {
	reader        DocumentReader
	splitter      DocumentSplitter
	openStore     StoreOpener
	sources       []string
	splitOptions  document.SplitOptions
	query         string
	topK          int
	previewChunks int
	previewChars  int
	logger        *logrus.Logger
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// WithSources 设置源文件列表
func WithSources(sources ...string) PipelineOption {
	return func(p *Pipeline) {
		p.sources = append([]string(nil), sources...)
	}
}

// WithSplitOptions 设置分段参数
func WithSplitOptions(opts document.SplitOptions) PipelineOption {
	return func(p *Pipeline) {
		p.splitOptions = opts
	}
}

// WithQuery 设置检索问题和返回数量
func WithQuery(text string, k int) PipelineOption {
	return func(p *Pipeline) {
		p.query = text
		p.topK = k
	}
}

// WithPreviewChunks 设置日志中展示的片段数
func WithPreviewChunks(n int) PipelineOption {
	return func(p *Pipeline) {
		if n >= 0 {
			p.previewChunks = n
		}
	}
}

// WithPreviewChars 设置预览文本的最大字符数，n<=0 时输出全文
func WithPreviewChars(n int) PipelineOption {
	return func(p *Pipeline) {
		p.previewChars = n
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline 创建数据流水线
func NewPipeline(reader DocumentReader, splitter DocumentSplitter, openStore StoreOpener, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		reader:        reader,
		splitter:      splitter,
		openStore:     openStore,
		splitOptions:  document.DefaultSplitOptions(),
		topK:          vectorstore.DefaultK,
		previewChunks: 2,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run 执行一次完整的流水线
// 任一源文件读取失败立即中止；未配置检索问题时跳过检索
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if len(p.sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	tracker := NewStatusTracker(p.logger)
	report := &RunReport{}
	fail := func(err error) (*RunReport, error) {
		tracker.Fail(err)
		report.Stages = tracker.Records()
		report.Status = tracker.Current()
		report.FailedStage = tracker.FailedAt()
		report.Err = tracker.Err()
		return report, err
	}

	// 读取
	if err := tracker.Begin(StageReading); err != nil {
		return fail(err)
	}
	sources, err := p.reader.ResolveSources(ctx, p.sources)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve sources: %w", err))
	}
	if len(sources) == 0 {
		return fail(errors.New("no readable files found in sources"))
	}
	report.Sources = sources

	var pages []document.Document
	for _, src := range sources {
		docs, err := p.reader.Read(ctx, src)
		if err != nil {
			return fail(fmt.Errorf("failed to read %s: %w", src, err))
		}
		pages = append(pages, docs...)
	}
	report.Pages = len(pages)
	tracker.Finish(len(pages))

	// 分割
	if err := tracker.Begin(StageSplitting); err != nil {
		return fail(err)
	}
	fragments, err := p.splitter.SplitDocuments(pages, p.splitOptions)
	if err != nil {
		return fail(fmt.Errorf("failed to split documents: %w", err))
	}
	report.Fragments = len(fragments)
	tracker.Finish(len(fragments))

	p.logger.Infof("Split into %d fragment(s)", len(fragments))
	for i := 0; i < p.previewChunks && i < len(fragments); i++ {
		p.logger.WithFields(logrus.Fields{
			"index":  i,
			"source": fragments[i].Source(),
		}).Infof("Fragment preview: %s", truncate(fragments[i].PageContent, p.previewChars))
	}

	// 嵌入并写入
	if err := tracker.Begin(StageStoring); err != nil {
		return fail(err)
	}
	if p.openStore == nil {
		return fail(errors.New("no vector store configured"))
	}
	store, err := p.openStore(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open vector store: %w", err))
	}
	stored, err := store.AddTexts(ctx, fragments)
	if err != nil {
		return fail(err)
	}
	report.Stored = stored
	tracker.Finish(stored)

	// 检索
	if p.query != "" {
		if err := tracker.Begin(StageQuerying); err != nil {
			return fail(err)
		}
		results, err := store.Query(ctx, p.query, p.topK)
		if err != nil {
			return fail(err)
		}
		report.Results = results
		tracker.Finish(len(results))

		p.logger.Infof("Query returned %d result(s)", len(results))
		for i, r := range results {
			p.logger.WithFields(logrus.Fields{
				"rank":     i + 1,
				"distance": r.Distance,
				"score":    r.Score,
				"source":   r.Metadata[document.MetaSource],
			}).Infof("Result: %s", truncate(r.Content, p.previewChars))
		}
	}

	if err := tracker.Complete(); err != nil {
		return fail(err)
	}
	report.Stages = tracker.Records()
	report.Status = tracker.Current()
	return report, nil
}

// truncate 截取前n个字符，n<=0 时返回原文
func truncate(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
