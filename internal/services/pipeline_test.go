package services

import (
	"context"
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/rag-data-pipeline/internal/document"
	"github.com/fyerfyer/rag-data-pipeline/internal/vectorstore"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbeddingClient 词袋哈希向量
type testEmbeddingClient struct {
	dimension int
	err       error
}

func (c *testEmbeddingClient) Name() string { return "test-embedding" }

func (c *testEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *testEmbeddingClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, c.dimension)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%uint32(c.dimension)]++
		}
		out[i] = vec
	}
	return out, nil
}

// setupPipelineTestEnv 准备源文件和流水线组件
func setupPipelineTestEnv(t *testing.T, embedder *testEmbeddingClient) ([]string, *vectorstore.Store, *logrus.Logger, *test.Hook) {
	t.Helper()
	dir := t.TempDir()

	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	require.NoError(t, os.WriteFile(first,
		[]byte("Small language models struggle as prompt optimizers.\fVector stores keep embeddings for retrieval."), 0644))
	require.NoError(t, os.WriteFile(second,
		[]byte("Cats sleep most of the day in warm places."), 0644))

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := vectorstore.DefaultConfig()
	cfg.Backend = "memory"
	cfg.PersistDirectory = ""
	store, err := vectorstore.New(cfg, embedder, vectorstore.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return []string{first, second}, store, logger, hook
}

// openWith 返回固定集合的打开函数
func openWith(store VectorStore) StoreOpener {
	return func(context.Context) (VectorStore, error) {
		return store, nil
	}
}

func newTestPipeline(sources []string, store VectorStore, logger *logrus.Logger, opts ...PipelineOption) *Pipeline {
	reader := document.NewReader(document.WithReaderLogger(logger))
	splitter := document.NewSplitter(logger)

	splitOpts := document.DefaultSplitOptions()
	splitOpts.ChunkSize = 500
	splitOpts.ChunkOverlap = 100

	base := []PipelineOption{
		WithSources(sources...),
		WithSplitOptions(splitOpts),
		WithLogger(logger),
	}
	return NewPipeline(reader, splitter, openWith(store), append(base, opts...)...)
}

// TestPipelineRun 测试完整流程
func TestPipelineRun(t *testing.T) {
	sources, store, logger, hook := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	query := "Cats sleep most of the day in warm places."
	p := newTestPipeline(sources, store, logger, WithQuery(query, 2))

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 3, report.Fragments)
	assert.Equal(t, 3, report.Stored)
	require.Len(t, report.Results, 2)
	assert.Equal(t, query, report.Results[0].Content, "完全相同的文本应该排在第一位")
	assert.LessOrEqual(t, report.Results[0].Distance, report.Results[1].Distance)

	var stages []Stage
	for _, rec := range report.Stages {
		stages = append(stages, rec.Stage)
	}
	assert.Equal(t, []Stage{StageReading, StageSplitting, StageStoring, StageQuerying}, stages)
	assert.Equal(t, StageCompleted, report.Status)
	assert.Empty(t, report.FailedStage)
	assert.NoError(t, report.Err)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Split into 3 fragment(s)")
	assert.Contains(t, messages, "Query returned 2 result(s)")
}

// TestPipelineTopKLargerThanCollection k大于集合大小时返回全部
func TestPipelineTopKLargerThanCollection(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	p := newTestPipeline(sources, store, logger, WithQuery("prompt optimizers", 10))
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Results, 3)
}

// TestPipelineMissingSource 源文件不存在时中止
func TestPipelineMissingSource(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	p := newTestPipeline(append([]string{missing}, sources...), store, logger, WithQuery("anything", 3))
	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	require.NotNil(t, report)
	assert.Zero(t, report.Stored)
	assert.Equal(t, StageFailed, report.Status)
	assert.Equal(t, StageReading, report.FailedStage)
	assert.ErrorIs(t, report.Err, fs.ErrNotExist)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "读取失败时不应写入任何片段")
}

// TestPipelineReadFailureKeepsCollection 读取失败时不打开集合，重建模式也不会删除已有数据
func TestPipelineReadFailureKeepsCollection(t *testing.T) {
	embedder := &testEmbeddingClient{dimension: 32}
	logger, _ := test.NewNullLogger()

	cfg := vectorstore.DefaultConfig()
	cfg.PersistDirectory = t.TempDir()
	existing, err := vectorstore.New(cfg, embedder, vectorstore.WithLogger(logger))
	require.NoError(t, err)
	stored, err := existing.AddTexts(context.Background(), []document.Document{
		document.NewDocument("previous run fragment", map[string]any{document.MetaSource: "old.txt"}),
	})
	require.NoError(t, err)
	require.Equal(t, 1, stored)
	require.NoError(t, existing.Close())

	opened := false
	opener := func(context.Context) (VectorStore, error) {
		opened = true
		return vectorstore.New(cfg, embedder, vectorstore.WithLogger(logger))
	}

	missing := filepath.Join(t.TempDir(), "missing.pdf")
	p := NewPipeline(document.NewReader(document.WithReaderLogger(logger)), document.NewSplitter(logger), opener,
		WithSources(missing), WithLogger(logger))
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, opened, "读取失败时不应打开集合")

	reuse := cfg
	reuse.Mode = vectorstore.ModeReuse
	reopened, err := vectorstore.New(reuse, embedder, vectorstore.WithLogger(logger))
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestPipelineOpenStoreFailure 集合打开失败时报告写入阶段
func TestPipelineOpenStoreFailure(t *testing.T) {
	sources, _, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})
	openErr := errors.New("collection locked")

	reader := document.NewReader(document.WithReaderLogger(logger))
	p := NewPipeline(reader, document.NewSplitter(logger), func(context.Context) (VectorStore, error) {
		return nil, openErr
	}, WithSources(sources...), WithLogger(logger))

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, openErr)
	assert.Equal(t, 3, report.Fragments)
	assert.Equal(t, StageStoring, report.FailedStage)
}

// TestPipelineSourceDirectory 目录形式的来源展开为其中的文件
func TestPipelineSourceDirectory(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})
	dir := filepath.Dir(sources[0]) + "/"

	report, err := newTestPipeline([]string{dir}, store, logger, WithQuery("", 0)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sources, report.Sources)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 3, report.Stored)

	// 没有可读文件的目录
	empty := t.TempDir() + "/"
	report, err = newTestPipeline([]string{empty}, store, logger).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StageReading, report.FailedStage)
}

// TestPipelineEmbeddingFailure 嵌入失败时返回错误
func TestPipelineEmbeddingFailure(t *testing.T) {
	providerErr := errors.New("provider unavailable")
	sources, store, logger, hook := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32, err: providerErr})

	p := newTestPipeline(sources, store, logger, WithQuery("anything", 3))
	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, providerErr))
	assert.Equal(t, 3, report.Fragments)
	assert.Zero(t, report.Stored)
	assert.Nil(t, report.Results)
	assert.Equal(t, StageStoring, report.FailedStage)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, "Pipeline failed", last.Message)
}

// TestPipelineInvalidSplitMethod 无效分段方法快速失败
func TestPipelineInvalidSplitMethod(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	opts := document.DefaultSplitOptions()
	opts.Method = "sentence"
	p := newTestPipeline(sources, store, logger, WithSplitOptions(opts))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrInvalidSplitMethod))
}

// TestPipelineWithoutQuery 未配置问题时跳过检索
func TestPipelineWithoutQuery(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	p := newTestPipeline(sources, store, logger, WithQuery("", 3))
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stored)
	assert.Empty(t, report.Results)
	assert.Len(t, report.Stages, 3)
}

// TestPipelineNoSources 未配置源文件
func TestPipelineNoSources(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPipeline(document.NewReader(), document.NewSplitter(logger), nil, WithLogger(logger))
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}

// TestPipelineCanceled 取消的上下文在读取阶段中止
func TestPipelineCanceled(t *testing.T) {
	sources, store, logger, _ := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(sources, store, logger)
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// TestPipelinePreviewChars 预览长度跟随配置，默认输出全文
func TestPipelinePreviewChars(t *testing.T) {
	sources, store, logger, hook := setupPipelineTestEnv(t, &testEmbeddingClient{dimension: 32})

	previews := func() []string {
		var out []string
		for _, e := range hook.AllEntries() {
			if strings.HasPrefix(e.Message, "Fragment preview: ") {
				out = append(out, strings.TrimPrefix(e.Message, "Fragment preview: "))
			}
		}
		return out
	}

	_, err := newTestPipeline(sources, store, logger, WithQuery("", 0), WithPreviewChunks(1)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, previews(), 1)
	assert.Equal(t, "Small language models struggle as prompt optimizers.", previews()[0])

	hook.Reset()
	_, err = newTestPipeline(sources, store, logger, WithQuery("", 0), WithPreviewChunks(1), WithPreviewChars(5)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, previews(), 1)
	assert.Equal(t, "Small...", previews()[0])
}

// TestTruncate 测试预览截断
func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "full text", truncate("full text", 0))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "数据...", truncate("数据流水线", 2))
}
