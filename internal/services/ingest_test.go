package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyerfyer/pdf-vector-ingest/internal/document"
	"github.com/fyerfyer/pdf-vector-ingest/internal/embedding"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/fyerfyer/pdf-vector-ingest/internal/vectordb"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage 测试用存储实现，Fetch返回预先写好的临时文件
type fakeStorage struct {
	t           *testing.T
	content     []byte
	fetchErr    error
	cleanupDone atomic.Bool
}

func (f *fakeStorage) Save(ctx context.Context, reader io.Reader, filename string) (storage.FileInfo, error) {
	return storage.FileInfo{}, nil
}

func (f *fakeStorage) Fetch(ctx context.Context, key string) (string, storage.CleanupFunc, error) {
	if f.fetchErr != nil {
		return "", nil, f.fetchErr
	}

	path := filepath.Join(f.t.TempDir(), "fetched.pdf")
	require.NoError(f.t, os.WriteFile(path, f.content, 0644))

	cleanup := func() {
		os.Remove(path)
		f.cleanupDone.Store(true)
	}
	return path, cleanup, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	return nil
}

// fakeParser 测试用解析器，返回固定页面序列
type fakeParser struct {
	pages []document.Page
	err   error
}

func (p *fakeParser) Parse(filePath string) ([]document.Page, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.pages, nil
}

func (p *fakeParser) ParseReader(r io.Reader, filename string) ([]document.Page, error) {
	return p.Parse(filename)
}

// fakeEmbedder 测试用嵌入客户端，可配置在第N次调用时失败
type fakeEmbedder struct {
	dim     int
	calls   atomic.Int32
	failAt  int32 // 第N次调用失败，0表示不失败
	failErr error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := e.calls.Add(1)
	if e.failAt > 0 && n == e.failAt {
		return nil, e.failErr
	}

	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(len(text)%7) + 0.5
	}
	return vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (e *fakeEmbedder) Name() string { return "fake" }

func (e *fakeEmbedder) Dimensions() int { return e.dim }

// failStore 测试用向量存储，记录Upsert是否被调用
type failStore struct {
	vectordb.Store
	upsertCalled atomic.Bool
}

func (s *failStore) Upsert(ctx context.Context, namespace string, records []vectordb.Record) error {
	s.upsertCalled.Store(true)
	return s.Store.Upsert(ctx, namespace, records)
}

func newTestService(t *testing.T, stg storage.Storage, parser document.Parser, emb embedding.Client, store vectordb.Store) *IngestService {
	t.Helper()

	splitter := document.NewRecursiveSplitter(document.DefaultSplitterConfig())
	svc, err := NewIngestService(stg, splitter, emb, store, WithParser(parser))
	require.NoError(t, err, "创建摄取服务应成功")
	t.Cleanup(svc.Close)
	return svc
}

func newMemStore(t *testing.T, dim int) vectordb.Store {
	t.Helper()
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory", Dimension: dim})
	require.NoError(t, err)
	return store
}

func TestIngest_Success(t *testing.T) {
	ctx := context.Background()

	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{
		{Number: 1, Text: "first page text for retrieval"},
		{Number: 2, Text: "second page text"},
	}}
	emb := &fakeEmbedder{dim: 8}
	store := newMemStore(t, 8)

	svc := newTestService(t, stg, parser, emb, store)

	summary, err := svc.Ingest(ctx, "uploads/1700000000-report.pdf")
	require.NoError(t, err, "摄取应成功")
	require.NotNil(t, summary, "应返回第一个块")

	assert.Equal(t, 1, summary.PageNumber, "摘要应来自第一页")
	assert.Equal(t, "first page text for retrieval", summary.Text)
	assert.Equal(t, document.ContentID(summary.Text), summary.ContentID)

	// 两页各产出一个块
	count, err := store.Count(ctx, vectordb.NamespaceForKey("uploads/1700000000-report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "两页应产出两条记录")

	assert.True(t, stg.cleanupDone.Load(), "临时文件应被释放")
}

func TestIngest_EmptyFileKey(t *testing.T) {
	svc := newTestService(t, &fakeStorage{t: t}, &fakeParser{}, &fakeEmbedder{dim: 8}, newMemStore(t, 8))

	_, err := svc.Ingest(context.Background(), "")
	require.Error(t, err, "空文件键应被拒绝")
}

func TestIngest_ZeroPageDocument(t *testing.T) {
	// 零页文档按无可提取内容完成，不是错误
	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{}}
	emb := &fakeEmbedder{dim: 8}

	svc := newTestService(t, stg, parser, emb, newMemStore(t, 8))

	summary, err := svc.Ingest(context.Background(), "uploads/empty.pdf")
	require.NoError(t, err, "零页文档不应报错")
	assert.Nil(t, summary, "零页文档没有代表块")
	assert.True(t, stg.cleanupDone.Load(), "临时文件应被释放")
	assert.Equal(t, int32(0), emb.calls.Load(), "零页文档不应调用嵌入服务")
}

func TestIngest_AllPagesEmpty(t *testing.T) {
	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: "   "},
	}}

	svc := newTestService(t, stg, parser, &fakeEmbedder{dim: 8}, newMemStore(t, 8))

	summary, err := svc.Ingest(context.Background(), "uploads/blank.pdf")
	require.NoError(t, err, "全空页文档不应报错")
	assert.Nil(t, summary, "没有块时没有代表块")
}

func TestIngest_FetchFailure(t *testing.T) {
	fetchErr := storage.NewFetchError(storage.ErrCodeObjectNotFound, "uploads/missing.pdf", "object not found")
	stg := &fakeStorage{t: t, fetchErr: fetchErr}

	svc := newTestService(t, stg, &fakeParser{}, &fakeEmbedder{dim: 8}, newMemStore(t, 8))

	_, err := svc.Ingest(context.Background(), "uploads/missing.pdf")
	require.Error(t, err)
	assert.Equal(t, models.StageFetching, FailedStage(err), "错误应标记下载阶段")
}

func TestIngest_ParseFailure(t *testing.T) {
	stg := &fakeStorage{t: t, content: []byte("not a pdf")}
	parseErr := document.NewParseError(document.ErrCodeCorruptDocument, "corrupt document")
	parser := &fakeParser{err: parseErr}

	svc := newTestService(t, stg, parser, &fakeEmbedder{dim: 8}, newMemStore(t, 8))

	_, err := svc.Ingest(context.Background(), "uploads/corrupt.pdf")
	require.Error(t, err)
	assert.Equal(t, models.StageParsing, FailedStage(err), "错误应标记解析阶段")
	assert.True(t, stg.cleanupDone.Load(), "解析失败后临时文件也应被释放")
}

func TestIngest_EmbedFailureAbortsRun(t *testing.T) {
	// 5个块中第3次嵌入调用失败：整个运行失败且不执行入库
	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{
		{Number: 1, Text: "chunk one text"},
		{Number: 2, Text: "chunk two text"},
		{Number: 3, Text: "chunk three text"},
		{Number: 4, Text: "chunk four text"},
		{Number: 5, Text: "chunk five text"},
	}}

	embedErr := embedding.NewEmbeddingError(embedding.ErrCodeServerError, "embedding server error")
	emb := &fakeEmbedder{dim: 8, failAt: 3, failErr: embedErr}

	inner := newMemStore(t, 8)
	store := &failStore{Store: inner}

	svc := newTestService(t, stg, parser, emb, store)

	_, err := svc.Ingest(context.Background(), "uploads/doc.pdf")
	require.Error(t, err, "嵌入失败应使整个运行失败")
	assert.Equal(t, models.StageEmbedding, FailedStage(err), "错误应标记向量化阶段")
	assert.False(t, store.upsertCalled.Load(), "嵌入失败时不应执行入库")

	count, err := inner.Count(context.Background(), vectordb.NamespaceForKey("uploads/doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 0, count, "命名空间内不应有任何记录")
}

func TestIngest_LargePageScenario(t *testing.T) {
	// 第1页40KB重复段落文本，第2页为空：
	// 第1页产出至少2个块且页码均为1，第2页产出0个块
	paragraph := strings.Repeat("The quarterly report shows steady growth across all regions. ", 14)
	var sb strings.Builder
	for sb.Len() < 40000 {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}

	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{
		{Number: 1, Text: sb.String()},
		{Number: 2, Text: ""},
	}}
	emb := &fakeEmbedder{dim: 8}
	store := newMemStore(t, 8)

	svc := newTestService(t, stg, parser, emb, store)

	summary, err := svc.Ingest(context.Background(), "uploads/large.pdf")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.PageNumber)

	namespace := vectordb.NamespaceForKey("uploads/large.pdf")
	count, err := store.Count(context.Background(), namespace)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2, "40KB页面应产出至少2个块")

	// 嵌入调用次数等于块数，全部来自第1页
	assert.Equal(t, int32(count), emb.calls.Load(), "每个块恰好嵌入一次")
}

func TestIngest_Idempotence(t *testing.T) {
	// 相同内容重复摄取：命名空间内记录数不变
	stg := &fakeStorage{t: t, content: []byte("pdf bytes")}
	parser := &fakeParser{pages: []document.Page{
		{Number: 1, Text: "stable content for dedup"},
	}}
	store := newMemStore(t, 8)

	svc := newTestService(t, stg, parser, &fakeEmbedder{dim: 8}, store)

	fileKey := "uploads/same.pdf"
	_, err := svc.Ingest(context.Background(), fileKey)
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), fileKey)
	require.NoError(t, err)

	count, err := store.Count(context.Background(), vectordb.NamespaceForKey(fileKey))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "重复摄取相同内容不应产生新记录")
}

func TestIngest_NamespaceDerivation(t *testing.T) {
	// 相同的存储键两次派生出相同的命名空间
	key := "docs/a.pdf"
	assert.Equal(t, vectordb.NamespaceForKey(key), vectordb.NamespaceForKey(key))
}
