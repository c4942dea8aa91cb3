package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// DashScope原生嵌入接口端点
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	// 通义千问默认嵌入模型
	defaultTongyiModel = "text-embedding-v1"
)

// DashScopeRequest DashScope请求结构体
type DashScopeRequest struct {
	Model      string                `json:"model"`
	Input      DashScopeRequestInput `json:"input"`
	Parameters *DashScopeParameters  `json:"parameters,omitempty"`
}

type DashScopeRequestInput struct {
	Texts []string `json:"texts"`
}

type DashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// dashScopeResponse DashScope响应结构体
type dashScopeResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// TongyiClient 通义千问嵌入API客户端
type TongyiClient struct {
	apiKey     string       // API密钥
	endpoint   string       // API端点
	model      string       // 模型名称
	httpClient *http.Client // HTTP客户端
	dimensions int          // 期望的向量维度
	batchSize  int          // 批处理大小上限
}

// NewTongyiClient 创建新的通义千问嵌入客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}

	model := cfg.Model
	if model == "" || model == defaultOpenAIModel {
		model = defaultTongyiModel
	}

	dimensions := cfg.Dimensions
	if dimensions == 1536 {
		dimensions = 1024 // 通义模型的默认输出维度
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > 25 {
		// v1/v2模型每批最多25条文本
		batchSize = 25
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dimensions: dimensions,
		batchSize:  batchSize,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Dimensions 返回期望的向量维度
func (c *TongyiClient) Dimensions() int {
	return c.dimensions
}

// Embed 生成单条文本的向量表示
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeMalformedResponse, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.batchSize {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("batch size %d exceeds limit %d", len(texts), c.batchSize))
	}

	reqData := DashScopeRequest{
		Model: c.model,
		Input: DashScopeRequestInput{Texts: texts},
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
			return nil, NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
		}
		return nil, NewEmbeddingError(ErrCodeNetworkError,
			fmt.Sprintf("%s: %v", ErrMsgNetworkError, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeNetworkError,
			fmt.Sprintf("failed to read response: %v", err))
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	case httpResp.StatusCode >= 500:
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("%s: status %d", ErrMsgServerError, httpResp.StatusCode))
	case httpResp.StatusCode != http.StatusOK:
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("unexpected status %d: %s", httpResp.StatusCode, string(body)))
	}

	var resp dashScopeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewEmbeddingError(ErrCodeMalformedResponse,
			fmt.Sprintf("failed to decode response: %v", err))
	}

	if resp.Code != "" {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", resp.Message, resp.Code))
	}

	if len(resp.Output.Embeddings) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeMalformedResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Output.Embeddings)))
	}

	// 按照原始文本顺序构建结果并校验每个向量的形状
	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			return nil, NewEmbeddingError(ErrCodeMalformedResponse,
				fmt.Sprintf("embedding index %d out of range", emb.TextIndex))
		}
		if err := validateVector(emb.Embedding, c.dimensions); err != nil {
			return nil, err
		}
		result[emb.TextIndex] = emb.Embedding
	}

	for i, vec := range result {
		if vec == nil {
			return nil, NewEmbeddingError(ErrCodeMalformedResponse,
				fmt.Sprintf("missing embedding for input %d", i))
		}
	}

	return result, nil
}

// 在包初始化时注册通义千问客户端
func init() {
	RegisterClient("tongyi", NewTongyiClient)
	RegisterClient("dashscope", NewTongyiClient)
}
