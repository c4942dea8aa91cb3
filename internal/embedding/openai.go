package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// 默认API端点
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	// 默认模型
	defaultOpenAIModel = "text-embedding-ada-002"
)

// OpenAIClient OpenAI兼容嵌入API客户端
// 任何实现 /embeddings 接口的服务都可以通过BaseURL接入
type OpenAIClient struct {
	apiKey     string       // API密钥
	baseURL    string       // API基础URL
	model      string       // 模型名称
	httpClient *http.Client // HTTP客户端
	maxRetries int          // 最大重试次数
	dimensions int          // 期望的向量维度
	batchSize  int          // 批处理大小上限
}

// openaiEmbeddingRequest /embeddings 请求体
type openaiEmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// openaiEmbeddingResponse /embeddings 响应体
type openaiEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient 创建一个新的OpenAI兼容嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	// API密钥在这里校验，缺失凭证表现为嵌入阶段的错误
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Dimensions 返回期望的向量维度
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}

// Embed 生成单条文本的向量表示
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
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
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.batchSize {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("batch size %d exceeds limit %d", len(texts), c.batchSize))
	}
	for _, text := range texts {
		if text == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	reqData := openaiEmbeddingRequest{
		Model:          c.model,
		Input:          texts,
		EncodingFormat: "float",
	}

	var resp openaiEmbeddingResponse
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", resp.Error.Message, resp.Error.Type))
	}

	// 响应形状校验：条数必须与输入一致，不信任服务端隐式保证
	if len(resp.Data) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeMalformedResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, NewEmbeddingError(ErrCodeMalformedResponse,
				fmt.Sprintf("embedding index %d out of range", item.Index))
		}
		// 显式的维度校验，长度不符的向量立刻失败而不是向下游传播
		if err := validateVector(item.Embedding, c.dimensions); err != nil {
			return nil, err
		}
		result[item.Index] = item.Embedding
	}

	for i, vec := range result {
		if vec == nil {
			return nil, NewEmbeddingError(ErrCodeMalformedResponse,
				fmt.Sprintf("missing embedding for input %d", i))
		}
	}

	return result, nil
}

// sendRequest 发送API请求并解析响应，速率受限时带指数退避重试
func (c *OpenAIClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	maxRetries := c.maxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	url := c.baseURL + "/embeddings"

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return NewEmbeddingError(ErrCodeInvalidRequest,
				fmt.Sprintf("failed to create request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
				return NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
			}
			return NewEmbeddingError(ErrCodeNetworkError,
				fmt.Sprintf("%s: %v", ErrMsgNetworkError, err))
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return NewEmbeddingError(ErrCodeNetworkError,
				fmt.Sprintf("failed to read response: %v", readErr))
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, respObj); err != nil {
				return NewEmbeddingError(ErrCodeMalformedResponse,
					fmt.Sprintf("failed to decode response: %v", err))
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt < maxRetries {
				// 指数退避后重试
				wait := time.Duration(1<<uint(attempt+1)) * time.Second
				select {
				case <-ctx.Done():
					return NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
				case <-time.After(wait):
				}
				continue
			}
			return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
		case resp.StatusCode >= 500:
			return NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("%s: status %d", ErrMsgServerError, resp.StatusCode))
		default:
			return NewEmbeddingError(ErrCodeInvalidRequest,
				fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
		}
	}
}

// isTimeoutError 检查是否为超时错误
func isTimeoutError(err error) bool {
	type timeout interface {
		Timeout() bool
	}
	var te timeout
	return errors.As(err, &te) && te.Timeout()
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
