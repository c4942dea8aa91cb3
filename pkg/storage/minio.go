package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO对象存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例
// 凭证缺失在这里不报错，而是在首次操作时以FetchError形式暴露
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	if cfg.Endpoint == "" {
		return nil, NewFetchError(ErrCodeInvalidConfig, "", "minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, NewFetchError(ErrCodeInvalidConfig, "", "minio bucket is required")
	}

	// 创建MinIO客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, NewFetchError(ErrCodeInvalidConfig, "", fmt.Sprintf("failed to create MinIO client: %v", err))
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Save 上传对象到MinIO存储
// 对象键格式与前端上传约定一致: uploads/<时间戳>-<文件名>
func (s *MinioStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	key := buildObjectKey(filename)
	contentType := getMimeType(filename)

	// 大小未知时传-1，minio-go会自动使用分片上传
	info, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		reader,
		-1,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, translateMinioError(err, key)
	}

	return FileInfo{
		Key:      key,
		Name:     filename,
		Size:     info.Size,
		MimeType: contentType,
	}, nil
}

// Fetch 将对象流式下载到本地临时文件
// 返回的清理函数负责删除临时副本，调用方必须在所有退出路径上调用它
func (s *MinioStorage) Fetch(ctx context.Context, key string) (string, CleanupFunc, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return "", nil, translateMinioError(err, key)
	}
	defer obj.Close()

	// GetObject是延迟求值的，先Stat确认对象可读
	if _, err := obj.Stat(); err != nil {
		return "", nil, translateMinioError(err, key)
	}

	// 保留扩展名，下游解析器靠它识别文档类型
	tmpFile, err := os.CreateTemp("", "ingest-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, NewFetchError(ErrCodeUnreadableBody, key,
			fmt.Sprintf("failed to create temp file: %v", err))
	}

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	// 流式拷贝，避免把整个对象读进内存
	if _, err := io.Copy(tmpFile, obj); err != nil {
		tmpFile.Close()
		cleanup()
		return "", nil, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("transfer interrupted: %v", err))
	}

	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", nil, NewFetchError(ErrCodeTransferFailed, key,
			fmt.Sprintf("failed to flush temp file: %v", err))
	}

	return tmpFile.Name(), cleanup, nil
}

// Exists 检查MinIO中是否存在指定键的对象
func (s *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		ferr := translateMinioError(err, key)
		if IsNotFound(ferr) {
			return false, nil
		}
		return false, ferr
	}
	return true, nil
}

// Delete 从MinIO中删除对象
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return translateMinioError(err, key)
	}
	return nil
}

// buildObjectKey 构造对象键: uploads/<毫秒时间戳>-<文件名>
// 文件名中的空格替换为连字符
func buildObjectKey(filename string) string {
	name := strings.ReplaceAll(filepath.Base(filename), " ", "-")
	return fmt.Sprintf("uploads/%d-%s", time.Now().UnixMilli(), name)
}

// translateMinioError 将minio-go错误翻译为FetchError
func translateMinioError(err error, key string) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return NewFetchError(ErrCodeObjectNotFound, key, resp.Message)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return NewFetchError(ErrCodeAccessDenied, key, resp.Message)
		}
	}
	return NewFetchError(ErrCodeTransferFailed, key, err.Error())
}
