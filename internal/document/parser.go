package document

import (
	"io"
	"path/filepath"
	"strings"
)

// Page 文档的单个物理页
// 页码从1开始且连续，顺序必须与文档顺序一致
type Page struct {
	Number int    // 页码(1起始)
	Text   string // 页面文本内容，可能为空
}

// Parser 文档解析器接口
// 负责将不同格式的文档解析为有序的页面序列
// 零页文档返回空切片而不是错误，空文档由下游显式处理
type Parser interface {
	// Parse 解析文档，返回按文档顺序排列的页面
	Parse(filePath string) ([]Page, error)

	// ParseReader 从Reader解析文档
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) ([]Page, error)
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

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	contentType := detectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, NewParseError(ErrCodeUnsupportedType,
			"unsupported document type: "+filepath.Ext(filePath))
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

// Chunk 从页面分割出的文本块
// 一个块永远不会跨越两个页面
type Chunk struct {
	PageNumber int    // 来源页码
	Text       string // 原始块文本
	Truncated  string // 截断后的元数据副本，字节数不超过固定预算
}

// Splitter 文本分段器接口
// 负责将页面文本分割成适合向量化的小块
type Splitter interface {
	// SplitPage 将页面分割成块，空文本页面产生零个块
	SplitPage(page Page) ([]Chunk, error)
}
