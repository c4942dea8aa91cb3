package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF文档解析器
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// 提取出的内容文件名中的页码，例如 "doc_Content_page_12.txt"
var pageNumberPattern = regexp.MustCompile(`(\d+)\.txt$`)

// Parse 解析PDF文件并按页提取文本内容
// 返回的页面序列从第1页开始连续编号，没有可提取文本的页为空文本页
func (p *PDFParser) Parse(filePath string) ([]Page, error) {
	conf := model.NewDefaultConfiguration()

	// 先获取物理页数，保证输出页码连续
	pageCount, err := api.PageCountFile(filePath)
	if err != nil {
		return nil, translatePdfcpuError(err)
	}
	if pageCount == 0 {
		return []Page{}, nil
	}

	// 创建临时目录用于存放提取的文本
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to create temp dir: %v", err))
	}
	defer os.RemoveAll(tmpDir)

	// 提取各页文本到临时目录，每页一个txt文件
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return nil, translatePdfcpuError(err)
	}

	// 读取提取结果，按文件名中的页码归位
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to read extracted text dir: %v", err))
	}

	textByPage := make(map[int]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}

		m := pageNumberPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > pageCount {
			continue
		}

		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			continue
		}
		textByPage[num] = strings.TrimSpace(string(data))
	}

	// 构造连续的页面序列，缺失的页作为空文本页保留
	pages := make([]Page, pageCount)
	for i := 1; i <= pageCount; i++ {
		pages[i-1] = Page{
			Number: i,
			Text:   textByPage[i],
		}
	}

	return pages, nil
}

// ParseReader 从Reader解析PDF内容
// PDF解析需要随机访问，先落盘为临时文件再解析
func (p *PDFParser) ParseReader(r io.Reader, filename string) ([]Page, error) {
	tmpFile, err := os.CreateTemp("", "pdf_parse_*.pdf")
	if err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to create temp file: %v", err))
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to buffer pdf content: %v", err))
	}
	if err := tmpFile.Close(); err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to flush pdf content: %v", err))
	}

	return p.Parse(tmpFile.Name())
}

// translatePdfcpuError 将pdfcpu错误翻译为ParseError
func translatePdfcpuError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "encrypt") || strings.Contains(lower, "password") {
		return NewParseError(ErrCodeEncrypted, msg)
	}
	return NewParseError(ErrCodeCorruptDocument, msg)
}
