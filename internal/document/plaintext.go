package document

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// PlainTextParser 纯文本解析器
// 纯文本没有页的概念，整个文件作为第1页返回
type PlainTextParser struct{}

// NewPlainTextParser 创建一个新的纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 解析纯文本文件
func (p *PlainTextParser) Parse(filePath string) ([]Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to open text file: %v", err))
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析纯文本内容
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) ([]Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, NewParseError(ErrCodeReadFailure,
			fmt.Sprintf("failed to read text content: %v", err))
	}

	if !utf8.Valid(content) {
		return nil, NewParseError(ErrCodeCorruptDocument,
			"text content is not valid UTF-8")
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return []Page{}, nil
	}

	return []Page{{Number: 1, Text: text}}, nil
}
