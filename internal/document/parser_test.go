package document

import (
	"os"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	tmpFile, err := os.CreateTemp("", "ingest-test-*"+ext)
	require.NoError(t, err)
	_, err = tmpFile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

// createTempPDF 生成测试PDF，每个元素对应一页
func createTempPDF(t *testing.T, pageTexts []string) string {
	tmpFile, err := os.CreateTemp("", "ingest-test-*.pdf")
	require.NoError(t, err)
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pageTexts {
		pdf.AddPage()
		if text != "" {
			pdf.MultiCell(0, 10, text, "", "", false)
		}
	}
	require.NoError(t, pdf.Output(tmpFile))

	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

// TestPDFParser 测试PDF按页解析
func TestPDFParser(t *testing.T) {
	parser := NewPDFParser()

	t.Run("multi page ordering", func(t *testing.T) {
		file := createTempPDF(t, []string{
			"alpha content on page one",
			"beta content on page two",
			"gamma content on page three",
		})

		pages, err := parser.Parse(file)
		require.NoError(t, err)
		require.Len(t, pages, 3, "应该解析出3个页面")

		// 页码从1开始且连续
		for i, page := range pages {
			assert.Equal(t, i+1, page.Number, "页码必须连续")
		}
		assert.Contains(t, pages[0].Text, "alpha")
		assert.Contains(t, pages[1].Text, "beta")
		assert.Contains(t, pages[2].Text, "gamma")
	})

	t.Run("blank page kept as empty text", func(t *testing.T) {
		file := createTempPDF(t, []string{"only page one has text", ""})

		pages, err := parser.Parse(file)
		require.NoError(t, err)
		require.Len(t, pages, 2, "空白页也要占据页位")

		assert.Contains(t, pages[0].Text, "only page one")
		assert.Equal(t, 2, pages[1].Number)
	})

	t.Run("corrupt file", func(t *testing.T) {
		file := createTempFile(t, "this is definitely not a pdf", ".pdf")

		_, err := parser.Parse(file)
		require.Error(t, err)

		pe, ok := err.(ParseError)
		require.True(t, ok, "应该返回ParseError类型")
		assert.Equal(t, ErrCodeCorruptDocument, pe.Code)
	})

	t.Run("parse reader", func(t *testing.T) {
		file := createTempPDF(t, []string{"reader based parsing"})
		f, err := os.Open(file)
		require.NoError(t, err)
		defer f.Close()

		pages, err := parser.ParseReader(f, "doc.pdf")
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Contains(t, pages[0].Text, "reader based parsing")
	})
}

// TestPlainTextParser 测试纯文本解析
func TestPlainTextParser(t *testing.T) {
	parser := NewPlainTextParser()

	t.Run("single page result", func(t *testing.T) {
		file := createTempFile(t, "Hello, this is a plain text file.\nSecond line.", ".txt")

		pages, err := parser.Parse(file)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, 1, pages[0].Number)
		assert.Contains(t, pages[0].Text, "plain text file")
	})

	t.Run("empty file yields zero pages", func(t *testing.T) {
		file := createTempFile(t, "   \n  ", ".txt")

		pages, err := parser.Parse(file)
		require.NoError(t, err)
		assert.Empty(t, pages, "空文档不是错误，返回空序列")
	})

	t.Run("invalid utf8", func(t *testing.T) {
		file := createTempFile(t, string([]byte{0xff, 0xfe, 0xfd}), ".txt")

		_, err := parser.Parse(file)
		require.Error(t, err)
		pe, ok := err.(ParseError)
		require.True(t, ok)
		assert.Equal(t, ErrCodeCorruptDocument, pe.Code)
	})
}

// TestMarkdownParser 测试Markdown解析
func TestMarkdownParser(t *testing.T) {
	parser := NewMarkdownParser()

	file := createTempFile(t, "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2", ".md")

	pages, err := parser.Parse(file)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "markdown")
	assert.NotContains(t, text, "**", "Markdown标记应被剥离")
	assert.NotContains(t, text, "<p>", "HTML标签应被剥离")
}

// TestParserFactory 测试解析器工厂
func TestParserFactory(t *testing.T) {
	t.Run("known types", func(t *testing.T) {
		for _, name := range []string{"a.pdf", "b.md", "c.markdown", "d.txt"} {
			p, err := ParserFactory(name)
			require.NoError(t, err, "类型 %s 应该有对应解析器", name)
			assert.NotNil(t, p)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := ParserFactory("archive.zip")
		require.Error(t, err)

		pe, ok := err.(ParseError)
		require.True(t, ok)
		assert.Equal(t, ErrCodeUnsupportedType, pe.Code)
		assert.True(t, strings.Contains(pe.Message, ".zip"))
	})
}
