package document

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitPageBasic 测试基本分块行为
func TestSplitPageBasic(t *testing.T) {
	splitter := NewRecursiveSplitter(DefaultSplitterConfig())

	t.Run("empty page yields no chunks", func(t *testing.T) {
		chunks, err := splitter.SplitPage(Page{Number: 2, Text: ""})
		require.NoError(t, err)
		assert.Empty(t, chunks, "空文本页面应产生零个块")
	})

	t.Run("whitespace only page yields no chunks", func(t *testing.T) {
		chunks, err := splitter.SplitPage(Page{Number: 1, Text: "  \n\t \n "})
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short page yields single chunk equal to normalized text", func(t *testing.T) {
		// 比重叠窗口(200)还短的页面
		chunks, err := splitter.SplitPage(Page{Number: 3, Text: "first line\nsecond  line"})
		require.NoError(t, err)
		require.Len(t, chunks, 1, "短页面应恰好产生一个块")

		assert.Equal(t, "first line second line", chunks[0].Text, "块文本应等于规范化后的页面文本")
		assert.Equal(t, 3, chunks[0].PageNumber)
		assert.Equal(t, chunks[0].Text, chunks[0].Truncated, "未超预算时截断副本等于原文")
	})

	t.Run("newlines are stripped before splitting", func(t *testing.T) {
		chunks, err := splitter.SplitPage(Page{Number: 1, Text: "a\nb\r\nc"})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.NotContains(t, chunks[0].Text, "\n")
	})

	t.Run("invalid utf8 rejected", func(t *testing.T) {
		_, err := splitter.SplitPage(Page{Number: 1, Text: string([]byte{0xff, 0xfe, 0x41})})
		require.Error(t, err)

		ce, ok := err.(ChunkError)
		require.True(t, ok, "应该返回ChunkError类型")
		assert.Equal(t, ErrCodeInvalidEncoding, ce.Code)
	})
}

// TestSplitPageLongText 测试长文本分块和重叠
func TestSplitPageLongText(t *testing.T) {
	config := DefaultSplitterConfig()
	config.ChunkSize = 100
	config.ChunkOverlap = 20
	splitter := NewRecursiveSplitter(config)

	t.Run("long text produces multiple bounded chunks", func(t *testing.T) {
		sentence := "The quick brown fox jumps over the lazy dog. "
		text := strings.Repeat(sentence, 30)

		chunks, err := splitter.SplitPage(Page{Number: 1, Text: text})
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1, "长文本应产生多个块")

		for i, chunk := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), config.ChunkSize,
				"块 %d 超过大小上限", i)
			assert.NotEmpty(t, chunk.Text)
			assert.Equal(t, 1, chunk.PageNumber)
		}
	})

	t.Run("consecutive chunks share overlap context", func(t *testing.T) {
		// 没有任何分隔符的长文本走硬切分路径
		text := strings.Repeat("abcdefghij", 50)

		chunks, err := splitter.SplitPage(Page{Number: 1, Text: text})
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)

		for i := 1; i < len(chunks); i++ {
			prev := chunks[i-1].Text
			tail := prev[len(prev)-config.ChunkOverlap:]
			assert.True(t, strings.HasPrefix(chunks[i].Text, tail),
				"块 %d 的开头应包含上一块的尾部", i)
		}
	})

	t.Run("40KB page produces at least two chunks", func(t *testing.T) {
		paragraph := strings.Repeat("Vector databases store embeddings for retrieval. ", 16)
		var sb strings.Builder
		for sb.Len() < 40000 {
			sb.WriteString(paragraph)
			sb.WriteString("\n\n")
		}

		std := NewRecursiveSplitter(DefaultSplitterConfig())
		chunks, err := std.SplitPage(Page{Number: 1, Text: sb.String()})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(chunks), 2)

		for _, chunk := range chunks {
			assert.Equal(t, 1, chunk.PageNumber)
			assert.LessOrEqual(t, len(chunk.Truncated), 36000)
		}
	})
}

// TestTruncateBytes 测试字节精确截断
func TestTruncateBytes(t *testing.T) {
	t.Run("under budget unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateBytes("hello", 10))
	})

	t.Run("exact budget unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateBytes("hello", 5))
	})

	t.Run("ascii cut at budget", func(t *testing.T) {
		assert.Equal(t, "hel", TruncateBytes("hello", 3))
	})

	t.Run("multibyte boundary preserved", func(t *testing.T) {
		// "你"占3字节，预算4字节落在第二个字符中间
		s := "你好"
		got := TruncateBytes(s, 4)
		assert.Equal(t, "你", got)
		assert.True(t, utf8.ValidString(got), "截断结果必须是合法UTF-8")
	})

	t.Run("mixed text always valid utf8", func(t *testing.T) {
		s := strings.Repeat("中文English混合", 100)
		for budget := 1; budget < 64; budget++ {
			got := TruncateBytes(s, budget)
			assert.True(t, utf8.ValidString(got), "预算%d的截断结果非法", budget)
			assert.LessOrEqual(t, len(got), budget)
			assert.True(t, strings.HasPrefix(s, got), "截断结果必须是原文前缀")
		}
	})

	t.Run("zero budget", func(t *testing.T) {
		assert.Equal(t, "", TruncateBytes("hello", 0))
	})
}

// TestContentID 测试内容哈希的确定性
func TestContentID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := ContentID("some chunk text")
		b := ContentID("some chunk text")
		assert.Equal(t, a, b, "相同文本必须得到相同ID")
	})

	t.Run("distinct texts distinct ids", func(t *testing.T) {
		assert.NotEqual(t, ContentID("text a"), ContentID("text b"))
	})

	t.Run("fixed length hex", func(t *testing.T) {
		id := ContentID("任意文本")
		assert.Len(t, id, 32)
		assert.Regexp(t, "^[0-9a-f]+$", id)
	})

	t.Run("known value", func(t *testing.T) {
		// md5("hello")
		assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", ContentID("hello"))
	})
}
