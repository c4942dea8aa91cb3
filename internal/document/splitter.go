package document

import (
	"strings"
	"unicode/utf8"
)

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkSize     int      // 分块目标大小上限(按字符数)
	ChunkOverlap  int      // 相邻分块之间的重叠大小(字符数)
	TruncateBytes int      // 元数据副本的字节预算
	Separators    []string // 分隔符优先级阶梯，从段落到句子再到硬切分
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:     1000,
		ChunkOverlap:  200,
		TruncateBytes: 36000,
		Separators:    []string{"\n\n", "\n", "。", ". ", "! ", "? ", " ", ""},
	}
}

// RecursiveSplitter 递归文本分段器
// 优先在段落边界切分，其次句子边界，最后按字符数硬切分，
// 相邻块之间重叠上一块的尾部文本以保留跨界上下文
type RecursiveSplitter struct {
	config SplitterConfig
}

// NewRecursiveSplitter 创建新的递归分段器
// 非法配置会被修正为可用的默认值
func NewRecursiveSplitter(config SplitterConfig) *RecursiveSplitter {
	def := DefaultSplitterConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 5
	}
	if config.TruncateBytes <= 0 {
		config.TruncateBytes = def.TruncateBytes
	}
	if len(config.Separators) == 0 {
		config.Separators = def.Separators
	}

	return &RecursiveSplitter{config: config}
}

// SplitPage 将页面分割成块
// 空文本页面产生零个块；比重叠窗口还短的页面产生恰好一个块，
// 其文本等于规范化后的页面文本
func (s *RecursiveSplitter) SplitPage(page Page) ([]Chunk, error) {
	if !utf8.ValidString(page.Text) {
		return nil, NewChunkError(ErrCodeInvalidEncoding, "page text is not valid UTF-8")
	}

	normalized := NormalizeText(page.Text)
	if normalized == "" {
		return []Chunk{}, nil
	}

	pieces := s.splitText(normalized, s.config.Separators)

	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			PageNumber: page.Number,
			Text:       piece,
			Truncated:  TruncateBytes(piece, s.config.TruncateBytes),
		})
	}

	return chunks, nil
}

// splitText 递归分割文本
// 在分隔符阶梯中选择第一个出现在文本里的分隔符，
// 超长的片段用阶梯中剩余的分隔符继续细分
func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	if runeLen(text) <= s.config.ChunkSize {
		return []string{text}
	}

	sep := ""
	rest := separators
	for i, cand := range separators {
		if cand == "" {
			rest = nil
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}

	// 没有可用分隔符时按长度硬切分
	if sep == "" {
		return s.splitByLength(text)
	}

	// 分隔符保留在前一个片段末尾，避免丢失句末标点
	parts := strings.SplitAfter(text, sep)

	var pieces []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if runeLen(part) > s.config.ChunkSize {
			pieces = append(pieces, s.splitText(part, rest)...)
		} else {
			pieces = append(pieces, part)
		}
	}

	return s.mergeWithOverlap(pieces)
}

// splitByLength 按固定字符数硬切分，步长为块大小减去重叠
// 在符文边界上切分，不会破坏多字节字符
func (s *RecursiveSplitter) splitByLength(text string) []string {
	runes := []rune(text)
	step := s.config.ChunkSize - s.config.ChunkOverlap
	if step <= 0 {
		step = s.config.ChunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}

// mergeWithOverlap 将片段贪心合并为不超过块大小的块
// 开启新块时把上一块的尾部文本并入开头作为重叠上下文
func (s *RecursiveSplitter) mergeWithOverlap(pieces []string) []string {
	var result []string
	var current strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			result = append(result, chunk)
		}
	}

	for _, piece := range pieces {
		if current.Len() == 0 {
			current.WriteString(piece)
			continue
		}

		if runeLen(current.String())+runeLen(piece) <= s.config.ChunkSize {
			current.WriteString(piece)
			continue
		}

		flush()

		// 重叠上下文：上一块的尾部文本
		tail := tailRunes(current.String(), s.config.ChunkOverlap)
		current.Reset()
		if runeLen(tail)+runeLen(piece) <= s.config.ChunkSize {
			current.WriteString(tail)
		}
		current.WriteString(piece)
	}

	flush()
	return result
}

// NormalizeText 规范化文本中的空白符
// 去除换行并把连续空白折叠为单个空格
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// TruncateBytes 按字节预算截断字符串
// 截断点向前回退到符文边界，保证结果是合法UTF-8前缀
func TruncateBytes(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if len(s) <= budget {
		return s
	}

	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// runeLen 返回字符串的字符数
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// tailRunes 返回字符串末尾最多n个字符
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
