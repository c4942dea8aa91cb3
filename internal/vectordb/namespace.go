package vectordb

import "strings"

// NamespaceForKey 从存储键派生命名空间名称
// 同一个存储键在任何时间派生出同一个命名空间，
// 协作方可以用相同的推导结果查询同一分区。
// 非ASCII字符被剔除，控制字符和空格替换为下划线，
// 以满足向量索引对标识符字符集的限制
func NamespaceForKey(fileKey string) string {
	var sb strings.Builder
	sb.Grow(len(fileKey))

	for _, r := range fileKey {
		switch {
		case r > 126:
			// 丢弃非ASCII字符
		case r < 33:
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
