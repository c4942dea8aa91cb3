package document

import (
	"crypto/md5"
	"encoding/hex"
)

// ContentID 计算块原始文本的内容寻址标识符
// 同一文本在任何时间任何进程中都得到同一ID，
// 相同文本的块因此合并为同一条向量记录，这是有意的去重行为
func ContentID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
