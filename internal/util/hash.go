package util

import (
	"fmt"
	"hash/fnv"
)

// HashID はログ出力用にユーザー ID を FNV-1a 64 でハッシュ化する
// 生の ID をログへ残さないための片方向変換
func HashID(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}
