package util

import (
	"strconv"
)

// ToInt64 安全に interface{} を int64 へ変換する
// Redis Lua が返す int64 / string / float64 を吸収する
func ToInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case uint64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	default:
		return 0
	}
}
