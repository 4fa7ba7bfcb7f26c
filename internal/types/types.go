package types

import (
	"errors"
	"strings"
	"time"
)

// AspectRatio 出力キャンバスのアスペクト比
type AspectRatio string

const (
	Aspect4x5  AspectRatio = "4:5"  // Instagram portrait
	Aspect9x16 AspectRatio = "9:16" // story / reel
	Aspect16x9 AspectRatio = "16:9" // YouTube thumbnail
	Aspect1x1  AspectRatio = "1:1"  // square
)

// Style 生成画像のトーン
type Style string

const (
	StyleNatural Style = "natural"
	StyleBright  Style = "bright"
	StyleMoody   Style = "moody"
)

var (
	ErrInvalidAspect = errors.New("invalid aspect ratio")
	ErrInvalidStyle  = errors.New("invalid style")
)

// ParseAspect normalizes a client-supplied aspect value. Empty means the
// default "4:5".
func ParseAspect(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Aspect4x5, nil
	}
	switch AspectRatio(s) {
	case Aspect4x5, Aspect9x16, Aspect16x9, Aspect1x1:
		return AspectRatio(s), nil
	}
	return "", ErrInvalidAspect
}

// ParseStyle normalizes a client-supplied style value. Empty means "natural".
func ParseStyle(s string) (Style, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StyleNatural, nil
	}
	switch Style(s) {
	case StyleNatural, StyleBright, StyleMoody:
		return Style(s), nil
	}
	return "", ErrInvalidStyle
}

// QuotaStatus 当月のクォータ状態
type QuotaStatus struct {
	Limit       int64
	Used        int64
	Remaining   int64
	PeriodStart time.Time
}
