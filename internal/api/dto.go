package api

import (
	"time"
)

// ImagePayload 1枚分の生成結果
type ImagePayload struct {
	Mime string `json:"mime"`
	Data string `json:"data"` // base64
}

// UsagePayload 当月の使用状況
type UsagePayload struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// GenerateResponse POST /v1/generate の成功レスポンス
type GenerateResponse struct {
	Aspect string         `json:"aspect"`
	Count  int            `json:"count"`
	Images []ImagePayload `json:"images"`
	Usage  UsagePayload   `json:"usage"`
}

// ErrorDetail 機械可読なエラー本体
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse 共通エラーエンベロープ
// QUOTA_EXCEEDED のみ usage スナップショットを添える
type ErrorResponse struct {
	Error ErrorDetail   `json:"error"`
	Usage *UsagePayload `json:"usage,omitempty"`
}

// QuotaResponse GET /v1/quota のレスポンス
type QuotaResponse struct {
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	Remaining   int64     `json:"remaining"`
	PeriodStart time.Time `json:"periodStart"`
}

// SubscriptionResponse GET /v1/subscription/status のレスポンス
type SubscriptionResponse struct {
	Tier      string     `json:"tier"`
	Status    string     `json:"status"`
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	RenewsAt  *time.Time `json:"renewsAt"`
}
