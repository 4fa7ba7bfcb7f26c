package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/config"
)

// Backend generates candidate images from one source photo. Implementations
// may legitimately return fewer images than the caller wants; the retry
// orchestrator owns the count contract.
type Backend interface {
	Generate(ctx context.Context, image []byte, mimeType, prompt string) ([][]byte, error)
}

// ErrEmptyResponse upstream が candidates を返さなかった
var ErrEmptyResponse = errors.New("gemini: no candidates in response")

const defaultTimeout = 60 * time.Second

// GeminiClient calls the generativelanguage REST API directly.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

var _ Backend = (*GeminiClient)(nil)

// NewGemini builds a client from config. The API key is required.
func NewGemini(cfg config.AICfg, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ---- wire types ----

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the photo plus prompt and extracts every returned image
// part. Text parts are ignored.
func (c *GeminiClient) Generate(ctx context.Context, image []byte, mimeType, prompt string) ([][]byte, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: prompt},
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	var images [][]byte
	for _, p := range out.Candidates[0].Content.Parts {
		if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MimeType, "image/") {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini: image part not decodable: %w", err)
		}
		images = append(images, raw)
	}

	c.logger.Info("gemini returned images", "count", len(images))
	return images, nil
}
