package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/breaker"
	"github.com/sawanori/goodfoodphotoAI/internal/composite"
	"github.com/sawanori/goodfoodphotoAI/internal/config"
	"github.com/sawanori/goodfoodphotoAI/internal/core"
	"github.com/sawanori/goodfoodphotoAI/internal/gen"
	"github.com/sawanori/goodfoodphotoAI/internal/identity"
	"github.com/sawanori/goodfoodphotoAI/internal/quota"
	"github.com/sawanori/goodfoodphotoAI/internal/types"
	"github.com/sawanori/goodfoodphotoAI/internal/util"
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

// Multipart body bound: validation rejects >10MiB images with a proper
// envelope, so the hard reader limit sits above that.
const maxBodyBytes = 12 << 20

// Server wires the pipeline behind the HTTP surface.
type Server struct {
	cfg      config.ServerCfg
	svc      *core.Service
	gate     *quota.Gate
	verifier identity.Verifier
	brk      *breaker.Breaker
	logger   *slog.Logger
}

func NewServer(cfg config.ServerCfg, svc *core.Service, gate *quota.Gate, verifier identity.Verifier, brk *breaker.Breaker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, svc: svc, gate: gate, verifier: verifier, brk: brk, logger: logger}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/generate", s.requireAuth(s.generateHandler)).Methods(http.MethodPost)
	r.HandleFunc("/v1/quota", s.requireAuth(s.quotaHandler)).Methods(http.MethodGet)
	r.HandleFunc("/v1/subscription/status", s.requireAuth(s.subscriptionHandler)).Methods(http.MethodGet)
	r.HandleFunc("/v1/breaker", s.breakerHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
}

// ---------------- Middleware ----------------

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := identity.BearerToken(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		userID, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

// ---------------- Handlers ----------------

func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	ctx := r.Context()
	if s.cfg.RequestTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutSec)*time.Second)
		defer cancel()
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		s.writeEnvelope(w, http.StatusRequestEntityTooLarge,
			"FILE_TOO_LARGE", "画像ファイルが大きすぎます（最大10MB）", false, nil)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeEnvelope(w, http.StatusBadRequest,
			"INVALID_IMAGE", "画像ファイルが見つかりません", false, nil)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType != "image/jpeg" && mimeType != "image/png" {
		s.writeEnvelope(w, http.StatusBadRequest,
			"INVALID_IMAGE_FORMAT", "画像形式が無効です（JPEG/PNGのみ）", false, nil)
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	aspect, err := types.ParseAspect(r.FormValue("aspect"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	style, err := types.ParseStyle(r.FormValue("style"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.svc.Generate(ctx, userID, image, mimeType, aspect, style)
	if err != nil {
		s.logger.Warn("generation request failed",
			"user", util.HashID(userID), "err", err)
		s.writeError(w, err)
		return
	}

	images := make([]ImagePayload, len(res.Images))
	for i, data := range res.Images {
		images[i] = ImagePayload{
			Mime: "image/jpeg",
			Data: base64.StdEncoding.EncodeToString(data),
		}
	}

	s.writeJSON(w, http.StatusOK, GenerateResponse{
		Aspect: string(res.Aspect),
		Count:  len(images),
		Images: images,
		Usage: UsagePayload{
			Used:      res.Usage.Used,
			Limit:     res.Usage.Limit,
			Remaining: res.Usage.Remaining,
		},
	})
}

func (s *Server) quotaHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.gate.Status(r.Context(), userIDFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QuotaResponse{
		Used:        st.Used,
		Limit:       st.Limit,
		Remaining:   st.Remaining,
		PeriodStart: st.PeriodStart,
	})
}

func (s *Server) subscriptionHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.gate.Record(r.Context(), userIDFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	remaining := rec.Limit - rec.Used
	if remaining < 0 {
		remaining = 0
	}
	s.writeJSON(w, http.StatusOK, SubscriptionResponse{
		Tier:      rec.Tier,
		Status:    rec.Status,
		Limit:     rec.Limit,
		Used:      rec.Used,
		Remaining: remaining,
		RenewsAt:  rec.RenewsAt,
	})
}

func (s *Server) breakerHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.brk.Status())
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "goodfoodphotoAI API",
		"version": "1.0.0",
		"status":  "running",
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found", false, nil)
}

// ---------------- Error mapping ----------------

// writeError converts pipeline errors to the envelope and status mapping the
// clients rely on.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var exceeded *quota.ExceededError

	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		s.writeEnvelope(w, http.StatusUnauthorized,
			"UNAUTHORIZED", "認証に失敗しました", false, nil)

	case errors.Is(err, types.ErrInvalidAspect):
		s.writeEnvelope(w, http.StatusBadRequest,
			"INVALID_ASPECT", "無効なアスペクト比です", false, nil)

	case errors.Is(err, types.ErrInvalidStyle):
		s.writeEnvelope(w, http.StatusBadRequest,
			"INVALID_STYLE", "無効なスタイルです", false, nil)

	case errors.Is(err, composite.ErrFileTooLarge):
		s.writeEnvelope(w, http.StatusRequestEntityTooLarge,
			"FILE_TOO_LARGE", "画像ファイルが大きすぎます（最大10MB）", false, nil)

	case errors.Is(err, composite.ErrInvalidFormat):
		s.writeEnvelope(w, http.StatusBadRequest,
			"INVALID_IMAGE_FORMAT", "画像形式が無効です（JPEG/PNGのみ）", false, nil)

	case errors.Is(err, composite.ErrTooSmall):
		s.writeEnvelope(w, http.StatusBadRequest,
			"IMAGE_TOO_SMALL", "画像が小さすぎます（最低640x480px）", false, nil)

	case errors.As(err, &exceeded):
		s.writeEnvelope(w, http.StatusPaymentRequired,
			"QUOTA_EXCEEDED", "今月の生成回数上限に達しました", false, &UsagePayload{
				Used:      exceeded.Status.Used,
				Limit:     exceeded.Status.Limit,
				Remaining: exceeded.Status.Remaining,
			})

	case errors.Is(err, breaker.ErrOpen):
		s.writeEnvelope(w, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "サービスが一時的に利用できません。しばらく待ってからお試しください", true, nil)

	case errors.Is(err, gen.ErrGenerationFailed):
		s.writeEnvelope(w, http.StatusBadGateway,
			"AI_GENERATION_FAILED", "AI画像生成に失敗しました。もう一度お試しください", true, nil)

	default:
		s.writeEnvelope(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "サーバーエラーが発生しました", true, nil)
	}
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, code, message string, retryable bool, usage *UsagePayload) {
	s.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Retryable: retryable},
		Usage: usage,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", "err", err)
	}
}
