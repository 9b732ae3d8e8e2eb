// Package webhook accepts signed triggers pushed by external systems and
// turns them into pending notifications, the push-based counterpart of an
// Active tool's check loop.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/internal/tracing"
	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

// SourcePrefix marks notifications raised through a webhook
const SourcePrefix = "webhook:"

// Handler serves POST /{source}
type Handler struct {
	hooks        map[string]Hook
	notifier     Notifier
	limiter      *RateLimiter
	maxBodyBytes int64
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	router       http.Handler
}

// NewHandler validates the hook set and builds the router
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = defaultRateLimit
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	hooks := make(map[string]Hook, len(cfg.Hooks))
	for _, hook := range cfg.Hooks {
		hook.Source = strings.TrimSpace(hook.Source)
		if hook.Source == "" || strings.ContainsAny(hook.Source, "/?#") {
			return nil, fmt.Errorf("invalid webhook source %q", hook.Source)
		}
		if _, dup := hooks[hook.Source]; dup {
			return nil, fmt.Errorf("duplicate webhook source %q", hook.Source)
		}
		if hook.SignatureHeader == "" {
			hook.SignatureHeader = DefaultSignatureHeader
		}
		if hook.SignatureAlgorithm == "" {
			hook.SignatureAlgorithm = "sha256"
		}
		if hook.SignatureAlgorithm != "sha256" && hook.SignatureAlgorithm != "sha1" {
			return nil, fmt.Errorf("webhook %s: unsupported signature algorithm %q", hook.Source, hook.SignatureAlgorithm)
		}
		hooks[hook.Source] = hook
	}

	h := &Handler{
		hooks:        hooks,
		notifier:     cfg.Notifier,
		limiter:      NewRateLimiter(cfg.RateLimitPerMinute),
		maxBodyBytes: cfg.MaxBodyBytes,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "webhook").Logger(),
	}

	r := chi.NewRouter()
	r.Post("/{source}", h.handleTrigger)
	h.router = r

	return h, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Sources returns the configured sources, sorted
func (h *Handler) Sources() []string {
	out := make([]string, 0, len(h.hooks))
	for source := range h.hooks {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// Close stops the rate limiter's cleanup loop
func (h *Handler) Close() {
	h.limiter.Stop()
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	source := chi.URLParam(r, "source")

	hook, ok := h.hooks[source]
	if !ok {
		h.reject(w, "unknown", "rejected", http.StatusNotFound, "not_found", "unknown webhook source")
		return
	}

	if !h.limiter.CheckLimit(source) {
		retryAfter := h.limiter.GetRetryAfter(source)
		h.logger.Warn().
			Str("source", source).
			Int("retryAfter", retryAfter).
			Msg("Rate limit exceeded")

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.reject(w, source, "limited", http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	// Read and keep the raw body for signature verification
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, source, "rejected", http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return
		}
		h.reject(w, source, "rejected", http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	if hook.Secret != "" {
		signature := r.Header.Get(hook.SignatureHeader)
		if signature == "" || !verifySignature(rawBody, signature, hook.Secret, hook.SignatureAlgorithm) {
			h.logger.Warn().
				Str("source", source).
				Bool("missing", signature == "").
				Msg("Invalid webhook signature")
			h.reject(w, source, "unauthorized", http.StatusUnauthorized, "unauthorized", "invalid signature")
			return
		}
	}

	payload, err := decodePayload(rawBody)
	if err != nil {
		h.reject(w, source, "rejected", http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	params := notification.Params{
		SourceTool:  SourcePrefix + source,
		TimeOfOccur: start,
		Description: payload.Description,
		ToolToCall:  payload.ToolToCall,
		Arguments:   payload.Arguments,
		Data:        payload.Data,
	}
	if payload.TimeOfOccur != nil {
		params.TimeOfOccur = *payload.TimeOfOccur
	}
	if params.Description == "" {
		params.Description = hook.Description
	}

	// A verified trigger is recorded even if the sender hangs up. The
	// request's trace and request ids carry over.
	ctx := tracing.MergeContext(tracing.WithTool(context.Background(), params.SourceTool), r.Context())
	logger := tracing.LoggerFromContext(ctx, h.logger)

	n, err := h.notifier.Notify(ctx, params)
	if err != nil {
		logger.Error().
			Err(err).
			Str("source", source).
			Msg("Webhook trigger lost, notification not persisted")
		h.reject(w, source, "failed", http.StatusServiceUnavailable, "persistence_failed", "notification not persisted")
		return
	}

	h.metrics.RecordWebhook(source, "accepted")
	logger.Info().
		Str("source", source).
		Str("notificationId", n.ID).
		Dur("duration", time.Since(start)).
		Msg("Webhook trigger accepted")

	writeJSON(w, http.StatusAccepted, Accepted{NotificationID: n.ID, State: n.State})
}

func decodePayload(raw []byte) (Payload, error) {
	var p Payload
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("invalid payload: %w", err)
	}
	if p.ToolToCall == "" && len(p.Arguments) > 0 {
		return p, fmt.Errorf("invalid payload: arguments require which_tool_to_call")
	}
	return p, nil
}

func (h *Handler) reject(w http.ResponseWriter, source, outcome string, status int, code, msg string) {
	h.metrics.RecordWebhook(source, outcome)
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
