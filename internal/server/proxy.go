package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	gateway "github.com/bastionlabs/bastion/internal"
	"github.com/bastionlabs/bastion/internal/provider"
	"github.com/bastionlabs/bastion/internal/security/injection"
	"github.com/bastionlabs/bastion/internal/security/pii"
	"github.com/bastionlabs/bastion/internal/security/response"
)

// maxBodyBytes bounds the request body read. Chat payloads with inline
// images stay well under this.
const maxBodyBytes = 10 << 20

// sseKeepAliveInterval is how often a comment frame is written on an idle
// stream to keep intermediaries from closing the connection.
const sseKeepAliveInterval = 15 * time.Second

// handleChatCompletion runs the security pipeline and dispatches to the
// client's provider. Stage order is load-bearing: scans must complete
// before any upstream call.
func (s *server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := gateway.ClientFromContext(ctx)
	ip := clientIP(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse("Invalid JSON in request body"))
		return
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		model = "unknown"
	}

	// Rate limit on client id, never on the raw key.
	rl := s.deps.Limiter.Check(client.ClientID, client.RateLimitRPM)
	if !rl.Allowed {
		if m := s.deps.Metrics; m != nil {
			m.RateLimitRejects.WithLabelValues(client.ClientID).Inc()
		}
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Rate limit exceeded",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.Int("rate_limit", rl.Limit),
			slog.Float64("retry_after", rl.ResetSeconds),
		)
		reset := strconv.Itoa(int(rl.ResetSeconds))
		h := w.Header()
		h.Set("Retry-After", reset)
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		h.Set("X-RateLimit-Remaining", "0")
		h.Set("X-RateLimit-Reset", reset)
		writeJSON(w, http.StatusTooManyRequests, errorResponse("Rate limit exceeded"))
		return
	}

	if !client.ModelAllowed(model) {
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Model not allowed",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.String("model", model),
			slog.Any("allowed_models", client.ModelAllowlist),
		)
		writeJSON(w, http.StatusForbidden,
			errorResponse(fmt.Sprintf("Model '%s' not allowed for this client", model)))
		return
	}

	prompt := extractPrompt(body)

	inj := injection.Scan(prompt, s.deps.Settings.InjectionThreshold)
	if !inj.Allowed {
		if m := s.deps.Metrics; m != nil {
			m.InjectionBlocks.WithLabelValues(client.ClientID).Inc()
		}
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Prompt injection blocked",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.Float64("risk_score", inj.RiskScore),
			slog.String("reason", inj.Reason),
			slog.Any("categories", inj.Categories),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse("Request blocked by security policy"))
		return
	}

	piiRes := pii.Scan(prompt, s.deps.Settings.PIIAction)
	if m := s.deps.Metrics; m != nil && len(piiRes.Detections) > 0 {
		m.PIIDetections.WithLabelValues("request").Add(float64(len(piiRes.Detections)))
	}
	if s.deps.Settings.PIIAction == pii.ActionBlock && len(piiRes.Detections) > 0 {
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "PII detected, request blocked",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.Any("pii_types", piiTypes(piiRes.Detections)),
			slog.Int("pii_count", len(piiRes.Detections)),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse("Request contains sensitive data (PII)"))
		return
	}
	if s.deps.Settings.PIIAction == pii.ActionRedact && len(piiRes.Detections) > 0 {
		body = redactLastUserMessage(body)
	}

	streaming := gjson.GetBytes(body, "stream").Bool()
	if streaming && s.deps.Settings.Serverless() {
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Streaming refused",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse(gateway.ErrStreamingUnsupported.Error()))
		return
	}

	p, err := s.deps.Providers.Get(client.Provider)
	if err != nil {
		s.deps.Audit.LogAttrs(ctx, slog.LevelError, "Provider unavailable",
			slog.String("client_id", client.ClientID),
			slog.String("provider", client.Provider),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadGateway, errorResponse("Upstream provider unavailable"))
		return
	}

	if streaming {
		s.streamCompletion(ctx, w, p, client, body, model, ip, rl, inj, piiRes)
		return
	}

	start := time.Now()
	resp, err := p.ChatCompletion(ctx, body, client.UpstreamAPIKey, client.BedrockModelID)
	latency := time.Since(start)
	if m := s.deps.Metrics; m != nil {
		m.UpstreamDuration.WithLabelValues(client.Provider, model).Observe(latency.Seconds())
	}
	if err != nil {
		status := errorStatus(err)
		if m := s.deps.Metrics; m != nil {
			m.UpstreamErrors.WithLabelValues(client.Provider, strconv.Itoa(status)).Inc()
		}
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Upstream error",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.String("provider", client.Provider),
			slog.String("model", model),
			slog.Int("upstream_status", status),
			slog.Int64("latency_ms", latency.Milliseconds()),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse(errorMessage(err)))
		return
	}

	scan := response.Result{Allowed: true}
	if resp.StatusCode == http.StatusOK {
		scan = s.scanner.Scan(assistantText(resp.Body))
		if m := s.deps.Metrics; m != nil && len(scan.PIIDetections) > 0 {
			m.PIIDetections.WithLabelValues("response").Add(float64(len(scan.PIIDetections)))
		}
		if !scan.Allowed {
			s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Response blocked by security policy",
				slog.String("client_id", client.ClientID),
				slog.String("client_ip", ip),
				slog.String("provider", client.Provider),
				slog.String("model", model),
				slog.Any("pii_types", piiTypes(scan.PIIDetections)),
				slog.Int("pii_count", len(scan.PIIDetections)),
			)
			writeJSON(w, http.StatusBadRequest,
				errorResponse("Response contains sensitive data (PII)"))
			return
		}
	}

	s.auditProxied(ctx, client, ip, model, resp.StatusCode, latency, inj, piiRes, scan, rl)

	setRateLimitHeaders(w.Header(), rl)
	w.Header()["Content-Type"] = jsonContentType
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body) //nolint:errcheck // client gone, nothing to do
}

// streamCompletion drains the provider stream into SSE frames while
// accumulating text deltas for the terminal response scan. The scan cannot
// unsend forwarded deltas; what it can still do is withhold the [DONE]
// terminator so compliant clients treat the completion as failed.
func (s *server) streamCompletion(
	ctx context.Context,
	w http.ResponseWriter,
	p gateway.Provider,
	client *gateway.ClientRecord,
	body []byte,
	model, ip string,
	rl gateway.RateLimitResult,
	inj injection.Result,
	piiRes pii.Result,
) {
	start := time.Now()
	stream, err := p.ChatCompletionStream(ctx, body, client.UpstreamAPIKey, client.BedrockModelID)
	if err != nil {
		status := errorStatus(err)
		if m := s.deps.Metrics; m != nil {
			m.UpstreamErrors.WithLabelValues(client.Provider, strconv.Itoa(status)).Inc()
		}
		s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Upstream error",
			slog.String("client_id", client.ClientID),
			slog.String("client_ip", ip),
			slog.String("provider", client.Provider),
			slog.String("model", model),
			slog.Int("upstream_status", status),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse(errorMessage(err)))
		return
	}

	setRateLimitHeaders(w.Header(), rl)
	writeSSEHeaders(w)
	flusher, _ := w.(http.Flusher)

	keepalive := time.NewTicker(sseKeepAliveInterval)
	defer keepalive.Stop()

	var buf strings.Builder
	finish := func(blocked bool, scan response.Result) {
		if blocked {
			writeSSEError(w, "Response contains sensitive data (PII)")
		} else {
			writeSSEDone(w)
		}
		if flusher != nil {
			flusher.Flush()
		}
		status := http.StatusOK
		if blocked {
			status = http.StatusBadRequest
		}
		s.auditProxied(ctx, client, ip, model, status, time.Since(start), inj, piiRes, scan, rl)
	}

	for {
		select {
		case <-ctx.Done():
			// Client disconnected; the provider goroutine observes the same
			// context and shuts the upstream stream down.
			s.deps.Audit.LogAttrs(ctx, slog.LevelInfo, "Stream cancelled by client",
				slog.String("client_id", client.ClientID),
				slog.String("client_ip", ip),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			)
			return
		case <-keepalive.C:
			writeSSEKeepAlive(w)
			if flusher != nil {
				flusher.Flush()
			}
		case chunk, ok := <-stream:
			if !ok || chunk.Done {
				scan := s.scanner.Scan(buf.String())
				if m := s.deps.Metrics; m != nil && len(scan.PIIDetections) > 0 {
					m.PIIDetections.WithLabelValues("response").Add(float64(len(scan.PIIDetections)))
				}
				finish(!scan.Allowed, scan)
				return
			}
			if chunk.Err != nil {
				// Headers already sent; surface as an error event in lieu
				// of [DONE].
				writeSSEError(w, errorMessage(chunk.Err))
				if flusher != nil {
					flusher.Flush()
				}
				s.deps.Audit.LogAttrs(ctx, slog.LevelWarn, "Upstream stream error",
					slog.String("client_id", client.ClientID),
					slog.String("client_ip", ip),
					slog.String("provider", client.Provider),
					slog.String("model", model),
					slog.String("error", chunk.Err.Error()),
				)
				return
			}
			writeSSEData(w, chunk.Data)
			if flusher != nil {
				flusher.Flush()
			}
			buf.WriteString(chunk.TextDelta)
		}
	}
}

// auditProxied writes the one-line-per-request audit record.
func (s *server) auditProxied(
	ctx context.Context,
	client *gateway.ClientRecord,
	ip, model string,
	upstreamStatus int,
	latency time.Duration,
	inj injection.Result,
	piiRes pii.Result,
	scan response.Result,
	rl gateway.RateLimitResult,
) {
	s.deps.Audit.LogAttrs(ctx, slog.LevelInfo, "Request proxied",
		slog.String("client_id", client.ClientID),
		slog.String("client_ip", ip),
		slog.String("provider", client.Provider),
		slog.String("model", model),
		slog.Int("upstream_status", upstreamStatus),
		slog.Int64("latency_ms", latency.Milliseconds()),
		slog.Float64("injection_score", inj.RiskScore),
		slog.Any("injection_categories", inj.Categories),
		slog.Any("pii_detections", piiTypes(piiRes.Detections)),
		slog.Int("pii_count", len(piiRes.Detections)),
		slog.Float64("response_injection_score", scan.InjectionScore),
		slog.Int("response_pii_count", len(scan.PIIDetections)),
		slog.Int("rate_limit_remaining", rl.Remaining),
	)
}

// extractPrompt concatenates message contents, newline-separated. Multi-part
// contents contribute only their text parts.
func extractPrompt(body []byte) string {
	var parts []string
	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		switch {
		case content.Type == gjson.String:
			parts = append(parts, content.String())
		case content.IsArray():
			content.ForEach(func(_, part gjson.Result) bool {
				if part.Get("type").String() == "text" {
					parts = append(parts, part.Get("text").String())
				}
				return true
			})
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// redactLastUserMessage rewrites the last user message's content with PII
// placeholders. String contents are replaced whole; multi-part contents get
// each text part redacted in place, leaving image parts untouched.
func redactLastUserMessage(body []byte) []byte {
	msgs := gjson.GetBytes(body, "messages").Array()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Get("role").String() != "user" {
			continue
		}
		base := fmt.Sprintf("messages.%d.content", i)
		content := msgs[i].Get("content")
		if content.IsArray() {
			for j, part := range content.Array() {
				if part.Get("type").String() == "text" {
					path := fmt.Sprintf("%s.%d.text", base, j)
					body, _ = sjson.SetBytes(body, path, pii.Redact(part.Get("text").String()))
				}
			}
		} else {
			body, _ = sjson.SetBytes(body, base, pii.Redact(content.String()))
		}
		break
	}
	return body
}

// assistantText extracts the first choice's message content from a
// chat-completions response body.
func assistantText(body []byte) string {
	return gjson.GetBytes(body, "choices.0.message.content").String()
}

// piiTypes lists the distinct detection kinds; counts stay per-match.
func piiTypes(ds []pii.Detection) []string {
	var types []string
	for _, d := range ds {
		if !slices.Contains(types, d.Type) {
			types = append(types, d.Type)
		}
	}
	return types
}

func setRateLimitHeaders(h http.Header, rl gateway.RateLimitResult) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	h.Set("X-RateLimit-Reset", strconv.Itoa(int(rl.ResetSeconds)))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- JSON error plumbing ---

var jsonContentType = []string{"application/json"}

type errorBody struct {
	Error string `json:"error"`
}

func errorResponse(msg string) errorBody { return errorBody{Error: msg} }

// writeJSON writes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonContentType
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone, nothing to do
}

// errorStatus maps a pipeline error to the HTTP status it surfaces as.
func errorStatus(err error) int {
	var ue *provider.UpstreamError
	if errors.As(err, &ue) {
		return ue.HTTPStatus()
	}
	switch {
	case errors.Is(err, gateway.ErrMissingAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrInvalidAPIKey),
		errors.Is(err, gateway.ErrClientSuspended),
		errors.Is(err, gateway.ErrModelNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrBadRequest),
		errors.Is(err, gateway.ErrStreamingUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrProviderError):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessage maps a pipeline error to its client-facing message. Internal
// error strings never leak to clients except through UpstreamError, whose
// Message is composed for exposure.
func errorMessage(err error) string {
	var ue *provider.UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	switch {
	case errors.Is(err, gateway.ErrMissingAPIKey):
		return "Missing API key"
	case errors.Is(err, gateway.ErrInvalidAPIKey):
		return "Invalid API key"
	case errors.Is(err, gateway.ErrClientSuspended):
		return "Client suspended"
	case errors.Is(err, gateway.ErrModelNotAllowed):
		return "Model not allowed for this client"
	case errors.Is(err, gateway.ErrRateLimited):
		return "Rate limit exceeded"
	case errors.Is(err, gateway.ErrBadRequest):
		return "Invalid request body"
	case errors.Is(err, gateway.ErrStreamingUnsupported):
		return gateway.ErrStreamingUnsupported.Error()
	case errors.Is(err, gateway.ErrProviderError):
		return "Upstream provider error"
	}
	return "internal server error"
}
