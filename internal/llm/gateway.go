package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/cogito/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// gatewayRequests counts gateway calls by provider, operation and result
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_llm_requests_total",
		Help: "LLM gateway requests by provider, operation and result",
	}, []string{"provider", "operation", "result"})

	// gatewayDuration tracks gateway latency
	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogito_llm_request_duration_seconds",
		Help:    "LLM gateway request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider", "operation"})
)

// Throttle blocks until a call for key may proceed
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// ChatGateway implements Gateway on top of any chat Completer
type ChatGateway struct {
	completer Completer
	limiter   Throttle
	maxTokens int
	logger    *slog.Logger
}

// NewChatGateway wraps a completer; a nil limiter disables throttling
func NewChatGateway(completer Completer, limiter Throttle, maxTokens int, logger *slog.Logger) *ChatGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatGateway{
		completer: completer,
		limiter:   limiter,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Name returns the provider name
func (g *ChatGateway) Name() string {
	return g.completer.Name()
}

type intentPayload struct {
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	RequiresMemory bool    `json:"requires_memory"`
}

// ClassifyIntent asks the model for a JSON intent label
func (g *ChatGateway) ClassifyIntent(ctx context.Context, text string) (model.Intent, error) {
	resp, err := g.complete(ctx, "classify_intent", CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildIntentPrompt(text),
		JSON:      true,
		MaxTokens: 100,
	})
	if err != nil {
		return model.Intent{}, fmt.Errorf("classify intent: %w", err)
	}

	raw, err := extractJSON(resp.Text)
	if err != nil {
		return model.Intent{}, fmt.Errorf("classify intent: %w", err)
	}

	var p intentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Intent{}, fmt.Errorf("decode intent: %w", err)
	}

	return model.Intent{
		Category:       model.ParseIntentCategory(strings.ToLower(strings.TrimSpace(p.Category))),
		Confidence:     clamp01(p.Confidence),
		RequiresMemory: p.RequiresMemory,
	}, nil
}

// GeneratePlan asks the model for a JSON plan. Validation is the caller's job.
func (g *ChatGateway) GeneratePlan(ctx context.Context, req PlanRequest) (*model.Plan, error) {
	resp, err := g.complete(ctx, "generate_plan", CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildPlanPrompt(req),
		JSON:      true,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	raw, err := extractJSON(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	var plan model.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	return &plan, nil
}

// GenerateResponse drafts the reply text
func (g *ChatGateway) GenerateResponse(ctx context.Context, req ResponseRequest) (string, error) {
	resp, err := g.complete(ctx, "generate_response", CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildResponsePrompt(req),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("generate response: empty completion")
	}
	return text, nil
}

func (g *ChatGateway) complete(ctx context.Context, op string, req CompletionRequest) (*CompletionResponse, error) {
	provider := g.completer.Name()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, provider); err != nil {
			gatewayRequests.WithLabelValues(provider, op, "throttled").Inc()
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	resp, err := g.completer.Complete(ctx, req)
	gatewayDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())

	if err != nil {
		gatewayRequests.WithLabelValues(provider, op, "error").Inc()
		g.logger.Warn("llm request failed", "provider", provider, "operation", op, "error", err)
		return nil, err
	}

	gatewayRequests.WithLabelValues(provider, op, "ok").Inc()
	g.logger.Debug("llm request", "provider", provider, "operation", op,
		"model", resp.Model, "tokens", resp.TokensUsed, "duration", time.Since(start))
	return resp, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
