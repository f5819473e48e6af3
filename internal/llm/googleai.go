package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"github.com/fyrsmithlabs/diagramd/internal/metrics"
	"github.com/fyrsmithlabs/diagramd/internal/ratelimit"
	"github.com/fyrsmithlabs/diagramd/internal/retry"
)

// Config configures the production client.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Model is the default model identifier.
	Model string

	// Temperature is the default sampling temperature.
	Temperature float64

	// MaxAttempts bounds retries of one call. Zero means the retry
	// package default.
	MaxAttempts int

	// InitialBackoff is the first retry wait. Zero means the retry
	// package default.
	InitialBackoff time.Duration

	// Metrics receives call instrumentation when non-nil.
	Metrics *metrics.Metrics
}

// client wraps a langchaingo model with admission control and bounded
// retry. It is the single long-lived provider handle for a run; nodes
// receive it injected rather than constructing their own.
type client struct {
	model   llms.Model
	cfg     Config
	limiter *ratelimit.Limiter
	policy  retry.Policy
	log     *logging.Logger
}

// New creates the production client. The limiter is shared with every
// other call site that draws on the same provider quota.
func New(ctx context.Context, cfg Config, limiter *ratelimit.Limiter, log *logging.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model required")
	}
	if log == nil {
		log = logging.Nop()
	}

	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: creating provider client: %w", err)
	}

	return &client{
		model:   model,
		cfg:     cfg,
		limiter: limiter,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
		},
		log: log.Named("llm"),
	}, nil
}

// Generate implements Client. It admits the estimated cost against the
// shared window, performs the call under bounded retry, and consumes
// the estimate afterwards.
func (c *client) Generate(ctx context.Context, req Request) (string, error) {
	var contextTexts []string
	contextTexts = append(contextTexts, req.System, req.Prompt)
	for _, a := range req.Attachments {
		contextTexts = append(contextTexts, a.Content)
	}
	estimated := EstimateTokens(contextTexts...)

	if c.limiter != nil {
		if err := c.limiter.Admit(ctx, estimated); err != nil {
			return "", fmt.Errorf("llm: admission: %w", err)
		}
	}

	messages := buildMessages(req)

	opts := []llms.CallOption{}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	if temp != 0 {
		opts = append(opts, llms.WithTemperature(temp))
	}

	start := time.Now()
	text, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		resp, err := c.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if IsTransient(err) {
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.ProviderRetries.Inc()
				}
				return "", err
			}
			return "", retry.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty response from provider")
		}
		return resp.Choices[0].Content, nil
	})
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ProviderCalls.WithLabelValues("error").Inc()
		}
		// Keep the classification visible to callers running under
		// their own retry policy: a permanent failure here (bad key,
		// malformed request) must not be retried again node-side.
		wrapped := fmt.Errorf("llm: generate: %w", err)
		if !IsTransient(err) {
			return "", retry.Permanent(wrapped)
		}
		return "", wrapped
	}

	cost := estimated + EstimateTokens(text)
	if c.limiter != nil {
		c.limiter.Consume(cost)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ProviderCalls.WithLabelValues("ok").Inc()
		c.cfg.Metrics.TokensEstimated.Add(float64(cost))
	}

	c.log.Debug(ctx, "generation complete",
		zap.Int("cost_tokens", cost),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

// buildMessages flattens a Request into provider messages. Attachments
// become labeled sections of the human turn; the provider sees one
// coherent prompt.
func buildMessages(req Request) []llms.MessageContent {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}

	var b strings.Builder
	for _, a := range req.Attachments {
		fmt.Fprintf(&b, "=== ATTACHMENT: %s ===\n%s\n\n", a.Name, a.Content)
	}
	b.WriteString(req.Prompt)

	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, b.String()))
	return messages
}
