package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

var reasoningTracer = otel.Tracer("ersim.internal.conversation.reasoning")

const defaultReasoningTimeout = 60 * time.Second

// ReasoningInput is everything the bridge needs for one turn.
type ReasoningInput struct {
	Utterance string
	Primer    cases.Primer
	// AvailableResources defaults to the primer's resources when nil.
	AvailableResources []string
	History            []ChatMessage
}

func (in ReasoningInput) resources() []string {
	if in.AvailableResources != nil {
		return in.AvailableResources
	}
	return in.Primer.AvailableResources
}

// BridgeConfig tunes the provider call.
type BridgeConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int32
	Timeout      time.Duration
	SystemPrompt string
}

// ReasoningBridge asks the reasoning provider for a decision and recovers
// whatever it returns into a normalized Decision.
type ReasoningBridge struct {
	client  LLMClient
	cfg     BridgeConfig
	logger  *logging.Logger
	metrics *metrics.SimMetrics
}

func NewReasoningBridge(client LLMClient, cfg BridgeConfig, logger *logging.Logger, m *metrics.SimMetrics) *ReasoningBridge {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReasoningTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt()
	}
	return &ReasoningBridge{client: client, cfg: cfg, logger: logger, metrics: m}
}

// BuildRequest assembles the provider request: the instruction, the case
// context block, prior turns, then the utterance.
func (b *ReasoningBridge) BuildRequest(in ReasoningInput) (LLMRequest, error) {
	contextBlock, err := caseContextBlock(in.Primer, in.resources())
	if err != nil {
		return LLMRequest{}, err
	}
	messages := make([]ChatMessage, 0, len(in.History)+1)
	messages = append(messages, in.History...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Utterance})
	return LLMRequest{
		Model:       b.cfg.Model,
		System:      []string{b.cfg.SystemPrompt, contextBlock},
		Messages:    messages,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
		JSONMode:    true,
	}, nil
}

// Decide makes one bounded provider call. Transport failures and timeouts
// return ErrUpstreamFailure; malformed replies never error.
func (b *ReasoningBridge) Decide(ctx context.Context, in ReasoningInput) (Decision, error) {
	provider := providerName(b.client)
	ctx, span := reasoningTracer.Start(ctx, "conversation.reason")
	defer span.End()
	span.SetAttributes(
		attribute.String("ersim.case_id", in.Primer.CaseID),
		attribute.String("ersim.provider", provider),
		attribute.Int("ersim.history_messages", len(in.History)),
	)

	req, err := b.BuildRequest(in)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	started := time.Now()
	resp, err := b.client.Complete(callCtx, req)
	b.metrics.ObserveReasoningLatency(provider, time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		b.logger.Error("reasoning call failed", "case_id", in.Primer.CaseID, "provider", provider, "error", err)
		return Decision{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}

	reply := ParseProviderReply(resp.Text)
	b.metrics.ObserveReplyParse(reply.Kind.String())
	if reply.Kind == ReplyObject {
		if err := ValidateReply(reply.Object); err != nil {
			b.metrics.ObserveSchemaViolation()
			b.logger.Warn("provider reply does not match schema", "case_id", in.Primer.CaseID, "error", err)
		}
	} else {
		b.logger.Warn("provider reply degraded", "case_id", in.Primer.CaseID, "kind", reply.Kind.String())
	}

	decision, report := reply.Decide(in.resources())
	for _, dropped := range report.Dropped {
		b.metrics.ObserveTriggerDropped(dropped.Reason)
		b.logger.Debug("action trigger dropped",
			"case_id", in.Primer.CaseID,
			"resource", dropped.Resource,
			"index", dropped.Index,
			"reason", dropped.Reason,
		)
	}
	span.SetAttributes(
		attribute.String("ersim.reply_kind", reply.Kind.String()),
		attribute.Int("ersim.triggers", len(decision.ActionTriggers)),
	)
	return decision, nil
}
