package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/ersim-ai-platform/internal/config"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
)

// Supported LLM_PROVIDER values.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// BuildLLMClient selects the reasoning provider named by cfg.LLMProvider.
// awsCfg is only used for Bedrock.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("bootstrap: OPENAI_API_KEY is required for the openai provider")
		}
		client := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		return conversation.NewOpenAILLMClient(client, cfg.OpenAIModel), nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, errors.New("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case ProviderGemini:
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
