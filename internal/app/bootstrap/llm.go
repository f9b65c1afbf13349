package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// BuildCompleter wires the LLM used for transcript extraction. It returns
// nil when the selected provider has no credentials; webhook transcripts are
// then acknowledged without booking.
func BuildCompleter(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (extraction.Completer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LLMProvider {
	case "", "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("gemini selected but GEMINI_API_KEY empty; transcript extraction disabled")
			return nil, nil
		}
		client, err := extraction.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("transcript extraction enabled", "provider", "gemini", "model", cfg.GeminiModel)
		return client, nil
	case "bedrock":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			logger.Warn("bedrock selected but model id empty; transcript extraction disabled")
			return nil, nil
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: bedrock requires aws config")
		}
		client, err := extraction.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), model)
		if err != nil {
			return nil, err
		}
		logger.Info("transcript extraction enabled", "provider", "bedrock", "model", model)
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
