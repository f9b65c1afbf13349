package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConverseAPI is the subset of the Bedrock runtime client used here.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Completer with the Bedrock Converse API.
type BedrockClient struct {
	api     BedrockConverseAPI
	modelID string
}

func NewBedrockClient(api BedrockConverseAPI, modelID string) (*BedrockClient, error) {
	if api == nil {
		return nil, errors.New("extraction: bedrock converse client is required")
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("extraction: bedrock model id is required")
	}
	return &BedrockClient{api: api, modelID: modelID}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, p Prompt) (string, error) {
	var system []brtypes.SystemContentBlock
	if strings.TrimSpace(p.System) != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: p.System})
	}
	inference := &brtypes.InferenceConfiguration{Temperature: aws.Float32(p.Temperature)}
	if p.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(p.MaxTokens)
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		System:  system,
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: p.User}},
		}},
		InferenceConfig: inference,
	})
	if err != nil {
		return "", fmt.Errorf("extraction: bedrock converse: %w", err)
	}
	return bedrockOutputText(out)
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("extraction: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("extraction: bedrock response did not include a message output")
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errors.New("extraction: bedrock response contained no text content blocks")
	}
	return strings.TrimSpace(b.String()), nil
}
