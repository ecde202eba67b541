package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// GenerateTypedJSONWithGuidance forces the model to answer a single prompt
// with JSON matching the given schema.
func GenerateTypedJSONWithGuidance(ctx context.Context, client LLMClient, guidance, model string, i jsonschema.Definition, dst any, maxRetries int) error {
	return GenerateTypedJSONWithConversation(ctx, client, []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleUser,
			Content: guidance,
		},
	}, model, i, dst, maxRetries)
}

// GenerateTypedJSONWithConversation makes the model produce structured
// output by forcing a single tool call whose arguments follow the schema,
// then unmarshals the arguments into dst. Transient provider failures are
// retried up to maxRetries times like any other Chat call.
func GenerateTypedJSONWithConversation(ctx context.Context, client LLMClient, conv []openai.ChatCompletionMessage, model string, i jsonschema.Definition, dst any, maxRetries int) error {
	toolName := "json"
	decision := openai.ChatCompletionRequest{
		Model:    model,
		Messages: conv,
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:       toolName,
					Parameters: i,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: toolName},
		},
	}

	resp, err := Chat(ctx, client, decision, maxRetries)
	if err != nil {
		return err
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return fmt.Errorf("no tool calls: %d", len(msg.ToolCalls))
	}

	xlog.Debug("JSON generated", "Arguments", msg.ToolCalls[0].Function.Arguments)

	return json.Unmarshal([]byte(msg.ToolCalls[0].Function.Arguments), dst)
}
