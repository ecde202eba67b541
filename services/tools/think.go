package tools

import (
	"context"
	"fmt"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/sashabaranov/go-openai/jsonschema"
)

func NewThink() *ThinkTool {
	return &ThinkTool{}
}

// ThinkTool records a strategic reflection and the model's own judgement of
// whether the gathered knowledge is sufficient to stop. The research loop
// appends the note to the raw notes log and reads the sufficiency flag as
// the model's stop decision.
type ThinkTool struct{}

func (t *ThinkTool) Run(ctx context.Context, params types.ToolParams) (types.ToolResult, error) {
	reflection := struct {
		Reflection string `json:"reflection"`
		Sufficient bool   `json:"sufficient"`
	}{}
	if err := params.Unmarshal(&reflection); err != nil {
		return types.ToolResult{}, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	if reflection.Reflection == "" {
		return types.ToolResult{}, fmt.Errorf("empty reflection")
	}

	return types.ToolResult{
		Result: "Reflection recorded. Continue with the next step you reasoned about.",
		Metadata: map[string]interface{}{
			MetadataNote:       reflection.Reflection,
			MetadataSufficient: reflection.Sufficient,
		},
	}, nil
}

func (t *ThinkTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        ThinkToolName,
		Description: "Strategic reflection. Use after each search, map or extraction to analyze findings, assess progress against the success criteria and decide the next action. Set sufficient to true only when your current knowledge fully addresses the research brief.",
		Properties: map[string]jsonschema.Definition{
			"reflection": {
				Type:        jsonschema.String,
				Description: "Your analysis of what was found, what is missing and what to do next.",
			},
			"sufficient": {
				Type:        jsonschema.Boolean,
				Description: "Whether the knowledge gathered so far is sufficient to stop researching.",
			},
		},
		Required: []string{"reflection", "sufficient"},
	}
}
