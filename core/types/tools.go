package types

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Metadata keys that are part of the loop contract: any tool can attach a
// reflection note and a sufficiency decision to its result, the research
// loop picks both up regardless of which tool produced them.
const (
	MetadataNote       = "note"
	MetadataSufficient = "research_sufficient"
)

// ToolParams carries the arguments of a tool call as decoded JSON.
type ToolParams map[string]interface{}

func (tp ToolParams) Read(s string) error {
	return json.Unmarshal([]byte(s), &tp)
}

func (tp ToolParams) String() string {
	b, _ := json.Marshal(tp)
	return string(b)
}

func (tp ToolParams) Unmarshal(v interface{}) error {
	b, err := json.Marshal(tp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// ToolResult is the outcome of a single tool invocation. Result is the text
// handed back to the model verbatim; Metadata carries structured side
// channel data (discovered URLs, reflection decisions) for the loop.
type ToolResult struct {
	Result   string
	Metadata map[string]interface{}
}

type ToolName string

func (t ToolName) Is(name string) bool {
	return string(t) == name
}

func (t ToolName) String() string {
	return string(t)
}

type ToolDefinition struct {
	Properties  map[string]jsonschema.Definition
	Required    []string
	Name        ToolName
	Description string
}

func (d ToolDefinition) ToFunctionDefinition() *openai.FunctionDefinition {
	return &openai.FunctionDefinition{
		Name:        d.Name.String(),
		Description: d.Description,
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: d.Properties,
			Required:   d.Required,
		},
	}
}

// Tool is a capability the research loop can invoke. Implementations are
// side-effect-free reads against external services and must surface partial
// failure in the result rather than an error where the capability allows it.
type Tool interface {
	Run(ctx context.Context, params ToolParams) (ToolResult, error)
	Definition() ToolDefinition
}

type Tools []Tool

func (t Tools) ToTools() []openai.Tool {
	tools := []openai.Tool{}
	for _, tool := range t {
		tools = append(tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: tool.Definition().ToFunctionDefinition(),
		})
	}
	return tools
}

func (t Tools) Find(name string) Tool {
	for _, tool := range t {
		if tool.Definition().Name.Is(name) {
			return tool
		}
	}
	return nil
}
