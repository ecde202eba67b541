package researcher

import (
	"context"

	"github.com/mudler/LocalResearch/pkg/llm"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Matcher decides whether a body of gathered evidence satisfies a single
// success criterion.
type Matcher interface {
	Satisfied(ctx context.Context, criterion, evidence string) (bool, error)
}

// maxEvidenceChars bounds how much evidence a single check feeds the model.
const maxEvidenceChars = 12000

// ModelMatcher judges criteria with a forced-JSON verdict from the model.
// Checks are conservative: a provider failure returns an error and the
// criterion stays pending until a later cycle produces stronger evidence.
type ModelMatcher struct {
	Client     llm.LLMClient
	Model      string
	MaxRetries int
}

type verdict struct {
	Satisfied bool   `json:"satisfied"`
	Reasoning string `json:"reasoning"`
}

func (m *ModelMatcher) Satisfied(ctx context.Context, criterion, evidence string) (bool, error) {
	if len(evidence) > maxEvidenceChars {
		evidence = evidence[:maxEvidenceChars]
	}

	retries := m.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	var v verdict
	err := llm.GenerateTypedJSONWithConversation(ctx, m.Client,
		[]openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You verify research progress. Given a success criterion and the evidence gathered so far, " +
					"decide whether the evidence fully satisfies the criterion. " +
					"Only answer satisfied when the evidence directly and completely covers the criterion; partial or tangential coverage is not enough.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Criterion:\n" + criterion + "\n\nEvidence:\n" + evidence,
			},
		},
		m.Model, jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"satisfied": {
					Type:        jsonschema.Boolean,
					Description: "Whether the evidence fully satisfies the criterion",
				},
				"reasoning": {
					Type:        jsonschema.String,
					Description: "One sentence explaining the decision",
				},
			},
			Required: []string{"satisfied", "reasoning"},
		}, &v, retries)
	if err != nil {
		return false, err
	}
	return v.Satisfied, nil
}
