package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mudler/LocalResearch/core/orchestrator"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
	"github.com/sashabaranov/go-openai"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const briefWithCriteria = `I want to know the population and capital of Italy.

Success Criteria
- report the current population of Italy
- name the capital of Italy`

type memoryStore struct {
	mu    sync.Mutex
	saved []*types.AgentState
}

func (s *memoryStore) Save(ctx context.Context, state *types.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, state)
	return nil
}

func (s *memoryStore) Load(ctx context.Context, id string) (*types.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].ID == id {
			return s.saved[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type fakeMatcher struct {
	verdict bool
}

func (m *fakeMatcher) Satisfied(ctx context.Context, criterion, evidence string) (bool, error) {
	return m.verdict, nil
}

func jsonToolResponse(v any) openai.ChatCompletionResponse {
	args, _ := json.Marshal(v)
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{
						{
							ID:   "j1",
							Type: openai.ToolTypeFunction,
							Function: openai.FunctionCall{
								Name:      "json",
								Arguments: string(args),
							},
						},
					},
				},
			},
		},
	}
}

func textResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: text,
				},
			},
		},
	}
}

// scriptedClient replays canned responses in order.
type scriptedClient struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
}

func (c *scriptedClient) client() *llm.MockClient {
	return &llm.MockClient{
		CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.requests = append(c.requests, req)
			if len(c.responses) == 0 {
				return openai.ChatCompletionResponse{}, errors.New("script exhausted")
			}
			resp := c.responses[0]
			c.responses = c.responses[1:]
			return resp, nil
		},
	}
}

func userConversation(text string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: text},
	}
}

var _ = Describe("Orchestrator", func() {
	Context("happy path", func() {
		It("drives a session from conversation to final report", func() {
			script := &scriptedClient{
				responses: []openai.ChatCompletionResponse{
					// Scope: clarify decision, then brief
					jsonToolResponse(map[string]any{
						"need_clarification": false,
						"question":           "",
						"verification":       "I will research Italy's population and capital.",
					}),
					jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}),
					// Research: the model answers without tool calls
					textResponse("Italy has about 59 million people; the capital is Rome."),
					// Synthesize
					textResponse("# Italy\n\nPopulation: ~59M. Capital: Rome."),
				},
			}
			store := &memoryStore{}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(script.client()),
				orchestrator.WithModel("test"),
				orchestrator.WithStore(store),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Phase).To(Equal(types.PhaseDone))
			Expect(state.ResearchBrief).To(Equal(briefWithCriteria))
			Expect(state.Criteria.Len()).To(Equal(2))
			Expect(state.StopReason).To(Equal(types.StopModelSignal))
			Expect(state.FinalReport).To(ContainSubstring("Rome"))
			Expect(state.Conversation).To(HaveLen(2)) // user + verification
			Expect(store.count()).To(BeNumerically(">=", 3))
		})
	})

	Context("clarification", func() {
		It("pauses the session on a clarifying question and resumes with the answer", func() {
			script := &scriptedClient{
				responses: []openai.ChatCompletionResponse{
					jsonToolResponse(map[string]any{
						"need_clarification": true,
						"question":           "Which aspect of Italy interests you?",
						"verification":       "",
					}),
				},
			}
			store := &memoryStore{}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(script.client()),
				orchestrator.WithModel("test"),
				orchestrator.WithStore(store),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Phase).To(Equal(types.PhaseScope))
			Expect(state.ClarifyingQuestion).To(Equal("Which aspect of Italy interests you?"))
			Expect(state.FinalReport).To(BeEmpty())
			// the question is part of the conversation awaiting the user
			Expect(state.Conversation[len(state.Conversation)-1].Content).To(ContainSubstring("Which aspect"))

			script.responses = []openai.ChatCompletionResponse{
				jsonToolResponse(map[string]any{
					"need_clarification": false,
					"question":           "",
					"verification":       "I will research Italy's geography.",
				}),
				jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}),
				textResponse("done researching"),
				textResponse("# Report"),
			}

			state.Conversation = append(state.Conversation, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: "Geography, please",
			})
			resumed, err := orch.Resume(context.Background(), state)
			Expect(err).ToNot(HaveOccurred())
			Expect(resumed.Phase).To(Equal(types.PhaseDone))
			Expect(resumed.ClarifyingQuestion).To(BeEmpty())
			Expect(resumed.FinalReport).To(Equal("# Report"))
		})

		It("skips the clarification step when disabled", func() {
			script := &scriptedClient{
				responses: []openai.ChatCompletionResponse{
					jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}),
					textResponse("done"),
					textResponse("# Report"),
				},
			}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(script.client()),
				orchestrator.WithModel("test"),
				orchestrator.WithClarification(false),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Phase).To(Equal(types.PhaseDone))
			Expect(state.ClarifyingQuestion).To(BeEmpty())
		})
	})

	Context("best-effort synthesis", func() {
		It("still writes a report when the iteration budget runs out", func() {
			searchCall := openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{
					{
						Message: openai.ChatCompletionMessage{
							Role: openai.ChatMessageRoleAssistant,
							ToolCalls: []openai.ToolCall{
								{
									ID:   "c1",
									Type: openai.ToolTypeFunction,
									Function: openai.FunctionCall{
										Name:      "search_internet",
										Arguments: `{"query":"italy"}`,
									},
								},
							},
						},
					},
				},
			}
			script := &scriptedClient{
				responses: []openai.ChatCompletionResponse{
					jsonToolResponse(map[string]any{
						"need_clarification": false,
						"question":           "",
						"verification":       "ok",
					}),
					jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}),
					searchCall,
					textResponse("# Partial report"),
				},
			}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(script.client()),
				orchestrator.WithModel("test"),
				orchestrator.WithMaxIterations(1),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(state.StopReason).To(Equal(types.StopBudgetExhausted))
			Expect(state.Iterations).To(Equal(1))
			Expect(state.Phase).To(Equal(types.PhaseDone))
			Expect(state.FinalReport).To(Equal("# Partial report"))
			// the unknown tool call still produced a tool message
			Expect(state.ResearchMessages).To(HaveLen(2))
		})
	})

	Context("cancellation", func() {
		It("pauses before synthesis when cancelled at the end of research, and resumes", func() {
			ctx, cancel := context.WithCancel(context.Background())

			turns := 0
			client := &llm.MockClient{
				CreateChatCompletionFunc: func(reqCtx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
					turns++
					switch turns {
					case 1:
						return jsonToolResponse(map[string]any{
							"need_clarification": false,
							"question":           "",
							"verification":       "ok",
						}), nil
					case 2:
						return jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}), nil
					default:
						// cancellation lands while the loop's final model
						// turn is in flight
						cancel()
						return textResponse("done researching"), nil
					}
				},
			}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(client),
				orchestrator.WithModel("test"),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(ctx, userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Phase).To(Equal(types.PhaseSynthesize))
			Expect(state.FinalReport).To(BeEmpty())

			// a fresh context picks the session up at synthesis
			resumed, err := orch.Resume(context.Background(), state)
			Expect(err).ToNot(HaveOccurred())
			Expect(resumed.Phase).To(Equal(types.PhaseDone))
			Expect(resumed.FinalReport).To(Equal("done researching"))
		})
	})

	Context("fatal failures", func() {
		It("aborts with a phase error when Scope keeps failing", func() {
			client := &llm.MockClient{
				CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
					return openai.ChatCompletionResponse{}, errors.New("provider down")
				},
			}

			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(client),
				orchestrator.WithModel("test"),
				orchestrator.WithMatcher(&fakeMatcher{}),
			)
			Expect(err).ToNot(HaveOccurred())

			state, err := orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).To(HaveOccurred())

			var phaseErr *types.PhaseError
			Expect(errors.As(err, &phaseErr)).To(BeTrue())
			Expect(phaseErr.Phase).To(Equal(types.PhaseScope))

			var modelErr *types.UnrecoverableModelError
			Expect(errors.As(err, &modelErr)).To(BeTrue())

			// last consistent snapshot: session exists, nothing researched
			Expect(state).ToNot(BeNil())
			Expect(state.Phase).To(Equal(types.PhaseScope))
			Expect(state.ResearchBrief).To(BeEmpty())
		})
	})

	Context("events", func() {
		It("emits phase, brief and report events in order", func() {
			script := &scriptedClient{
				responses: []openai.ChatCompletionResponse{
					jsonToolResponse(map[string]any{
						"need_clarification": false,
						"question":           "",
						"verification":       "ok",
					}),
					jsonToolResponse(map[string]any{"research_brief": briefWithCriteria}),
					textResponse("done"),
					textResponse("# Report"),
				},
			}

			var mu sync.Mutex
			kinds := []types.EventKind{}
			orch, err := orchestrator.New(
				orchestrator.WithLLMClient(script.client()),
				orchestrator.WithModel("test"),
				orchestrator.WithMatcher(&fakeMatcher{}),
				orchestrator.WithEventCallback(func(e types.Event) {
					mu.Lock()
					defer mu.Unlock()
					kinds = append(kinds, e.Kind)
				}),
			)
			Expect(err).ToNot(HaveOccurred())

			_, err = orch.Start(context.Background(), userConversation("Tell me about Italy"))
			Expect(err).ToNot(HaveOccurred())
			Expect(kinds).To(Equal([]types.EventKind{
				types.EventPhase,  // scope
				types.EventBrief,
				types.EventPhase,  // research
				types.EventPhase,  // synthesize
				types.EventReport,
			}))
		})
	})
})
