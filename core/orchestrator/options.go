package orchestrator

import (
	"context"
	"time"

	"github.com/mudler/LocalResearch/core/researcher"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
)

// Store persists session snapshots. Saves are best effort: a failing store
// logs and the session carries on in memory.
type Store interface {
	Save(ctx context.Context, state *types.AgentState) error
	Load(ctx context.Context, id string) (*types.AgentState, error)
}

type options struct {
	client        llm.LLMClient
	model         string
	tools         types.Tools
	matcher       researcher.Matcher
	store         Store
	maxIterations int
	maxRetries    int
	toolTimeout   time.Duration
	clarify       bool
	eventCallback types.EventCallback
}

func defaultOptions() *options {
	return &options{
		maxIterations: 6,
		maxRetries:    3,
		toolTimeout:   2 * time.Minute,
		clarify:       true,
	}
}

type Option func(*options) error

func newOptions(opts ...Option) (*options, error) {
	options := defaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

func WithLLMClient(client llm.LLMClient) Option {
	return func(o *options) error {
		o.client = client
		return nil
	}
}

func WithModel(model string) Option {
	return func(o *options) error {
		o.model = model
		return nil
	}
}

func WithTools(tools ...types.Tool) Option {
	return func(o *options) error {
		o.tools = append(o.tools, tools...)
		return nil
	}
}

func WithMatcher(matcher researcher.Matcher) Option {
	return func(o *options) error {
		o.matcher = matcher
		return nil
	}
}

func WithStore(store Store) Option {
	return func(o *options) error {
		o.store = store
		return nil
	}
}

func WithMaxIterations(max int) Option {
	return func(o *options) error {
		o.maxIterations = max
		return nil
	}
}

func WithMaxRetries(retries int) Option {
	return func(o *options) error {
		o.maxRetries = retries
		return nil
	}
}

func WithToolTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		o.toolTimeout = timeout
		return nil
	}
}

// WithClarification controls whether Scope may pause the session with a
// clarifying question instead of researching straight away.
func WithClarification(enabled bool) Option {
	return func(o *options) error {
		o.clarify = enabled
		return nil
	}
}

func WithEventCallback(cb types.EventCallback) Option {
	return func(o *options) error {
		o.eventCallback = cb
		return nil
	}
}
