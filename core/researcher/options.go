package researcher

import (
	"fmt"
	"time"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
)

const (
	defaultMaxIterations = 6
	defaultMaxRetries    = 3
	defaultToolTimeout   = 2 * time.Minute
)

type options struct {
	client        llm.LLMClient
	model         string
	tools         types.Tools
	matcher       Matcher
	maxIterations int
	maxRetries    int
	toolTimeout   time.Duration
	eventCallback types.EventCallback
	cycleCallback func(CycleSnapshot)
}

func defaultOptions() *options {
	return &options{
		maxIterations: defaultMaxIterations,
		maxRetries:    defaultMaxRetries,
		toolTimeout:   defaultToolTimeout,
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

// WithMatcher sets the judge deciding whether evidence satisfies a pending
// criterion. Without one, criteria are only tracked, never marked satisfied.
func WithMatcher(matcher Matcher) Option {
	return func(o *options) error {
		o.matcher = matcher
		return nil
	}
}

// WithMaxIterations caps how many model cycles a single research run may
// spend before stopping with whatever evidence it has.
func WithMaxIterations(max int) Option {
	return func(o *options) error {
		if max <= 0 {
			return fmt.Errorf("max iterations must be positive, got %d", max)
		}
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

func WithEventCallback(cb types.EventCallback) Option {
	return func(o *options) error {
		o.eventCallback = cb
		return nil
	}
}

// WithCycleCallback registers a hook fired after every completed cycle with
// the accumulated loop state, so sessions can be checkpointed mid-research.
func WithCycleCallback(cb func(CycleSnapshot)) Option {
	return func(o *options) error {
		o.cycleCallback = cb
		return nil
	}
}
