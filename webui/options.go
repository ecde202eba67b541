package webui

import (
	"time"

	"github.com/mudler/LocalResearch/core/orchestrator"
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/llm"
)

type Config struct {
	Client        llm.LLMClient
	Model         string
	Tools         types.Tools
	Store         orchestrator.Store
	MaxIterations int
	ToolTimeout   time.Duration
	Clarify       bool
}

type Option func(*Config)

func WithLLMClient(client llm.LLMClient) Option {
	return func(c *Config) {
		c.Client = client
	}
}

func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

func WithTools(tools ...types.Tool) Option {
	return func(c *Config) {
		c.Tools = append(c.Tools, tools...)
	}
}

// WithStore sets the persistent session store. Without one, sessions live
// only in memory and do not survive a restart.
func WithStore(store orchestrator.Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func WithMaxIterations(max int) Option {
	return func(c *Config) {
		c.MaxIterations = max
	}
}

func WithToolTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ToolTimeout = timeout
	}
}

func WithClarification(enabled bool) Option {
	return func(c *Config) {
		c.Clarify = enabled
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func NewConfig(opts ...Option) *Config {
	c := &Config{
		MaxIterations: 6,
		ToolTimeout:   2 * time.Minute,
		Clarify:       true,
	}
	c.Apply(opts...)
	return c
}
