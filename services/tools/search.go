package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/config"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"mvdan.cc/xurls/v2"
)

const searchUserAgent = "LocalResearch"

func NewSearch(config map[string]string) *SearchTool {
	results := config["results"]
	intResult := 5

	if results != "" {
		if _, err := fmt.Sscanf(results, "%d", &intResult); err != nil {
			xlog.Warn("Invalid search results setting, using default", "value", results, "error", err)
		}
	}

	return &SearchTool{results: intResult}
}

// SearchTool runs broad web queries to surface relevant sources and
// promising URLs for the other tools to follow up on.
type SearchTool struct{ results int }

func (t *SearchTool) Run(ctx context.Context, params types.ToolParams) (types.ToolResult, error) {
	query := struct {
		Query string `json:"query"`
	}{}
	if err := params.Unmarshal(&query); err != nil {
		return types.ToolResult{}, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	ddg, err := duckduckgo.New(t.results, searchUserAgent)
	if err != nil {
		return types.ToolResult{}, fmt.Errorf("failed to create search client: %w", err)
	}

	res, err := ddg.Call(ctx, query.Query)
	if err != nil {
		return types.ToolResult{}, fmt.Errorf("search failed: %w", err)
	}

	rxStrict := xurls.Strict()
	found := rxStrict.FindAllString(res, -1)

	urls := []string{}
	for _, u := range found {
		// strip the search engine redirect wrapper
		u = strings.ReplaceAll(u, "//duckduckgo.com/l/?uddg=", "")
		u = strings.Split(u, "&rut=")[0]
		urls = append(urls, u)
	}

	xlog.Debug("Search completed", "query", query.Query, "urls", len(urls))

	return types.ToolResult{
		Result:   res,
		Metadata: map[string]interface{}{MetadataUrls: urls},
	}, nil
}

func (t *SearchTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        SearchToolName,
		Description: "Broad web search to identify relevant sources and promising URLs. Use for initial exploration and for different perspectives on the topic.",
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "The query to search for.",
			},
		},
		Required: []string{"query"},
	}
}

// SearchConfigMeta returns the metadata for the search tool configuration fields
func SearchConfigMeta() []config.Field {
	return []config.Field{
		{
			Name:         "results",
			Label:        "Number of Results",
			Type:         config.FieldTypeNumber,
			DefaultValue: 5,
			Min:          1,
			Max:          100,
			Step:         1,
			HelpText:     "Number of search results to return",
		},
	}
}
