package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/config"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai/jsonschema"
	"jaytaylor.com/html2text"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func NewExtract(config map[string]string) *ExtractTool {
	max := 8000
	if config["max_chars"] != "" {
		if _, err := fmt.Sscanf(config["max_chars"], "%d", &max); err != nil {
			xlog.Warn("Invalid max_chars setting, using default", "value", config["max_chars"], "error", err)
		}
	}

	return &ExtractTool{
		maxChars: max,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractTool fetches one or more URLs and converts their content to plain
// text. URLs fail individually: a failed fetch is reported in the result for
// that URL and never aborts the rest of the batch.
type ExtractTool struct {
	maxChars int
	client   *http.Client
}

type pageContent struct {
	url     string
	text    string
	failure string
}

func (t *ExtractTool) Run(ctx context.Context, params types.ToolParams) (types.ToolResult, error) {
	req := struct {
		URLs []string `json:"urls"`
	}{}
	if err := params.Unmarshal(&req); err != nil {
		return types.ToolResult{}, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	if len(req.URLs) == 0 {
		return types.ToolResult{}, fmt.Errorf("no urls to extract")
	}

	// fetched concurrently, reported in request order
	pages := make([]pageContent, len(req.URLs))
	var wg sync.WaitGroup
	for i, u := range req.URLs {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			pages[i] = t.fetch(ctx, u)
		}(i, u)
	}
	wg.Wait()

	var sb strings.Builder
	extracted := []string{}
	failed := []string{}
	for _, page := range pages {
		if page.failure != "" {
			failed = append(failed, page.url)
			fmt.Fprintf(&sb, "## %s\nextraction failed: %s\n\n", page.url, page.failure)
			continue
		}
		extracted = append(extracted, page.url)
		fmt.Fprintf(&sb, "## %s\n%s\n\n", page.url, page.text)
	}

	xlog.Debug("Extraction batch done", "extracted", len(extracted), "failed", len(failed))

	return types.ToolResult{
		Result: sb.String(),
		Metadata: map[string]interface{}{
			MetadataExtractedUrls: extracted,
			MetadataFailedUrls:    failed,
		},
	}, nil
}

func (t *ExtractTool) fetch(ctx context.Context, pageURL string) pageContent {
	page := pageContent{url: pageURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		page.failure = err.Error()
		return page
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		page.failure = err.Error()
		return page
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		page.failure = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		return page
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		page.failure = err.Error()
		return page
	}

	text, err := html2text.FromString(string(body), html2text.Options{PrettyTables: true})
	if err != nil {
		page.failure = err.Error()
		return page
	}

	if len(text) > t.maxChars {
		cut := t.maxChars
		// back up to a rune boundary
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n[content truncated]"
	}
	page.text = text
	return page
}

func (t *ExtractTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        ExtractToolName,
		Description: "Extract the full text content of one or more webpages. Use on the most promising URLs found via search or mapping.",
		Properties: map[string]jsonschema.Definition{
			"urls": {
				Type:        jsonschema.Array,
				Description: "The URLs of the webpages to extract.",
				Items: &jsonschema.Definition{
					Type: jsonschema.String,
				},
			},
		},
		Required: []string{"urls"},
	}
}

// ExtractConfigMeta returns the metadata for the extract tool configuration fields
func ExtractConfigMeta() []config.Field {
	return []config.Field{
		{
			Name:         "max_chars",
			Label:        "Maximum Characters",
			Type:         config.FieldTypeNumber,
			DefaultValue: 8000,
			Min:          500,
			Max:          100000,
			Step:         500,
			HelpText:     "Maximum characters of extracted text per page",
		},
	}
}
