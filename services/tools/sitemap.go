package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/config"
	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"github.com/sashabaranov/go-openai/jsonschema"
	"mvdan.cc/xurls/v2"
)

var errEnoughEntries = errors.New("enough entries")

func NewMap(config map[string]string) *MapTool {
	max := 50
	if config["max_urls"] != "" {
		if _, err := fmt.Sscanf(config["max_urls"], "%d", &max); err != nil {
			xlog.Warn("Invalid max_urls setting, using default", "value", config["max_urls"], "error", err)
		}
	}

	return &MapTool{
		maxResults: max,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// MapTool discovers internal pages of a website, sitemap-first with a
// link-scan fallback. Provider limits can truncate the listing; the tool
// then returns fewer URLs rather than failing.
type MapTool struct {
	maxResults int
	client     *http.Client
}

func (t *MapTool) Run(ctx context.Context, params types.ToolParams) (types.ToolResult, error) {
	req := struct {
		URL string `json:"url"`
	}{}
	if err := params.Unmarshal(&req); err != nil {
		return types.ToolResult{}, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	base, err := url.Parse(req.URL)
	if err != nil || base.Host == "" {
		return types.ToolResult{}, fmt.Errorf("invalid base URL %q", req.URL)
	}

	urls := t.fromSitemap(base)
	if len(urls) == 0 {
		urls = t.fromLinks(ctx, base)
	}

	xlog.Debug("Website mapped", "base", base.Host, "urls", len(urls))

	if len(urls) == 0 {
		return types.ToolResult{
			Result:   fmt.Sprintf("No internal pages discovered for %s.", req.URL),
			Metadata: map[string]interface{}{MetadataUrls: []string{}},
		}, nil
	}

	return types.ToolResult{
		Result:   fmt.Sprintf("Discovered %d internal pages of %s:\n%s", len(urls), base.Host, strings.Join(urls, "\n")),
		Metadata: map[string]interface{}{MetadataUrls: urls},
	}, nil
}

func (t *MapTool) fromSitemap(base *url.URL) []string {
	urls := []string{}
	sitemapURL := base.Scheme + "://" + base.Host + "/sitemap.xml"

	err := sitemap.ParseFromSite(sitemapURL, func(e sitemap.Entry) error {
		if len(urls) >= t.maxResults {
			return errEnoughEntries
		}
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughEntries) {
		xlog.Debug("Sitemap not available, falling back to link scan", "url", sitemapURL, "error", err)
	}

	return urls
}

// fromLinks fetches the base page and keeps same-host links found in it.
func (t *MapTool) fromLinks(ctx context.Context, base *url.URL) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		xlog.Warn("Link scan fetch failed", "url", base.String(), "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	urls := []string{}
	for _, u := range xurls.Strict().FindAllString(string(body), -1) {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host != base.Host || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) >= t.maxResults {
			break
		}
	}
	return urls
}

func (t *MapTool) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        MapToolName,
		Description: "Discover internal pages of a website from its base URL. Use when an authoritative domain needs comprehensive coverage.",
		Properties: map[string]jsonschema.Definition{
			"url": {
				Type:        jsonschema.String,
				Description: "The base URL of the website to map.",
			},
		},
		Required: []string{"url"},
	}
}

// MapConfigMeta returns the metadata for the map tool configuration fields
func MapConfigMeta() []config.Field {
	return []config.Field{
		{
			Name:         "max_urls",
			Label:        "Maximum URLs",
			Type:         config.FieldTypeNumber,
			DefaultValue: 50,
			Min:          1,
			Max:          500,
			Step:         1,
			HelpText:     "Maximum number of discovered URLs to return",
		},
	}
}
