package tools

import (
	"github.com/mudler/LocalResearch/core/types"
	"github.com/mudler/LocalResearch/pkg/config"
)

// Tool names as exposed to the model.
const (
	SearchToolName  = "search_internet"
	MapToolName     = "map_website"
	ExtractToolName = "extract_webpages"
	ThinkToolName   = "think"
)

// Metadata keys attached to tool results. Note and sufficiency keys come
// from the loop contract in core/types.
const (
	MetadataUrls          = "urls"
	MetadataNote          = types.MetadataNote
	MetadataSufficient    = types.MetadataSufficient
	MetadataFailedUrls    = "failed_urls"
	MetadataExtractedUrls = "extracted_urls"
)

// Available assembles the research tool set. Config is keyed by tool name,
// with per-tool string settings as the UI hands them over.
func Available(config map[string]map[string]string) types.Tools {
	return types.Tools{
		NewSearch(config[SearchToolName]),
		NewMap(config[MapToolName]),
		NewExtract(config[ExtractToolName]),
		NewThink(),
	}
}

// ConfigMeta describes every tool's settings for the API.
func ConfigMeta() []config.FieldGroup {
	return []config.FieldGroup{
		{Name: SearchToolName, Label: "Internet search", Fields: SearchConfigMeta()},
		{Name: MapToolName, Label: "Website mapping", Fields: MapConfigMeta()},
		{Name: ExtractToolName, Label: "Webpage extraction", Fields: ExtractConfigMeta()},
	}
}
