package researcher

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/mudler/LocalResearch/core/criteria"
)

const researchPrompt = `You are a research agent conducting focused research on the brief below.

Research brief:
{{.Brief}}

{{ if .Criteria }}Success criteria (satisfied so far: {{.SatisfiedCount}}/{{ len .Criteria }}):
{{ range .Criteria }}- [{{ if .Satisfied }}x{{ else }} {{ end }}] {{ .Text }}
{{ end }}
Target the unsatisfied criteria first.
{{ end }}
Use the available tools to gather evidence. Prefer broad searches first, then extract the most promising pages for detail. Use the think tool after each batch of results to record what you learned and decide what is still missing. When you judge the gathered evidence sufficient to answer the brief, reply with a short plain-text summary instead of calling more tools.`

func renderResearchPrompt(brief string, set *criteria.Set) (string, error) {
	tmpl, err := template.New("research").Funcs(sprig.FuncMap()).Parse(researchPrompt)
	if err != nil {
		return "", err
	}

	snapshot := set.Snapshot()
	satisfied := 0
	for _, c := range snapshot {
		if c.Satisfied {
			satisfied++
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct {
		Brief          string
		Criteria       []criteria.Criterion
		SatisfiedCount int
	}{
		Brief:          brief,
		Criteria:       snapshot,
		SatisfiedCount: satisfied,
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
