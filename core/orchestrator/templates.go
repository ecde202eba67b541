package orchestrator

import (
	"bytes"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

const clarifyPrompt = `Today is {{.Date}}.

Assess whether the conversation below contains enough context to start researching the user's request.
Ask a clarifying question only when acronyms, abbreviations or unknown terms make the request ambiguous, or when the scope is genuinely undecidable. If the request is researchable as stated, do not ask.

When you ask, gather all the missing context concisely in one question.
When you do not ask, confirm in one sentence what you will research.`

const briefPrompt = `Today is {{.Date}}.

Turn the conversation below into a single, self-contained research brief that will guide an autonomous research agent.

Rules:
- First-person framing, as a question or directive from the user.
- Preserve every detail the user stated; do not invent preferences or constraints they did not express.
- Where the user was open-ended, note that the dimension is open rather than guessing.
- Prefer the user's own source and quality preferences; otherwise favour primary and authoritative sources.

End the brief with a "Success Criteria" section: a short bullet list (using "-" bullets) of the concrete facts or comparisons the final report must cover for the research to count as complete. Each bullet is one independently checkable item.`

const reportPrompt = `Today is {{.Date}}.

Write the final research report answering the brief below, using only the research findings provided.

Research brief:
{{.Brief}}

Structure the report in markdown with a title, sections following the shape of the question, and a short conclusion. Cite concrete facts from the findings; when the findings do not cover part of the brief, say so explicitly instead of speculating.
{{ if .Notes }}
Researcher notes:
{{ range .Notes }}- {{ . }}
{{ end }}{{ end }}
Findings:
{{.Findings}}`

func renderPrompt(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func today() string {
	return time.Now().Format("Mon, Jan 2 2006")
}

func renderClarifyPrompt() (string, error) {
	return renderPrompt("clarify", clarifyPrompt, struct{ Date string }{Date: today()})
}

func renderBriefPrompt() (string, error) {
	return renderPrompt("brief", briefPrompt, struct{ Date string }{Date: today()})
}

func renderReportPrompt(brief, findings string, notes []string) (string, error) {
	return renderPrompt("report", reportPrompt, struct {
		Date     string
		Brief    string
		Findings string
		Notes    []string
	}{
		Date:     today(),
		Brief:    brief,
		Findings: findings,
		Notes:    notes,
	})
}
