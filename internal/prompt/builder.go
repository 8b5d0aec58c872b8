// Package prompt assembles grounded prioritization prompts. Construction is
// pure data assembly: no network, no clock, deterministic for fixed inputs.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/gitmetrics"
)

// SystemPrompt frames the model as a prioritizing agent. The judgment
// contract (echoed id, numeric score, rationale) lives in the user prompt
// next to the findings it governs.
const SystemPrompt = `You are a prioritizing agent specialized in analyzing software quality and prioritizing technical debt.
You are practical with prioritizing technical debt, and are given detected code smells from a project together with retrieved context from its source code.
Use best practices for managing and prioritizing technical debt. Consider multiple dimensions: recency of changes, frequency of changes, severity of impact, dependencies, and criticality of the affected component.
Each finding is independent: never use one finding's context to analyze a different finding.`

// FindingContext bundles everything the prompt shows for one finding.
type FindingContext struct {
	Finding   domain.Finding
	CodeSpan  string
	Retrieved domain.RetrievalResult
	Metrics   *domain.FileMetrics
}

const userTemplate = `You will prioritize {{len .Batch}} code smell finding{{if gt (len .Batch) 1}}s{{end}}.

------ FINDINGS ------
{{- range .Batch}}
FINDING
- id: {{.Finding.ID}}
- smell: {{.Finding.Category}}{{if .Finding.SmellType}} ({{.Finding.SmellType}}){{end}}
- file: {{.Finding.FilePath}}
- lines: {{.Finding.Lines}}
{{- if .Finding.Module}}
- module/class: {{.Finding.Module}}
{{- end}}
- severity: {{.Finding.Severity}}
{{- if .Finding.Message}}

DESCRIPTION
{{.Finding.Message}}
{{- end}}
{{- if .CodeSpan}}

CODE SEGMENT (for context only)
{{.CodeSpan}}
{{- end}}
{{- if .Metrics}}

GIT STABILITY SUMMARY
{{metricsSummary .Metrics}}
{{- end}}
{{- if .Retrieved.Chunks}}

RETRIEVED CONTEXT
{{- range .Retrieved.Chunks}}
[{{.Chunk.SourceFile}}:{{.Chunk.StartLine}}-{{.Chunk.EndLine}}, similarity {{printf "%.2f" .Score}}]
{{.Chunk.Text}}
{{- end}}
{{- end}}
{{dashes}}
{{- end}}
{{- if .Structure}}

------ PROJECT STRUCTURE ------
{{.Structure}}
{{- end}}

Considering both the cost of refactoring and the potential benefits to software quality, assign each finding a priority score.

Respond with JSON only, in this exact shape:
{"judgments": [{"id": <finding id>, "score": <number between 0.0 and 1.0, higher = more urgent>, "rationale": "<one or two sentences>"}]}

Rules:
- Include every finding exactly once, matched by its id. If there are {{len .Batch}} findings, return exactly {{len .Batch}} judgments.
- Do not merge, ignore, or drop any finding, even when findings look similar.
- Echo the id unchanged; never renumber.
- No commentary outside the JSON.`

// Builder renders prioritization prompts from a parsed template.
type Builder struct {
	tmpl *template.Template
}

func NewBuilder() *Builder {
	tmpl := template.Must(template.New("prompt").Funcs(template.FuncMap{
		"metricsSummary": func(m *domain.FileMetrics) string {
			return strings.TrimRight(gitmetrics.FileSummary(*m), "\n")
		},
		"dashes": func() string { return strings.Repeat("-", 60) },
	}).Parse(userTemplate))
	return &Builder{tmpl: tmpl}
}

// Build renders the user prompt for one batch of findings. structure is the
// optional project tree; empty omits the section.
func (b *Builder) Build(batch []FindingContext, structure string) (string, error) {
	if len(batch) == 0 {
		return "", fmt.Errorf("empty batch")
	}

	var sb strings.Builder
	err := b.tmpl.Execute(&sb, struct {
		Batch     []FindingContext
		Structure string
	}{Batch: batch, Structure: structure})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return sb.String(), nil
}
