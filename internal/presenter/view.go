package presenter

import (
	"encoding/json"

	"github.com/bizmatters/promptlens/internal/models"
)

// ResultsView holds the display toggles for the result currently on screen.
// Both toggles start off and flip independently of each other.
type ResultsView struct {
	result        *models.ReverseResponse
	RawView       bool
	TraceExpanded bool
}

// Bind attaches result to the view. A different result resets both toggles;
// binding the same result again keeps them.
func (v *ResultsView) Bind(result *models.ReverseResponse) {
	if v.result == result {
		return
	}
	v.result = result
	v.RawView = false
	v.TraceExpanded = false
}

// Result returns the bound result, or nil.
func (v *ResultsView) Result() *models.ReverseResponse {
	return v.result
}

// ToggleRaw switches between structured and raw JSON.
func (v *ResultsView) ToggleRaw() {
	v.RawView = !v.RawView
}

// ToggleTrace shows or hides the reasoning trace in structured mode.
func (v *ResultsView) ToggleTrace() {
	v.TraceExpanded = !v.TraceExpanded
}

// Field is one labeled scalar of the structured view.
type Field struct {
	Label string
	Value string
}

// Structured is the structured projection of a result.
type Structured struct {
	InferredPrompt    string
	Fields            []Field
	ConfidencePercent int
	Summary           string
	KeySignals        []string
	Constraints       []string
	TraceExpanded     bool
	Trace             []string
}

// Project builds the structured projection of result. Missing lists come back
// empty, and Trace is filled only when traceExpanded is set.
func Project(result *models.ReverseResponse, traceExpanded bool) Structured {
	s := Structured{
		InferredPrompt: result.InferredPrompt,
		Fields: []Field{
			{Label: "Prompt Style", Value: result.PromptStyle},
			{Label: "Task Type", Value: result.TaskType},
			{Label: "Temperature", Value: result.TemperatureEstimate},
			{Label: "Cache", Value: CacheLabel(result.Cached)},
			{Label: "Request ID", Value: result.RequestID},
		},
		ConfidencePercent: ConfidencePercent(result.ConfidenceScore),
		Summary:           result.Explainability.Summary,
		KeySignals:        orEmpty(result.Explainability.KeySignals),
		Constraints:       orEmpty(result.ConstraintsDetected),
		TraceExpanded:     traceExpanded,
		Trace:             []string{},
	}
	if traceExpanded {
		s.Trace = orEmpty(result.ReasoningTrace)
	}
	return s
}

// RawJSON renders the entire result as 2-space indented JSON.
func RawJSON(result *models.ReverseResponse) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CacheLabel renders the cache flag.
func CacheLabel(cached bool) string {
	if cached {
		return "Hit"
	}
	return "Miss"
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
