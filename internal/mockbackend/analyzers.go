package mockbackend

import (
	"fmt"
	"regexp"
	"strings"
)

// Prompt styles reported in prompt_style.
const (
	StyleInstruction    = "instruction"
	StyleRoleBased      = "role-based"
	StyleChainOfThought = "chain-of-thought"
	StyleTemplate       = "template"
)

// Temperature estimates reported in temperature_estimate.
const (
	TemperatureLow    = "low"
	TemperatureMedium = "medium"
	TemperatureHigh   = "high"
)

const noExplicitConstraints = "none-explicit"

type structureSignal struct {
	inferredPrompt string
	promptStyle    string
	taskType       string
	trace          string
}

var (
	templateMarkers = regexp.MustCompile(`\{\{.*?\}\}|\[[A-Z_]+\]`)

	codeHints      = []string{"```", "def ", "class ", "import ", "function", "algorithm"}
	essayHints     = []string{"introduction", "conclusion", "thesis", "paragraph"}
	reasoningHints = []string{"step", "therefore", "because", "let's", "first,"}

	taskPrompts = map[string]string{
		"code":        "Generate production-ready code with comments and edge-case handling.",
		"essay":       "Write a structured essay with intro, body, and conclusion.",
		"explanation": "Explain the concept clearly for an intermediate audience.",
		"reasoning":   "Solve the problem step-by-step and justify each conclusion.",
		"general":     "Respond clearly and helpfully to the user request.",
	}

	stylePrefixes = map[string]string{
		StyleInstruction:    "Instruction: ",
		StyleRoleBased:      "Role: You are a domain expert. Task: ",
		StyleChainOfThought: "Think step-by-step. Then answer. Task: ",
		StyleTemplate:       "Template: [ROLE] [TASK] [CONSTRAINTS]. Task: ",
	}
)

// analyzeStructure infers the prompt frame and primary task.
func analyzeStructure(text string) structureSignal {
	lower := strings.ToLower(text)
	isTemplate := templateMarkers.MatchString(text)
	roleBased := strings.Contains(lower, "as an") || strings.Contains(lower, "you are")
	chainOfThought := containsAny(lower, reasoningHints) && len(strings.Split(text, "\n")) > 4

	var style string
	switch {
	case isTemplate:
		style = StyleTemplate
	case roleBased:
		style = StyleRoleBased
	case chainOfThought:
		style = StyleChainOfThought
	default:
		style = StyleInstruction
	}

	task := inferTaskType(lower)
	return structureSignal{
		inferredPrompt: stylePrefixes[style] + taskPrompts[task],
		promptStyle:    style,
		taskType:       task,
		trace:          fmt.Sprintf("style=%s, task_type=%s, template_markers=%t", style, task, isTemplate),
	}
}

func inferTaskType(lower string) string {
	switch {
	case containsAny(lower, codeHints):
		return "code"
	case containsAny(lower, essayHints):
		return "essay"
	case strings.Contains(lower, "explain") || strings.Contains(lower, "overview"):
		return "explanation"
	case containsAny(lower, reasoningHints):
		return "reasoning"
	default:
		return "general"
	}
}

type constraintSignal struct {
	constraints []string
	trace       string
}

// constraintPatterns is ordered; detected constraints keep this order.
var constraintPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"json_format", regexp.MustCompile(`(?i)json|\{\s*".*"\s*:\s*`)},
	{"bullet_points", regexp.MustCompile(`(?m)^-\s|^\*\s`)},
	{"length_limit", regexp.MustCompile(`(?i)\b\d+\s*(words|sentences|characters)\b`)},
	{"stepwise", regexp.MustCompile(`(?i)step\s*\d+|first[,\s]|second[,\s]`)},
	{"no_fluff", regexp.MustCompile(`(?i)concise|brief|without fluff|only`)},
}

func detectConstraints(text string) constraintSignal {
	var hits []string
	for _, p := range constraintPatterns {
		if p.pattern.MatchString(text) {
			hits = append(hits, p.name)
		}
	}
	if len(hits) == 0 {
		hits = []string{noExplicitConstraints}
	}
	return constraintSignal{
		constraints: hits,
		trace:       "constraint_hits=" + strings.Join(hits, ","),
	}
}

type toneSignal struct {
	tone        string
	temperature string
	trace       string
}

func classifyTone(text string) toneSignal {
	lower := strings.ToLower(text)
	exclamations := strings.Count(text, "!")
	hedging := countAll(lower, "maybe", "might", "possibly", "could")
	formal := countAll(lower, "therefore", "moreover", "hence", "in summary")

	s := toneSignal{tone: "neutral", temperature: TemperatureMedium}
	switch {
	case exclamations >= 3 || hedging >= 4:
		s.tone, s.temperature = "creative", TemperatureHigh
	case formal >= 3:
		s.tone, s.temperature = "formal", TemperatureLow
	}
	s.trace = fmt.Sprintf("tone=%s, exclamations=%d, hedging=%d, formal=%d", s.tone, exclamations, hedging, formal)
	return s
}

type formatSignal struct {
	markers []string
	trace   string
}

func (f formatSignal) plainText() bool {
	for _, m := range f.markers {
		if m == "plain_text" {
			return true
		}
	}
	return false
}

func detectFormat(text string) formatSignal {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	var markers []string
	if strings.Contains(text, "```") {
		markers = append(markers, "markdown_code_block")
	}
	if anyLine(lines, func(l string) bool { return strings.HasPrefix(l, "- ") || strings.HasPrefix(l, "* ") }) {
		markers = append(markers, "bullet_list")
	}
	if anyLine(lines, isNumberedStep) {
		markers = append(markers, "numbered_steps")
	}
	if strings.Contains(text, "{") && strings.Contains(text, "}") && strings.Contains(text, `"`) {
		markers = append(markers, "json_like")
	}
	if len(markers) == 0 {
		markers = []string{"plain_text"}
	}
	return formatSignal{markers: markers, trace: "format_markers=" + strings.Join(markers, ",")}
}

// isNumberedStep matches lines like "2. item" or "10) item".
func isNumberedStep(line string) bool {
	i := 0
	for i < len(line) && i < 2 && isDigit(line[i]) {
		i++
	}
	return i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')')
}

type reasoningSignal struct {
	depth float64
	trace string
}

var reasoningConnectors = []string{"because", "therefore", "however", "if", "then", "thus", "so that"}

func estimateReasoningDepth(text string) reasoningSignal {
	words := len(strings.Fields(text))
	if words < 1 {
		words = 1
	}
	connectors := countAll(strings.ToLower(text), reasoningConnectors...)

	steps := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && trimmed[0] >= '1' && trimmed[0] <= '9' {
			steps++
		}
	}

	raw := float64(connectors)*0.08 + float64(steps)*0.1 + min(float64(words)/1500, 0.25)
	return reasoningSignal{
		depth: clamp(raw, 0, 1),
		trace: fmt.Sprintf("connectors=%d, steps=%d", connectors, steps),
	}
}

type injectionSignal struct {
	suspected bool
	matches   []string
	trace     string
}

const injectionThreshold = 2

var injectionPatterns = []struct {
	category string
	keys     []string
}{
	{"instruction_override", []string{"ignore previous", "disregard all prior", "new instructions"}},
	{"policy_exfiltration", []string{"system prompt", "hidden prompt", "reveal instructions"}},
	{"role_hijack", []string{"you are now", "act as", "developer mode"}},
	{"secrets_access", []string{"api key", "token", "password", "credentials"}},
}

func detectInjection(text string) injectionSignal {
	lower := strings.ToLower(text)
	var matches []string
	for _, p := range injectionPatterns {
		if containsAny(lower, p.keys) {
			matches = append(matches, p.category)
		}
	}

	trace := "injection_matches=none"
	if len(matches) > 0 {
		trace = "injection_matches=" + strings.Join(matches, ",")
	}
	return injectionSignal{
		suspected: len(matches) >= injectionThreshold,
		matches:   matches,
		trace:     trace,
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func countAll(s string, needles ...string) int {
	total := 0
	for _, n := range needles {
		total += strings.Count(s, n)
	}
	return total
}

func anyLine(lines []string, match func(string) bool) bool {
	for _, l := range lines {
		if match(l) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
