package presenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/bizmatters/promptlens/internal/models"
)

const textBarWidth = 20

// WriteText renders result for a plain terminal: raw JSON when raw is set,
// otherwise the structured view.
func WriteText(w io.Writer, result *models.ReverseResponse, raw, traceExpanded bool) error {
	if raw {
		data, err := RawJSON(result)
		if err != nil {
			return fmt.Errorf("failed to render raw view: %w", err)
		}
		_, err = fmt.Fprintln(w, data)
		return err
	}

	s := Project(result, traceExpanded)
	var b strings.Builder

	b.WriteString("Inferred Prompt\n")
	b.WriteString(indent(s.InferredPrompt))
	b.WriteString("\n\n")

	for _, f := range s.Fields {
		fmt.Fprintf(&b, "%-13s %s\n", f.Label+":", f.Value)
	}
	fmt.Fprintf(&b, "%-13s %s %d%%\n\n", "Confidence:", ConfidenceBar(result.ConfidenceScore, textBarWidth), s.ConfidencePercent)

	b.WriteString("Explainability\n")
	if s.Summary != "" {
		b.WriteString(indent(s.Summary))
		b.WriteString("\n")
	}
	writeBullets(&b, s.KeySignals)

	b.WriteString("\nConstraints Detected\n")
	writeBullets(&b, s.Constraints)

	if s.TraceExpanded {
		b.WriteString("\nReasoning Trace\n")
		for i, step := range s.Trace {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBullets(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func indent(text string) string {
	return "  " + strings.ReplaceAll(text, "\n", "\n  ")
}
