package mockbackend

import (
	"fmt"
	"math"

	"github.com/bizmatters/promptlens/internal/models"
)

// analyze runs every analyzer over text and merges the signals into a response
// without request_id or cached set.
func analyze(text string) models.ReverseResponse {
	structure := analyzeStructure(text)
	constraints := detectConstraints(text)
	tone := classifyTone(text)
	format := detectFormat(text)
	reasoning := estimateReasoningDepth(text)
	injection := detectInjection(text)

	confidence := calibratedConfidence(constraints, format, reasoning, injection)

	riskFlags := injection.matches
	if len(riskFlags) == 0 {
		riskFlags = []string{"none"}
	}

	return models.ReverseResponse{
		InferredPrompt:      structure.inferredPrompt,
		PromptStyle:         structure.promptStyle,
		TaskType:            structure.taskType,
		ConstraintsDetected: constraints.constraints,
		TemperatureEstimate: tone.temperature,
		ReasoningTrace: []string{
			structure.trace,
			constraints.trace,
			tone.trace,
			format.trace,
			reasoning.trace,
			injection.trace,
			fmt.Sprintf("confidence=%.2f", confidence),
		},
		AnalyzerScores: map[string]float64{
			"structure":        pick(structure.taskType != "general", 0.8, 0.55),
			"constraint":       min(0.3+float64(len(constraints.constraints))*0.15, 0.95),
			"tone":             pick(tone.tone != "neutral", 0.75, 0.6),
			"format":           pick(!format.plainText(), 0.8, 0.55),
			"reasoning_depth":  round2(reasoning.depth),
			"injection_safety": pick(injection.suspected, 0.25, 0.9),
		},
		Explainability: models.Explainability{
			Summary: fmt.Sprintf("Detected %s style and %s task with %d constraint signals.",
				structure.promptStyle, structure.taskType, len(constraints.constraints)),
			KeySignals: []string{structure.trace, constraints.trace, format.trace},
			RiskFlags:  riskFlags,
		},
		ConfidenceScore: confidence,
	}
}

// calibratedConfidence squashes the weighted evidence through a logistic curve
// and keeps the result within [0.03, 0.99].
func calibratedConfidence(constraints constraintSignal, format formatSignal, reasoning reasoningSignal, injection injectionSignal) float64 {
	base := 0.48
	if constraints.constraints[0] != noExplicitConstraints {
		base += 0.12
	} else {
		base -= 0.04
	}
	base += pick(!format.plainText(), 0.1, 0.03)
	base += min(reasoning.depth*0.35, 0.23)
	if injection.suspected {
		base -= 0.35
	}

	calibrated := 1 / (1 + math.Exp(-4*(base-0.5)))
	return round2(clamp(calibrated, 0.03, 0.99))
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
