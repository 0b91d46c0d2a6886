package models

// ReverseRequest is the body sent to the inference service's /reverse endpoint
type ReverseRequest struct {
	OutputText string `json:"output_text"`
}

// Explainability carries the human-readable rationale attached to an analysis
type Explainability struct {
	Summary    string   `json:"summary"`
	KeySignals []string `json:"key_signals"`
	RiskFlags  []string `json:"risk_flags"`
}

// ReverseResponse is the inference service's structured guess about the prompt
// behind a piece of LLM output. Values are kept exactly as received: ConfidenceScore
// is not guaranteed to lie in [0,1] and must be clamped at display time.
type ReverseResponse struct {
	RequestID           string             `json:"request_id"`
	Cached              bool               `json:"cached"`
	InferredPrompt      string             `json:"inferred_prompt"`
	PromptStyle         string             `json:"prompt_style"`
	TaskType            string             `json:"task_type"`
	ConstraintsDetected []string           `json:"constraints_detected"`
	TemperatureEstimate string             `json:"temperature_estimate"`
	ReasoningTrace      []string           `json:"reasoning_trace"`
	AnalyzerScores      map[string]float64 `json:"analyzer_scores"`
	Explainability      Explainability     `json:"explainability"`
	ConfidenceScore     float64            `json:"confidence_score"`
}

// HealthResponse is the body returned by the inference service's /health endpoint
type HealthResponse struct {
	Status      string `json:"status"`
	App         string `json:"app"`
	Environment string `json:"environment"`
}
