package types

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Gap classifications produced by the gap analyzer
const (
	ClassificationMet     = "met"
	ClassificationPartial = "partial"
	ClassificationMissing = "missing"
)

// GapItem is one requirement classified against the resume
type GapItem struct {
	Requirement    string  `json:"requirement" mapstructure:"requirement"`
	Classification string  `json:"classification" mapstructure:"classification"`
	Evidence       string  `json:"evidence,omitempty" mapstructure:"evidence"`
	// Weight is nil when the analyzer gave none; the gatekeeper then uses 1
	Weight *float64 `json:"weight,omitempty" mapstructure:"weight"`
}

// GapAnalysis is the typed view of the gap analyzer output
type GapAnalysis struct {
	Gaps      []GapItem `json:"gaps" mapstructure:"gaps"`
	Strengths []string  `json:"strengths" mapstructure:"strengths"`
	Concerns  []string  `json:"concerns,omitempty" mapstructure:"concerns"`
	Summary   string    `json:"summary" mapstructure:"summary"`
}

// RedFlag is one concerning pattern found by the gatekeeper
type RedFlag struct {
	Code     string `json:"code" mapstructure:"code"`
	Severity string `json:"severity" mapstructure:"severity"`
	Detail   string `json:"detail" mapstructure:"detail"`
}

// FitAnalysis is the structured fit section of the gatekeeper output
type FitAnalysis struct {
	FitPercentage       float64   `json:"fit_percentage" mapstructure:"fit_percentage"`
	AutoRejectTriggered bool      `json:"auto_reject_triggered" mapstructure:"auto_reject_triggered"`
	AutoRejectReasons   []string  `json:"auto_reject_reasons,omitempty" mapstructure:"auto_reject_reasons"`
	RedFlags            []RedFlag `json:"red_flags" mapstructure:"red_flags"`
	FitBand             string    `json:"fit_band" mapstructure:"fit_band"`
}

// GatekeeperDecision is the typed view of the gatekeeper output
type GatekeeperDecision struct {
	Agent       string      `json:"agent" mapstructure:"agent"`
	Timestamp   string      `json:"timestamp" mapstructure:"timestamp"`
	Confidence  float64     `json:"confidence" mapstructure:"confidence"`
	Action      string      `json:"action" mapstructure:"action"`
	FitAnalysis FitAnalysis `json:"fit_analysis" mapstructure:"fit_analysis"`
	NextStep    string      `json:"next_step" mapstructure:"next_step"`
}

// Gatekeeper actions
const (
	ActionProceed = "proceed"
	ActionPass    = "pass"
	ActionDiscuss = "discuss"
)

// QuestionSet is the typed view of the interview prep output
type QuestionSet struct {
	Questions []Question `json:"questions" mapstructure:"questions"`
}

// SynthesisOutput is the typed view of the answer synthesizer output
type SynthesisOutput struct {
	Notes          InterviewNotes `json:"notes" mapstructure:"notes"`
	Recommendation string         `json:"recommendation" mapstructure:"recommendation"`
}

// ArtifactDraft is one deliverable proposed by the application writer
type ArtifactDraft struct {
	Kind     string         `json:"kind" mapstructure:"kind"`
	Content  string         `json:"content" mapstructure:"content"`
	Metadata map[string]any `json:"metadata,omitempty" mapstructure:"metadata"`
}

// ApplicationPackage is the typed view of the application writer output
type ApplicationPackage struct {
	Artifacts []ArtifactDraft `json:"artifacts" mapstructure:"artifacts"`
}

// Decode converts a validated document into its typed view. Numeric fields accept
// both integer and float JSON values.
func Decode(doc Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// ToDocument converts a typed value to its generic JSON document form, so the
// result carries the same value shapes an executor response would.
func ToDocument(in any) (Document, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return out, nil
}
