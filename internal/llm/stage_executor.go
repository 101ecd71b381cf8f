package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/prompts"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Generator is the part of Client a stage executor needs
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
}

// StageExecutor runs model-backed pipeline stages. It builds the prompt from the
// stage instructions, the projected run state and the stage's output schema.
type StageExecutor struct {
	gen     Generator
	catalog *prompts.Catalog
	log     *zap.Logger
}

// NewStageExecutor creates an executor over the given generator using the
// embedded stage prompts
func NewStageExecutor(gen Generator, log *zap.Logger) (*StageExecutor, error) {
	catalog, err := prompts.Stages()
	if err != nil {
		return nil, err
	}
	return &StageExecutor{gen: gen, catalog: catalog, log: logger.OrNop(log)}, nil
}

// CheckStage implements stages.StageChecker: only stages with a prompt can run
func (e *StageExecutor) CheckStage(stage string) error {
	if !e.catalog.Has(stage) {
		return fmt.Errorf("%w %s", prompts.ErrNoStagePrompt, stage)
	}
	return nil
}

// Invoke implements stages.Executor
func (e *StageExecutor) Invoke(ctx context.Context, req stages.Request) (types.Document, error) {
	prompt, err := e.buildPrompt(req)
	if err != nil {
		return nil, stages.Permanent(err)
	}

	tier := ModelTier(req.Tier)
	e.log.Debug("invoking model",
		zap.String(logger.FieldStage, req.Stage),
		zap.Int(logger.FieldAttempt, req.Attempt),
		zap.String("tier", string(tier)),
		zap.Int("prompt_chars", len(prompt)),
	)

	raw, err := e.gen.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && !reqErr.Retryable() {
			return nil, stages.Permanent(err)
		}
		return nil, err
	}

	var doc types.Document
	if err := json.Unmarshal([]byte(CleanJSONBlock(raw)), &doc); err != nil {
		e.log.Debug("model returned malformed JSON",
			zap.String(logger.FieldStage, req.Stage),
			zap.String("response", logger.Truncate(raw, 200)),
		)
		return nil, fmt.Errorf("failed to parse %s response: %w", req.Stage, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s response is not a JSON object", req.Stage)
	}
	return doc, nil
}

// buildPrompt renders the full prompt for one stage attempt
func (e *StageExecutor) buildPrompt(req stages.Request) (string, error) {
	vars := prompts.Vars{Stage: req.Stage}
	if job := req.Input.Job; job != nil {
		vars.Company = job.Company
		vars.Role = job.RoleTitle
	}
	instructions, err := e.catalog.StagePrompt(req.Stage, vars)
	if err != nil {
		return "", err
	}
	rules, err := e.catalog.OutputRules(vars)
	if err != nil {
		return "", err
	}

	input, err := json.MarshalIndent(req.Input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode stage input: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nInput:\n")
	sb.Write(input)
	sb.WriteString("\n\n")
	sb.WriteString(rules)
	sb.WriteString("\n\nJSON Schema:\n")
	sb.WriteString(req.Contract.JSONSchemaString())

	if len(req.PriorViolations) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(e.catalog.RetryNotice())
		for _, v := range req.PriorViolations {
			sb.WriteString("\n- ")
			sb.WriteString(v)
		}
	}
	return sb.String(), nil
}
