// Package prompts holds the stage instructions handed to model-backed executors.
// The catalog is embedded at compile time and parsed once.
package prompts

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed stages.json
var stagesJSON []byte

// Catalog entries shared by every stage
const (
	keyOutputRules = "output-rules"
	keyRetryNotice = "retry-notice"
)

// ErrNoStagePrompt is returned for a stage the catalog has no instructions for
var ErrNoStagePrompt = errors.New("no prompt for stage")

// Vars are the values a prompt template may reference
type Vars struct {
	Stage   string
	Company string
	Role    string
}

// Catalog is a parsed set of stage prompts
type Catalog struct {
	stages      map[string]*template.Template
	outputRules *template.Template
	retryNotice string
}

var (
	stagesOnce    sync.Once
	stagesCatalog *Catalog
	stagesErr     error
)

// Stages returns the embedded stage catalog
func Stages() (*Catalog, error) {
	stagesOnce.Do(func() {
		stagesCatalog, stagesErr = Parse(stagesJSON)
	})
	return stagesCatalog, stagesErr
}

// Parse builds a catalog from a JSON object of stage id to template. The
// output rules and retry notice entries are required.
func Parse(raw []byte) (*Catalog, error) {
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}

	c := &Catalog{stages: make(map[string]*template.Template, len(entries))}
	for key, text := range entries {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt %q is empty", key)
		}
		if key == keyRetryNotice {
			c.retryNotice = text
			continue
		}
		tmpl, err := template.New(key).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", key, err)
		}
		if key == keyOutputRules {
			c.outputRules = tmpl
			continue
		}
		c.stages[key] = tmpl
	}

	if c.outputRules == nil {
		return nil, fmt.Errorf("prompt catalog has no %q entry", keyOutputRules)
	}
	if c.retryNotice == "" {
		return nil, fmt.Errorf("prompt catalog has no %q entry", keyRetryNotice)
	}
	return c, nil
}

// Has reports whether the catalog carries instructions for stage
func (c *Catalog) Has(stage string) bool {
	_, ok := c.stages[stage]
	return ok
}

// StagePrompt renders the instructions for stage
func (c *Catalog) StagePrompt(stage string, vars Vars) (string, error) {
	tmpl, ok := c.stages[stage]
	if !ok {
		return "", fmt.Errorf("%w %s", ErrNoStagePrompt, stage)
	}
	return render(tmpl, vars)
}

// OutputRules renders the response format rules for stage
func (c *Catalog) OutputRules(vars Vars) (string, error) {
	return render(c.outputRules, vars)
}

// RetryNotice introduces the violations of a rejected attempt
func (c *Catalog) RetryNotice() string {
	return c.retryNotice
}

func render(tmpl *template.Template, vars Vars) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
