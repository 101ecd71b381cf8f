package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-evaluator/internal/schemas"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/types"
)

var noop = stages.ExecutorFunc(func(ctx context.Context, req stages.Request) (types.Document, error) {
	return nil, nil
})

func defaultDef() *Definition {
	return DefaultDefinition(Executors{Model: noop, Gatekeeper: noop})
}

func TestDefaultDefinition(t *testing.T) {
	def := defaultDef()
	require.NoError(t, def.Validate())
	assert.Equal(t, DefaultVersion, def.Version)

	ids := make([]string, 0, len(def.Stages))
	for _, s := range def.Stages {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{
		types.StageJobAnalyzer, types.StageGapAnalyzer, types.StageGatekeeper,
		types.StageInterviewPrep, types.StageAnswerSynthesizer, types.StageApplicationWriter,
	}, ids)

	assert.Equal(t, types.AwaitingGapApproval, def.Stages[1].Checkpoint)
	assert.Equal(t, types.AwaitingInterviewAnswers, def.Stages[3].Checkpoint)
	assert.Equal(t, 2, def.Index(types.StageGatekeeper))
	assert.Equal(t, -1, def.Index("nope"))

	routing := def.Routing()
	assert.Equal(t, TierLite, routing[types.StageJobAnalyzer])
	_, routed := routing[types.StageGatekeeper]
	assert.False(t, routed)
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		errMsg string
	}{
		{"no version", func(d *Definition) { d.Version = "" }, "version is required"},
		{"no stages", func(d *Definition) { d.Stages = nil }, "has no stages"},
		{"duplicate stage", func(d *Definition) { d.Stages[1] = d.Stages[0] }, "duplicate stage"},
		{"missing executor", func(d *Definition) { d.Stages[0].Executor = nil }, "has no executor"},
		{"wrong contract", func(d *Definition) { d.Stages[0].Contract = schemas.GapAnalyzerContract() }, "uses the contract"},
		{"reads a later stage", func(d *Definition) {
			d.Stages[0].Reads = append(d.Stages[0].Reads, types.StageGatekeeper)
		}, "does not run before it"},
		{"last stage pauses", func(d *Definition) {
			d.Stages[len(d.Stages)-1].Checkpoint = types.AwaitingInterviewAnswers
		}, "cannot pause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := defaultDef()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// promptedExecutor serves only the stages it has instructions for
type promptedExecutor struct {
	stages.Executor
	known map[string]bool
}

func (p promptedExecutor) CheckStage(stage string) error {
	if !p.known[stage] {
		return errors.New("no prompt for stage " + stage)
	}
	return nil
}

func TestDefinitionValidate_ExecutorMustServeEveryStage(t *testing.T) {
	model := promptedExecutor{Executor: noop, known: map[string]bool{
		types.StageJobAnalyzer:       true,
		types.StageGapAnalyzer:       true,
		types.StageInterviewPrep:     true,
		types.StageAnswerSynthesizer: true,
		types.StageApplicationWriter: true,
	}}
	def := DefaultDefinition(Executors{Model: model, Gatekeeper: noop})
	require.NoError(t, def.Validate())

	delete(model.known, types.StageInterviewPrep)
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage interview_prep: no prompt for stage interview_prep")

	_, err = NewRegistry(def)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	v1 := defaultDef()
	v2 := defaultDef()
	v2.Version = "v2"

	reg, err := NewRegistry(v2, v1)
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Current().Version)
	got, ok := reg.Get(DefaultVersion)
	require.True(t, ok)
	assert.Same(t, v1, got)
	_, ok = reg.Get("v3")
	assert.False(t, ok)

	_, err = NewRegistry(v1, v1)
	assert.ErrorContains(t, err, "registered twice")
	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

func TestRegistryFor_ReplacedOverride(t *testing.T) {
	base := defaultDef()
	reg2, err := RegistryFor(base, &Override{Version: "v2", Tiers: map[string]string{types.StageJobAnalyzer: TierAdvanced}})
	require.NoError(t, err)
	reg3, err := RegistryFor(base, &Override{Version: "v3", Tiers: map[string]string{types.StageGapAnalyzer: TierLite}})
	require.NoError(t, err)

	run := &types.Run{
		PipelineVersion: "v2",
		ModelRouting:    reg2.Current().Routing(),
		State:           types.RunState{Kind: types.StatePaused, StageIndex: 2, Checkpoint: types.AwaitingGapApproval},
		Outputs: []types.StageOutput{
			{Stage: types.StageJobAnalyzer, Position: 0},
			{Stage: types.StageGapAnalyzer, Position: 1},
		},
	}
	_, ok := reg3.Get("v2")
	require.False(t, ok)

	def, err := reg3.For(run)
	require.NoError(t, err)
	assert.Equal(t, "v2", def.Version)
	assert.Equal(t, TierAdvanced, def.Stages[def.Index(types.StageJobAnalyzer)].Tier)
	assert.Equal(t, TierStandard, def.Stages[def.Index(types.StageGapAnalyzer)].Tier)

	known, err := reg3.For(&types.Run{PipelineVersion: DefaultVersion})
	require.NoError(t, err)
	assert.Same(t, base, known)

	tests := []struct {
		name string
		run  *types.Run
	}{
		{name: "no version", run: &types.Run{}},
		{name: "unknown stage in routing", run: &types.Run{PipelineVersion: "v0", ModelRouting: map[string]string{"ghost": TierLite}}},
		{
			name: "outputs out of order",
			run: &types.Run{PipelineVersion: "v0", Outputs: []types.StageOutput{{Stage: types.StageGapAnalyzer, Position: 0}}},
		},
		{name: "index past the end", run: &types.Run{PipelineVersion: "v0", State: types.RunState{StageIndex: 9}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg3.For(tt.run)
			var unknown *ErrUnknownPipelineVersion
			assert.ErrorAs(t, err, &unknown)
		})
	}
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride([]byte(`{"version": "v1-pro", "tiers": {"gap_analyzer": "advanced"}}`))
	require.NoError(t, err)
	assert.Equal(t, "v1-pro", o.Version)
	assert.Equal(t, TierAdvanced, o.Tiers[types.StageGapAnalyzer])

	invalid := []string{
		`{"tiers": {}}`,
		`{"version": "v2", "tiers": {"gap_analyzer": "huge"}}`,
		`{"version": "v2", "stages": []}`,
		`{"version": "has spaces"}`,
		`not json`,
	}
	for _, raw := range invalid {
		_, err := ParseOverride([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestOverrideApply(t *testing.T) {
	base := defaultDef()
	o := Override{Version: "v2", Tiers: map[string]string{types.StageJobAnalyzer: TierAdvanced}}

	def, err := o.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, "v2", def.Version)
	assert.Equal(t, TierAdvanced, def.Stages[0].Tier)
	assert.Equal(t, TierLite, base.Stages[0].Tier)

	_, err = Override{Version: "v2", Tiers: map[string]string{"ghost": TierLite}}.Apply(base)
	assert.ErrorContains(t, err, "unknown stage")
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v1-lite"}`), 0o600))

	o, err := LoadOverride(path)
	require.NoError(t, err)
	reg, err := RegistryFor(defaultDef(), o)
	require.NoError(t, err)
	assert.Equal(t, "v1-lite", reg.Current().Version)
	_, ok := reg.Get(DefaultVersion)
	assert.True(t, ok)

	_, err = LoadOverride(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRunLocks(t *testing.T) {
	locks := newRunLocks()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())

	// different runs do not block each other
	unlockA := locks.lock(uuid.New())
	unlockB := locks.lock(uuid.New())
	assert.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
