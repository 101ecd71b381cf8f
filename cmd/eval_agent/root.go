package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/config"
	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/stages"
)

// modelExecutorFunc builds the executor behind the model-backed stages. The
// returned close function may be nil.
type modelExecutorFunc func(ctx context.Context, cfg *config.Config, log *zap.Logger) (stages.Executor, func() error, error)

// app carries the state shared by every command
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger

	modelExecutor modelExecutorFunc
}

func newApp() *app {
	return &app{
		v:             config.NewViper(),
		log:           zap.NewNop(),
		modelExecutor: llmExecutor,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Job opportunity evaluator",
		Long: `eval_agent evaluates a job posting against a resume through a fixed sequence of
model-backed stages: job analysis, gap analysis, gatekeeping, interview
preparation, answer synthesis and application writing. Runs pause for a human
decision after the gap analysis and again for interview answers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is eval_agent.yaml in current directory)")
	flags.BoolP("debug", "d", false, "verbose/debug output")
	flags.Bool("json", false, "json format for logging")
	_ = a.v.BindPFlag("log.debug", flags.Lookup("debug"))
	_ = a.v.BindPFlag("log.json", flags.Lookup("json"))

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newIntakeCmd(a),
		newContinueCmd(a),
		newRecoverCmd(a),
		newApproveCmd(a),
		newAnswerCmd(a),
		newStatusCmd(a),
		newTokenCmd(a),
	)
	return root
}

// load reads the configuration and builds the logger
func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}
