package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-evaluator/internal/gateway"
	"github.com/jonathan/job-evaluator/internal/types"
)

const (
	promptApprove = "Approve"
	promptReject  = "Reject"
)

func newApproveCmd(a *app) *cobra.Command {
	var (
		approve bool
		reject  bool
		format  string
	)
	cmd := &cobra.Command{
		Use:   "approve <job-id>",
		Short: "Approve or reject the gap analysis of a job",
		Long: `Resolve the gap approval checkpoint. Approving continues the run until it
needs interview answers or finishes; rejecting ends it. Without --yes or --no
the gap analysis is shown and the decision is asked for interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			jobID, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			decided := approve || reject
			if !decided {
				if err := printStatus(ctx, cmd.OutOrStdout(), svc.orch, jobID, formatText); err != nil {
					return err
				}
				prompt := promptui.Select{
					Label: "Gap analysis",
					Items: []string{promptApprove, promptReject},
				}
				_, choice, err := prompt.Run()
				if err != nil {
					return err
				}
				approve = choice == promptApprove
			}

			gw := gateway.New(svc.orch, gateway.NewInlineScheduler(svc.orch), a.log)
			res, err := gw.ApproveGapAnalysis(ctx, jobID, approve)
			if err != nil {
				return err
			}
			return printResult(cmd, svc, res, format)
		},
	}
	cmd.Flags().BoolVarP(&approve, "yes", "y", false, "Approve the gap analysis")
	cmd.Flags().BoolVarP(&reject, "no", "n", false, "Reject the gap analysis")
	cmd.MarkFlagsMutuallyExclusive("yes", "no")
	addOutputFlag(cmd, &format)
	return cmd
}

func newAnswerCmd(a *app) *cobra.Command {
	var (
		answersFile string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "answer <job-id>",
		Short: "Submit interview answers for a job",
		Long: `Resolve the interview answers checkpoint and continue the run to completion.

Answers are read from a JSON file, either a list of {"question_id", "answer"}
objects or an object mapping question ids to answers. Without --answers each
question is asked interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			jobID, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			var answers []types.Answer
			if answersFile != "" {
				answers, err = readAnswers(answersFile)
			} else {
				var iv *types.Interview
				iv, err = svc.orch.Interview(ctx, jobID)
				if err == nil {
					answers, err = askAnswers(iv)
				}
			}
			if err != nil {
				return err
			}

			gw := gateway.New(svc.orch, gateway.NewInlineScheduler(svc.orch), a.log)
			res, err := gw.SubmitInterviewAnswers(ctx, jobID, answers)
			if err != nil {
				return err
			}
			return printResult(cmd, svc, res, format)
		},
	}
	cmd.Flags().StringVarP(&answersFile, "answers", "a", "", "Path to a JSON answers file")
	addOutputFlag(cmd, &format)
	return cmd
}

// printResult writes the gateway result followed by the job status
func printResult(cmd *cobra.Command, svc *services, res *gateway.Result, format string) error {
	w := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(w, res)
	}
	_, _ = fmt.Fprintf(w, "%s (%s)\n", res.Message, res.Status)
	return printStatus(cmd.Context(), w, svc.orch, res.JobID, formatText)
}

// readAnswers reads a list of answers or an object keyed by question id
func readAnswers(path string) ([]types.Answer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}
	return parseAnswers(raw)
}

func parseAnswers(raw []byte) ([]types.Answer, error) {
	var list []types.Answer
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var byID map[string]string
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, errors.New("answers must be a JSON list of {question_id, answer} or an object of question id to answer")
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list = make([]types.Answer, 0, len(ids))
	for _, id := range ids {
		list = append(list, types.Answer{QuestionID: id, Text: byID[id]})
	}
	return list, nil
}

// askAnswers prompts for an answer to every question
func askAnswers(iv *types.Interview) ([]types.Answer, error) {
	if iv.Answered() {
		return nil, fmt.Errorf("interview for run %s was already answered", iv.RunID)
	}
	answers := make([]types.Answer, 0, len(iv.Questions))
	for _, q := range iv.Questions {
		fmt.Printf("\n%s  %s\n", q.ID, q.Text)
		prompt := promptui.Prompt{
			Label: "Answer",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("answer must not be empty")
				}
				return nil
			},
		}
		text, err := prompt.Run()
		if err != nil {
			return nil, err
		}
		answers = append(answers, types.Answer{QuestionID: q.ID, Text: strings.TrimSpace(text)})
	}
	return answers, nil
}

