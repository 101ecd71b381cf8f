package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-evaluator/internal/ingestion"
	"github.com/jonathan/job-evaluator/internal/types"
)

// sourceFile marks jobs whose posting was read from disk
const sourceFile = "file"

type intakeOptions struct {
	jobFile    string
	jobURL     string
	resumePath string
	useBrowser bool
	noContinue bool
	format     string

	company        string
	role           string
	location       string
	remote         string
	employmentType string
	compensation   string
	source         string

	maxRetries   int
	stageTimeout int
}

func newIntakeCmd(a *app) *cobra.Command {
	opts := &intakeOptions{}
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Register a job and start evaluating it",
		Long: `Register a job from a posting file or URL, start a run against the given
resume and continue it until the gap analysis is ready for approval.

Company and role are taken from the posting page when not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runIntake(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.jobFile, "job", "j", "", "Path to job posting file (mutually exclusive with --job-url)")
	f.StringVar(&opts.jobURL, "job-url", "", "URL to fetch job posting from (mutually exclusive with --job)")
	f.StringVarP(&opts.resumePath, "resume", "r", "", "Path to resume (.pdf, .docx or text)")
	f.BoolVar(&opts.useBrowser, "use-browser", false, "Use headless browser for SPA sites (requires Chrome)")
	f.BoolVar(&opts.noContinue, "no-continue", false, "Only register the job and start the run")
	f.StringVarP(&opts.company, "company", "c", "", "Company name")
	f.StringVar(&opts.role, "role", "", "Role title")
	f.StringVar(&opts.location, "location", "", "Location")
	f.StringVar(&opts.remote, "remote", "", "Remote policy, e.g. remote, hybrid, onsite")
	f.StringVar(&opts.employmentType, "employment-type", "", "Employment type, e.g. full-time, contract")
	f.StringVar(&opts.compensation, "compensation", "", "Compensation as advertised")
	f.StringVar(&opts.source, "source", "", "Where the posting was found")
	f.IntVar(&opts.maxRetries, "max-retries", 0, "Retry budget per stage for this run (default from config)")
	f.IntVar(&opts.stageTimeout, "stage-timeout", 0, "Per-attempt stage timeout in seconds (default from config)")
	addOutputFlag(cmd, &opts.format)
	_ = cmd.MarkFlagRequired("resume")
	cmd.MarkFlagsMutuallyExclusive("job", "job-url")
	cmd.MarkFlagsOneRequired("job", "job-url")
	return cmd
}

func (a *app) runIntake(cmd *cobra.Command, opts *intakeOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	ctx := cmd.Context()

	resume, err := ingestion.ReadResume(opts.resumePath)
	if err != nil {
		return err
	}

	var posting *ingestion.Posting
	description := ""
	if opts.jobURL != "" {
		posting, err = ingestion.NewFetcher(a.log).FetchPosting(ctx, opts.jobURL, opts.useBrowser || a.cfg.UseBrowser)
		if err != nil {
			return err
		}
	} else {
		description, err = ingestion.ReadDocument(opts.jobFile)
		if err != nil {
			return err
		}
	}

	in, err := buildIntake(opts, posting, description, resume)
	if err != nil {
		return err
	}

	svc, err := a.open(ctx, !opts.noContinue)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	job, err := svc.orch.CreateJob(ctx, in)
	if err != nil {
		return err
	}
	run, err := svc.orch.StartRun(ctx, job.ID, types.RunConfig{
		ResumeText:          in.ResumeText,
		MaxRetries:          opts.maxRetries,
		StageTimeoutSeconds: opts.stageTimeout,
	})
	if err != nil {
		return err
	}
	if !opts.noContinue {
		if _, err := svc.orch.Continue(ctx, run.ID); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return printStatus(ctx, cmd.OutOrStdout(), svc.orch, job.ID, opts.format)
}

var intakeValidator = validator.New()

// buildIntake merges flags with what the fetched posting exposes. Flags win.
func buildIntake(opts *intakeOptions, posting *ingestion.Posting, description, resume string) (types.JobIntake, error) {
	in := types.JobIntake{
		Source:         opts.source,
		Company:        opts.company,
		RoleTitle:      opts.role,
		Location:       opts.location,
		RemotePolicy:   opts.remote,
		EmploymentType: opts.employmentType,
		Compensation:   opts.compensation,
		Description:    description,
		ResumeText:     resume,
	}
	if posting != nil {
		in.PostingURL = posting.URL
		in.Description = posting.Text
		if in.Source == "" {
			in.Source = string(posting.Platform)
		}
		if in.Company == "" {
			in.Company = posting.Company
		}
		if in.RoleTitle == "" {
			in.RoleTitle = posting.Title
		}
	} else if in.Source == "" {
		in.Source = sourceFile
	}

	if err := intakeValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].Tag() == "required" {
				return in, fmt.Errorf("job intake: %s is required", verrs[0].Field())
			}
			return in, fmt.Errorf("job intake: %s is invalid", verrs[0].Field())
		}
		return in, fmt.Errorf("job intake: %w", err)
	}
	return in, nil
}
