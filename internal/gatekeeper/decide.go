package gatekeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/job-evaluator/internal/types"
)

// Agent is the agent identifier stamped on gatekeeper output
const Agent = "gatekeeper"

// contradictionYears is the experience demand that contradicts an entry-level title
const contradictionYears = 5

// Input is everything the decision engine reads
type Input struct {
	Gaps []types.GapItem
	// Concerns are free-text concerns raised by the gap analysis
	Concerns     []string
	Description  string
	Compensation string
	RemotePolicy string
	Employment   string
}

// AutoReject is the outcome of the disqualifying-criteria scan
type AutoReject struct {
	Triggered bool
	Reasons   []string
}

// EvaluateAutoReject scans the posting against the disqualifying criteria.
// It never looks at the fit percentage.
func EvaluateAutoReject(c Criteria, in Input) AutoReject {
	var reasons []string
	lowerDesc := strings.ToLower(in.Description)

	for _, kw := range c.Keywords {
		m, ok := newPhraseMatcher(kw)
		if ok && m.in(lowerDesc) {
			reasons = append(reasons, "disqualifying keyword "+quoted(m.phrase))
		}
	}

	if c.MinCompensation > 0 {
		if stated, ok := ParseCompensation(in.Compensation + "\n" + in.Description); ok && stated < c.MinCompensation {
			reasons = append(reasons, fmt.Sprintf("compensation %s below floor %s", formatMoney(stated), formatMoney(c.MinCompensation)))
		}
	}

	arrangement := strings.ToLower(strings.Join([]string{in.RemotePolicy, in.Employment, in.Description}, "\n"))
	for _, a := range c.DisallowedArrangements {
		m, ok := newPhraseMatcher(a)
		if ok && m.in(arrangement) {
			reasons = append(reasons, "disallowed work arrangement "+quoted(m.phrase))
		}
	}

	return AutoReject{Triggered: len(reasons) > 0, Reasons: reasons}
}

// DetectRedFlags scans the posting and the gap concerns for concerning patterns.
// Flags are returned in pattern order, at most one per code.
func DetectRedFlags(patterns []Pattern, in Input) []types.RedFlag {
	flags := make([]types.RedFlag, 0)
	text := strings.ToLower(in.Description + "\n" + in.Compensation + "\n" + strings.Join(in.Concerns, "\n"))

	for _, p := range patterns {
		phrase, ok := firstMatch(p.Phrases, text)
		if !ok {
			continue
		}
		detail := p.Detail
		if detail == "" {
			detail = p.Code
		}
		flags = append(flags, types.RedFlag{
			Code:     p.Code,
			Severity: p.Severity,
			Detail:   fmt.Sprintf("%s (%q)", detail, phrase),
		})
	}

	if entryLevel.MatchString(in.Description) {
		if years := maxYearsRequired(in.Description); years >= contradictionYears {
			flags = append(flags, types.RedFlag{
				Code:     "contradictory_requirements",
				Severity: SeverityHigh,
				Detail:   fmt.Sprintf("entry-level role asks for %d+ years of experience", years),
			})
		}
	}
	return flags
}

// RedFlagsOutweigh reports whether the flags' severity total reaches limit
func RedFlagsOutweigh(flags []types.RedFlag, limit int) bool {
	total := 0
	for _, f := range flags {
		if f.Severity == SeverityHigh {
			total += 2
		} else {
			total++
		}
	}
	return total >= limit
}

// SelectAction applies the decision rules: auto-reject or a poor band pass,
// an excellent band proceeds unless red flags outweigh it, anything else is
// discussed.
func SelectAction(c Config, fit float64, autoReject bool, flags []types.RedFlag) string {
	if autoReject {
		return types.ActionPass
	}
	switch Band(c.Thresholds, fit) {
	case BandPoor:
		return types.ActionPass
	case BandExcellent:
		if !RedFlagsOutweigh(flags, c.RedFlagLimit) {
			return types.ActionProceed
		}
	}
	return types.ActionDiscuss
}

// Decide runs the full decision for one input
func Decide(c Config, in Input, now time.Time) types.GatekeeperDecision {
	fit := FitPercentage(c.Weights, in.Gaps)
	reject := EvaluateAutoReject(c.Criteria, in)
	flags := DetectRedFlags(c.RedFlagPatterns, in)
	action := SelectAction(c, fit, reject.Triggered, flags)

	return types.GatekeeperDecision{
		Agent:      Agent,
		Timestamp:  now.UTC().Format(time.RFC3339),
		Confidence: 1,
		Action:     action,
		FitAnalysis: types.FitAnalysis{
			FitPercentage:       fit,
			AutoRejectTriggered: reject.Triggered,
			AutoRejectReasons:   reject.Reasons,
			RedFlags:            flags,
			FitBand:             Band(c.Thresholds, fit),
		},
		NextStep: nextStep(action, reject, flags),
	}
}

func nextStep(action string, reject AutoReject, flags []types.RedFlag) string {
	switch action {
	case types.ActionProceed:
		return "Prepare for interview questions targeting the remaining gaps"
	case types.ActionPass:
		if reject.Triggered {
			return "Do not pursue: " + strings.Join(reject.Reasons, "; ")
		}
		return "Do not pursue: fit is below the reject ceiling"
	}
	if len(flags) > 0 {
		return fmt.Sprintf("Discuss %d red flag(s) before investing in an application", len(flags))
	}
	return "Discuss the partial fit before investing in an application"
}
