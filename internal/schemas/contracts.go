package schemas

import (
	"github.com/jonathan/job-evaluator/internal/types"
)

// JobAnalyzerContract is the output contract of the job analyzer stage
func JobAnalyzerContract() Contract {
	return NewContract(types.StageJobAnalyzer,
		RequiredList("requirements", Element(TypeObject,
			Required("id", TypeString),
			Required("text", TypeString),
			RequiredEnum("importance", "required", "preferred"),
		), 1),
		Required("seniority", TypeString),
		Required("summary", TypeString),
	)
}

// GapAnalyzerContract is the output contract of the gap analyzer stage
func GapAnalyzerContract() Contract {
	return NewContract(types.StageGapAnalyzer,
		RequiredList("gaps", Element(TypeObject,
			Required("requirement", TypeString),
			RequiredEnum("classification", types.ClassificationMet, types.ClassificationPartial, types.ClassificationMissing),
			Required("evidence", TypeString),
			Field{Name: "weight", Type: TypeNumber, Range: Range(0, 10)},
		), 0),
		RequiredList("strengths", Element(TypeString), 0),
		OptionalList("concerns", Element(TypeString)),
		Required("summary", TypeString),
	)
}

// GatekeeperContract is the output contract of the gatekeeper stage
func GatekeeperContract() Contract {
	return NewContract(types.StageGatekeeper,
		RequiredEnum("action", types.ActionProceed, types.ActionPass, types.ActionDiscuss),
		RequiredObject("fit_analysis",
			Field{Name: "fit_percentage", Type: TypeNumber, Required: true, Range: Range(0, 100)},
			Required("auto_reject_triggered", TypeBool),
			OptionalList("auto_reject_reasons", Element(TypeString)),
			RequiredList("red_flags", Element(TypeObject,
				Required("code", TypeString),
				RequiredEnum("severity", "low", "high"),
				Required("detail", TypeString),
			), 0),
			RequiredEnum("fit_band", "excellent", "good", "fair", "poor"),
		),
		Required("next_step", TypeString),
	)
}

// InterviewPrepContract is the output contract of the interview prep stage
func InterviewPrepContract() Contract {
	return NewContract(types.StageInterviewPrep,
		UniqueList("questions", "id", Element(TypeObject,
			Required("id", TypeString),
			Required("text", TypeString),
			Required("theme", TypeString),
			Required("target_gap", TypeString),
		), 1),
	)
}

// AnswerSynthesizerContract is the output contract of the answer synthesizer stage
func AnswerSynthesizerContract() Contract {
	return NewContract(types.StageAnswerSynthesizer,
		RequiredObject("notes",
			RequiredList("key_points", Element(TypeString), 0),
			RequiredList("resolved_gaps", Element(TypeString), 0),
			RequiredList("open_risks", Element(TypeString), 0),
		),
		RequiredEnum("recommendation", "strong", "moderate", "weak"),
	)
}

// ApplicationWriterContract is the output contract of the application writer stage
func ApplicationWriterContract() Contract {
	return NewContract(types.StageApplicationWriter,
		RequiredList("artifacts", Element(TypeObject,
			RequiredEnum("kind", "cover_letter", "resume_highlights", "talking_points", "evaluation_summary"),
			Required("content", TypeString),
			Optional("metadata", TypeAny),
		), 1),
	)
}
