package types

// Stage identifiers of the evaluation pipeline
const (
	StageJobAnalyzer       = "job_analyzer"
	StageGapAnalyzer       = "gap_analyzer"
	StageGatekeeper        = "gatekeeper"
	StageInterviewPrep     = "interview_prep"
	StageAnswerSynthesizer = "answer_synthesizer"
	StageApplicationWriter = "application_writer"
)
