package types

import (
	"time"

	"github.com/google/uuid"
)

// Question is one generated interview question
type Question struct {
	ID        string `json:"id" mapstructure:"id"`
	Text      string `json:"text" mapstructure:"text"`
	Theme     string `json:"theme" mapstructure:"theme"`
	TargetGap string `json:"target_gap" mapstructure:"target_gap"`
}

// Answer is a candidate's answer keyed to a question identifier
type Answer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Text       string `json:"answer" validate:"required"`
}

// InterviewNotes are the structured notes derived from submitted answers
type InterviewNotes struct {
	KeyPoints    []string `json:"key_points" mapstructure:"key_points"`
	ResolvedGaps []string `json:"resolved_gaps" mapstructure:"resolved_gaps"`
	OpenRisks    []string `json:"open_risks" mapstructure:"open_risks"`
}

// Interview holds the questions generated for a run and the answers submitted for them
type Interview struct {
	RunID      uuid.UUID       `json:"run_id"`
	Questions  []Question      `json:"questions"`
	Answers    []Answer        `json:"answers,omitempty"`
	Notes      *InterviewNotes `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	AnsweredAt *time.Time      `json:"answered_at,omitempty"`
}

// HasQuestion reports whether a question identifier was generated for this interview
func (i *Interview) HasQuestion(id string) bool {
	for _, q := range i.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Answered reports whether answers were already submitted
func (i *Interview) Answered() bool {
	return i.AnsweredAt != nil
}
