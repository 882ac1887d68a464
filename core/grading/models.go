package grading

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// SubmissionStatus is the lifecycle state of a Submission.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
)

type (
	Assignment struct {
		ID          string      `json:"id"`
		CourseID    string      `json:"course_id"`
		LessonID    null.String `json:"lesson_id,omitempty"`
		Title       string      `json:"title"`
		Description string      `json:"description,omitempty"`
		DueDate     null.Time   `json:"due_date,omitempty"`
		MaxPoints   float64     `json:"max_points"`
		RubricID    null.String `json:"rubric_id,omitempty"`
		CreatedBy   string      `json:"created_by"`
		CreatedAt   time.Time   `json:"created_at"` // UTC
		UpdatedAt   time.Time   `json:"updated_at"` // UTC
	}

	Rubric struct {
		ID       string      `json:"id"`
		Title    string      `json:"title"`
		OwnerID  string      `json:"owner_id"`
		Criteria []Criterion `json:"criteria"`
	}

	Criterion struct {
		ID        string  `json:"id"`
		RubricID  string  `json:"rubric_id"`
		Title     string  `json:"title"`
		MaxPoints float64 `json:"max_points"`
		Position  int     `json:"position"`
	}

	// Submission is one student's attempt at an assignment; unique on
	// (AssignmentID, StudentID). Grade stays null until Status is "graded".
	Submission struct {
		ID           string           `json:"id"`
		AssignmentID string           `json:"assignment_id"`
		StudentID    string           `json:"student_id"`
		Content      string           `json:"content,omitempty"`
		Status       SubmissionStatus `json:"status"`
		Grade        null.Float64     `json:"grade"`
		Feedback     string           `json:"feedback,omitempty"`
		GradedBy     null.String      `json:"graded_by,omitempty"`
		GradedAt     null.Time        `json:"graded_at,omitempty"`
		CreatedAt    time.Time        `json:"created_at"` // UTC
		UpdatedAt    time.Time        `json:"updated_at"` // UTC
	}

	// RubricScore is one clamped criterion score on one submission;
	// unique on (CriterionID, SubmissionID).
	RubricScore struct {
		CriterionID  string    `json:"criterion_id"`
		SubmissionID string    `json:"submission_id"`
		Score        float64   `json:"score"`
		Comment      string    `json:"comment,omitempty"`
		UpdatedAt    time.Time `json:"updated_at"` // UTC
	}
)

// Criterion returns the rubric's criterion with the given ID, if any.
func (r Rubric) Criterion(id string) (Criterion, bool) {
	for _, crt := range r.Criteria {
		if crt.ID == id {
			return crt, true
		}
	}
	return Criterion{}, false
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	LessonID    string     `json:"lesson_id"`
	DueDate     *time.Time `json:"due_date"`
	MaxPoints   float64    `json:"max_points" validate:"gt=0"`
	RubricID    string     `json:"rubric_id"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

type NewRubric struct {
	Title    string         `json:"title" validate:"required"`
	Criteria []NewCriterion `json:"criteria" validate:"required,min=1,dive"`
}

type NewCriterion struct {
	Title     string  `json:"title" validate:"required"`
	MaxPoints float64 `json:"max_points" validate:"gt=0"`
}

func (nr *NewRubric) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	for i := range nr.Criteria {
		nr.Criteria[i].Title = core.CleanString(nr.Criteria[i].Title)
	}
	return validate.Struct(nr)
}

type NewSubmission struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	Content      string `json:"content" validate:"required"`
	Draft        bool   `json:"draft"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = core.CleanString(ns.Content)
	return validate.Struct(ns)
}

// CriterionScoreInput is one rubric score entry; Score is clamped into
// [0, criterion.MaxPoints] when applied.
type CriterionScoreInput struct {
	CriterionID string  `json:"criterion_id" validate:"required"`
	Score       float64 `json:"score"`
	Comment     string  `json:"comment"`
}

type RubricGradeInput struct {
	Scores   []CriterionScoreInput `json:"scores" validate:"required,min=1,dive"`
	Feedback string                `json:"feedback"`
}

func (rg *RubricGradeInput) Validate(validate *validator.Validate) error {
	rg.Feedback = core.CleanString(rg.Feedback)
	return validate.Struct(rg)
}

// GradeInput is the direct (non-rubric) grading payload; a nil Grade clears
// the stored grade.
type GradeInput struct {
	Grade    *float64 `json:"grade"`
	Feedback string   `json:"feedback"`
}

func (gi *GradeInput) Validate(validate *validator.Validate) error {
	gi.Feedback = core.CleanString(gi.Feedback)
	return validate.Struct(gi)
}
