package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// ProgressStatus is the completion state of a lesson for one student.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

type (
	Course struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Slug        string    `json:"slug"`
		Description string    `json:"description,omitempty"`
		OwnerID     string    `json:"owner_id"`
		IsPublished bool      `json:"is_published"`
		CreatedAt   time.Time `json:"created_at"` // UTC
		UpdatedAt   time.Time `json:"updated_at"` // UTC
	}

	Module struct {
		ID          string   `json:"id"`
		CourseID    string   `json:"course_id"`
		Title       string   `json:"title"`
		Position    int      `json:"position"`
		IsPublished bool     `json:"is_published"`
		Lessons     []Lesson `json:"lessons,omitempty"`
	}

	Lesson struct {
		ID          string `json:"id"`
		ModuleID    string `json:"module_id"`
		Title       string `json:"title"`
		Position    int    `json:"position"`
		IsPublished bool   `json:"is_published"`
	}

	// LessonProgress is one student's state on one lesson;
	// unique on (LessonID, StudentID). CompletedAt is set iff Status is "completed".
	LessonProgress struct {
		LessonID    string         `json:"lesson_id"`
		StudentID   string         `json:"student_id"`
		Status      ProgressStatus `json:"status"`
		CompletedAt null.Time      `json:"completed_at"`
		UpdatedAt   time.Time      `json:"updated_at"` // UTC
	}

	Certificate struct {
		ID        string    `json:"id"`
		CourseID  string    `json:"course_id"`
		StudentID string    `json:"student_id"`
		Code      string    `json:"code"`
		IssuedAt  time.Time `json:"issued_at"` // UTC
	}

	Progress struct {
		TotalLessons     int `json:"total_lessons"`
		CompletedLessons int `json:"completed_lessons"`
		Percentage       int `json:"percentage"`
	}

	ModuleProgress struct {
		Module   Module   `json:"module"`
		Progress Progress `json:"progress"`
	}

	CourseProgress struct {
		CourseID string           `json:"course_id"`
		Modules  []ModuleProgress `json:"modules"`
		Progress Progress         `json:"progress"`
	}
)

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	IsPublished bool   `json:"is_published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCourse enumerates every mutable Course field.
type UpdateCourse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublished *bool  `json:"is_published"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	desc := core.CleanString(uc.Description)
	if desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}
	return validate.Struct(uc)
}

type NewModule struct {
	Title       string `json:"title" validate:"required"`
	Position    int    `json:"position" validate:"gte=0"`
	IsPublished bool   `json:"is_published"`
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	return validate.Struct(nm)
}

type NewLesson struct {
	Title       string `json:"title" validate:"required"`
	Position    int    `json:"position" validate:"gte=0"`
	IsPublished bool   `json:"is_published"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

// ProgressInput sets a student's status on a lesson.
type ProgressInput struct {
	Status ProgressStatus `json:"status" validate:"required,oneof=not_started in_progress completed"`
}

func (pi *ProgressInput) Validate(validate *validator.Validate) error {
	return validate.Struct(pi)
}

type QueryFilter struct {
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
	OwnerID     string `query:"owner"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.IsPublished == nil && qf.OwnerID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
