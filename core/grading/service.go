package grading

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrRubricNotFound     = errors.New("rubric not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("a submission for this assignment already exists")

	errNoRubric = errors.New("assignment has no rubric")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, asg Assignment) (Assignment, error)
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error)

		// CreateRubric persists the rubric and its criteria as one unit.
		CreateRubric(ctx context.Context, rub Rubric) (Rubric, error)
		// GetRubricByID returns the rubric loaded with its criteria, in position order.
		GetRubricByID(ctx context.Context, id string) (Rubric, error)

		// SubmissionExists reports whether the student already has a submission
		// for the assignment; (assignment, student) is unique.
		SubmissionExists(ctx context.Context, assignmentID, studentID string) (bool, error)
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmissionByID(ctx context.Context, id string) (Submission, error)
		QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)

		// UpsertRubricScore inserts or replaces the score row keyed by
		// (CriterionID, SubmissionID); re-upserting never creates a second row.
		UpsertRubricScore(ctx context.Context, rs RubricScore) (RubricScore, error)
		QueryRubricScores(ctx context.Context, submissionID string) ([]RubricScore, error)
	}

	Service interface {
		CreateAssignment(ctx context.Context, courseID string, na NewAssignment, creator user.User) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error)

		CreateRubric(ctx context.Context, nr NewRubric, owner user.User) (Rubric, error)
		GetRubric(ctx context.Context, id string) (Rubric, error)

		CreateSubmission(ctx context.Context, ns NewSubmission, student user.User) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		SubmitSubmission(ctx context.Context, id string, student user.User) (Submission, error)
		QueryRubricScores(ctx context.Context, submissionID string) ([]RubricScore, error)

		// SubmitRubricGrades applies rubric scores to a submission and grades it;
		// the resulting Submission.Grade is the sum of the clamped scores.
		SubmitRubricGrades(ctx context.Context, assignmentID, submissionID string, in RubricGradeInput, grader user.User) (Submission, error)
		// GradeSubmission applies a direct grade, bypassing the rubric.
		GradeSubmission(ctx context.Context, submissionID string, in GradeInput, grader user.User) (Submission, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
	}
}

func (svc *service) CreateAssignment(ctx context.Context, courseID string, na NewAssignment, creator user.User) (Assignment, error) {
	if na.RubricID != "" {
		if _, err := svc.repo.GetRubricByID(ctx, na.RubricID); err != nil {
			return Assignment{}, err
		}
	}
	now := time.Now().UTC()
	asg := Assignment{
		CourseID:    courseID,
		LessonID:    null.NewString(na.LessonID, na.LessonID != ""),
		Title:       na.Title,
		Description: na.Description,
		MaxPoints:   na.MaxPoints,
		RubricID:    null.NewString(na.RubricID, na.RubricID != ""),
		CreatedBy:   creator.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if na.DueDate != nil {
		asg.DueDate = null.TimeFrom(na.DueDate.UTC())
	}
	return svc.repo.CreateAssignment(ctx, asg)
}

func (svc *service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *service) QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, courseID)
}

func (svc *service) CreateRubric(ctx context.Context, nr NewRubric, owner user.User) (Rubric, error) {
	rub := Rubric{
		Title:    nr.Title,
		OwnerID:  owner.ID,
		Criteria: make([]Criterion, 0, len(nr.Criteria)),
	}
	for i, nc := range nr.Criteria {
		rub.Criteria = append(rub.Criteria, Criterion{
			Title:     nc.Title,
			MaxPoints: nc.MaxPoints,
			Position:  i,
		})
	}
	return svc.repo.CreateRubric(ctx, rub)
}

func (svc *service) GetRubric(ctx context.Context, id string) (Rubric, error) {
	return svc.repo.GetRubricByID(ctx, id)
}

func (svc *service) CreateSubmission(ctx context.Context, ns NewSubmission, student user.User) (Submission, error) {
	if _, err := svc.repo.GetAssignmentByID(ctx, ns.AssignmentID); err != nil {
		return Submission{}, err
	}
	exists, err := svc.repo.SubmissionExists(ctx, ns.AssignmentID, student.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "checking submission uniqueness")
	}
	if exists {
		return Submission{}, core.NewValidationError(
			ErrSubmissionExists, core.FieldError{Field: "assignment_id", Error: ErrSubmissionExists.Error()})
	}
	status := SubmissionSubmitted
	if ns.Draft {
		status = SubmissionDraft
	}
	now := time.Now().UTC()
	sub := Submission{
		AssignmentID: ns.AssignmentID,
		StudentID:    student.ID,
		Content:      ns.Content,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateSubmission(ctx, sub)
}

func (svc *service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmissionByID(ctx, id)
}

func (svc *service) QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, assignmentID)
}

func (svc *service) SubmitSubmission(ctx context.Context, id string, student user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmissionByID(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if sub.StudentID != student.ID {
		return Submission{}, ErrSubmissionNotFound
	}
	if sub.Status != SubmissionDraft {
		return sub, nil
	}
	sub.Status = SubmissionSubmitted
	sub.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubmission(ctx, sub)
}

func (svc *service) QueryRubricScores(ctx context.Context, submissionID string) ([]RubricScore, error) {
	return svc.repo.QueryRubricScores(ctx, submissionID)
}

// SubmitRubricGrades grades a submission from per-criterion scores.
// Scores for criteria not on the assignment's rubric are skipped; recorded
// scores are clamped into [0, criterion.MaxPoints]. Re-submitting the same
// scores recomputes the same total (upsert, not increment).
func (svc *service) SubmitRubricGrades(ctx context.Context, assignmentID, submissionID string, in RubricGradeInput, grader user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if sub.AssignmentID != assignmentID {
		return Submission{}, ErrSubmissionNotFound
	}

	asg, err := svc.repo.GetAssignmentByID(ctx, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if !asg.RubricID.Valid {
		return Submission{}, core.NewValidationError(errNoRubric)
	}
	rub, err := svc.repo.GetRubricByID(ctx, asg.RubricID.String)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	var total float64
	for _, sc := range in.Scores {
		crt, ok := rub.Criterion(sc.CriterionID)
		if !ok {
			continue // unknown criteria are dropped, not rejected
		}
		score := clamp(sc.Score, crt.MaxPoints)
		rs := RubricScore{
			CriterionID:  crt.ID,
			SubmissionID: sub.ID,
			Score:        score,
			Comment:      sc.Comment,
			UpdatedAt:    now,
		}
		if _, err = svc.repo.UpsertRubricScore(ctx, rs); err != nil {
			return Submission{}, errors.Wrap(err, "upserting rubric score")
		}
		total += score
	}

	sub.Grade = null.Float64From(total)
	sub.Status = SubmissionGraded
	if in.Feedback != "" {
		sub.Feedback = in.Feedback
	}
	sub.GradedBy = null.StringFrom(grader.ID)
	sub.GradedAt = null.TimeFrom(now)
	sub.UpdatedAt = now
	if sub, err = svc.repo.UpdateSubmission(ctx, sub); err != nil {
		return Submission{}, errors.Wrap(err, "updating submission")
	}

	svc.notifyGraded(ctx, sub)
	return sub, nil
}

// GradeSubmission sets the overall grade directly. Unlike the rubric path the
// grade is not checked against Assignment.MaxPoints; a nil grade clears it.
func (svc *service) GradeSubmission(ctx context.Context, submissionID string, in GradeInput, grader user.User) (Submission, error) {
	sub, err := svc.repo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	sub.Grade = null.Float64FromPtr(in.Grade)
	sub.Status = SubmissionGraded
	if in.Feedback != "" {
		sub.Feedback = in.Feedback
	}
	sub.GradedBy = null.StringFrom(grader.ID)
	sub.GradedAt = null.TimeFrom(now)
	sub.UpdatedAt = now
	if sub, err = svc.repo.UpdateSubmission(ctx, sub); err != nil {
		return Submission{}, errors.Wrap(err, "updating submission")
	}

	svc.notifyGraded(ctx, sub)
	return sub, nil
}

func (svc *service) notifyGraded(ctx context.Context, sub Submission) {
	student, err := svc.usrSvc.GetByID(ctx, sub.StudentID)
	if err != nil || student.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject:      "Submission Graded",
			TemplateName: "submission-graded",
			TemplateData: struct {
				Name  string
				Grade float64
			}{
				Name:  student.Name,
				Grade: sub.Grade.Float64,
			},
		},
	)
}

func clamp(score, maxPoints float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxPoints {
		return maxPoints
	}
	return score
}
