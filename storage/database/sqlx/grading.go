package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/grading"
)

type (
	assignmentRow struct {
		ID          string       `db:"id"`
		CourseID    string       `db:"course_id"`
		LessonID    null.String  `db:"lesson_id"`
		Title       string       `db:"title"`
		Description string       `db:"description"`
		DueDate     null.Time    `db:"due_date"`
		MaxPoints   float64      `db:"max_points"`
		RubricID    null.String  `db:"rubric_id"`
		CreatedBy   string       `db:"created_by"`
		CreatedAt   time.Time    `db:"created_at"`
		UpdatedAt   time.Time    `db:"updated_at"`
	}

	rubricRow struct {
		ID      string `db:"id"`
		Title   string `db:"title"`
		OwnerID string `db:"owner_id"`
	}

	criterionRow struct {
		ID        string  `db:"id"`
		RubricID  string  `db:"rubric_id"`
		Title     string  `db:"title"`
		MaxPoints float64 `db:"max_points"`
		Position  int     `db:"position"`
	}

	submissionRow struct {
		ID           string       `db:"id"`
		AssignmentID string       `db:"assignment_id"`
		StudentID    string       `db:"student_id"`
		Content      string       `db:"content"`
		Status       string       `db:"status"`
		Grade        null.Float64 `db:"grade"`
		Feedback     string       `db:"feedback"`
		GradedBy     null.String  `db:"graded_by"`
		GradedAt     null.Time    `db:"graded_at"`
		CreatedAt    time.Time    `db:"created_at"`
		UpdatedAt    time.Time    `db:"updated_at"`
	}

	rubricScoreRow struct {
		CriterionID  string    `db:"criterion_id"`
		SubmissionID string    `db:"submission_id"`
		Score        float64   `db:"score"`
		Comment      string    `db:"comment"`
		UpdatedAt    time.Time `db:"updated_at"`
	}
)

type gradingRepository struct {
	db *sqlx.DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *sqlx.DB) *gradingRepository {
	return &gradingRepository{db: db}
}

func (repo gradingRepository) unrowAssignment(row assignmentRow) grading.Assignment {
	return grading.Assignment{
		ID:          row.ID,
		CourseID:    row.CourseID,
		LessonID:    row.LessonID,
		Title:       row.Title,
		Description: row.Description,
		DueDate:     row.DueDate,
		MaxPoints:   row.MaxPoints,
		RubricID:    row.RubricID,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (repo gradingRepository) unrowSubmission(row submissionRow) grading.Submission {
	return grading.Submission{
		ID:           row.ID,
		AssignmentID: row.AssignmentID,
		StudentID:    row.StudentID,
		Content:      row.Content,
		Status:       grading.SubmissionStatus(row.Status),
		Grade:        row.Grade,
		Feedback:     row.Feedback,
		GradedBy:     row.GradedBy,
		GradedAt:     row.GradedAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (repo gradingRepository) CreateAssignment(ctx context.Context, asg grading.Assignment) (grading.Assignment, error) {
	asg.ID = uuid.New().String()
	row := assignmentRow{
		ID:          asg.ID,
		CourseID:    asg.CourseID,
		LessonID:    asg.LessonID,
		Title:       asg.Title,
		Description: asg.Description,
		DueDate:     asg.DueDate,
		MaxPoints:   asg.MaxPoints,
		RubricID:    asg.RubricID,
		CreatedBy:   asg.CreatedBy,
		CreatedAt:   asg.CreatedAt.UTC(),
		UpdatedAt:   asg.UpdatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO assignment (id, course_id, lesson_id, title, description, due_date, max_points, rubric_id, created_by, created_at, updated_at)
		VALUES (:id, :course_id, :lesson_id, :title, :description, :due_date, :max_points, :rubric_id, :created_by, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return grading.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return repo.unrowAssignment(row), nil
}

func (repo gradingRepository) GetAssignmentByID(ctx context.Context, id string) (grading.Assignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return grading.Assignment{}, grading.ErrAssignmentNotFound
	}
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return grading.Assignment{}, trapNoRowsErr(err, grading.ErrAssignmentNotFound, "finding assignment")
	}
	return repo.unrowAssignment(row), nil
}

func (repo gradingRepository) QueryAssignments(ctx context.Context, courseID string) ([]grading.Assignment, error) {
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM assignment WHERE course_id = $1 ORDER BY created_at`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	asgs := make([]grading.Assignment, 0, len(rows))
	for _, row := range rows {
		asgs = append(asgs, repo.unrowAssignment(row))
	}
	return asgs, nil
}

func (repo gradingRepository) CreateRubric(ctx context.Context, rub grading.Rubric) (grading.Rubric, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return grading.Rubric{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	rub.ID = uuid.New().String()
	_, err = tx.ExecContext(ctx, `INSERT INTO rubric (id, title, owner_id) VALUES ($1, $2, $3)`,
		rub.ID, rub.Title, rub.OwnerID,
	)
	if err != nil {
		return grading.Rubric{}, errors.Wrap(err, "inserting rubric")
	}
	for i := range rub.Criteria {
		crt := &rub.Criteria[i]
		crt.ID = uuid.New().String()
		crt.RubricID = rub.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rubric_criterion (id, rubric_id, title, max_points, position) VALUES ($1, $2, $3, $4, $5)`,
			crt.ID, crt.RubricID, crt.Title, crt.MaxPoints, crt.Position,
		)
		if err != nil {
			return grading.Rubric{}, errors.Wrap(err, "inserting rubric criterion")
		}
	}

	if err = tx.Commit(); err != nil {
		return grading.Rubric{}, errors.Wrap(err, "committing tx")
	}
	return rub, nil
}

func (repo gradingRepository) GetRubricByID(ctx context.Context, id string) (grading.Rubric, error) {
	if _, err := uuid.Parse(id); err != nil {
		return grading.Rubric{}, grading.ErrRubricNotFound
	}
	var row rubricRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM rubric WHERE id = $1`, id); err != nil {
		return grading.Rubric{}, trapNoRowsErr(err, grading.ErrRubricNotFound, "finding rubric")
	}

	var crtRows []criterionRow
	err := repo.db.SelectContext(ctx, &crtRows, `
		SELECT * FROM rubric_criterion WHERE rubric_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return grading.Rubric{}, errors.Wrap(err, "querying rubric criteria")
	}

	rub := grading.Rubric{
		ID:       row.ID,
		Title:    row.Title,
		OwnerID:  row.OwnerID,
		Criteria: make([]grading.Criterion, 0, len(crtRows)),
	}
	for _, crtRow := range crtRows {
		rub.Criteria = append(rub.Criteria, grading.Criterion{
			ID:        crtRow.ID,
			RubricID:  crtRow.RubricID,
			Title:     crtRow.Title,
			MaxPoints: crtRow.MaxPoints,
			Position:  crtRow.Position,
		})
	}
	return rub, nil
}

func (repo gradingRepository) SubmissionExists(ctx context.Context, assignmentID, studentID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM submission WHERE assignment_id = $1 AND student_id = $2)`, assignmentID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "checking submission uniqueness")
	}
	return exists, nil
}

func (repo gradingRepository) CreateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	sub.ID = uuid.New().String()
	row := submissionRow{
		ID:           sub.ID,
		AssignmentID: sub.AssignmentID,
		StudentID:    sub.StudentID,
		Content:      sub.Content,
		Status:       string(sub.Status),
		Grade:        sub.Grade,
		Feedback:     sub.Feedback,
		GradedBy:     sub.GradedBy,
		GradedAt:     sub.GradedAt,
		CreatedAt:    sub.CreatedAt.UTC(),
		UpdatedAt:    sub.UpdatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO submission (id, assignment_id, student_id, content, status, grade, feedback, graded_by, graded_at, created_at, updated_at)
		VALUES (:id, :assignment_id, :student_id, :content, :status, :grade, :feedback, :graded_by, :graded_at, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return grading.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return repo.unrowSubmission(row), nil
}

func (repo gradingRepository) GetSubmissionByID(ctx context.Context, id string) (grading.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return grading.Submission{}, grading.ErrSubmissionNotFound
	}
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		return grading.Submission{}, trapNoRowsErr(err, grading.ErrSubmissionNotFound, "finding submission")
	}
	return repo.unrowSubmission(row), nil
}

func (repo gradingRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]grading.Submission, error) {
	var rows []submissionRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM submission WHERE assignment_id = $1 ORDER BY created_at`,
		assignmentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]grading.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.unrowSubmission(row))
	}
	return subs, nil
}

func (repo gradingRepository) UpdateSubmission(ctx context.Context, sub grading.Submission) (grading.Submission, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE submission SET content = $1, status = $2, grade = $3, feedback = $4, graded_by = $5, graded_at = $6, updated_at = $7
		WHERE id = $8`,
		sub.Content, string(sub.Status), sub.Grade, sub.Feedback, sub.GradedBy, sub.GradedAt, sub.UpdatedAt.UTC(), sub.ID,
	)
	if err != nil {
		return grading.Submission{}, errors.Wrap(err, "updating submission")
	}
	return sub, nil
}

func (repo gradingRepository) UpsertRubricScore(ctx context.Context, rs grading.RubricScore) (grading.RubricScore, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO rubric_score (criterion_id, submission_id, score, comment, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (criterion_id, submission_id)
		DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at`,
		rs.CriterionID, rs.SubmissionID, rs.Score, rs.Comment, rs.UpdatedAt.UTC(),
	)
	if err != nil {
		return grading.RubricScore{}, errors.Wrap(err, "upserting rubric score")
	}
	return rs, nil
}

func (repo gradingRepository) QueryRubricScores(ctx context.Context, submissionID string) ([]grading.RubricScore, error) {
	var rows []rubricScoreRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM rubric_score WHERE submission_id = $1`,
		submissionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying rubric scores")
	}
	scores := make([]grading.RubricScore, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, grading.RubricScore{
			CriterionID:  row.CriterionID,
			SubmissionID: row.SubmissionID,
			Score:        row.Score,
			Comment:      row.Comment,
			UpdatedAt:    row.UpdatedAt,
		})
	}
	return scores, nil
}
