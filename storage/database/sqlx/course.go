package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

type (
	courseRow struct {
		ID          string    `db:"id"`
		Title       string    `db:"title"`
		Slug        string    `db:"slug"`
		Description string    `db:"description"`
		OwnerID     string    `db:"owner_id"`
		IsPublished bool      `db:"is_published"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	moduleRow struct {
		ID          string `db:"id"`
		CourseID    string `db:"course_id"`
		Title       string `db:"title"`
		Position    int    `db:"position"`
		IsPublished bool   `db:"is_published"`
	}

	lessonRow struct {
		ID          string `db:"id"`
		ModuleID    string `db:"module_id"`
		Title       string `db:"title"`
		Position    int    `db:"position"`
		IsPublished bool   `db:"is_published"`
	}

	lessonProgressRow struct {
		LessonID    string    `db:"lesson_id"`
		StudentID   string    `db:"student_id"`
		Status      string    `db:"status"`
		CompletedAt null.Time `db:"completed_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	certificateRow struct {
		ID        string    `db:"id"`
		CourseID  string    `db:"course_id"`
		StudentID string    `db:"student_id"`
		Code      string    `db:"code"`
		IssuedAt  time.Time `db:"issued_at"`
	}
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) unrowCourse(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		Title:       row.Title,
		Slug:        row.Slug,
		Description: row.Description,
		OwnerID:     row.OwnerID,
		IsPublished: row.IsPublished,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func (repo courseRepository) unrowModule(row moduleRow) course.Module {
	return course.Module{
		ID:          row.ID,
		CourseID:    row.CourseID,
		Title:       row.Title,
		Position:    row.Position,
		IsPublished: row.IsPublished,
	}
}

func (repo courseRepository) unrowLesson(row lessonRow) course.Lesson {
	return course.Lesson{
		ID:          row.ID,
		ModuleID:    row.ModuleID,
		Title:       row.Title,
		Position:    row.Position,
		IsPublished: row.IsPublished,
	}
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	row := courseRow{
		ID:          crs.ID,
		Title:       crs.Title,
		Slug:        crs.Slug,
		Description: crs.Description,
		OwnerID:     crs.OwnerID,
		IsPublished: crs.IsPublished,
		CreatedAt:   crs.CreatedAt.UTC(),
		UpdatedAt:   crs.UpdatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO course (id, title, slug, description, owner_id, is_published, created_at, updated_at)
		VALUES (:id, :title, :slug, :description, :owner_id, :is_published, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.unrowCourse(row), nil
}

func (repo courseRepository) getCourse(ctx context.Context, cond string, args ...interface{}) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, "SELECT * FROM course WHERE "+cond, args...); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.unrowCourse(row), nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	return repo.getCourse(ctx, "id = $1", id)
}

func (repo courseRepository) GetCourseBySlug(ctx context.Context, slug string) (course.Course, error) {
	return repo.getCourse(ctx, "slug = $1", slug)
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	q := `SELECT * FROM course`
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			conds = append(conds, fmt.Sprintf("(title ILIKE %s OR slug ILIKE %s)", p, p))
		}
		if filter.IsPublished != nil {
			conds = append(conds, "is_published = "+arg(*filter.IsPublished))
		}
		if filter.OwnerID != "" {
			conds = append(conds, "owner_id = "+arg(filter.OwnerID))
		}
	}

	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !ord.IsValid() {
			continue
		}
		orderList = append(orderList, ord.String())
	}
	if len(orderList) > 0 {
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unrowCourse(row))
	}
	return courses, nil
}

func (repo courseRepository) CourseSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM course WHERE slug = $1)`, slug)
	if err != nil {
		return false, errors.Wrap(err, "checking course slug")
	}
	return exists, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isPublished *bool) (course.Course, error) {
	orig, err := repo.GetCourseByID(ctx, crs.ID)
	if err != nil {
		return course.Course{}, err
	}

	if crs.Title == "" {
		crs.Title = orig.Title
	}
	if crs.Slug == "" {
		crs.Slug = orig.Slug
	}
	if crs.Description == "" {
		crs.Description = orig.Description
	}
	crs.OwnerID = orig.OwnerID
	crs.CreatedAt = orig.CreatedAt
	if isPublished != nil {
		crs.IsPublished = *isPublished
	} else {
		crs.IsPublished = orig.IsPublished
	}

	_, err = repo.db.ExecContext(ctx, `
		UPDATE course SET title = $1, slug = $2, description = $3, is_published = $4, updated_at = $5 WHERE id = $6`,
		crs.Title, crs.Slug, crs.Description, crs.IsPublished, crs.UpdatedAt.UTC(), crs.ID,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return crs, nil
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return nil
}

func (repo courseRepository) CreateModule(ctx context.Context, mod course.Module) (course.Module, error) {
	mod.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO module (id, course_id, title, position, is_published) VALUES ($1, $2, $3, $4, $5)`,
		mod.ID, mod.CourseID, mod.Title, mod.Position, mod.IsPublished,
	)
	if err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return mod, nil
}

func (repo courseRepository) GetModuleByID(ctx context.Context, id string) (course.Module, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Module{}, course.ErrModuleNotFound
	}
	var row moduleRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM module WHERE id = $1`, id); err != nil {
		return course.Module{}, trapNoRowsErr(err, course.ErrModuleNotFound, "finding module")
	}
	return repo.unrowModule(row), nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	lsn.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO lesson (id, module_id, title, position, is_published) VALUES ($1, $2, $3, $4, $5)`,
		lsn.ID, lsn.ModuleID, lsn.Title, lsn.Position, lsn.IsPublished,
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return lsn, nil
}

func (repo courseRepository) GetLessonByID(ctx context.Context, id string) (course.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM lesson WHERE id = $1`, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return repo.unrowLesson(row), nil
}

func (repo courseRepository) QueryPublishedModules(ctx context.Context, courseID string) ([]course.Module, error) {
	var modRows []moduleRow
	err := repo.db.SelectContext(ctx, &modRows, `
		SELECT * FROM module WHERE course_id = $1 AND is_published = TRUE ORDER BY position`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	if len(modRows) == 0 {
		return []course.Module{}, nil
	}

	modIDs := make([]string, 0, len(modRows))
	for _, row := range modRows {
		modIDs = append(modIDs, row.ID)
	}
	var lsnRows []lessonRow
	err = repo.db.SelectContext(ctx, &lsnRows, `
		SELECT * FROM lesson WHERE module_id = ANY($1) AND is_published = TRUE ORDER BY position`,
		pq.Array(modIDs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	lessonsByModule := make(map[string][]course.Lesson, len(modRows))
	for _, row := range lsnRows {
		lessonsByModule[row.ModuleID] = append(lessonsByModule[row.ModuleID], repo.unrowLesson(row))
	}

	mods := make([]course.Module, 0, len(modRows))
	for _, row := range modRows {
		mod := repo.unrowModule(row)
		mod.Lessons = lessonsByModule[mod.ID]
		mods = append(mods, mod)
	}
	return mods, nil
}

func (repo courseRepository) QueryLessonProgress(ctx context.Context, studentID string, lessonIDs []string) ([]course.LessonProgress, error) {
	var rows []lessonProgressRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM lesson_progress WHERE student_id = $1 AND lesson_id = ANY($2)`,
		studentID, pq.Array(lessonIDs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}
	lps := make([]course.LessonProgress, 0, len(rows))
	for _, row := range rows {
		lps = append(lps, course.LessonProgress{
			LessonID:    row.LessonID,
			StudentID:   row.StudentID,
			Status:      course.ProgressStatus(row.Status),
			CompletedAt: row.CompletedAt,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return lps, nil
}

func (repo courseRepository) UpsertLessonProgress(ctx context.Context, lp course.LessonProgress) (course.LessonProgress, error) {
	// the unique (lesson_id, student_id) key makes concurrent upserts last-write-wins
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO lesson_progress (lesson_id, student_id, status, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lesson_id, student_id)
		DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at`,
		lp.LessonID, lp.StudentID, string(lp.Status), lp.CompletedAt, lp.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.LessonProgress{}, errors.Wrap(err, "upserting lesson progress")
	}
	return lp, nil
}

func (repo courseRepository) GetCertificate(ctx context.Context, courseID, studentID string) (course.Certificate, error) {
	var row certificateRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM certificate WHERE course_id = $1 AND student_id = $2`,
		courseID, studentID,
	)
	if err != nil {
		return course.Certificate{}, trapNoRowsErr(err, course.ErrCertNotFound, "finding certificate")
	}
	return course.Certificate{
		ID:        row.ID,
		CourseID:  row.CourseID,
		StudentID: row.StudentID,
		Code:      row.Code,
		IssuedAt:  row.IssuedAt,
	}, nil
}

func (repo courseRepository) CreateCertificate(ctx context.Context, cert course.Certificate) (course.Certificate, error) {
	cert.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO certificate (id, course_id, student_id, code, issued_at) VALUES ($1, $2, $3, $4, $5)`,
		cert.ID, cert.CourseID, cert.StudentID, cert.Code, cert.IssuedAt.UTC(),
	)
	if err != nil {
		return course.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return cert, nil
}
