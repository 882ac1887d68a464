package course

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("course not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrCertNotFound   = errors.New("certificate not found")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		GetCourseBySlug(ctx context.Context, slug string) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Title or Course.Slug.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		CourseSlugExists(ctx context.Context, slug string) (bool, error)
		UpdateCourse(ctx context.Context, crs Course, isPublished *bool) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...string) error

		CreateModule(ctx context.Context, mod Module) (Module, error)
		GetModuleByID(ctx context.Context, id string) (Module, error)
		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		GetLessonByID(ctx context.Context, id string) (Lesson, error)

		// QueryPublishedModules returns the published modules of a course ordered
		// by position, each loaded with its published lessons.
		QueryPublishedModules(ctx context.Context, courseID string) ([]Module, error)
		// QueryLessonProgress returns the existing progress rows of a student for
		// the given lessons; lessons with no row are simply absent.
		QueryLessonProgress(ctx context.Context, studentID string, lessonIDs []string) ([]LessonProgress, error)
		// UpsertLessonProgress inserts or replaces the progress row keyed by
		// (LessonID, StudentID); re-upserting never creates a second row.
		UpsertLessonProgress(ctx context.Context, lp LessonProgress) (LessonProgress, error)

		GetCertificate(ctx context.Context, courseID, studentID string) (Certificate, error)
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse, owner user.User) (Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		GetBySlug(ctx context.Context, slug string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, ids ...string) error

		AddModule(ctx context.Context, courseID string, nm NewModule) (Module, error)
		AddLesson(ctx context.Context, moduleID string, nl NewLesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)

		SetLessonProgress(ctx context.Context, student user.User, lessonID string, status ProgressStatus) (LessonProgress, error)
		Progress(ctx context.Context, studentID, courseID string) (CourseProgress, error)
		GetCertificate(ctx context.Context, courseID, studentID string) (Certificate, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, nc NewCourse, owner user.User) (Course, error) {
	slug, err := svc.uniqueSlug(ctx, nc.Title)
	if err != nil {
		return Course{}, err
	}
	now := time.Now().UTC()
	crs := Course{
		Title:       nc.Title,
		Slug:        slug,
		Description: nc.Description,
		OwnerID:     owner.ID,
		IsPublished: nc.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

// uniqueSlug derives a slug from the title, suffixing a counter on collision.
func (svc *service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := core.Slugify(title)
	slug := base
	for i := 2; ; i++ {
		exists, err := svc.repo.CourseSlugExists(ctx, slug)
		if err != nil {
			return "", errors.Wrap(err, "checking slug uniqueness")
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Course, error) {
	return svc.repo.GetCourseBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	crs := Course{
		ID:          id,
		Title:       uc.Title,
		Description: uc.Description,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateCourse(ctx, crs, uc.IsPublished)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

func (svc *service) AddModule(ctx context.Context, courseID string, nm NewModule) (Module, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Module{}, err
	}
	mod := Module{
		CourseID:    courseID,
		Title:       nm.Title,
		Position:    nm.Position,
		IsPublished: nm.IsPublished,
	}
	return svc.repo.CreateModule(ctx, mod)
}

func (svc *service) AddLesson(ctx context.Context, moduleID string, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetModuleByID(ctx, moduleID); err != nil {
		return Lesson{}, err
	}
	lsn := Lesson{
		ModuleID:    moduleID,
		Title:       nl.Title,
		Position:    nl.Position,
		IsPublished: nl.IsPublished,
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLessonByID(ctx, id)
}

// SetLessonProgress upserts the (lesson, student) progress row.
// CompletedAt is stamped iff the new status is "completed"; moving away from
// "completed" clears it, so completion timestamps are not preserved historically.
func (svc *service) SetLessonProgress(ctx context.Context, student user.User, lessonID string, status ProgressStatus) (LessonProgress, error) {
	lsn, err := svc.repo.GetLessonByID(ctx, lessonID)
	if err != nil {
		return LessonProgress{}, err
	}

	now := time.Now().UTC()
	lp := LessonProgress{
		LessonID:  lessonID,
		StudentID: student.ID,
		Status:    status,
		UpdatedAt: now,
	}
	if status == ProgressCompleted {
		lp.CompletedAt = null.TimeFrom(now)
	}
	lp, err = svc.repo.UpsertLessonProgress(ctx, lp)
	if err != nil {
		return LessonProgress{}, errors.Wrap(err, "upserting lesson progress")
	}

	if status == ProgressCompleted {
		if err = svc.maybeIssueCertificate(ctx, student, lsn); err != nil {
			return LessonProgress{}, err
		}
	}
	return lp, nil
}

// maybeIssueCertificate issues a course certificate the first time a student's
// progress reaches 100%.
func (svc *service) maybeIssueCertificate(ctx context.Context, student user.User, lsn Lesson) error {
	mod, err := svc.repo.GetModuleByID(ctx, lsn.ModuleID)
	if err != nil {
		return err
	}
	prog, err := svc.Progress(ctx, student.ID, mod.CourseID)
	if err != nil {
		return err
	}
	if prog.Progress.Percentage < 100 || prog.Progress.TotalLessons == 0 {
		return nil
	}

	if _, err = svc.repo.GetCertificate(ctx, mod.CourseID, student.ID); err == nil {
		return nil // already issued
	} else if errors.Cause(err) != ErrCertNotFound {
		return err
	}

	cert := Certificate{
		CourseID:  mod.CourseID,
		StudentID: student.ID,
		Code:      generateCertificateCode(),
		IssuedAt:  time.Now().UTC(),
	}
	if cert, err = svc.repo.CreateCertificate(ctx, cert); err != nil {
		return errors.Wrap(err, "creating certificate")
	}

	go svc.sendCertificateMail(student, cert)
	return nil
}

func generateCertificateCode() string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "CERT-" + code[:10]
}

func (svc *service) sendCertificateMail(student user.User, cert Certificate) {
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject:      "Course Completed",
			TemplateName: "certificate-issued",
			TemplateData: struct {
				Name string
				Code string
			}{
				Name: student.Name,
				Code: cert.Code,
			},
		},
	)
}

// Progress computes a student's completion of a course: published lessons of
// published modules only; a lesson with no progress row counts as not completed.
func (svc *service) Progress(ctx context.Context, studentID, courseID string) (CourseProgress, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return CourseProgress{}, err
	}

	mods, err := svc.repo.QueryPublishedModules(ctx, courseID)
	if err != nil {
		return CourseProgress{}, errors.Wrap(err, "querying published modules")
	}

	lessonIDs := make([]string, 0)
	for _, mod := range mods {
		for _, lsn := range mod.Lessons {
			lessonIDs = append(lessonIDs, lsn.ID)
		}
	}

	completed := make(map[string]bool, len(lessonIDs))
	if len(lessonIDs) > 0 {
		rows, err := svc.repo.QueryLessonProgress(ctx, studentID, lessonIDs)
		if err != nil {
			return CourseProgress{}, errors.Wrap(err, "querying lesson progress")
		}
		for _, lp := range rows {
			if lp.Status == ProgressCompleted {
				completed[lp.LessonID] = true
			}
		}
	}

	cp := CourseProgress{
		CourseID: courseID,
		Modules:  make([]ModuleProgress, 0, len(mods)),
	}
	for _, mod := range mods {
		var done int
		for _, lsn := range mod.Lessons {
			if completed[lsn.ID] {
				done++
			}
		}
		cp.Modules = append(cp.Modules, ModuleProgress{
			Module:   mod,
			Progress: newProgress(done, len(mod.Lessons)),
		})
		cp.Progress.TotalLessons += len(mod.Lessons)
		cp.Progress.CompletedLessons += done
	}
	cp.Progress = newProgress(cp.Progress.CompletedLessons, cp.Progress.TotalLessons)
	return cp, nil
}

func newProgress(completed, total int) Progress {
	return Progress{
		TotalLessons:     total,
		CompletedLessons: completed,
		Percentage:       percentage(completed, total),
	}
}

// percentage rounds half up; an empty denominator yields 0, never a division error.
func percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func (svc *service) GetCertificate(ctx context.Context, courseID, studentID string) (Certificate, error) {
	return svc.repo.GetCertificate(ctx, courseID, studentID)
}
