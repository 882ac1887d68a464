package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func progressKey(lessonID, studentID string) string { return lessonID + "/" + studentID }
func certKey(courseID, studentID string) string     { return courseID + "/" + studentID }

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetCourseBySlug(ctx context.Context, slug string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, crs := range repo.db.courses {
		if crs.Slug == slug {
			return *crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		courses = append(courses, *crs)
	}
	if filter == nil {
		filter = &course.QueryFilter{}
	}

	if filter.Search != "" {
		var filtered []course.Course
		for _, crs := range courses {
			if strings.Contains(strings.ToLower(crs.Title), strings.ToLower(filter.Search)) ||
				strings.Contains(strings.ToLower(crs.Slug), strings.ToLower(filter.Search)) {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.IsPublished != nil {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.IsPublished == *filter.IsPublished {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}
	if courses != nil && filter.OwnerID != "" {
		var filtered []course.Course
		for _, crs := range courses {
			if crs.OwnerID == filter.OwnerID {
				filtered = append(filtered, crs)
			}
		}
		courses = filtered
	}

	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) CourseSlugExists(ctx context.Context, slug string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, crs := range repo.db.courses {
		if crs.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isPublished *bool) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save set fields
	origCrs, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if crs.Title != "" {
		origCrs.Title = crs.Title
	}
	if crs.Slug != "" {
		origCrs.Slug = crs.Slug
	}
	if crs.Description != "" {
		origCrs.Description = crs.Description
	}
	if isPublished != nil {
		origCrs.IsPublished = *isPublished
	}
	origCrs.UpdatedAt = crs.UpdatedAt

	repo.db.courses[crs.ID] = origCrs
	return *origCrs, nil
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.courses, id)
	}
	return nil
}

func (repo *courseRepository) CreateModule(ctx context.Context, mod course.Module) (course.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mod.ID = uuid.New().String()
	repo.db.modules[mod.ID] = &mod
	return mod, nil
}

func (repo *courseRepository) GetModuleByID(ctx context.Context, id string) (course.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if mod, ok := repo.db.modules[id]; ok {
		return *mod, nil
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lsn.ID = uuid.New().String()
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *courseRepository) GetLessonByID(ctx context.Context, id string) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lsn, ok := repo.db.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryPublishedModules(ctx context.Context, courseID string) ([]course.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	mods := make([]course.Module, 0)
	for _, mod := range repo.db.modules {
		if mod.CourseID == courseID && mod.IsPublished {
			m := *mod
			m.Lessons = nil
			for _, lsn := range repo.db.lessons {
				if lsn.ModuleID == m.ID && lsn.IsPublished {
					m.Lessons = append(m.Lessons, *lsn)
				}
			}
			sort.Slice(m.Lessons, func(i, j int) bool { return m.Lessons[i].Position < m.Lessons[j].Position })
			mods = append(mods, m)
		}
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods, nil
}

func (repo *courseRepository) QueryLessonProgress(ctx context.Context, studentID string, lessonIDs []string) ([]course.LessonProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lps := make([]course.LessonProgress, 0, len(lessonIDs))
	for _, lessonID := range lessonIDs {
		if lp, ok := repo.db.progress[progressKey(lessonID, studentID)]; ok {
			lps = append(lps, *lp)
		}
	}
	return lps, nil
}

func (repo *courseRepository) UpsertLessonProgress(ctx context.Context, lp course.LessonProgress) (course.LessonProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.progress[progressKey(lp.LessonID, lp.StudentID)] = &lp
	return lp, nil
}

func (repo *courseRepository) GetCertificate(ctx context.Context, courseID, studentID string) (course.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cert, ok := repo.db.certificates[certKey(courseID, studentID)]; ok {
		return *cert, nil
	}
	return course.Certificate{}, course.ErrCertNotFound
}

func (repo *courseRepository) CreateCertificate(ctx context.Context, cert course.Certificate) (course.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cert.ID = uuid.New().String()
	repo.db.certificates[certKey(cert.CourseID, cert.StudentID)] = &cert
	return cert, nil
}
