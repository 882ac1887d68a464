package course_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func newCourseService(t *testing.T) course.Service {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() error = %v", err)
	}
	conf := &core.Config{AppName: "Shule", TestMode: true, SecretKey: "secret"}
	return course.NewService(inmemdb.NewCourseRepository(db), emailsvc.NewConsoleServiceMock(conf))
}

func TestService_Create_slugUniqueness(t *testing.T) {
	ctx := context.Background()
	svc := newCourseService(t)
	owner := user.User{ID: "owner1", Name: "Owner"}

	wantSlugs := []string{"go-basics", "go-basics-2", "go-basics-3"}
	for _, want := range wantSlugs {
		crs, err := svc.Create(ctx, course.NewCourse{Title: "Go Basics"}, owner)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if crs.Slug != want {
			t.Errorf("Slug = %q, want %q", crs.Slug, want)
		}
	}
}

// buildCourse creates a published course with the given module layouts; each
// entry is the number of published lessons in one published module.
func buildCourse(t *testing.T, svc course.Service, lessonsPerModule ...int) (course.Course, [][]course.Lesson) {
	t.Helper()
	ctx := context.Background()

	crs, err := svc.Create(ctx, course.NewCourse{Title: "Course " + strings.Repeat("x", len(lessonsPerModule)), IsPublished: true}, user.User{ID: "owner1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	lessons := make([][]course.Lesson, 0, len(lessonsPerModule))
	for i, n := range lessonsPerModule {
		mod, err := svc.AddModule(ctx, crs.ID, course.NewModule{Title: "Module", Position: i, IsPublished: true})
		if err != nil {
			t.Fatalf("AddModule() error = %v", err)
		}
		modLessons := make([]course.Lesson, 0, n)
		for j := 0; j < n; j++ {
			lsn, err := svc.AddLesson(ctx, mod.ID, course.NewLesson{Title: "Lesson", Position: j, IsPublished: true})
			if err != nil {
				t.Fatalf("AddLesson() error = %v", err)
			}
			modLessons = append(modLessons, lsn)
		}
		lessons = append(lessons, modLessons)
	}
	return crs, lessons
}

func TestService_SetLessonProgress(t *testing.T) {
	ctx := context.Background()
	svc := newCourseService(t)
	student := user.User{ID: "stu1", Name: "Student", Email: "stu@test.test"}
	_, lessons := buildCourse(t, svc, 2)
	lsn := lessons[0][0]

	lp, err := svc.SetLessonProgress(ctx, student, lsn.ID, course.ProgressInProgress)
	if err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	if lp.CompletedAt.Valid {
		t.Errorf("CompletedAt = %v, want null", lp.CompletedAt)
	}

	lp, err = svc.SetLessonProgress(ctx, student, lsn.ID, course.ProgressCompleted)
	if err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	if !lp.CompletedAt.Valid {
		t.Error("CompletedAt not set on completion")
	}

	// regressing clears the completion timestamp
	lp, err = svc.SetLessonProgress(ctx, student, lsn.ID, course.ProgressInProgress)
	if err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	if lp.CompletedAt.Valid {
		t.Errorf("CompletedAt = %v, want null after regression", lp.CompletedAt)
	}

	if _, err = svc.SetLessonProgress(ctx, student, "nonexistent", course.ProgressCompleted); errors.Cause(err) != course.ErrLessonNotFound {
		t.Errorf("error = %v, want %v", err, course.ErrLessonNotFound)
	}
}

func TestService_Progress(t *testing.T) {
	ctx := context.Background()
	svc := newCourseService(t)
	student := user.User{ID: "stu1", Name: "Student", Email: "stu@test.test"}

	t.Run("empty course", func(t *testing.T) {
		crs, _ := buildCourse(t, svc)
		prog, err := svc.Progress(ctx, student.ID, crs.ID)
		if err != nil {
			t.Fatalf("Progress() error = %v", err)
		}
		if prog.Progress.Percentage != 0 || prog.Progress.TotalLessons != 0 {
			t.Errorf("Progress = %+v, want zero", prog.Progress)
		}
	})

	t.Run("rounded percentage", func(t *testing.T) {
		crs, lessons := buildCourse(t, svc, 2, 1)
		if _, err := svc.SetLessonProgress(ctx, student, lessons[0][0].ID, course.ProgressCompleted); err != nil {
			t.Fatalf("SetLessonProgress() error = %v", err)
		}
		prog, err := svc.Progress(ctx, student.ID, crs.ID)
		if err != nil {
			t.Fatalf("Progress() error = %v", err)
		}
		if prog.Progress.CompletedLessons != 1 || prog.Progress.TotalLessons != 3 {
			t.Errorf("Progress = %+v, want 1/3", prog.Progress)
		}
		if prog.Progress.Percentage != 33 {
			t.Errorf("Percentage = %d, want 33", prog.Progress.Percentage)
		}
		if len(prog.Modules) != 2 {
			t.Fatalf("len(Modules) = %d, want 2", len(prog.Modules))
		}
		if prog.Modules[0].Progress.Percentage != 50 {
			t.Errorf("Modules[0].Percentage = %d, want 50", prog.Modules[0].Progress.Percentage)
		}
		if prog.Modules[1].Progress.Percentage != 0 {
			t.Errorf("Modules[1].Percentage = %d, want 0", prog.Modules[1].Progress.Percentage)
		}
	})

	t.Run("unpublished content is excluded", func(t *testing.T) {
		crs, lessons := buildCourse(t, svc, 1)
		// a draft module and a draft lesson must not join the rollup
		mod, err := svc.AddModule(ctx, crs.ID, course.NewModule{Title: "Draft Module", Position: 9})
		if err != nil {
			t.Fatalf("AddModule() error = %v", err)
		}
		if _, err = svc.AddLesson(ctx, mod.ID, course.NewLesson{Title: "Hidden", IsPublished: true}); err != nil {
			t.Fatalf("AddLesson() error = %v", err)
		}
		if _, err = svc.AddLesson(ctx, lessons[0][0].ModuleID, course.NewLesson{Title: "Draft Lesson", Position: 1}); err != nil {
			t.Fatalf("AddLesson() error = %v", err)
		}

		if _, err = svc.SetLessonProgress(ctx, student, lessons[0][0].ID, course.ProgressCompleted); err != nil {
			t.Fatalf("SetLessonProgress() error = %v", err)
		}
		prog, err := svc.Progress(ctx, student.ID, crs.ID)
		if err != nil {
			t.Fatalf("Progress() error = %v", err)
		}
		if prog.Progress.TotalLessons != 1 || prog.Progress.Percentage != 100 {
			t.Errorf("Progress = %+v, want 1/1 at 100%%", prog.Progress)
		}
	})

	t.Run("unknown course", func(t *testing.T) {
		if _, err := svc.Progress(ctx, student.ID, "nonexistent"); errors.Cause(err) != course.ErrNotFound {
			t.Errorf("error = %v, want %v", err, course.ErrNotFound)
		}
	})
}

func TestService_certificateIssuance(t *testing.T) {
	ctx := context.Background()
	svc := newCourseService(t)
	student := user.User{ID: "stu1", Name: "Student", Email: "stu@test.test"}
	crs, lessons := buildCourse(t, svc, 1, 1)

	if _, err := svc.SetLessonProgress(ctx, student, lessons[0][0].ID, course.ProgressCompleted); err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	if _, err := svc.GetCertificate(ctx, crs.ID, student.ID); errors.Cause(err) != course.ErrCertNotFound {
		t.Fatalf("certificate issued at 50%%; error = %v, want %v", err, course.ErrCertNotFound)
	}

	if _, err := svc.SetLessonProgress(ctx, student, lessons[1][0].ID, course.ProgressCompleted); err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	cert, err := svc.GetCertificate(ctx, crs.ID, student.ID)
	if err != nil {
		t.Fatalf("GetCertificate() error = %v", err)
	}
	if !strings.HasPrefix(cert.Code, "CERT-") || len(cert.Code) != len("CERT-")+10 {
		t.Errorf("Code = %q, want CERT- prefix and 10 characters", cert.Code)
	}
	if cert.IssuedAt.After(time.Now().UTC()) {
		t.Errorf("IssuedAt = %v is in the future", cert.IssuedAt)
	}

	// re-completing a lesson must not issue a second certificate
	if _, err = svc.SetLessonProgress(ctx, student, lessons[0][0].ID, course.ProgressCompleted); err != nil {
		t.Fatalf("SetLessonProgress() error = %v", err)
	}
	again, err := svc.GetCertificate(ctx, crs.ID, student.ID)
	if err != nil {
		t.Fatalf("GetCertificate() error = %v", err)
	}
	if again.ID != cert.ID || again.Code != cert.Code {
		t.Errorf("certificate reissued: got %+v, want %+v", again, cert)
	}
}
