package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

func (app *testApp) createCourse(t *testing.T, owner user.User, lessonsPerModule ...int) (course.Course, [][]course.Lesson) {
	t.Helper()
	ctx := testCtx()

	crs, err := app.crsSvc.Create(ctx, course.NewCourse{Title: "Intro to Physics", IsPublished: true}, owner)
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	lessons := make([][]course.Lesson, 0, len(lessonsPerModule))
	for i, n := range lessonsPerModule {
		mod, err := app.crsSvc.AddModule(ctx, crs.ID, course.NewModule{Title: "Module", Position: i, IsPublished: true})
		if err != nil {
			t.Fatalf("createCourse() failed: %v", err)
		}
		modLessons := make([]course.Lesson, 0, n)
		for j := 0; j < n; j++ {
			lsn, err := app.crsSvc.AddLesson(ctx, mod.ID, course.NewLesson{Title: "Lesson", Position: j, IsPublished: true})
			if err != nil {
				t.Fatalf("createCourse() failed: %v", err)
			}
			modLessons = append(modLessons, lsn)
		}
		lessons = append(lessons, modLessons)
	}
	return crs, lessons
}

func Test_courseApi_courseCreate(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students cannot create courses", token: app.getToken(t, student), wantCode: http.StatusForbidden,
			body:     marchallObj(t, course.NewCourse{Title: "Hacking 101"}),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: app.getToken(t, teacher), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "Created", token: app.getToken(t, teacher), wantCode: http.StatusCreated,
			body: marchallObj(t, course.NewCourse{Title: "Algebra II", IsPublished: true}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/courses"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var crs course.Course
				if err := json.Unmarshal(rec.Body.Bytes(), &crs); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if crs.Slug != "algebra-ii" {
					t.Errorf("failed! slug = %q; want %q", crs.Slug, "algebra-ii")
				}
				if crs.OwnerID != teacher.ID {
					t.Errorf("failed! ownerID = %q; want %q", crs.OwnerID, teacher.ID)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_courseApi_courseUpdate(t *testing.T) {
	app := setup(t)

	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	teacherToken := app.getToken(t, teacher)
	crs, _ := app.createCourse(t, teacher)
	path := "/v1/courses/" + crs.ID

	// a partial update leaves the other fields alone
	published := false
	req, rec := newAuthRequest(http.MethodPut, path, teacherToken, marchallObj(t, course.UpdateCourse{IsPublished: &published}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var updated course.Course
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if updated.IsPublished {
		t.Error("failed! expected the course to be unpublished")
	}
	if updated.Title != crs.Title || updated.Slug != crs.Slug {
		t.Errorf("failed! updated = %+v; title/slug should be untouched", updated)
	}

	// a new title sticks
	req, rec = newAuthRequest(http.MethodPut, path, teacherToken, marchallObj(t, course.UpdateCourse{Title: "Advanced Physics"}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if updated.Title != "Advanced Physics" {
		t.Errorf("failed! title = %q; want %q", updated.Title, "Advanced Physics")
	}

	// unknown course
	req, rec = newAuthRequest(http.MethodPut, "/v1/courses/nope", teacherToken, marchallObj(t, course.UpdateCourse{Title: "X"}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
	}
}

func Test_courseApi_progress(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := app.createUser(t, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	crs, lessons := app.createCourse(t, teacher, 1, 1)

	studentToken := app.getToken(t, student)

	completeLesson := func(t *testing.T, lsn course.Lesson) {
		t.Helper()
		body := marchallObj(t, course.ProgressInput{Status: course.ProgressCompleted})
		req, rec := newAuthRequest(http.MethodPut, "/v1/lessons/"+lsn.ID+"/progress", studentToken, body)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("completing lesson failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var lp course.LessonProgress
		if err := json.Unmarshal(rec.Body.Bytes(), &lp); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if !lp.CompletedAt.Valid {
			t.Error("failed! completedAt not set")
		}
	}

	getProgress := func(t *testing.T, token, path string, wantCode int) course.CourseProgress {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		app.server.ServeHTTP(rec, req)
		if rec.Code != wantCode {
			t.Fatalf("failed! code = %v; wantCode %v; body = %v", rec.Code, wantCode, rec.Body.String())
		}
		var prog course.CourseProgress
		if wantCode == http.StatusOK {
			if err := json.Unmarshal(rec.Body.Bytes(), &prog); err != nil {
				t.Fatalf("json.Unmarshal() failed! err %v", err)
			}
		}
		return prog
	}

	progressPath := "/v1/courses/" + crs.ID + "/progress"

	// halfway through
	completeLesson(t, lessons[0][0])
	prog := getProgress(t, studentToken, progressPath, http.StatusOK)
	if prog.Progress.Percentage != 50 {
		t.Errorf("failed! percentage = %d; want 50", prog.Progress.Percentage)
	}

	// students cannot spy on each other
	getProgress(t, app.getToken(t, other), progressPath+"?student="+student.ID, http.StatusForbidden)

	// staff can inspect any student
	prog = getProgress(t, app.getToken(t, teacher), progressPath+"?student="+student.ID, http.StatusOK)
	if prog.Progress.Percentage != 50 {
		t.Errorf("failed! percentage = %d; want 50", prog.Progress.Percentage)
	}

	// no certificate yet
	req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/certificate", studentToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
	}

	// complete the course
	completeLesson(t, lessons[1][0])
	prog = getProgress(t, studentToken, progressPath, http.StatusOK)
	if prog.Progress.Percentage != 100 {
		t.Errorf("failed! percentage = %d; want 100", prog.Progress.Percentage)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/certificate", studentToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var cert course.Certificate
	if err := json.Unmarshal(rec.Body.Bytes(), &cert); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if !strings.HasPrefix(cert.Code, "CERT-") {
		t.Errorf("failed! code = %q; want a CERT- prefix", cert.Code)
	}
	if cert.StudentID != student.ID {
		t.Errorf("failed! studentID = %q; want %q", cert.StudentID, student.ID)
	}
}
