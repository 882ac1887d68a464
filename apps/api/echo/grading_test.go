package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/trezcool/shule/core/grading"
	"github.com/trezcool/shule/core/user"
)

func Test_gradingApi_rubricGrading(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := app.createUser(t, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	crs, _ := app.createCourse(t, teacher, 1)

	teacherToken := app.getToken(t, teacher)
	studentToken := app.getToken(t, student)

	do := func(t *testing.T, method, path, token string, body []byte, wantCode int, out interface{}) {
		t.Helper()
		req, rec := newAuthRequest(method, path, token, body)
		app.server.ServeHTTP(rec, req)
		if rec.Code != wantCode {
			t.Fatalf("%s %s failed! code = %v; wantCode %v; body = %v", method, path, rec.Code, wantCode, rec.Body.String())
		}
		if out != nil {
			if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
				t.Fatalf("json.Unmarshal() failed! err %v", err)
			}
		}
	}

	// the teacher sets up a rubric and an assignment bound to it
	var rub grading.Rubric
	do(t, http.MethodPost, "/v1/rubrics", teacherToken, marchallObj(t, grading.NewRubric{
		Title: "Essay Rubric",
		Criteria: []grading.NewCriterion{
			{Title: "Clarity", MaxPoints: 10},
			{Title: "Grammar", MaxPoints: 5},
		},
	}), http.StatusCreated, &rub)
	if len(rub.Criteria) != 2 {
		t.Fatalf("failed! len(criteria) = %d; want 2", len(rub.Criteria))
	}

	var asg grading.Assignment
	do(t, http.MethodPost, "/v1/courses/"+crs.ID+"/assignments", teacherToken, marchallObj(t, grading.NewAssignment{
		Title:     "Essay",
		MaxPoints: 15,
		RubricID:  rub.ID,
	}), http.StatusCreated, &asg)

	// the student hands in their attempt
	var sub grading.Submission
	do(t, http.MethodPost, "/v1/submissions", studentToken, marchallObj(t, grading.NewSubmission{
		AssignmentID: asg.ID,
		Content:      "my essay",
	}), http.StatusCreated, &sub)
	if sub.Status != grading.SubmissionSubmitted {
		t.Fatalf("failed! status = %v; want %v", sub.Status, grading.SubmissionSubmitted)
	}

	// one submission per assignment and student
	do(t, http.MethodPost, "/v1/submissions", studentToken, marchallObj(t, grading.NewSubmission{
		AssignmentID: asg.ID,
		Content:      "my essay again",
	}), http.StatusBadRequest, nil)

	gradesPath := "/v1/assignments/" + asg.ID + "/submissions/" + sub.ID + "/rubric-grades"
	gradeBody := marchallObj(t, grading.RubricGradeInput{
		Scores: []grading.CriterionScoreInput{
			{CriterionID: rub.Criteria[0].ID, Score: 12}, // clamped to 10
			{CriterionID: rub.Criteria[1].ID, Score: 4},
		},
		Feedback: "solid work",
	})

	// students cannot grade
	do(t, http.MethodPost, gradesPath, studentToken, gradeBody, http.StatusForbidden, nil)

	var res rubricGradeResponse
	do(t, http.MethodPost, gradesPath, teacherToken, gradeBody, http.StatusOK, &res)
	if res.TotalScore != 14 {
		t.Errorf("failed! total_score = %v; want 14", res.TotalScore)
	}
	graded := res.Submission
	if !graded.Grade.Valid || graded.Grade.Float64 != 14 {
		t.Errorf("failed! grade = %v; want 14", graded.Grade)
	}
	if graded.Status != grading.SubmissionGraded {
		t.Errorf("failed! status = %v; want %v", graded.Status, grading.SubmissionGraded)
	}
	if graded.Feedback != "solid work" {
		t.Errorf("failed! feedback = %q; want %q", graded.Feedback, "solid work")
	}

	// the raw payload carries the documented key
	req, rec := newAuthRequest(http.MethodPost, gradesPath, teacherToken, gradeBody)
	app.server.ServeHTTP(rec, req)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if _, ok := raw["total_score"]; !ok {
		t.Errorf("failed! response has no total_score key; body = %v", rec.Body.String())
	}

	// the recorded per-criterion scores are visible on the submission
	var scores []grading.RubricScore
	do(t, http.MethodGet, "/v1/submissions/"+sub.ID+"/scores", studentToken, nil, http.StatusOK, &scores)
	if len(scores) != 2 {
		t.Errorf("failed! len(scores) = %d; want 2", len(scores))
	}

	// students only see their own submissions
	do(t, http.MethodGet, "/v1/submissions/"+sub.ID, studentToken, nil, http.StatusOK, nil)
	do(t, http.MethodGet, "/v1/submissions/"+sub.ID, app.getToken(t, other), nil, http.StatusNotFound, nil)
	do(t, http.MethodGet, "/v1/submissions/"+sub.ID, teacherToken, nil, http.StatusOK, nil)

	// grading a submission under the wrong assignment 404s
	var otherAsg grading.Assignment
	do(t, http.MethodPost, "/v1/courses/"+crs.ID+"/assignments", teacherToken, marchallObj(t, grading.NewAssignment{
		Title:     "Quiz",
		MaxPoints: 10,
		RubricID:  rub.ID,
	}), http.StatusCreated, &otherAsg)
	do(t, http.MethodPost, "/v1/assignments/"+otherAsg.ID+"/submissions/"+sub.ID+"/rubric-grades", teacherToken, gradeBody, http.StatusNotFound, nil)
}

func Test_gradingApi_directGrade(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := app.createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	crs, _ := app.createCourse(t, teacher, 1)

	asg, err := app.grdSvc.CreateAssignment(testCtx(), crs.ID, grading.NewAssignment{Title: "Essay", MaxPoints: 20}, teacher)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	sub, err := app.grdSvc.CreateSubmission(testCtx(), grading.NewSubmission{AssignmentID: asg.ID, Content: "my essay"}, student)
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}

	grade := 18.5
	body := marchallObj(t, grading.GradeInput{Grade: &grade, Feedback: "nice"})
	req, rec := newAuthRequest(http.MethodPut, "/v1/submissions/"+sub.ID+"/grade", app.getToken(t, teacher), body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var graded grading.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &graded); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if !graded.Grade.Valid || graded.Grade.Float64 != 18.5 {
		t.Errorf("failed! grade = %v; want 18.5", graded.Grade)
	}
	if graded.Status != grading.SubmissionGraded {
		t.Errorf("failed! status = %v; want %v", graded.Status, grading.SubmissionGraded)
	}
}
