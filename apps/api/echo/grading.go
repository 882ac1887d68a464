package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/grading"
	"github.com/trezcool/shule/core/user"
)

type gradingApi struct {
	deps ServerDeps
}

func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := gradingApi{deps: deps}
	svc := deps.UserSvc

	// register directly: a middleware-bearing group on /courses/:id would add
	// catch-all NotFoundHandler routes that clobber the course API's detail routes
	g.POST("/courses/:id/assignments", api.createAssignment, jwt, permissionMiddleware(svc, user.ResourceAssignment, user.ActionCreate))
	g.GET("/courses/:id/assignments", api.queryAssignments, jwt, permissionMiddleware(svc, user.ResourceAssignment, user.ActionView))

	ag := g.Group("/assignments", jwt)
	ag.GET("/:id", api.retrieveAssignment, permissionMiddleware(svc, user.ResourceAssignment, user.ActionView))
	ag.GET("/:id/submissions", api.querySubmissions, permissionMiddleware(svc, user.ResourceSubmission, user.ActionGrade))
	ag.POST("/:id/submissions/:subID/rubric-grades", api.submitRubricGrades, permissionMiddleware(svc, user.ResourceSubmission, user.ActionGrade))

	rg := g.Group("/rubrics", jwt)
	rg.POST("", api.createRubric, permissionMiddleware(svc, user.ResourceRubric, user.ActionCreate))
	rg.GET("/:id", api.retrieveRubric, permissionMiddleware(svc, user.ResourceRubric, user.ActionView))

	sg := g.Group("/submissions", jwt)
	sg.POST("", api.createSubmission, permissionMiddleware(svc, user.ResourceSubmission, user.ActionCreate))
	sg.GET("/:id", api.retrieveSubmission, permissionMiddleware(svc, user.ResourceSubmission, user.ActionView))
	sg.POST("/:id/submit", api.submitSubmission, permissionMiddleware(svc, user.ResourceSubmission, user.ActionEdit))
	sg.GET("/:id/scores", api.queryRubricScores, permissionMiddleware(svc, user.ResourceSubmission, user.ActionView))
	sg.PUT("/:id/grade", api.gradeSubmission, permissionMiddleware(svc, user.ResourceSubmission, user.ActionGrade))
}

// Handlers

func (api *gradingApi) createAssignment(ctx echo.Context) error {
	var data grading.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	asg, err := api.deps.GradingSvc.CreateAssignment(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asg)
}

func (api *gradingApi) queryAssignments(ctx echo.Context) error {
	asgs, err := api.deps.GradingSvc.QueryAssignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if asgs == nil {
		asgs = []grading.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asgs)
}

func (api *gradingApi) retrieveAssignment(ctx echo.Context) error {
	asg, err := api.deps.GradingSvc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == grading.ErrAssignmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding assignment by ID")
	}
	return ctx.JSON(http.StatusOK, asg)
}

func (api *gradingApi) createRubric(ctx echo.Context) error {
	var data grading.NewRubric
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRubric")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rub, err := api.deps.GradingSvc.CreateRubric(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating rubric")
	}
	return ctx.JSON(http.StatusCreated, rub)
}

func (api *gradingApi) retrieveRubric(ctx echo.Context) error {
	rub, err := api.deps.GradingSvc.GetRubric(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == grading.ErrRubricNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding rubric by ID")
	}
	return ctx.JSON(http.StatusOK, rub)
}

func (api *gradingApi) createSubmission(ctx echo.Context) error {
	var data grading.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.GradingSvc.CreateSubmission(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		if errors.Cause(err) == grading.ErrAssignmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "creating submission")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *gradingApi) retrieveSubmission(ctx echo.Context) error {
	sub, err := api.deps.GradingSvc.GetSubmission(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == grading.ErrSubmissionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding submission by ID")
	}

	// students only see their own submissions
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if sub.StudentID != ctxUsr.ID && !(ctxUsr.IsAdmin() || ctxUsr.IsTeacher()) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *gradingApi) querySubmissions(ctx echo.Context) error {
	subs, err := api.deps.GradingSvc.QuerySubmissions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []grading.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *gradingApi) submitSubmission(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.GradingSvc.SubmitSubmission(ctx.Request().Context(), ctx.Param("id"), ctxUsr)
	if err != nil {
		if errors.Cause(err) == grading.ErrSubmissionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "submitting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *gradingApi) queryRubricScores(ctx echo.Context) error {
	scores, err := api.deps.GradingSvc.QueryRubricScores(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying rubric scores")
	}
	if scores == nil {
		scores = []grading.RubricScore{}
	}
	return ctx.JSON(http.StatusOK, scores)
}

// rubricGradeResponse carries the computed total alongside the graded submission.
type rubricGradeResponse struct {
	TotalScore float64            `json:"total_score"`
	Submission grading.Submission `json:"submission"`
}

func (api *gradingApi) submitRubricGrades(ctx echo.Context) error {
	var data grading.RubricGradeInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RubricGradeInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.GradingSvc.SubmitRubricGrades(ctx.Request().Context(), ctx.Param("id"), ctx.Param("subID"), data, ctxUsr)
	if err != nil {
		switch errors.Cause(err) {
		case grading.ErrAssignmentNotFound, grading.ErrSubmissionNotFound:
			return errHttpNotFound
		}
		return errors.Wrap(err, "submitting rubric grades")
	}
	return ctx.JSON(http.StatusOK, rubricGradeResponse{TotalScore: sub.Grade.Float64, Submission: sub})
}

func (api *gradingApi) gradeSubmission(ctx echo.Context) error {
	var data grading.GradeInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.GradingSvc.GradeSubmission(ctx.Request().Context(), ctx.Param("id"), data, ctxUsr)
	if err != nil {
		if errors.Cause(err) == grading.ErrSubmissionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}
