package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

type courseApi struct {
	deps ServerDeps
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{deps: deps}
	svc := deps.UserSvc

	cg := g.Group("/courses", jwt)
	cg.POST("", api.create, permissionMiddleware(svc, user.ResourceCourse, user.ActionCreate))
	cg.GET("", api.query, permissionMiddleware(svc, user.ResourceCourse, user.ActionView))
	cg.GET("/:id", api.retrieve, permissionMiddleware(svc, user.ResourceCourse, user.ActionView))
	cg.PUT("/:id", api.update, permissionMiddleware(svc, user.ResourceCourse, user.ActionEdit))
	cg.DELETE("/:id", api.destroy, permissionMiddleware(svc, user.ResourceCourse, user.ActionDelete))
	cg.POST("/:id/modules", api.addModule, permissionMiddleware(svc, user.ResourceLesson, user.ActionCreate))
	cg.GET("/:id/progress", api.progress, permissionMiddleware(svc, user.ResourceProgress, user.ActionView))
	cg.GET("/:id/certificate", api.certificate, permissionMiddleware(svc, user.ResourceProgress, user.ActionView))

	mg := g.Group("/modules", jwt)
	mg.POST("/:id/lessons", api.addLesson, permissionMiddleware(svc, user.ResourceLesson, user.ActionCreate))

	lg := g.Group("/lessons", jwt)
	lg.PUT("/:id/progress", api.setLessonProgress, permissionMiddleware(svc, user.ResourceProgress, user.ActionEdit))
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	crs, err := api.deps.CourseSvc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.deps.CourseSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.deps.CourseSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	orig, err := api.deps.CourseSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	if err := data.Validate(orig, api.deps.Validate); err != nil {
		return err
	}

	crs, err := api.deps.CourseSvc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.deps.CourseSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addModule(ctx echo.Context) error {
	var data course.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	mod, err := api.deps.CourseSvc.AddModule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	lsn, err := api.deps.CourseSvc.AddLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == course.ErrModuleNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

// progress reports the context student's rollup on a course; staff can
// inspect any student via the `student` query param.
func (api *courseApi) progress(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studentID := ctxUsr.ID
	if qsID := ctx.QueryParam("student"); qsID != "" && qsID != ctxUsr.ID {
		if !(ctxUsr.IsAdmin() || ctxUsr.IsTeacher()) {
			return errHttpForbidden
		}
		studentID = qsID
	}

	prog, err := api.deps.CourseSvc.Progress(ctx.Request().Context(), studentID, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "computing course progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *courseApi) certificate(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studentID := ctxUsr.ID
	if qsID := ctx.QueryParam("student"); qsID != "" && qsID != ctxUsr.ID {
		if !(ctxUsr.IsAdmin() || ctxUsr.IsTeacher()) {
			return errHttpForbidden
		}
		studentID = qsID
	}

	cert, err := api.deps.CourseSvc.GetCertificate(ctx.Request().Context(), ctx.Param("id"), studentID)
	if err != nil {
		if errors.Cause(err) == course.ErrCertNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *courseApi) setLessonProgress(ctx echo.Context) error {
	var data course.ProgressInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressInput")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	lp, err := api.deps.CourseSvc.SetLessonProgress(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.Status)
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "setting lesson progress")
	}
	return ctx.JSON(http.StatusOK, lp)
}
