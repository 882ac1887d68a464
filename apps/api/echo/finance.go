package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/user"
)

type financeApi struct {
	deps ServerDeps
}

func registerFinanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := financeApi{deps: deps}
	svc := deps.UserSvc

	eg := g.Group("/expenses", jwt)
	eg.POST("", api.create, permissionMiddleware(svc, user.ResourceExpense, user.ActionCreate))
	eg.GET("", api.query, permissionMiddleware(svc, user.ResourceExpense, user.ActionView))
	eg.GET("/:id", api.retrieve, permissionMiddleware(svc, user.ResourceExpense, user.ActionView))
	eg.PUT("/:id", api.update, permissionMiddleware(svc, user.ResourceExpense, user.ActionEdit))
	eg.DELETE("/:id", api.destroy, permissionMiddleware(svc, user.ResourceExpense, user.ActionDelete))

	// cron and back-office trigger
	eg.POST("/process-recurring", api.processRecurring, permissionMiddleware(svc, user.ResourceExpense, user.ActionProcess))
}

// Handlers

func (api *financeApi) create(ctx echo.Context) error {
	var data finance.NewExpense
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExpense")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	exp, err := api.deps.FinanceSvc.Create(ctx.Request().Context(), data, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "creating expense")
	}
	return ctx.JSON(http.StatusCreated, exp)
}

func (api *financeApi) query(ctx echo.Context) error {
	filter := new(finance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []finance.Expense{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	exps, err := api.deps.FinanceSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying expenses")
	}
	if exps == nil {
		exps = []finance.Expense{}
	}
	return ctx.JSON(http.StatusOK, exps)
}

func (api *financeApi) retrieve(ctx echo.Context) error {
	exp, err := api.deps.FinanceSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == finance.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding expense by ID")
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (api *financeApi) update(ctx echo.Context) error {
	var data finance.UpdateExpense
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExpense")
	}

	orig, err := api.deps.FinanceSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == finance.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding expense by ID")
	}
	if err := data.Validate(orig, api.deps.Validate); err != nil {
		return err
	}

	exp, err := api.deps.FinanceSvc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		if errors.Cause(err) == finance.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating expense")
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (api *financeApi) destroy(ctx echo.Context) error {
	if err := api.deps.FinanceSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting expense")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *financeApi) processRecurring(ctx echo.Context) error {
	res, err := api.deps.FinanceSvc.ProcessRecurringExpenses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "processing recurring expenses")
	}
	return ctx.JSON(http.StatusOK, res)
}
