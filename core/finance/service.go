package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("expense not found")
)

type (
	Repository interface {
		CreateExpense(ctx context.Context, exp Expense) (Expense, error)
		GetExpenseByID(ctx context.Context, id string) (Expense, error)
		QueryExpenses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Expense, error)
		UpdateExpense(ctx context.Context, exp Expense) (Expense, error)
		DeleteExpensesByID(ctx context.Context, ids ...string) error

		// QueryDueRecurringExpenses returns recurring templates whose NextDate
		// is at or before `now`.
		QueryDueRecurringExpenses(ctx context.Context, now time.Time) ([]Expense, error)
		// RollForward inserts the occurrence and advances the template's
		// recurrence within a single transaction; a failure rolls both back.
		RollForward(ctx context.Context, template, occurrence Expense, next Recurrence) (Expense, error)
	}

	Service interface {
		Create(ctx context.Context, ne NewExpense, creator user.User) (Expense, error)
		GetByID(ctx context.Context, id string) (Expense, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Expense, error)
		Update(ctx context.Context, id string, ue UpdateExpense) (Expense, error)
		Delete(ctx context.Context, ids ...string) error

		// ProcessRecurringExpenses rolls every due recurring template forward.
		// Each template is processed in its own transaction: one bad template
		// is skipped and reported without blocking its siblings.
		ProcessRecurringExpenses(ctx context.Context) (RolloverResult, error)
	}

	service struct {
		repo    Repository
		logger  core.Logger
		nowFunc func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{
		repo:    repo,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (svc *service) Create(ctx context.Context, ne NewExpense, creator user.User) (Expense, error) {
	now := svc.nowFunc().UTC()
	date := now
	if ne.Date != nil {
		date = ne.Date.UTC()
	}
	exp := Expense{
		Description:     ne.Description,
		Vendor:          ne.Vendor,
		Category:        ne.Category,
		Amount:          ne.Amount,
		ProjectID:       null.NewString(ne.ProjectID, ne.ProjectID != ""),
		InventoryItemID: null.NewString(ne.InventoryItemID, ne.InventoryItemID != ""),
		Status:          ExpensePending,
		Date:            date,
		CreatedBy:       creator.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ne.RecurringFrequency != "" {
		// first occurrence falls one frequency step after the expense date
		rec := Recurrence{Frequency: ne.RecurringFrequency}.Advance(date)
		exp.Recurrence = &rec
	}
	return svc.repo.CreateExpense(ctx, exp)
}

func (svc *service) GetByID(ctx context.Context, id string) (Expense, error) {
	return svc.repo.GetExpenseByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Expense, error) {
	return svc.repo.QueryExpenses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, ue UpdateExpense) (Expense, error) {
	exp, err := svc.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	exp.Description = ue.Description
	if ue.Vendor != "" {
		exp.Vendor = ue.Vendor
	}
	if ue.Category != "" {
		exp.Category = ue.Category
	}
	if ue.Amount != nil {
		exp.Amount = *ue.Amount
	}
	if ue.Status != "" {
		exp.Status = ue.Status
	}
	exp.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateExpense(ctx, exp)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteExpensesByID(ctx, ids...)
}

func (svc *service) ProcessRecurringExpenses(ctx context.Context) (RolloverResult, error) {
	now := svc.nowFunc().UTC()

	templates, err := svc.repo.QueryDueRecurringExpenses(ctx, now)
	if err != nil {
		return RolloverResult{}, errors.Wrap(err, "querying due recurring expenses")
	}

	res := RolloverResult{CreatedExpenseIDs: make([]string, 0, len(templates))}
	for _, tpl := range templates {
		occ := Expense{
			Description:     tpl.Description,
			Vendor:          tpl.Vendor,
			Category:        tpl.Category,
			Amount:          tpl.Amount,
			ProjectID:       tpl.ProjectID,
			InventoryItemID: tpl.InventoryItemID,
			Status:          ExpensePending,
			Date:            now,
			CreatedBy:       tpl.CreatedBy,
			CreatedAt:       now,
			UpdatedAt:       now,
			// Receipt deliberately left empty; the occurrence is a fresh expense.
		}
		next := tpl.Recurrence.Advance(now)

		occ, err := svc.repo.RollForward(ctx, tpl, occ, next)
		if err != nil {
			// one bad template must not block its siblings
			svc.logger.Error(fmt.Sprintf("rolling forward expense %s: %v", tpl.ID, err), err)
			continue
		}
		res.Processed++
		res.CreatedExpenseIDs = append(res.CreatedExpenseIDs, occ.ID)
	}

	res.Message = fmt.Sprintf("processed %d of %d due recurring expenses", res.Processed, len(templates))
	return res, nil
}
