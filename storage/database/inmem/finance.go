package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/finance"
)

type financeRepository struct {
	db *financeTable
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *DB) finance.Repository {
	return &financeRepository{db: db.finance}
}

func (repo *financeRepository) query() []finance.Expense {
	exps := make([]finance.Expense, 0, len(repo.db.table))
	for _, exp := range repo.db.table {
		e := *exp
		if exp.Recurrence != nil {
			rec := *exp.Recurrence
			e.Recurrence = &rec
		}
		exps = append(exps, e)
	}
	return exps
}

func (repo *financeRepository) CreateExpense(ctx context.Context, exp finance.Expense) (finance.Expense, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	exp.ID = uuid.New().String()
	repo.db.table[exp.ID] = &exp
	return exp, nil
}

func (repo *financeRepository) GetExpenseByID(ctx context.Context, id string) (finance.Expense, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if exp, ok := repo.db.table[id]; ok {
		return *exp, nil
	}
	return finance.Expense{}, finance.ErrNotFound
}

func (repo *financeRepository) QueryExpenses(ctx context.Context, filter *finance.QueryFilter, ordering []core.DBOrdering) ([]finance.Expense, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exps := repo.query()
	if filter == nil {
		filter = &finance.QueryFilter{}
	}

	if filter.Category != "" {
		var filtered []finance.Expense
		for _, exp := range exps {
			if exp.Category == filter.Category {
				filtered = append(filtered, exp)
			}
		}
		exps = filtered
	}
	if exps != nil && filter.Status != "" {
		var filtered []finance.Expense
		for _, exp := range exps {
			if string(exp.Status) == filter.Status {
				filtered = append(filtered, exp)
			}
		}
		exps = filtered
	}
	if exps != nil && filter.Recurring != nil {
		var filtered []finance.Expense
		for _, exp := range exps {
			if exp.IsRecurring() == *filter.Recurring {
				filtered = append(filtered, exp)
			}
		}
		exps = filtered
	}

	sort.Slice(exps, func(i, j int) bool { return exps[i].Date.After(exps[j].Date) })
	return exps, nil
}

func (repo *financeRepository) UpdateExpense(ctx context.Context, exp finance.Expense) (finance.Expense, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[exp.ID]; !ok {
		return finance.Expense{}, finance.ErrNotFound
	}
	repo.db.table[exp.ID] = &exp
	return exp, nil
}

func (repo *financeRepository) DeleteExpensesByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *financeRepository) QueryDueRecurringExpenses(ctx context.Context, now time.Time) ([]finance.Expense, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	due := make([]finance.Expense, 0)
	for _, exp := range repo.query() {
		if exp.IsRecurring() && !exp.Recurrence.NextDate.After(now) {
			due = append(due, exp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Recurrence.NextDate.Before(due[j].Recurrence.NextDate) })
	return due, nil
}

func (repo *financeRepository) RollForward(ctx context.Context, template, occurrence finance.Expense, next finance.Recurrence) (finance.Expense, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tpl, ok := repo.db.table[template.ID]
	if !ok {
		return finance.Expense{}, finance.ErrNotFound
	}

	occurrence.ID = uuid.New().String()
	repo.db.table[occurrence.ID] = &occurrence

	rec := next
	tpl.Recurrence = &rec
	tpl.UpdatedAt = time.Now().UTC()
	return occurrence, nil
}
