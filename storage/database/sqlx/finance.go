package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/finance"
)

type expenseRow struct {
	ID                 string      `db:"id"`
	Description        string      `db:"description"`
	Vendor             string      `db:"vendor"`
	Category           string      `db:"category"`
	Amount             float64     `db:"amount"`
	ProjectID          null.String `db:"project_id"`
	InventoryItemID    null.String `db:"inventory_item_id"`
	Status             string      `db:"status"`
	Date               time.Time   `db:"date"`
	Receipt            null.String `db:"receipt"`
	RecurringFrequency null.String `db:"recurring_frequency"`
	NextRecurringDate  null.Time   `db:"next_recurring_date"`
	CreatedBy          string      `db:"created_by"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

type financeRepository struct {
	db *sqlx.DB
}

var _ finance.Repository = (*financeRepository)(nil) // interface compliance check

func NewFinanceRepository(db *sqlx.DB) *financeRepository {
	return &financeRepository{db: db}
}

func (repo financeRepository) row(exp finance.Expense) expenseRow {
	row := expenseRow{
		ID:              exp.ID,
		Description:     exp.Description,
		Vendor:          exp.Vendor,
		Category:        exp.Category,
		Amount:          exp.Amount,
		ProjectID:       exp.ProjectID,
		InventoryItemID: exp.InventoryItemID,
		Status:          string(exp.Status),
		Date:            exp.Date.UTC(),
		Receipt:         exp.Receipt,
		CreatedBy:       exp.CreatedBy,
		CreatedAt:       exp.CreatedAt.UTC(),
		UpdatedAt:       exp.UpdatedAt.UTC(),
	}
	// the two recurrence columns are set and cleared together; the schema
	// CHECK rejects one without the other
	if exp.Recurrence != nil {
		row.RecurringFrequency = null.StringFrom(string(exp.Recurrence.Frequency))
		row.NextRecurringDate = null.TimeFrom(exp.Recurrence.NextDate.UTC())
	}
	return row
}

func (repo financeRepository) unrow(row expenseRow) finance.Expense {
	exp := finance.Expense{
		ID:              row.ID,
		Description:     row.Description,
		Vendor:          row.Vendor,
		Category:        row.Category,
		Amount:          row.Amount,
		ProjectID:       row.ProjectID,
		InventoryItemID: row.InventoryItemID,
		Status:          finance.ExpenseStatus(row.Status),
		Date:            row.Date,
		Receipt:         row.Receipt,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.RecurringFrequency.Valid {
		exp.Recurrence = &finance.Recurrence{
			Frequency: finance.Frequency(row.RecurringFrequency.String),
			NextDate:  row.NextRecurringDate.Time,
		}
	}
	return exp
}

const expenseInsertQuery = `
	INSERT INTO expense (id, description, vendor, category, amount, project_id, inventory_item_id, status, date,
						 receipt, recurring_frequency, next_recurring_date, created_by, created_at, updated_at)
	VALUES (:id, :description, :vendor, :category, :amount, :project_id, :inventory_item_id, :status, :date,
			:receipt, :recurring_frequency, :next_recurring_date, :created_by, :created_at, :updated_at)`

func (repo financeRepository) CreateExpense(ctx context.Context, exp finance.Expense) (finance.Expense, error) {
	exp.ID = uuid.New().String()
	if _, err := repo.db.NamedExecContext(ctx, expenseInsertQuery, repo.row(exp)); err != nil {
		return finance.Expense{}, errors.Wrap(err, "inserting expense")
	}
	return exp, nil
}

func (repo financeRepository) GetExpenseByID(ctx context.Context, id string) (finance.Expense, error) {
	if _, err := uuid.Parse(id); err != nil {
		return finance.Expense{}, finance.ErrNotFound
	}
	var row expenseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM expense WHERE id = $1`, id); err != nil {
		return finance.Expense{}, trapNoRowsErr(err, finance.ErrNotFound, "finding expense")
	}
	return repo.unrow(row), nil
}

func (repo financeRepository) QueryExpenses(ctx context.Context, filter *finance.QueryFilter, ordering []core.DBOrdering) ([]finance.Expense, error) {
	q := `SELECT * FROM expense`
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.Category != "" {
			conds = append(conds, "category = "+arg(filter.Category))
		}
		if filter.Status != "" {
			conds = append(conds, "status = "+arg(filter.Status))
		}
		if filter.Recurring != nil {
			if *filter.Recurring {
				conds = append(conds, "recurring_frequency IS NOT NULL")
			} else {
				conds = append(conds, "recurring_frequency IS NULL")
			}
		}
	}

	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !ord.IsValid() {
			continue
		}
		orderList = append(orderList, ord.String())
	}
	if len(orderList) > 0 {
		q += " ORDER BY " + strings.Join(orderList, ", ")
	} else {
		q += " ORDER BY date DESC"
	}

	var rows []expenseRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying expenses")
	}
	exps := make([]finance.Expense, 0, len(rows))
	for _, row := range rows {
		exps = append(exps, repo.unrow(row))
	}
	return exps, nil
}

func (repo financeRepository) UpdateExpense(ctx context.Context, exp finance.Expense) (finance.Expense, error) {
	row := repo.row(exp)
	_, err := repo.db.NamedExecContext(ctx, `
		UPDATE expense
		SET description = :description, vendor = :vendor, category = :category, amount = :amount, status = :status,
			receipt = :receipt, recurring_frequency = :recurring_frequency, next_recurring_date = :next_recurring_date,
			updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return finance.Expense{}, errors.Wrap(err, "updating expense")
	}
	return exp, nil
}

func (repo financeRepository) DeleteExpensesByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM expense WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting expenses")
	}
	return nil
}

func (repo financeRepository) QueryDueRecurringExpenses(ctx context.Context, now time.Time) ([]finance.Expense, error) {
	var rows []expenseRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM expense
		WHERE recurring_frequency IS NOT NULL AND next_recurring_date <= $1
		ORDER BY next_recurring_date`,
		now.UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying due recurring expenses")
	}
	exps := make([]finance.Expense, 0, len(rows))
	for _, row := range rows {
		exps = append(exps, repo.unrow(row))
	}
	return exps, nil
}

func (repo financeRepository) RollForward(ctx context.Context, template, occurrence finance.Expense, next finance.Recurrence) (finance.Expense, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return finance.Expense{}, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	occurrence.ID = uuid.New().String()
	if _, err = tx.NamedExecContext(ctx, expenseInsertQuery, repo.row(occurrence)); err != nil {
		return finance.Expense{}, errors.Wrap(err, "inserting expense occurrence")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE expense SET next_recurring_date = $1, updated_at = $2 WHERE id = $3`,
		next.NextDate.UTC(), time.Now().UTC(), template.ID,
	)
	if err != nil {
		return finance.Expense{}, errors.Wrap(err, "advancing recurrence")
	}

	if err = tx.Commit(); err != nil {
		return finance.Expense{}, errors.Wrap(err, "committing tx")
	}
	return occurrence, nil
}
