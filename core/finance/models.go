package finance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// Frequency is how often a recurring expense template rolls forward.
type Frequency string

const (
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

// ExpenseStatus is the approval state of an expense.
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

type (
	// Recurrence is the schedule of a recurring expense template.
	// A nil Recurrence on an Expense means a one-off; an expense can never
	// carry a next date without being recurring.
	Recurrence struct {
		Frequency Frequency `json:"frequency"`
		NextDate  time.Time `json:"next_date"` // UTC
	}

	Expense struct {
		ID              string        `json:"id"`
		Description     string        `json:"description"`
		Vendor          string        `json:"vendor,omitempty"`
		Category        string        `json:"category,omitempty"`
		Amount          float64       `json:"amount"`
		ProjectID       null.String   `json:"project_id,omitempty"`
		InventoryItemID null.String   `json:"inventory_item_id,omitempty"`
		Status          ExpenseStatus `json:"status"`
		Date            time.Time     `json:"date"`              // UTC
		Receipt         null.String   `json:"receipt,omitempty"` // storage key of the uploaded receipt
		Recurrence      *Recurrence   `json:"recurrence,omitempty"`
		CreatedBy       string        `json:"created_by"`
		CreatedAt       time.Time     `json:"created_at"` // UTC
		UpdatedAt       time.Time     `json:"updated_at"` // UTC
	}
)

// IsRecurring reports whether the expense is a recurring template.
func (e Expense) IsRecurring() bool { return e.Recurrence != nil }

// Advance returns the recurrence moved one frequency step past its own
// NextDate (or past `fallback` when NextDate is unset). Anchoring to the
// previous NextDate keeps the cadence stable even when processing runs late.
func (r Recurrence) Advance(fallback time.Time) Recurrence {
	from := r.NextDate
	if from.IsZero() {
		from = fallback
	}
	switch r.Frequency {
	case FreqWeekly:
		r.NextDate = from.AddDate(0, 0, 7)
	case FreqQuarterly:
		r.NextDate = from.AddDate(0, 3, 0)
	case FreqYearly:
		r.NextDate = from.AddDate(1, 0, 0)
	default: // monthly
		r.NextDate = from.AddDate(0, 1, 0)
	}
	return r
}

// NewExpense contains information needed to create a new Expense.
type NewExpense struct {
	Description        string     `json:"description" validate:"required"`
	Vendor             string     `json:"vendor"`
	Category           string     `json:"category"`
	Amount             float64    `json:"amount" validate:"gt=0"`
	ProjectID          string     `json:"project_id"`
	InventoryItemID    string     `json:"inventory_item_id"`
	Date               *time.Time `json:"date"`
	RecurringFrequency Frequency  `json:"recurring_frequency" validate:"omitempty,oneof=weekly monthly quarterly yearly"`
}

func (ne *NewExpense) Validate(validate *validator.Validate) error {
	ne.Description = core.CleanString(ne.Description)
	ne.Vendor = core.CleanString(ne.Vendor)
	ne.Category = core.CleanString(ne.Category)
	return validate.Struct(ne)
}

// UpdateExpense enumerates every mutable Expense field.
type UpdateExpense struct {
	Description string        `json:"description"`
	Vendor      string        `json:"vendor"`
	Category    string        `json:"category"`
	Amount      *float64      `json:"amount" validate:"omitempty,gt=0"`
	Status      ExpenseStatus `json:"status" validate:"omitempty,oneof=pending approved rejected"`
}

func (ue *UpdateExpense) Validate(orig Expense, validate *validator.Validate) error {
	desc := core.CleanString(ue.Description)
	if desc != "" {
		ue.Description = desc
	} else {
		ue.Description = orig.Description
	}
	ue.Vendor = core.CleanString(ue.Vendor)
	ue.Category = core.CleanString(ue.Category)
	return validate.Struct(ue)
}

// RolloverResult reports one recurring-expense processing run.
type RolloverResult struct {
	Processed         int      `json:"processed"`
	CreatedExpenseIDs []string `json:"created_expense_ids"`
	Message           string   `json:"message"`
}

type QueryFilter struct {
	Category  string `query:"category"`
	Status    string `query:"status"`
	Recurring *bool  `query:"recurring"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Category == "" && qf.Status == "" && qf.Recurring == nil
}
