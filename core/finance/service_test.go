package finance

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// fakeRepository is a minimal in-memory Repository; RollForward can be made
// to fail per template to exercise the skip-and-continue path.
type fakeRepository struct {
	expenses map[string]*Expense
	seq      int

	failRollForward map[string]bool
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		expenses:        make(map[string]*Expense),
		failRollForward: make(map[string]bool),
	}
}

func (repo *fakeRepository) CreateExpense(_ context.Context, exp Expense) (Expense, error) {
	repo.seq++
	exp.ID = "exp" + strconv.Itoa(repo.seq)
	repo.expenses[exp.ID] = &exp
	return exp, nil
}

func (repo *fakeRepository) GetExpenseByID(_ context.Context, id string) (Expense, error) {
	if exp, ok := repo.expenses[id]; ok {
		return *exp, nil
	}
	return Expense{}, ErrNotFound
}

func (repo *fakeRepository) QueryExpenses(_ context.Context, _ *QueryFilter, _ []core.DBOrdering) ([]Expense, error) {
	expenses := make([]Expense, 0, len(repo.expenses))
	for _, exp := range repo.expenses {
		expenses = append(expenses, *exp)
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].ID < expenses[j].ID })
	return expenses, nil
}

func (repo *fakeRepository) UpdateExpense(_ context.Context, exp Expense) (Expense, error) {
	if _, ok := repo.expenses[exp.ID]; !ok {
		return Expense{}, ErrNotFound
	}
	repo.expenses[exp.ID] = &exp
	return exp, nil
}

func (repo *fakeRepository) DeleteExpensesByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.expenses, id)
	}
	return nil
}

func (repo *fakeRepository) QueryDueRecurringExpenses(_ context.Context, now time.Time) ([]Expense, error) {
	due := make([]Expense, 0)
	for _, exp := range repo.expenses {
		if exp.IsRecurring() && !exp.Recurrence.NextDate.After(now) {
			due = append(due, *exp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (repo *fakeRepository) RollForward(ctx context.Context, template, occurrence Expense, next Recurrence) (Expense, error) {
	if repo.failRollForward[template.ID] {
		return Expense{}, errors.New("deadlock detected") // any transaction failure
	}
	occurrence, err := repo.CreateExpense(ctx, occurrence)
	if err != nil {
		return Expense{}, err
	}
	tpl := repo.expenses[template.ID]
	rec := next
	tpl.Recurrence = &rec
	tpl.UpdatedAt = occurrence.UpdatedAt
	return occurrence, nil
}

type testLogger struct {
	std *log.Logger
}

func (l testLogger) Debug(msg string, _ ...interface{}) { l.std.Println(msg) }
func (l testLogger) Info(msg string, _ ...interface{})  { l.std.Println(msg) }
func (l testLogger) Warn(msg string, _ ...interface{})  { l.std.Println(msg) }
func (l testLogger) Error(msg string, _ ...interface{}) { l.std.Println(msg) }
func (l testLogger) Fatal(msg string, _ ...interface{}) { l.std.Println(msg) }

func newTestService(repo Repository, now time.Time) *service {
	return &service{
		repo:    repo,
		logger:  testLogger{std: log.New(os.Stderr, "TEST : ", 0)},
		nowFunc: func() time.Time { return now },
	}
}

func TestRecurrence_Advance(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	fallback := date(2024, time.February, 20)

	tests := []struct {
		name string
		rec  Recurrence
		want time.Time
	}{
		{name: "weekly", rec: Recurrence{Frequency: FreqWeekly, NextDate: date(2024, time.January, 15)}, want: date(2024, time.January, 22)},
		{name: "monthly", rec: Recurrence{Frequency: FreqMonthly, NextDate: date(2024, time.January, 15)}, want: date(2024, time.February, 15)},
		{name: "quarterly", rec: Recurrence{Frequency: FreqQuarterly, NextDate: date(2024, time.January, 15)}, want: date(2024, time.April, 15)},
		{name: "yearly", rec: Recurrence{Frequency: FreqYearly, NextDate: date(2024, time.January, 15)}, want: date(2025, time.January, 15)},
		{name: "zero next date falls back", rec: Recurrence{Frequency: FreqMonthly}, want: date(2024, time.March, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Advance(fallback); !got.NextDate.Equal(tt.want) {
				t.Errorf("Advance().NextDate = %v, want %v", got.NextDate, tt.want)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	svc := newTestService(repo, now)
	creator := user.User{ID: "usr1"}

	t.Run("one-off", func(t *testing.T) {
		exp, err := svc.Create(ctx, NewExpense{Description: "chalk", Amount: 9.99}, creator)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if exp.IsRecurring() {
			t.Errorf("Recurrence = %+v, want nil", exp.Recurrence)
		}
		if exp.Status != ExpensePending {
			t.Errorf("Status = %v, want %v", exp.Status, ExpensePending)
		}
		if !exp.Date.Equal(now) {
			t.Errorf("Date = %v, want %v", exp.Date, now)
		}
	})

	t.Run("recurring template", func(t *testing.T) {
		exp, err := svc.Create(ctx, NewExpense{
			Description:        "rent",
			Amount:             1500,
			RecurringFrequency: FreqMonthly,
		}, creator)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !exp.IsRecurring() {
			t.Fatal("Recurrence = nil, want monthly")
		}
		want := now.AddDate(0, 1, 0)
		if !exp.Recurrence.NextDate.Equal(want) {
			t.Errorf("NextDate = %v, want %v", exp.Recurrence.NextDate, want)
		}
	})
}

func TestService_ProcessRecurringExpenses(t *testing.T) {
	ctx := context.Background()
	creator := user.User{ID: "usr1"}

	newTemplate := func(t *testing.T, repo *fakeRepository, desc string, nextDate time.Time) Expense {
		t.Helper()
		tpl, err := repo.CreateExpense(ctx, Expense{
			Description: desc,
			Vendor:      "Landlord & Co",
			Category:    "facilities",
			Amount:      1500,
			Status:      ExpenseApproved,
			Date:        nextDate.AddDate(0, -1, 0),
			Recurrence:  &Recurrence{Frequency: FreqMonthly, NextDate: nextDate},
			CreatedBy:   creator.ID,
		})
		if err != nil {
			t.Fatalf("CreateExpense() error = %v", err)
		}
		return tpl
	}

	t.Run("late run keeps the cadence", func(t *testing.T) {
		repo := newFakeRepository()
		nextDate := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
		now := time.Date(2024, time.February, 20, 8, 0, 0, 0, time.UTC) // well past the due date
		tpl := newTemplate(t, repo, "rent", nextDate)
		svc := newTestService(repo, now)

		res, err := svc.ProcessRecurringExpenses(ctx)
		if err != nil {
			t.Fatalf("ProcessRecurringExpenses() error = %v", err)
		}
		if res.Processed != 1 || len(res.CreatedExpenseIDs) != 1 {
			t.Fatalf("res = %+v, want 1 processed", res)
		}

		occ, err := repo.GetExpenseByID(ctx, res.CreatedExpenseIDs[0])
		if err != nil {
			t.Fatalf("GetExpenseByID() error = %v", err)
		}
		if occ.IsRecurring() {
			t.Errorf("occurrence Recurrence = %+v, want nil", occ.Recurrence)
		}
		if occ.Status != ExpensePending {
			t.Errorf("occurrence Status = %v, want %v", occ.Status, ExpensePending)
		}
		if !occ.Date.Equal(now) {
			t.Errorf("occurrence Date = %v, want %v", occ.Date, now)
		}
		if occ.Receipt.Valid {
			t.Errorf("occurrence Receipt = %v, want empty", occ.Receipt)
		}
		if occ.Description != tpl.Description || occ.Amount != tpl.Amount || occ.Vendor != tpl.Vendor {
			t.Errorf("occurrence = %+v, want a copy of %+v", occ, tpl)
		}

		// the template's next date advances from its previous one, not from now
		got, _ := repo.GetExpenseByID(ctx, tpl.ID)
		want := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)
		if !got.Recurrence.NextDate.Equal(want) {
			t.Errorf("template NextDate = %v, want %v", got.Recurrence.NextDate, want)
		}
	})

	t.Run("not yet due templates are untouched", func(t *testing.T) {
		repo := newFakeRepository()
		now := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
		newTemplate(t, repo, "rent", now.AddDate(0, 0, 5))
		svc := newTestService(repo, now)

		res, err := svc.ProcessRecurringExpenses(ctx)
		if err != nil {
			t.Fatalf("ProcessRecurringExpenses() error = %v", err)
		}
		if res.Processed != 0 {
			t.Errorf("Processed = %d, want 0", res.Processed)
		}
		if res.Message != "processed 0 of 0 due recurring expenses" {
			t.Errorf("Message = %q", res.Message)
		}
	})

	t.Run("one bad template does not block its siblings", func(t *testing.T) {
		repo := newFakeRepository()
		now := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
		nextDate := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
		bad := newTemplate(t, repo, "rent", nextDate)
		good := newTemplate(t, repo, "internet", nextDate)
		repo.failRollForward[bad.ID] = true
		svc := newTestService(repo, now)

		res, err := svc.ProcessRecurringExpenses(ctx)
		if err != nil {
			t.Fatalf("ProcessRecurringExpenses() error = %v", err)
		}
		if res.Processed != 1 {
			t.Errorf("Processed = %d, want 1", res.Processed)
		}
		if res.Message != "processed 1 of 2 due recurring expenses" {
			t.Errorf("Message = %q", res.Message)
		}

		// the failed template keeps its next date and stays due
		gotBad, _ := repo.GetExpenseByID(ctx, bad.ID)
		if !gotBad.Recurrence.NextDate.Equal(nextDate) {
			t.Errorf("failed template NextDate = %v, want %v", gotBad.Recurrence.NextDate, nextDate)
		}
		gotGood, _ := repo.GetExpenseByID(ctx, good.ID)
		if gotGood.Recurrence.NextDate.Equal(nextDate) {
			t.Error("sibling template was not advanced")
		}
	})
}
