package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/user"
)

func Test_financeApi_expenses(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	accountant := app.createUser(t, "Ledger", "ledger", "ledger@test.cd", "", []string{user.RoleAccountant}, true)
	accountantToken := app.getToken(t, accountant)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students cannot record expenses", token: app.getToken(t, student), wantCode: http.StatusForbidden,
			body:     marchallObj(t, finance.NewExpense{Description: "chalk", Amount: 9.99}),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: accountantToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, finance.NewExpense{}),
			wantData: marchallObj(t, map[string]string{"description": "this field is required", "amount": "amount must be greater than 0"}),
		},
		{
			name: "Created", token: accountantToken, wantCode: http.StatusCreated,
			body: marchallObj(t, finance.NewExpense{Description: "rent", Amount: 1500, RecurringFrequency: finance.FreqMonthly}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/expenses"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body = %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var exp finance.Expense
				if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if exp.Status != finance.ExpensePending {
					t.Errorf("failed! status = %v; want %v", exp.Status, finance.ExpensePending)
				}
				if !exp.IsRecurring() {
					t.Error("failed! expected a recurring template")
				} else if !exp.Recurrence.NextDate.After(time.Now().UTC()) {
					t.Errorf("failed! nextDate = %v is not in the future", exp.Recurrence.NextDate)
				}
				if exp.CreatedBy != accountant.ID {
					t.Errorf("failed! createdBy = %q; want %q", exp.CreatedBy, accountant.ID)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_financeApi_expenseUpdate(t *testing.T) {
	app := setup(t)

	accountant := app.createUser(t, "Ledger", "ledger", "ledger@test.cd", "", []string{user.RoleAccountant}, true)
	accountantToken := app.getToken(t, accountant)

	now := time.Now().UTC()
	exp, err := app.finRepo.CreateExpense(testCtx(), finance.Expense{
		Description: "rent",
		Vendor:      "landlord",
		Amount:      1500,
		Status:      finance.ExpensePending,
		Date:        now,
		CreatedBy:   accountant.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateExpense() failed: %v", err)
	}
	path := "/v1/expenses/" + exp.ID

	// out-of-enum statuses are rejected
	req, rec := newAuthRequest(http.MethodPut, path, accountantToken, marchallObj(t, map[string]string{"status": "bogus"}))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"status": "status must be one of [pending approved rejected]"}),
	}, rec)
	if refreshed, _ := app.finRepo.GetExpenseByID(testCtx(), exp.ID); refreshed.Status != finance.ExpensePending {
		t.Errorf("failed! status = %v; want untouched %v", refreshed.Status, finance.ExpensePending)
	}

	// a partial update leaves the other fields alone
	req, rec = newAuthRequest(http.MethodPut, path, accountantToken, marchallObj(t, finance.UpdateExpense{Status: finance.ExpenseApproved}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var updated finance.Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if updated.Status != finance.ExpenseApproved {
		t.Errorf("failed! status = %v; want %v", updated.Status, finance.ExpenseApproved)
	}
	if updated.Description != "rent" || updated.Vendor != "landlord" || updated.Amount != 1500 {
		t.Errorf("failed! updated = %+v; other fields should be untouched", updated)
	}

	// unknown expense
	req, rec = newAuthRequest(http.MethodPut, "/v1/expenses/nope", accountantToken, marchallObj(t, finance.UpdateExpense{Status: finance.ExpenseApproved}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, http.StatusNotFound)
	}
}

func Test_financeApi_processRecurring(t *testing.T) {
	app := setup(t)

	student := app.createUser(t, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	accountant := app.createUser(t, "Ledger", "ledger", "ledger@test.cd", "", []string{user.RoleAccountant}, true)
	accountantToken := app.getToken(t, accountant)

	// a template that is overdue for processing
	now := time.Now().UTC()
	tpl, err := app.finRepo.CreateExpense(testCtx(), finance.Expense{
		Description: "rent",
		Amount:      1500,
		Status:      finance.ExpenseApproved,
		Date:        now.AddDate(0, -1, 0),
		Recurrence:  &finance.Recurrence{Frequency: finance.FreqMonthly, NextDate: now.AddDate(0, 0, -5)},
		CreatedBy:   accountant.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateExpense() failed: %v", err)
	}

	// accountant only
	req, rec := newAuthRequest(http.MethodPost, "/v1/expenses/process-recurring", app.getToken(t, student))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusForbidden)
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/expenses/process-recurring", accountantToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	var res finance.RolloverResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if res.Processed != 1 || len(res.CreatedExpenseIDs) != 1 {
		t.Fatalf("failed! res = %+v; want 1 processed", res)
	}
	if res.Message != "processed 1 of 1 due recurring expenses" {
		t.Errorf("failed! message = %q", res.Message)
	}

	// the occurrence is a fresh pending one-off and the template moved on
	occ, err := app.finRepo.GetExpenseByID(testCtx(), res.CreatedExpenseIDs[0])
	if err != nil {
		t.Fatalf("GetExpenseByID() failed: %v", err)
	}
	if occ.IsRecurring() || occ.Status != finance.ExpensePending {
		t.Errorf("failed! occurrence = %+v; want a pending one-off", occ)
	}
	refreshedTpl, err := app.finRepo.GetExpenseByID(testCtx(), tpl.ID)
	if err != nil {
		t.Fatalf("GetExpenseByID() failed: %v", err)
	}
	wantNext := tpl.Recurrence.NextDate.AddDate(0, 1, 0)
	if !refreshedTpl.Recurrence.NextDate.Equal(wantNext) {
		t.Errorf("failed! nextDate = %v; want %v", refreshedTpl.Recurrence.NextDate, wantNext)
	}

	// nothing left to process
	req, rec = newAuthRequest(http.MethodPost, "/v1/expenses/process-recurring", accountantToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %v", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("json.Unmarshal() failed! err %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("failed! processed = %d; want 0", res.Processed)
	}
}
