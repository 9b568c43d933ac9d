package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
	"hatid/backend/internal/xid"
)

func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (domain.Bill, error) {
	vendor := strings.TrimSpace(req.Vendor)
	refNo := strings.TrimSpace(req.InvoiceRefNo)
	if vendor == "" || refNo == "" {
		return domain.Bill{}, store.ErrInvalidInput
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.Bill{}, fmt.Errorf("%w: invalid bill date", store.ErrInvalidInput)
	}
	if len(req.Expenses) == 0 {
		return domain.Bill{}, fmt.Errorf("%w: a bill needs at least one expense entry", store.ErrInvalidInput)
	}

	billID := xid.New("bill")
	expenses := make([]domain.Expense, 0, len(req.Expenses))
	total := decimal.Zero
	for _, line := range req.Expenses {
		expense, err := expenseFromLine(line, billID)
		if err != nil {
			return domain.Bill{}, err
		}
		total = total.Add(expense.Amount)
		expenses = append(expenses, expense)
	}
	// The totals check runs before any row is written.
	if !total.Equal(req.Amount) {
		return domain.Bill{}, fmt.Errorf("%w: entries total does not match bill amount", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateBill(ctx, domain.Bill{
		ID:           billID,
		Vendor:       vendor,
		Date:         date,
		InvoiceRefNo: refNo,
		Amount:       req.Amount,
	}, expenses)
	if err != nil {
		return domain.Bill{}, err
	}
	return *created, nil
}

func (s *Service) UpdateBill(ctx context.Context, id string, req domain.BillUpdateRequest) (domain.Bill, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Bill{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetBillByID(ctx, id)
	if err != nil {
		return domain.Bill{}, err
	}

	updated := *existing
	if req.Vendor != nil {
		vendor := strings.TrimSpace(*req.Vendor)
		if vendor == "" {
			return domain.Bill{}, store.ErrInvalidInput
		}
		updated.Vendor = vendor
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return domain.Bill{}, fmt.Errorf("%w: invalid bill date", store.ErrInvalidInput)
		}
		updated.Date = date
	}
	if req.Amount != nil {
		updated.Amount = *req.Amount
	}

	// Lines carrying an expense id update the matching entry in place; the
	// rest are inserted as new expenses of this bill. Nothing is deleted.
	current := make(map[string]domain.Expense, len(existing.Expenses))
	for _, expense := range existing.Expenses {
		current[expense.ID] = expense
	}
	submitted := make([]domain.Expense, 0, len(req.Expenses))
	for _, line := range req.Expenses {
		expenseID := strings.TrimSpace(line.ExpenseID)
		if expenseID != "" {
			if _, ok := current[expenseID]; !ok {
				return domain.Bill{}, fmt.Errorf("%w: expense %s does not belong to this bill", store.ErrNotFound, expenseID)
			}
		}
		expense, err := expenseFromLine(line, id)
		if err != nil {
			return domain.Bill{}, err
		}
		if expenseID != "" {
			expense.ID = expenseID
			current[expenseID] = expense
		} else {
			current[expense.ID] = expense
		}
		submitted = append(submitted, expense)
	}

	total := decimal.Zero
	for _, expense := range current {
		total = total.Add(expense.Amount)
	}
	if !total.Equal(updated.Amount) {
		return domain.Bill{}, fmt.Errorf("%w: entries total does not match bill amount", store.ErrInvalidInput)
	}

	saved, err := s.repo.UpdateBill(ctx, updated, submitted)
	if err != nil {
		return domain.Bill{}, err
	}
	return *saved, nil
}

// FindBill resolves a bill by exactly one of invoice ref number or bill id,
// joined with its expenses.
func (s *Service) FindBill(ctx context.Context, refNo string, billID string) (domain.Bill, error) {
	refNo = strings.TrimSpace(refNo)
	billID = strings.TrimSpace(billID)
	if (refNo == "") == (billID == "") {
		return domain.Bill{}, fmt.Errorf("%w: supply either a ref number or a bill id", store.ErrInvalidInput)
	}

	var (
		found *domain.Bill
		err   error
	)
	if refNo != "" {
		found, err = s.repo.GetBillByRefNo(ctx, refNo)
	} else {
		found, err = s.repo.GetBillByID(ctx, billID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Bill{}, fmt.Errorf("%w: bill does not exist", store.ErrNotFound)
		}
		return domain.Bill{}, err
	}
	return *found, nil
}

func (s *Service) FindBills(ctx context.Context, filter domain.BillFilter, page int, limit int) (domain.BillListResponse, error) {
	filter.Vendor = strings.TrimSpace(filter.Vendor)
	if filter.DateFrom.IsZero() || filter.DateTo.IsZero() {
		return domain.BillListResponse{}, fmt.Errorf("%w: date range is required", store.ErrInvalidInput)
	}

	limit, offset := pageWindow(page, limit)
	records, total, err := s.repo.ListBills(ctx, filter, limit, offset)
	if err != nil {
		return domain.BillListResponse{}, err
	}

	return domain.BillListResponse{
		Records:   records,
		PageCount: pageCount(total, limit),
	}, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	expense, err := expenseFromLine(domain.ExpenseLine{
		Date:        req.Date,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Description: req.Description,
	}, "")
	if err != nil {
		return domain.Expense{}, err
	}
	if _, err := s.repo.GetAccountByID(ctx, expense.AccountID); err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}
	found, err := s.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	return *found, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}

	updated := *existing
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: invalid expense date", store.ErrInvalidInput)
		}
		updated.Date = date
	}
	if req.AccountID != nil {
		accountID := strings.TrimSpace(*req.AccountID)
		if accountID == "" {
			return domain.Expense{}, store.ErrInvalidInput
		}
		if accountID != existing.AccountID {
			if _, err := s.repo.GetAccountByID(ctx, accountID); err != nil {
				return domain.Expense{}, err
			}
		}
		updated.AccountID = accountID
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return domain.Expense{}, store.ErrInvalidInput
		}
		updated.Amount = *req.Amount
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteExpense(ctx, id)
}

func (s *Service) FindExpenses(ctx context.Context, filter domain.ExpenseFilter, page int, limit int) (domain.ExpenseListResponse, error) {
	filter.AccountID = strings.TrimSpace(filter.AccountID)
	if filter.AccountID == "" && filter.DateFrom.IsZero() && filter.DateTo.IsZero() {
		return domain.ExpenseListResponse{}, fmt.Errorf("%w: no filters applied", store.ErrInvalidInput)
	}

	limit, offset := pageWindow(page, limit)
	records, total, err := s.repo.ListExpenses(ctx, filter, limit, offset)
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}

	return domain.ExpenseListResponse{
		Records:   records,
		PageCount: pageCount(total, limit),
	}, nil
}

func (s *Service) CreateAccount(ctx context.Context, accountName string) (domain.Account, error) {
	accountName = strings.ToLower(strings.TrimSpace(accountName))
	if accountName == "" {
		return domain.Account{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateAccount(ctx, domain.Account{
		ID:          xid.New("acct"),
		AccountName: accountName,
	})
	if err != nil {
		return domain.Account{}, err
	}
	return *created, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Account{}, store.ErrInvalidInput
	}
	found, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	return *found, nil
}

func (s *Service) UpdateAccount(ctx context.Context, id string, accountName string) (domain.Account, error) {
	id = strings.TrimSpace(id)
	accountName = strings.ToLower(strings.TrimSpace(accountName))
	if id == "" || accountName == "" {
		return domain.Account{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	updated := *existing
	updated.AccountName = accountName
	saved, err := s.repo.UpdateAccount(ctx, updated)
	if err != nil {
		return domain.Account{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteAccount(ctx, id)
}

func (s *Service) FindAccounts(ctx context.Context, search string, page int, limit int) (domain.AccountListResponse, error) {
	search = strings.ToLower(strings.TrimSpace(search))

	limit, offset := pageWindow(page, limit)
	records, total, err := s.repo.ListAccounts(ctx, search, limit, offset)
	if err != nil {
		return domain.AccountListResponse{}, err
	}

	return domain.AccountListResponse{
		Records:   records,
		PageCount: pageCount(total, limit),
	}, nil
}

func expenseFromLine(line domain.ExpenseLine, billID string) (domain.Expense, error) {
	accountID := strings.TrimSpace(line.AccountID)
	if accountID == "" {
		return domain.Expense{}, fmt.Errorf("%w: expense account is required", store.ErrInvalidInput)
	}
	if line.Amount.IsNegative() {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must not be negative", store.ErrInvalidInput)
	}
	date, err := parseDate(line.Date)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: invalid expense date", store.ErrInvalidInput)
	}

	return domain.Expense{
		ID:          xid.New("exp"),
		Date:        date,
		AccountID:   accountID,
		Amount:      line.Amount,
		Description: strings.TrimSpace(line.Description),
		BillID:      billID,
	}, nil
}
