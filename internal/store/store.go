package store

import (
	"context"
	"errors"

	"hatid/backend/internal/domain"
)

var (
	// ErrNotFound: a referenced entity id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a unique constraint was violated (delivery number,
	// invoice ref no, store name, account name).
	ErrConflict = errors.New("already exists")
	// ErrInvalidInput: the request is malformed or violates a business rule
	// checked before any write.
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the entity store behind every service component. Listing
// methods take limit/offset and return the total match count so callers can
// derive page counts. Multi-entity operations (DeleteStore, CreatePayment,
// DeletePayment, CreateBill, UpdateBill) are each a single atomic unit:
// transactional in postgres, lock-scoped in memory.
type Repository interface {
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStoreByID(ctx context.Context, id string) (*domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) error
	// LinkChildStore points the child at the parent only when the child
	// exists and has no parent yet; otherwise it is a silent no-op.
	LinkChildStore(ctx context.Context, childID string, parentID string) error
	ListStores(ctx context.Context, filter domain.StoreFilter, limit int, offset int) ([]domain.Store, int, error)

	CreateDelivery(ctx context.Context, d domain.Delivery) (*domain.Delivery, error)
	GetDeliveryByID(ctx context.Context, id string) (*domain.Delivery, error)
	UpdateDelivery(ctx context.Context, id string, upd domain.DeliveryUpdate) (*domain.Delivery, error)
	DeleteDelivery(ctx context.Context, id string) error
	ListUnpaidDeliveriesByStore(ctx context.Context, storeID string) ([]domain.Delivery, error)
	ListDeliveriesByPayment(ctx context.Context, paymentID string) ([]domain.Delivery, error)

	// CreatePayment persists the payment and stamps its id onto every listed
	// delivery in one unit; an unknown delivery id fails the whole call.
	CreatePayment(ctx context.Context, p domain.Payment, deliveryIDs []string) (*domain.Payment, error)
	GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	// DeletePayment detaches every delivery still pointing at the payment,
	// then removes the payment row, in one unit.
	DeletePayment(ctx context.Context, id string) error
	ListPayments(ctx context.Context, filter domain.PaymentFilter, limit int, offset int) ([]domain.Payment, int, error)

	CreateBill(ctx context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error)
	// UpdateBill rewrites the bill's scalar fields and upserts the given
	// expense lines: lines whose id matches an existing expense are updated
	// in place, the rest are inserted. No lines are deleted.
	UpdateBill(ctx context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error)
	GetBillByID(ctx context.Context, id string) (*domain.Bill, error)
	GetBillByRefNo(ctx context.Context, refNo string) (*domain.Bill, error)
	ListBills(ctx context.Context, filter domain.BillFilter, limit int, offset int) ([]domain.Bill, int, error)

	CreateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error)
	GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, filter domain.ExpenseFilter, limit int, offset int) ([]domain.Expense, int, error)

	CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccount(ctx context.Context, a domain.Account) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	ListAccounts(ctx context.Context, search string, limit int, offset int) ([]domain.Account, int, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
