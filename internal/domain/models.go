package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a priced size entry on a store's price list. Size is unique
// within one store.
type Product struct {
	Size  string          `json:"size"`
	Price decimal.Decimal `json:"price"`
}

type Store struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Products    []Product `json:"products"`
	IsParent    bool      `json:"is_parent"`
	ParentStore string    `json:"parent_store,omitempty"`
}

type StoreCreateRequest struct {
	Name          string    `json:"name"`
	Products      []Product `json:"products"`
	IsParent      bool      `json:"is_parent"`
	ChildStoreIDs []string  `json:"child_store_ids,omitempty"`
}

type StoreUpdateRequest struct {
	Name        *string    `json:"name,omitempty"`
	Products    *[]Product `json:"products,omitempty"`
	IsParent    *bool      `json:"is_parent,omitempty"`
	ParentStore *string    `json:"parent_store,omitempty"`
}

type StoreFilter struct {
	NameStartsWith string
	ParentStoreID  string
}

type StoreListResponse struct {
	Records   []Store `json:"records"`
	PageCount int     `json:"page_count"`
}

// OrderLine snapshots the unit price at the time the delivery was entered.
// Later price-list edits never recalculate a persisted line.
type OrderLine struct {
	Size  string          `json:"size"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

type ReturnLine struct {
	Size  string          `json:"size"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

type Delivery struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"store_id"`
	DeliveryNumber string          `json:"delivery_number"`
	PostingDate    time.Time       `json:"posting_date"`
	Amount         decimal.Decimal `json:"amount"`
	BadOrder       decimal.Decimal `json:"bad_order"`
	WithholdingTax decimal.Decimal `json:"withholding_tax"`
	OtherDeduction decimal.Decimal `json:"other_deduction"`
	Orders         []OrderLine     `json:"orders"`
	ReturnSlip     []ReturnLine    `json:"return_slip,omitempty"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	CheckNumber    string          `json:"check_number,omitempty"`
	CheckDate      *time.Time      `json:"check_date,omitempty"`
	PaymentID      string          `json:"payment_id,omitempty"`
}

type DeliveryCreateRequest struct {
	StoreID        string          `json:"store_id"`
	DeliveryNumber string          `json:"delivery_number"`
	PostingDate    string          `json:"posting_date"`
	Orders         []OrderLine     `json:"orders"`
	ReturnSlip     []ReturnLine    `json:"return_slip,omitempty"`
	BadOrder       decimal.Decimal `json:"bad_order"`
	WithholdingTax decimal.Decimal `json:"withholding_tax"`
	OtherDeduction decimal.Decimal `json:"other_deduction"`
	CheckNumber    string          `json:"check_number,omitempty"`
	CheckDate      string          `json:"check_date,omitempty"`
}

type DeliveryUpdateRequest struct {
	PostingDate    *string          `json:"posting_date,omitempty"`
	BadOrder       *decimal.Decimal `json:"bad_order,omitempty"`
	WithholdingTax *decimal.Decimal `json:"withholding_tax,omitempty"`
	OtherDeduction *decimal.Decimal `json:"other_deduction,omitempty"`
	AmountPaid     *decimal.Decimal `json:"amount_paid,omitempty"`
	CheckNumber    *string          `json:"check_number,omitempty"`
	CheckDate      *string          `json:"check_date,omitempty"`
}

// DeliveryUpdate is the dirty-field write set applied at the storage layer.
// A nil field is left untouched. PaymentID set to the empty string clears the
// attachment.
type DeliveryUpdate struct {
	PostingDate    *time.Time
	BadOrder       *decimal.Decimal
	WithholdingTax *decimal.Decimal
	OtherDeduction *decimal.Decimal
	AmountPaid     *decimal.Decimal
	CheckNumber    *string
	CheckDate      *time.Time
	PaymentID      *string
}

// Apply writes the update's present fields onto the delivery; nil fields are
// left untouched.
func (u DeliveryUpdate) Apply(d *Delivery) {
	if u.PostingDate != nil {
		d.PostingDate = *u.PostingDate
	}
	if u.BadOrder != nil {
		d.BadOrder = *u.BadOrder
	}
	if u.WithholdingTax != nil {
		d.WithholdingTax = *u.WithholdingTax
	}
	if u.OtherDeduction != nil {
		d.OtherDeduction = *u.OtherDeduction
	}
	if u.AmountPaid != nil {
		d.AmountPaid = *u.AmountPaid
	}
	if u.CheckNumber != nil {
		d.CheckNumber = *u.CheckNumber
	}
	if u.CheckDate != nil {
		checkDate := *u.CheckDate
		d.CheckDate = &checkDate
	}
	if u.PaymentID != nil {
		d.PaymentID = *u.PaymentID
	}
}

type DeliveryListResponse struct {
	Records []Delivery `json:"records"`
}

const (
	PaymentModeBankTransfer = "BANK_TRANSFER"
	PaymentModeCheque       = "CHEQUE"
	PaymentModeCash         = "CASH"
)

type Payment struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	ModeOfPayment   string          `json:"mode_of_payment"`
	BankName        string          `json:"bank_name,omitempty"`
	RefNo           string          `json:"ref_no"`
	RefDate         time.Time       `json:"ref_date"`
	Amount          decimal.Decimal `json:"amount"`
	BadOrder        decimal.Decimal `json:"bad_order"`
	WithholdingTax  decimal.Decimal `json:"withholding_tax"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
}

// PaymentRecord is a listing row with the vendor (store) name resolved for
// display.
type PaymentRecord struct {
	Payment
	Vendor string `json:"vendor"`
}

type PaymentCreateRequest struct {
	StoreID         string          `json:"store_id"`
	ModeOfPayment   string          `json:"mode_of_payment"`
	BankName        string          `json:"bank_name,omitempty"`
	RefNo           string          `json:"ref_no"`
	RefDate         string          `json:"ref_date"`
	Amount          decimal.Decimal `json:"amount"`
	BadOrder        decimal.Decimal `json:"bad_order"`
	WithholdingTax  decimal.Decimal `json:"withholding_tax"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
	DeliveryIDs     []string        `json:"delivery_ids"`
}

type PaymentFilter struct {
	RefNo    string
	DateFrom time.Time
	DateTo   time.Time
	StoreID  string
}

type PaymentListResponse struct {
	Records   []PaymentRecord `json:"records"`
	PageCount int             `json:"page_count"`
}

type Bill struct {
	ID           string          `json:"id"`
	Vendor       string          `json:"vendor"`
	Date         time.Time       `json:"date"`
	InvoiceRefNo string          `json:"invoice_ref_no"`
	Amount       decimal.Decimal `json:"amount"`
	Expenses     []Expense       `json:"expenses,omitempty"`
}

type Expense struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	BillID      string          `json:"bill_id,omitempty"`
}

// ExpenseLine is one expense entry submitted together with a bill. An empty
// ExpenseID means a new line; a non-empty one updates the existing expense in
// place.
type ExpenseLine struct {
	ExpenseID   string          `json:"expense_id,omitempty"`
	Date        string          `json:"date"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type BillCreateRequest struct {
	Vendor       string          `json:"vendor"`
	Date         string          `json:"date"`
	InvoiceRefNo string          `json:"invoice_ref_no"`
	Amount       decimal.Decimal `json:"amount"`
	Expenses     []ExpenseLine   `json:"expenses"`
}

type BillUpdateRequest struct {
	Vendor   *string          `json:"vendor,omitempty"`
	Date     *string          `json:"date,omitempty"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Expenses []ExpenseLine    `json:"expenses,omitempty"`
}

type BillFilter struct {
	Vendor   string
	DateFrom time.Time
	DateTo   time.Time
}

type BillListResponse struct {
	Records   []Bill `json:"records"`
	PageCount int    `json:"page_count"`
}

type ExpenseCreateRequest struct {
	Date        string          `json:"date"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type ExpenseUpdateRequest struct {
	Date        *string          `json:"date,omitempty"`
	AccountID   *string          `json:"account_id,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
}

type ExpenseFilter struct {
	AccountID string
	DateFrom  time.Time
	DateTo    time.Time
}

type ExpenseListResponse struct {
	Records   []Expense `json:"records"`
	PageCount int       `json:"page_count"`
}

type Account struct {
	ID          string `json:"id"`
	AccountName string `json:"account_name"`
}

type AccountListResponse struct {
	Records   []Account `json:"records"`
	PageCount int       `json:"page_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
