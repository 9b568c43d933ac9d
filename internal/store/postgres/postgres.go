package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
)

// Store is the PostgreSQL-backed Repository. Schema is managed out of band
// (see schema.sql); money columns are NUMERIC and scan straight into
// decimal.Decimal.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalidInput
	}

	products, err := json.Marshal(st.Products)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, products, is_parent, parent_store, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, st.ID, st.Name, products, st.IsParent, nullIfEmpty(st.ParentStore))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) GetStoreByID(ctx context.Context, id string) (*domain.Store, error) {
	return scanStore(s.db.QueryRowContext(ctx, `
		SELECT id, name, products, is_parent, COALESCE(parent_store, '')
		FROM stores
		WHERE id = $1
	`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*domain.Store, error) {
	var st domain.Store
	var products []byte
	err := row.Scan(&st.ID, &st.Name, &products, &st.IsParent, &st.ParentStore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(products) > 0 {
		if err := json.Unmarshal(products, &st.Products); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalidInput
	}

	products, err := json.Marshal(st.Products)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stores
		SET name = $2, products = $3, is_parent = $4, parent_store = $5, updated_at = now()
		WHERE id = $1
	`, st.ID, st.Name, products, st.IsParent, nullIfEmpty(st.ParentStore))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := st
	return &updated, nil
}

func (s *Store) DeleteStore(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Orphaned children keep existing; only the back-reference is cleared.
	if _, err := tx.ExecContext(ctx, `
		UPDATE stores SET parent_store = NULL, updated_at = now() WHERE parent_store = $1
	`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) LinkChildStore(ctx context.Context, childID string, parentID string) error {
	// Children that are missing or already parented are skipped silently.
	_, err := s.db.ExecContext(ctx, `
		UPDATE stores
		SET parent_store = $2, updated_at = now()
		WHERE id = $1 AND id <> $2 AND parent_store IS NULL
	`, childID, parentID)
	return err
}

func (s *Store) ListStores(ctx context.Context, filter domain.StoreFilter, limit int, offset int) ([]domain.Store, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, products, is_parent, COALESCE(parent_store, ''), COUNT(*) OVER()
		FROM stores
		WHERE ($1 = '' OR name LIKE $1 || '%')
			AND ($2 = '' OR parent_store = $2)
		ORDER BY name
		LIMIT $3 OFFSET $4
	`, filter.NameStartsWith, filter.ParentStoreID, nullIfNonPositive(limit), maxInt(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 32)
	total := 0
	for rows.Next() {
		var st domain.Store
		var products []byte
		if err := rows.Scan(&st.ID, &st.Name, &products, &st.IsParent, &st.ParentStore, &total); err != nil {
			return nil, 0, err
		}
		if len(products) > 0 {
			if err := json.Unmarshal(products, &st.Products); err != nil {
				return nil, 0, err
			}
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && offset > 0 {
		total, err = s.countStores(ctx, filter)
		if err != nil {
			return nil, 0, err
		}
	}
	return stores, total, nil
}

func (s *Store) countStores(ctx context.Context, filter domain.StoreFilter) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stores
		WHERE ($1 = '' OR name LIKE $1 || '%')
			AND ($2 = '' OR parent_store = $2)
	`, filter.NameStartsWith, filter.ParentStoreID).Scan(&total)
	return total, err
}

func (s *Store) CreateDelivery(ctx context.Context, d domain.Delivery) (*domain.Delivery, error) {
	if d.ID == "" || d.StoreID == "" || d.DeliveryNumber == "" {
		return nil, store.ErrInvalidInput
	}

	orders, err := json.Marshal(d.Orders)
	if err != nil {
		return nil, err
	}
	returnSlip, err := json.Marshal(d.ReturnSlip)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, store_id, delivery_number, posting_date, amount,
			bad_order, withholding_tax, other_deduction, orders, return_slip,
			amount_paid, check_number, check_date, payment_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
	`, d.ID, d.StoreID, d.DeliveryNumber, d.PostingDate, d.Amount,
		d.BadOrder, d.WithholdingTax, d.OtherDeduction, orders, returnSlip,
		d.AmountPaid, nullIfEmpty(d.CheckNumber), nullTime(d.CheckDate), nullIfEmpty(d.PaymentID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := d
	return &created, nil
}

const deliveryColumns = `
	id, store_id, delivery_number, posting_date, amount,
	bad_order, withholding_tax, other_deduction, orders, return_slip,
	amount_paid, COALESCE(check_number, ''), check_date, COALESCE(payment_id, '')
`

func scanDelivery(row rowScanner) (*domain.Delivery, error) {
	var d domain.Delivery
	var orders, returnSlip []byte
	var checkDate sql.NullTime
	err := row.Scan(&d.ID, &d.StoreID, &d.DeliveryNumber, &d.PostingDate, &d.Amount,
		&d.BadOrder, &d.WithholdingTax, &d.OtherDeduction, &orders, &returnSlip,
		&d.AmountPaid, &d.CheckNumber, &checkDate, &d.PaymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	d.PostingDate = d.PostingDate.UTC()
	if checkDate.Valid {
		cd := checkDate.Time.UTC()
		d.CheckDate = &cd
	}
	if len(orders) > 0 {
		if err := json.Unmarshal(orders, &d.Orders); err != nil {
			return nil, err
		}
	}
	if len(returnSlip) > 0 {
		if err := json.Unmarshal(returnSlip, &d.ReturnSlip); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *Store) GetDeliveryByID(ctx context.Context, id string) (*domain.Delivery, error) {
	return scanDelivery(s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1
	`, id))
}

func (s *Store) UpdateDelivery(ctx context.Context, id string, upd domain.DeliveryUpdate) (*domain.Delivery, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDelivery(tx.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	upd.Apply(d)

	_, err = tx.ExecContext(ctx, `
		UPDATE deliveries
		SET posting_date = $2, amount = $3, bad_order = $4, withholding_tax = $5,
			other_deduction = $6, amount_paid = $7, check_number = $8,
			check_date = $9, payment_id = $10, updated_at = now()
		WHERE id = $1
	`, d.ID, d.PostingDate, d.Amount, d.BadOrder, d.WithholdingTax,
		d.OtherDeduction, d.AmountPaid, nullIfEmpty(d.CheckNumber),
		nullTime(d.CheckDate), nullIfEmpty(d.PaymentID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) DeleteDelivery(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUnpaidDeliveriesByStore(ctx context.Context, storeID string) ([]domain.Delivery, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE store_id = $1 AND payment_id IS NULL
		ORDER BY posting_date, delivery_number
	`, storeID)
}

func (s *Store) ListDeliveriesByPayment(ctx context.Context, paymentID string) ([]domain.Delivery, error) {
	if paymentID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE payment_id = $1
		ORDER BY posting_date, delivery_number
	`, paymentID)
}

func (s *Store) queryDeliveries(ctx context.Context, query string, args ...any) ([]domain.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]domain.Delivery, 0, 16)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (s *Store) CreatePayment(ctx context.Context, p domain.Payment, deliveryIDs []string) (*domain.Payment, error) {
	if p.ID == "" || p.StoreID == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (
			id, store_id, mode_of_payment, bank_name, ref_no, ref_date,
			amount, bad_order, withholding_tax, other_deductions, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, p.ID, p.StoreID, p.ModeOfPayment, nullIfEmpty(p.BankName), p.RefNo, p.RefDate,
		p.Amount, p.BadOrder, p.WithholdingTax, p.OtherDeductions)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	// The attach loop runs inside the same transaction: an unknown delivery
	// id rolls back the payment row as well, never leaving a partial set.
	for _, deliveryID := range deliveryIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE deliveries SET payment_id = $2, updated_at = now() WHERE id = $1
		`, deliveryID, p.ID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := p
	return &created, nil
}

const paymentColumns = `
	id, store_id, mode_of_payment, COALESCE(bank_name, ''), ref_no, ref_date,
	amount, bad_order, withholding_tax, other_deductions
`

func scanPayment(row rowScanner, extra ...any) (*domain.Payment, error) {
	var p domain.Payment
	dest := []any{&p.ID, &p.StoreID, &p.ModeOfPayment, &p.BankName, &p.RefNo, &p.RefDate,
		&p.Amount, &p.BadOrder, &p.WithholdingTax, &p.OtherDeductions}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.RefDate = p.RefDate.UTC()
	return &p, nil
}

func (s *Store) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1
	`, id))
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Detach before dropping the row so no delivery can dangle.
	if _, err := tx.ExecContext(ctx, `
		UPDATE deliveries SET payment_id = NULL, updated_at = now() WHERE payment_id = $1
	`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) ListPayments(ctx context.Context, filter domain.PaymentFilter, limit int, offset int) ([]domain.Payment, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`, COUNT(*) OVER()
		FROM payments
		WHERE ($1 = '' OR ref_no = $1)
			AND ($2::timestamptz IS NULL OR ref_date >= $2)
			AND ($3::timestamptz IS NULL OR ref_date <= $3)
			AND ($4 = '' OR store_id = $4)
		ORDER BY ref_date DESC, ref_no
		LIMIT $5 OFFSET $6
	`, filter.RefNo, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo),
		filter.StoreID, nullIfNonPositive(limit), maxInt(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 32)
	total := 0
	for rows.Next() {
		p, err := scanPayment(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && offset > 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM payments
			WHERE ($1 = '' OR ref_no = $1)
				AND ($2::timestamptz IS NULL OR ref_date >= $2)
				AND ($3::timestamptz IS NULL OR ref_date <= $3)
				AND ($4 = '' OR store_id = $4)
		`, filter.RefNo, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo), filter.StoreID).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}
	return payments, total, nil
}

func (s *Store) CreateBill(ctx context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error) {
	if b.ID == "" || b.InvoiceRefNo == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, vendor, date, invoice_ref_no, amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, b.ID, b.Vendor, b.Date, b.InvoiceRefNo, b.Amount)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, e := range expenses {
		if err := insertExpense(ctx, tx, e, b.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBillByID(ctx, b.ID)
}

func insertExpense(ctx context.Context, tx *sql.Tx, e domain.Expense, billID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (id, date, account_id, amount, description, bill_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, e.ID, e.Date, e.AccountID, e.Amount, e.Description, nullIfEmpty(billID))
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) UpdateBill(ctx context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error) {
	if b.ID == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE bills SET vendor = $2, date = $3, amount = $4, updated_at = now()
		WHERE id = $1
	`, b.ID, b.Vendor, b.Date, b.Amount)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	for _, e := range expenses {
		res, err := tx.ExecContext(ctx, `
			UPDATE expenses SET date = $2, account_id = $3, amount = $4, description = $5, updated_at = now()
			WHERE id = $1 AND bill_id = $6
		`, e.ID, e.Date, e.AccountID, e.Amount, e.Description, b.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		updated, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if updated == 0 {
			if err := insertExpense(ctx, tx, e, b.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetBillByID(ctx, b.ID)
}

func (s *Store) GetBillByID(ctx context.Context, id string) (*domain.Bill, error) {
	return s.getBill(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetBillByRefNo(ctx context.Context, refNo string) (*domain.Bill, error) {
	return s.getBill(ctx, `WHERE invoice_ref_no = $1`, refNo)
}

func (s *Store) getBill(ctx context.Context, where string, arg any) (*domain.Bill, error) {
	var b domain.Bill
	err := s.db.QueryRowContext(ctx, `
		SELECT id, vendor, date, invoice_ref_no, amount FROM bills `+where,
		arg).Scan(&b.ID, &b.Vendor, &b.Date, &b.InvoiceRefNo, &b.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	b.Date = b.Date.UTC()

	expenses, err := s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN accounts a ON a.id = e.account_id
		WHERE e.bill_id = $1
		ORDER BY e.date, e.id
	`, b.ID)
	if err != nil {
		return nil, err
	}
	b.Expenses = expenses
	return &b, nil
}

func (s *Store) ListBills(ctx context.Context, filter domain.BillFilter, limit int, offset int) ([]domain.Bill, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor, date, invoice_ref_no, amount, COUNT(*) OVER()
		FROM bills
		WHERE ($1 = '' OR vendor ILIKE '%' || $1 || '%')
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date, invoice_ref_no
		LIMIT $4 OFFSET $5
	`, filter.Vendor, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo),
		nullIfNonPositive(limit), maxInt(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	total := 0
	for rows.Next() {
		var b domain.Bill
		if err := rows.Scan(&b.ID, &b.Vendor, &b.Date, &b.InvoiceRefNo, &b.Amount, &total); err != nil {
			return nil, 0, err
		}
		b.Date = b.Date.UTC()
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && offset > 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM bills
			WHERE ($1 = '' OR vendor ILIKE '%' || $1 || '%')
				AND ($2::timestamptz IS NULL OR date >= $2)
				AND ($3::timestamptz IS NULL OR date <= $3)
		`, filter.Vendor, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo)).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}
	return bills, total, nil
}

const expenseColumns = `
	e.id, e.date, e.account_id, COALESCE(a.account_name, ''), e.amount,
	COALESCE(e.description, ''), COALESCE(e.bill_id, '')
`

func scanExpense(row rowScanner, extra ...any) (*domain.Expense, error) {
	var e domain.Expense
	dest := []any{&e.ID, &e.Date, &e.AccountID, &e.AccountName, &e.Amount, &e.Description, &e.BillID}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.Date = e.Date.UTC()
	return &e, nil
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, date, account_id, amount, description, bill_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, e.ID, e.Date, e.AccountID, e.Amount, e.Description, nullIfEmpty(e.BillID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetExpenseByID(ctx, e.ID)
}

func (s *Store) GetExpenseByID(ctx context.Context, id string) (*domain.Expense, error) {
	return scanExpense(s.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN accounts a ON a.id = e.account_id
		WHERE e.id = $1
	`, id))
}

func (s *Store) UpdateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET date = $2, account_id = $3, amount = $4, description = $5, updated_at = now()
		WHERE id = $1
	`, e.ID, e.Date, e.AccountID, e.Amount, e.Description)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExpenseByID(ctx, e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter, limit int, offset int) ([]domain.Expense, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`, COUNT(*) OVER()
		FROM expenses e
		LEFT JOIN accounts a ON a.id = e.account_id
		WHERE ($1 = '' OR e.account_id = $1)
			AND ($2::timestamptz IS NULL OR e.date >= $2)
			AND ($3::timestamptz IS NULL OR e.date <= $3)
		ORDER BY e.date, e.id
		LIMIT $4 OFFSET $5
	`, filter.AccountID, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo),
		nullIfNonPositive(limit), maxInt(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	total := 0
	for rows.Next() {
		e, err := scanExpense(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && offset > 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM expenses
			WHERE ($1 = '' OR account_id = $1)
				AND ($2::timestamptz IS NULL OR date >= $2)
				AND ($3::timestamptz IS NULL OR date <= $3)
		`, filter.AccountID, nullIfZeroTime(filter.DateFrom), nullIfZeroTime(filter.DateTo)).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}
	return expenses, total, nil
}

func (s *Store) CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error) {
	if a.ID == "" || a.AccountName == "" {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, account_name, created_at) VALUES ($1,$2,now())
	`, a.ID, a.AccountName)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := a
	return &created, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_name FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.AccountName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a domain.Account) (*domain.Account, error) {
	if a.ID == "" || a.AccountName == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET account_name = $2 WHERE id = $1
	`, a.ID, a.AccountName)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := a
	return &updated, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, search string, limit int, offset int) ([]domain.Account, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_name, COUNT(*) OVER()
		FROM accounts
		WHERE ($1 = '' OR account_name LIKE '%' || $1 || '%')
		ORDER BY account_name
		LIMIT $2 OFFSET $3
	`, strings.ToLower(search), nullIfNonPositive(limit), maxInt(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, 32)
	total := 0
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.AccountName, &total); err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && offset > 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM accounts
			WHERE ($1 = '' OR account_name LIKE '%' || $1 || '%')
		`, strings.ToLower(search)).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}
	return accounts, total, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
	`, user.Username, user.Password, user.Role, user.Active)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users SET password = $2, updated_at = now() WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullIfZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullIfNonPositive(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
