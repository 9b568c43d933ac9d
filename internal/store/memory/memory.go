package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
)

// Store is a mutex-guarded in-memory Repository used for dev mode and tests.
// Multi-entity operations hold the write lock for their whole duration, which
// gives them the same all-or-nothing behavior the postgres transactions do.
type Store struct {
	mu              sync.RWMutex
	storesByID      map[string]domain.Store
	deliveriesByID  map[string]domain.Delivery
	deliveryNumbers map[string]string
	paymentsByID    map[string]domain.Payment
	billsByID       map[string]domain.Bill
	billRefNos      map[string]string
	expensesByID    map[string]domain.Expense
	accountsByID    map[string]domain.Account
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		storesByID:      make(map[string]domain.Store),
		deliveriesByID:  make(map[string]domain.Delivery),
		deliveryNumbers: make(map[string]string),
		paymentsByID:    make(map[string]domain.Payment),
		billsByID:       make(map[string]domain.Bill),
		billRefNos:      make(map[string]string),
		expensesByID:    make(map[string]domain.Expense),
		accountsByID:    make(map[string]domain.Account),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns an empty store with dev login accounts.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning. Production deployments
// use PostgreSQL (DATABASE_URL) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.storesByID {
		if existing.Name == st.Name {
			return nil, store.ErrConflict
		}
	}

	st.Products = cloneProducts(st.Products)
	s.storesByID[st.ID] = st
	created := cloneStore(st)
	return &created, nil
}

func (s *Store) GetStoreByID(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.storesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneStore(st)
	return &found, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storesByID[st.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.storesByID {
		if id != st.ID && existing.Name == st.Name {
			return nil, store.ErrConflict
		}
	}

	st.Products = cloneProducts(st.Products)
	s.storesByID[st.ID] = st
	updated := cloneStore(st)
	return &updated, nil
}

func (s *Store) DeleteStore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.storesByID[id]; !ok {
		return store.ErrNotFound
	}
	for childID, child := range s.storesByID {
		if child.ParentStore == id {
			child.ParentStore = ""
			s.storesByID[childID] = child
		}
	}
	delete(s.storesByID, id)
	return nil
}

func (s *Store) LinkChildStore(_ context.Context, childID string, parentID string) error {
	if childID == parentID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.storesByID[childID]
	if !ok || child.ParentStore != "" {
		return nil
	}
	child.ParentStore = parentID
	s.storesByID[childID] = child
	return nil
}

func (s *Store) ListStores(_ context.Context, filter domain.StoreFilter, limit int, offset int) ([]domain.Store, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Store, 0, len(s.storesByID))
	for _, st := range s.storesByID {
		if filter.NameStartsWith != "" && !strings.HasPrefix(st.Name, filter.NameStartsWith) {
			continue
		}
		if filter.ParentStoreID != "" && st.ParentStore != filter.ParentStoreID {
			continue
		}
		matched = append(matched, cloneStore(st))
	}

	slices.SortFunc(matched, func(a, b domain.Store) int {
		return strings.Compare(a.Name, b.Name)
	})

	total := len(matched)
	lo, hi := window(total, limit, offset)
	return matched[lo:hi], total, nil
}

func (s *Store) CreateDelivery(_ context.Context, d domain.Delivery) (*domain.Delivery, error) {
	if d.ID == "" || d.StoreID == "" || d.DeliveryNumber == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deliveryNumbers[d.DeliveryNumber]; exists {
		return nil, store.ErrConflict
	}

	d.Orders = cloneOrderLines(d.Orders)
	d.ReturnSlip = cloneReturnLines(d.ReturnSlip)
	s.deliveriesByID[d.ID] = d
	s.deliveryNumbers[d.DeliveryNumber] = d.ID
	created := cloneDelivery(d)
	return &created, nil
}

func (s *Store) GetDeliveryByID(_ context.Context, id string) (*domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneDelivery(d)
	return &found, nil
}

func (s *Store) UpdateDelivery(_ context.Context, id string, upd domain.DeliveryUpdate) (*domain.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveriesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	upd.Apply(&d)
	s.deliveriesByID[id] = d
	updated := cloneDelivery(d)
	return &updated, nil
}

func (s *Store) DeleteDelivery(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveriesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.deliveryNumbers, d.DeliveryNumber)
	delete(s.deliveriesByID, id)
	return nil
}

func (s *Store) ListUnpaidDeliveriesByStore(_ context.Context, storeID string) ([]domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Delivery, 0, 16)
	for _, d := range s.deliveriesByID {
		if d.StoreID != storeID || d.PaymentID != "" {
			continue
		}
		matched = append(matched, cloneDelivery(d))
	}
	sortDeliveries(matched)
	return matched, nil
}

func (s *Store) ListDeliveriesByPayment(_ context.Context, paymentID string) ([]domain.Delivery, error) {
	if paymentID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Delivery, 0, 16)
	for _, d := range s.deliveriesByID {
		if d.PaymentID != paymentID {
			continue
		}
		matched = append(matched, cloneDelivery(d))
	}
	sortDeliveries(matched)
	return matched, nil
}

func sortDeliveries(deliveries []domain.Delivery) {
	slices.SortFunc(deliveries, func(a, b domain.Delivery) int {
		if !a.PostingDate.Equal(b.PostingDate) {
			if a.PostingDate.Before(b.PostingDate) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.DeliveryNumber, b.DeliveryNumber)
	})
}

func (s *Store) CreatePayment(_ context.Context, p domain.Payment, deliveryIDs []string) (*domain.Payment, error) {
	if p.ID == "" || p.StoreID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole attach set before writing anything so a bad id
	// cannot leave a partially attached payment behind.
	for _, id := range deliveryIDs {
		if _, ok := s.deliveriesByID[id]; !ok {
			return nil, store.ErrNotFound
		}
	}

	s.paymentsByID[p.ID] = p
	for _, id := range deliveryIDs {
		d := s.deliveriesByID[id]
		d.PaymentID = p.ID
		s.deliveriesByID[id] = d
	}
	created := p
	return &created, nil
}

func (s *Store) GetPaymentByID(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.paymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paymentsByID[id]; !ok {
		return store.ErrNotFound
	}
	for deliveryID, d := range s.deliveriesByID {
		if d.PaymentID == id {
			d.PaymentID = ""
			s.deliveriesByID[deliveryID] = d
		}
	}
	delete(s.paymentsByID, id)
	return nil
}

func (s *Store) ListPayments(_ context.Context, filter domain.PaymentFilter, limit int, offset int) ([]domain.Payment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Payment, 0, len(s.paymentsByID))
	for _, p := range s.paymentsByID {
		if filter.RefNo != "" && p.RefNo != filter.RefNo {
			continue
		}
		if !filter.DateFrom.IsZero() && p.RefDate.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && p.RefDate.After(filter.DateTo) {
			continue
		}
		if filter.StoreID != "" && p.StoreID != filter.StoreID {
			continue
		}
		matched = append(matched, p)
	}

	slices.SortFunc(matched, func(a, b domain.Payment) int {
		if !a.RefDate.Equal(b.RefDate) {
			if a.RefDate.After(b.RefDate) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.RefNo, b.RefNo)
	})

	total := len(matched)
	lo, hi := window(total, limit, offset)
	return matched[lo:hi], total, nil
}

func (s *Store) CreateBill(_ context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error) {
	if b.ID == "" || b.InvoiceRefNo == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.billRefNos[b.InvoiceRefNo]; exists {
		return nil, store.ErrConflict
	}

	b.Expenses = nil
	s.billsByID[b.ID] = b
	s.billRefNos[b.InvoiceRefNo] = b.ID
	for _, e := range expenses {
		e.BillID = b.ID
		s.expensesByID[e.ID] = e
	}
	created := s.joinBill(b)
	return &created, nil
}

func (s *Store) UpdateBill(_ context.Context, b domain.Bill, expenses []domain.Expense) (*domain.Bill, error) {
	if b.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.billsByID[b.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	b.InvoiceRefNo = existing.InvoiceRefNo
	b.Expenses = nil
	s.billsByID[b.ID] = b
	for _, e := range expenses {
		e.BillID = b.ID
		s.expensesByID[e.ID] = e
	}
	updated := s.joinBill(b)
	return &updated, nil
}

func (s *Store) GetBillByID(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.joinBill(b)
	return &found, nil
}

func (s *Store) GetBillByRefNo(_ context.Context, refNo string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.billRefNos[refNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.joinBill(s.billsByID[id])
	return &found, nil
}

// joinBill attaches the bill's expenses, each carrying its account's display
// name. Callers must hold at least the read lock.
func (s *Store) joinBill(b domain.Bill) domain.Bill {
	expenses := make([]domain.Expense, 0, 8)
	for _, e := range s.expensesByID {
		if e.BillID != b.ID {
			continue
		}
		expenses = append(expenses, s.withAccountName(e))
	}
	sortExpenses(expenses)
	b.Expenses = expenses
	return b
}

func (s *Store) withAccountName(e domain.Expense) domain.Expense {
	if account, ok := s.accountsByID[e.AccountID]; ok {
		e.AccountName = account.AccountName
	}
	return e
}

func (s *Store) ListBills(_ context.Context, filter domain.BillFilter, limit int, offset int) ([]domain.Bill, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Bill, 0, len(s.billsByID))
	for _, b := range s.billsByID {
		if filter.Vendor != "" && !strings.Contains(strings.ToLower(b.Vendor), strings.ToLower(filter.Vendor)) {
			continue
		}
		if !filter.DateFrom.IsZero() && b.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && b.Date.After(filter.DateTo) {
			continue
		}
		b.Expenses = nil
		matched = append(matched, b)
	}

	slices.SortFunc(matched, func(a, b domain.Bill) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.InvoiceRefNo, b.InvoiceRefNo)
	})

	total := len(matched)
	lo, hi := window(total, limit, offset)
	return matched[lo:hi], total, nil
}

func (s *Store) CreateExpense(_ context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accountsByID[e.AccountID]; !ok {
		return nil, store.ErrNotFound
	}
	s.expensesByID[e.ID] = e
	created := s.withAccountName(e)
	return &created, nil
}

func (s *Store) GetExpenseByID(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expensesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.withAccountName(e)
	return &found, nil
}

func (s *Store) UpdateExpense(_ context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expensesByID[e.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	e.BillID = existing.BillID
	s.expensesByID[e.ID] = e
	updated := s.withAccountName(e)
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, filter domain.ExpenseFilter, limit int, offset int) ([]domain.Expense, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if filter.AccountID != "" && e.AccountID != filter.AccountID {
			continue
		}
		if !filter.DateFrom.IsZero() && e.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && e.Date.After(filter.DateTo) {
			continue
		}
		matched = append(matched, s.withAccountName(e))
	}
	sortExpenses(matched)

	total := len(matched)
	lo, hi := window(total, limit, offset)
	return matched[lo:hi], total, nil
}

func sortExpenses(expenses []domain.Expense) {
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func (s *Store) CreateAccount(_ context.Context, a domain.Account) (*domain.Account, error) {
	if a.ID == "" || a.AccountName == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accountsByID {
		if existing.AccountName == a.AccountName {
			return nil, store.ErrConflict
		}
	}
	s.accountsByID[a.ID] = a
	created := a
	return &created, nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accountsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := a
	return &found, nil
}

func (s *Store) UpdateAccount(_ context.Context, a domain.Account) (*domain.Account, error) {
	if a.ID == "" || a.AccountName == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accountsByID[a.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.accountsByID {
		if id != a.ID && existing.AccountName == a.AccountName {
			return nil, store.ErrConflict
		}
	}
	s.accountsByID[a.ID] = a
	updated := a
	return &updated, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accountsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.accountsByID, id)
	return nil
}

func (s *Store) ListAccounts(_ context.Context, search string, limit int, offset int) ([]domain.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(search)
	matched := make([]domain.Account, 0, len(s.accountsByID))
	for _, a := range s.accountsByID {
		if search != "" && !strings.Contains(a.AccountName, search) {
			continue
		}
		matched = append(matched, a)
	}

	slices.SortFunc(matched, func(a, b domain.Account) int {
		return strings.Compare(a.AccountName, b.AccountName)
	})

	total := len(matched)
	lo, hi := window(total, limit, offset)
	return matched[lo:hi], total, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[user.Username] = user
	return nil
}

func window(total int, limit int, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

func cloneStore(st domain.Store) domain.Store {
	st.Products = cloneProducts(st.Products)
	return st
}

func cloneProducts(products []domain.Product) []domain.Product {
	if products == nil {
		return nil
	}
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out
}

func cloneDelivery(d domain.Delivery) domain.Delivery {
	d.Orders = cloneOrderLines(d.Orders)
	d.ReturnSlip = cloneReturnLines(d.ReturnSlip)
	if d.CheckDate != nil {
		checkDate := *d.CheckDate
		d.CheckDate = &checkDate
	}
	return d
}

func cloneOrderLines(lines []domain.OrderLine) []domain.OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]domain.OrderLine, len(lines))
	copy(out, lines)
	return out
}

func cloneReturnLines(lines []domain.ReturnLine) []domain.ReturnLine {
	if lines == nil {
		return nil
	}
	out := make([]domain.ReturnLine, len(lines))
	copy(out, lines)
	return out
}
