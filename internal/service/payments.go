package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
	"hatid/backend/internal/xid"
)

func isSupportedPaymentMode(mode string) bool {
	switch mode {
	case domain.PaymentModeBankTransfer, domain.PaymentModeCheque, domain.PaymentModeCash:
		return true
	default:
		return false
	}
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	storeID := strings.TrimSpace(req.StoreID)
	refNo := strings.TrimSpace(req.RefNo)
	mode := strings.ToUpper(strings.TrimSpace(req.ModeOfPayment))
	bankName := strings.TrimSpace(req.BankName)
	if storeID == "" || refNo == "" {
		return domain.Payment{}, store.ErrInvalidInput
	}
	if !isSupportedPaymentMode(mode) {
		return domain.Payment{}, fmt.Errorf("%w: unsupported mode of payment %q", store.ErrInvalidInput, req.ModeOfPayment)
	}
	// Bank name is meaningful only for bank-routed modes. It is required
	// there and discarded for cash.
	if mode == domain.PaymentModeCash {
		bankName = ""
	} else if bankName == "" {
		return domain.Payment{}, fmt.Errorf("%w: bank name is required for %s payments", store.ErrInvalidInput, mode)
	}
	refDate, err := parseDate(req.RefDate)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: invalid ref date", store.ErrInvalidInput)
	}
	if req.Amount.IsNegative() || req.BadOrder.IsNegative() || req.WithholdingTax.IsNegative() || req.OtherDeductions.IsNegative() {
		return domain.Payment{}, store.ErrInvalidInput
	}

	if _, err := s.repo.GetStoreByID(ctx, storeID); err != nil {
		return domain.Payment{}, err
	}

	deliveryIDs := make([]string, 0, len(req.DeliveryIDs))
	seen := make(map[string]struct{}, len(req.DeliveryIDs))
	for _, deliveryID := range req.DeliveryIDs {
		deliveryID = strings.TrimSpace(deliveryID)
		if deliveryID == "" {
			continue
		}
		if _, dup := seen[deliveryID]; dup {
			continue
		}
		seen[deliveryID] = struct{}{}
		deliveryIDs = append(deliveryIDs, deliveryID)
	}

	created, err := s.repo.CreatePayment(ctx, domain.Payment{
		ID:              xid.New("pay"),
		StoreID:         storeID,
		ModeOfPayment:   mode,
		BankName:        bankName,
		RefNo:           refNo,
		RefDate:         refDate,
		Amount:          req.Amount,
		BadOrder:        req.BadOrder,
		WithholdingTax:  req.WithholdingTax,
		OtherDeductions: req.OtherDeductions,
	}, deliveryIDs)
	if err != nil {
		return domain.Payment{}, err
	}
	return *created, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Payment{}, store.ErrInvalidInput
	}
	found, err := s.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return *found, nil
}

func (s *Service) AttachDelivery(ctx context.Context, deliveryID string, paymentID string) (domain.Delivery, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	paymentID = strings.TrimSpace(paymentID)
	if deliveryID == "" || paymentID == "" {
		return domain.Delivery{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetPaymentByID(ctx, paymentID); err != nil {
		return domain.Delivery{}, err
	}

	saved, err := s.repo.UpdateDelivery(ctx, deliveryID, domain.DeliveryUpdate{PaymentID: &paymentID})
	if err != nil {
		return domain.Delivery{}, err
	}
	return *saved, nil
}

func (s *Service) DetachDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return domain.Delivery{}, store.ErrInvalidInput
	}

	unattached := ""
	saved, err := s.repo.UpdateDelivery(ctx, deliveryID, domain.DeliveryUpdate{PaymentID: &unattached})
	if err != nil {
		return domain.Delivery{}, err
	}
	return *saved, nil
}

func (s *Service) DeletePayment(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeletePayment(ctx, id)
}

// FindPayments lists payments with vendor names resolved for display. A ref
// number, when supplied, takes precedence over every other filter.
func (s *Service) FindPayments(ctx context.Context, filter domain.PaymentFilter, page int, limit int) (domain.PaymentListResponse, error) {
	filter.RefNo = strings.TrimSpace(filter.RefNo)
	filter.StoreID = strings.TrimSpace(filter.StoreID)
	if filter.RefNo != "" {
		filter.DateFrom = time.Time{}
		filter.DateTo = time.Time{}
		filter.StoreID = ""
	}
	if filter.RefNo == "" && filter.DateFrom.IsZero() && filter.DateTo.IsZero() && filter.StoreID == "" {
		return domain.PaymentListResponse{}, fmt.Errorf("%w: no filters applied", store.ErrInvalidInput)
	}

	limit, offset := pageWindow(page, limit)
	payments, total, err := s.repo.ListPayments(ctx, filter, limit, offset)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}

	// One lookup per distinct store within the page; repeated pages hit the
	// shared name cache.
	vendors := make(map[string]string, 4)
	records := make([]domain.PaymentRecord, 0, len(payments))
	for _, payment := range payments {
		vendor, ok := vendors[payment.StoreID]
		if !ok {
			vendor = s.vendorName(ctx, payment.StoreID)
			vendors[payment.StoreID] = vendor
		}
		records = append(records, domain.PaymentRecord{Payment: payment, Vendor: vendor})
	}

	return domain.PaymentListResponse{
		Records:   records,
		PageCount: pageCount(total, limit),
	}, nil
}

func vendorNameKey(storeID string) string {
	return "vendor-name:" + storeID
}

func (s *Service) vendorName(ctx context.Context, storeID string) string {
	key := vendorNameKey(storeID)
	if cached, ok, err := s.names.Get(ctx, key); err == nil && ok {
		return cached
	} else if err != nil {
		log.Printf("[service] WARN: vendor name cache read failed for store %s: %v", storeID, err)
	}

	vendor, err := s.repo.GetStoreByID(ctx, storeID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to resolve vendor name for store %s: %v", storeID, err)
		}
		return ""
	}

	if err := s.names.Set(ctx, key, vendor.Name, s.nameTTL); err != nil {
		log.Printf("[service] WARN: vendor name cache write failed for store %s: %v", storeID, err)
	}
	return vendor.Name
}
