package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
)

func TestPaymentAttachDetachIsAtomic(t *testing.T) {
	databaseURL := os.Getenv("HATID_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set HATID_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("store-pay-it-%d", stamp)
	deliveryID1 := fmt.Sprintf("dlv-pay-it-a-%d", stamp)
	deliveryID2 := fmt.Sprintf("dlv-pay-it-b-%d", stamp)
	paymentID := fmt.Sprintf("pay-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, paymentID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
	})

	if _, err := s.CreateStore(ctx, domain.Store{
		ID:   storeID,
		Name: fmt.Sprintf("PAYMENT IT %d", stamp),
	}); err != nil {
		t.Fatalf("create store: %v", err)
	}

	postingDate := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for i, deliveryID := range []string{deliveryID1, deliveryID2} {
		if _, err := s.CreateDelivery(ctx, domain.Delivery{
			ID:             deliveryID,
			StoreID:        storeID,
			DeliveryNumber: fmt.Sprintf("DLV-PAY-IT-%d-%d", stamp, i),
			PostingDate:    postingDate,
			Amount:         decimal.NewFromInt(500),
			Orders:         []domain.OrderLine{{Size: "1kg", Qty: 5, Price: decimal.NewFromInt(100)}},
			AmountPaid:     decimal.Zero,
		}); err != nil {
			t.Fatalf("create delivery %d: %v", i, err)
		}
	}

	if _, err := s.CreatePayment(ctx, domain.Payment{
		ID:            paymentID,
		StoreID:       storeID,
		ModeOfPayment: domain.PaymentModeCash,
		RefNo:         fmt.Sprintf("R-PAY-IT-%d", stamp),
		RefDate:       postingDate,
		Amount:        decimal.NewFromInt(1000),
	}, []string{deliveryID1, deliveryID2}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	for _, deliveryID := range []string{deliveryID1, deliveryID2} {
		d, err := s.GetDeliveryByID(ctx, deliveryID)
		if err != nil {
			t.Fatalf("get delivery: %v", err)
		}
		if d.PaymentID != paymentID {
			t.Fatalf("expected delivery %s attached to %s, got %q", deliveryID, paymentID, d.PaymentID)
		}
	}

	unpaid, err := s.ListUnpaidDeliveriesByStore(ctx, storeID)
	if err != nil {
		t.Fatalf("list unpaid: %v", err)
	}
	if len(unpaid) != 0 {
		t.Fatalf("expected no unpaid deliveries after payment, got %d", len(unpaid))
	}

	if err := s.DeletePayment(ctx, paymentID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}

	if _, err := s.GetPaymentByID(ctx, paymentID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted payment to be gone, got %v", err)
	}
	for _, deliveryID := range []string{deliveryID1, deliveryID2} {
		d, err := s.GetDeliveryByID(ctx, deliveryID)
		if err != nil {
			t.Fatalf("get delivery after delete: %v", err)
		}
		if d.PaymentID != "" {
			t.Fatalf("expected delivery %s detached, got %q", deliveryID, d.PaymentID)
		}
	}
}
